package ledgerstore

import (
	"encoding/json"
	"fmt"
)

// appendJSONEvent and extractJSONEvents let a document-shaped backend
// (postgres) implement AppendEvent/Events in terms of Update/Get
// against a single row whose JSON body carries an "events" array, rather
// than maintaining a second physical list. Backends with a native list
// primitive (redis) use that instead; this is only exercised when no such
// primitive exists.
func appendJSONEvent(cur []byte, exists bool, event []byte) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if exists && len(cur) > 0 {
		if err := json.Unmarshal(cur, &doc); err != nil {
			return nil, fmt.Errorf("ledgerstore: append event into malformed document: %w", err)
		}
	}

	var events []json.RawMessage
	if raw, ok := doc["events"]; ok {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("ledgerstore: malformed events array: %w", err)
		}
	}
	events = append(events, json.RawMessage(event))

	encodedEvents, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	doc["events"] = encodedEvents

	return json.Marshal(doc)
}

func extractJSONEvents(data []byte) ([][]byte, error) {
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ledgerstore: malformed document: %w", err)
	}
	raw, ok := doc["events"]
	if !ok {
		return nil, nil
	}
	var events []json.RawMessage
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("ledgerstore: malformed events array: %w", err)
	}
	out := make([][]byte, len(events))
	for i, e := range events {
		out[i] = []byte(e)
	}
	return out, nil
}
