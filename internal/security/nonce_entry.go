package security

import "encoding/json"

func encodeNonceEntry(e nonceEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeNonceEntry(data []byte, e *nonceEntry) error {
	return json.Unmarshal(data, e)
}
