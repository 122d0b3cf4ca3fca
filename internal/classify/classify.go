// Package classify implements the pure ContextRequest -> CategoryPool
// classifier (§4.6's "Classify into pools" step, resolving Open Question
// (a)). It is deliberately a plain function over configured keyword sets —
// the same shape as the reference corpus's adapter_selector region/format
// filtering, minus any I/O — so it stays independently unit-testable and
// never suspends.
package classify

import "strings"

// KeywordRules maps a CategoryPool name to the set of lowercase keywords
// that route a request into it.
type KeywordRules map[string][]string

// Classifier is a pure function from request text/metadata to the set of
// pools it belongs to.
type Classifier struct {
	rules KeywordRules
}

// New builds a Classifier from configured keyword rules.
func New(rules KeywordRules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the pools matched by queryText's tokens, unless the
// caller asserted pools in explicitPools: then those pools alone are
// returned and the keyword rules are not consulted (platform-supplied
// classification always wins — it is never filtered against the keyword
// rules; only empty names and duplicates are dropped). The result has no
// duplicates; order is not significant to callers, who must treat it as a
// set.
func (c *Classifier) Classify(queryText string, explicitPools []string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(pool string) {
		if pool == "" {
			return
		}
		if _, ok := seen[pool]; ok {
			return
		}
		seen[pool] = struct{}{}
		out = append(out, pool)
	}

	for _, p := range explicitPools {
		add(p)
	}
	if len(explicitPools) > 0 {
		return out
	}

	tokens := tokenize(queryText)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = struct{}{}
	}

	for pool, keywords := range c.rules {
		for _, kw := range keywords {
			if _, ok := tokenSet[strings.ToLower(kw)]; ok {
				add(pool)
				break
			}
		}
	}
	return out
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}
