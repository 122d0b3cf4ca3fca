package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRules() KeywordRules {
	return KeywordRules{
		"retail": {"buy", "shop", "price", "store"},
		"travel": {"flight", "hotel", "trip", "book"},
	}
}

func TestClassify_KeywordMatch(t *testing.T) {
	c := New(testRules())
	pools := c.Classify("where can I buy cheap shoes", nil)
	assert.ElementsMatch(t, []string{"retail"}, pools)
}

func TestClassify_MultiplePools(t *testing.T) {
	c := New(testRules())
	pools := c.Classify("book a hotel and shop for gifts", nil)
	assert.ElementsMatch(t, []string{"travel", "retail"}, pools)
}

func TestClassify_NoMatch(t *testing.T) {
	c := New(testRules())
	pools := c.Classify("tell me a joke", nil)
	assert.Empty(t, pools)
}

func TestClassify_ExplicitPoolsOverrideKeywords(t *testing.T) {
	c := New(testRules())
	pools := c.Classify("this text matches nothing", []string{"custom_pool"})
	assert.Equal(t, []string{"custom_pool"}, pools)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := New(testRules())
	pools := c.Classify("BUY NOW", nil)
	assert.ElementsMatch(t, []string{"retail"}, pools)
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(testRules())
	first := c.Classify("buy a hotel trip", nil)
	second := c.Classify("buy a hotel trip", nil)
	assert.ElementsMatch(t, first, second)
}
