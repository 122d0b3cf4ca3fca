package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical_KeyOrderInvariant(t *testing.T) {
	a := `{"b":1,"a":2,"c":{"y":1,"x":2}}`
	b := `{"a":2,"c":{"x":2,"y":1},"b":1}`

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)

	assert.Equal(t, string(ca), string(cb))
	assert.Equal(t, `{"a":2,"b":1,"c":{"x":2,"y":1}}`, string(ca))
}

func TestCanonical_NumberFormatting(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"n":1.0}`, `{"n":1}`},
		{`{"n":1}`, `{"n":1}`},
		{`{"n":1.50}`, `{"n":1.5}`},
		{`{"n":100}`, `{"n":100}`},
		{`{"n":-0.0}`, `{"n":-0}`},
	}
	for _, tc := range cases {
		got, err := Canonical(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(got))
	}
}

func TestCanonical_NoInsignificantWhitespace(t *testing.T) {
	got, err := Canonical(`{ "a" : [ 1 , 2 , 3 ] }`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2,3]}`, string(got))
}

func TestCanonical_StringEscaping(t *testing.T) {
	got, err := Canonical(`{"s":"hi\nthere \"quoted\" é"}`)
	require.NoError(t, err)
	assert.Equal(t, "{\"s\":\"hi\\nthere \\\"quoted\\\" é\"}", string(got))
}

func TestCanonical_NullTrueFalse(t *testing.T) {
	got, err := Canonical(`{"a":null,"b":true,"c":false}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":true,"c":false}`, string(got))
}

func TestCanonicalWithoutField_RemovesSignature(t *testing.T) {
	payload := map[string]interface{}{
		"auction_id": "ctx_1",
		"bidder":     "alpha",
		"signature":  "deadbeef",
	}
	got, err := CanonicalWithoutField(payload, "signature")
	require.NoError(t, err)
	assert.Equal(t, `{"auction_id":"ctx_1","bidder":"alpha"}`, string(got))
}

func TestCanonical_RoundTripIdempotent(t *testing.T) {
	in := `{"z":3,"a":[3,2,1],"m":{"k2":"v2","k1":"v1"}}`
	first, err := Canonical(in)
	require.NoError(t, err)
	second, err := Canonical(first)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCanonical_RejectsNonFiniteNumbers(t *testing.T) {
	_, err := Canonical(`{"n":1e400}`)
	assert.Error(t, err)
}

func TestCanonical_InvalidJSON(t *testing.T) {
	_, err := Canonical(`{not valid json`)
	assert.Error(t, err)
}
