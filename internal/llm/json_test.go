package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"Sure! Here it is: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`, true},
		{"no json here", "", false},
		{"} backwards {", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractJSON(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
