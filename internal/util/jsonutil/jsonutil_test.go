package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalModelOutput(t *testing.T) {
	type doc struct {
		Title string `json:"title"`
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean object", `{"title":"a"}`, "a"},
		{"fenced", "```json\n{\"title\":\"b\"}\n```", "b"},
		{"fence without language tag", "```\n{\"title\":\"c\"}\n```", "c"},
		{"leading prose", "Here is the record you asked for:\n{\"title\":\"d\"}", "d"},
		{"trailing prose", `{"title":"e"} Let me know if you need changes.`, "e"},
		{"braces inside strings", `{"title":"f {not a nested object}"}`, "f {not a nested object}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d doc
			require.NoError(t, UnmarshalModelOutput(tc.in, &d))
			assert.Equal(t, tc.want, d.Title)
		})
	}
}

func TestUnmarshalModelOutputArray(t *testing.T) {
	var got []int
	require.NoError(t, UnmarshalModelOutput("The values are:\n[1, 2, 3]\nas requested.", &got))
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestUnmarshalModelOutputEscapedQuotes(t *testing.T) {
	var d struct {
		Text string `json:"text"`
	}
	require.NoError(t, UnmarshalModelOutput(`prose {"text":"she said \"go\" twice"} prose`, &d))
	assert.Equal(t, `she said "go" twice`, d.Text)
}

func TestUnmarshalModelOutputNoJSON(t *testing.T) {
	var v any
	assert.ErrorIs(t, UnmarshalModelOutput("I could not produce a structured answer.", &v), ErrNoJSON)
	assert.ErrorIs(t, UnmarshalModelOutput("   ", &v), ErrNoJSON)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}
