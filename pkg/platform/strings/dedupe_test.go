package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil stays nil", nil, nil},
		{"empty stays empty", []string{}, []string{}},
		{"single label", []string{"Person"}, []string{"Person"}},
		{"trims whitespace", []string{"  Person  ", "Place "}, []string{"Person", "Place"}},
		{"drops empties", []string{"Person", "", "   ", "Place"}, []string{"Person", "Place"}},
		{
			"first occurrence wins",
			[]string{"Person", "Place", "Person", "Event", "Place"},
			[]string{"Person", "Place", "Event"},
		},
		{
			"case is significant",
			[]string{"Person", "person", "PERSON"},
			[]string{"Person", "person", "PERSON"},
		},
		{
			"trim before dedupe",
			[]string{" Person", "Person ", "Person"},
			[]string{"Person"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
