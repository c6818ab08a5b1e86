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
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "role ids keep config order", input: []string{"42", "7", "42"}, expected: []string{"42", "7"}},
		{name: "padded ids are trimmed before comparison", input: []string{" 42", "42 ", "\t7"}, expected: []string{"42", "7"}},
		{name: "blank entries are dropped", input: []string{"", "  ", "9"}, expected: []string{"9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Dedupe([]int{3, 1, 3, 2, 1}))
	assert.Equal(t, []string{}, Dedupe([]string{}))
}
