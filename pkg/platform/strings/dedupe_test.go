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
		{
			name:     "broker list with blanks and repeats",
			input:    []string{" kafka-1:9092", "kafka-2:9092", "", "kafka-1:9092 ", "  "},
			expected: []string{"kafka-1:9092", "kafka-2:9092"},
		},
		{
			name:     "case is significant",
			input:    []string{"Host", "host"},
			expected: []string{"Host", "host"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		" 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed ",
		"0x00000000000000000000000000000000000000A1",
	})
	assert.Equal(t, []string{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x00000000000000000000000000000000000000a1",
	}, got)
}
