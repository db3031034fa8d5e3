package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	kv := []any{"query_id", "0xabc", "weight", 100, 42, "ignored"}
	assert.Equal(t, "0xabc", ExtractString(kv, "query_id"))
	assert.Equal(t, "", ExtractString(kv, "weight"))
	assert.Equal(t, "", ExtractString(kv, "missing"))
}

func TestToDetails(t *testing.T) {
	got := ToDetails([]any{"weight", 100, "resolved", true, 7, "skipped", "dangling"})
	assert.Equal(t, map[string]string{"weight": "100", "resolved": "true"}, got)
	assert.Nil(t, ToDetails(nil))
}
