package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/platform/config"
)

func TestNewWithoutURLIsDisabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}
