package redissession_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/session"
	"github.com/raaf-ai/raaf-go/session/redissession"
)

func TestNew_ReturnsStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	s := redissession.New(client, "sess1")
	require.NotNil(t, s)
	var _ session.Store = s
}

func TestUpdateMetadata_EmptyMapIsNoOp(t *testing.T) {
	// An empty update returns before touching Redis, so an unreachable
	// address must not matter here.
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	s := redissession.New(client, "sess1")
	assert.NoError(t, s.UpdateMetadata(context.Background(), nil))
	assert.NoError(t, s.UpdateMetadata(context.Background(), map[string]any{}))
}
