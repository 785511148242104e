package contextx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Fields(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRunID(ctx, "run-42")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "run-42", GetRunID(ctx))
	assert.Equal(t, "", GetIP(ctx))
	assert.Equal(t, []any{"request_id", "req-1", "run_id", "run-42"}, Fields(ctx))
}
