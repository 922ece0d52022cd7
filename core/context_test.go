package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuppressHeader(t *testing.T) {
	ctx := context.Background()
	assert.False(t, shouldSuppressHeader(ctx))
	assert.True(t, shouldSuppressHeader(withSuppressHeader(ctx)))
	assert.True(t, shouldSuppressHeader(WithSuppressHeader(ctx)))

	wrong := context.WithValue(ctx, suppressHeaderKey, "yes")
	assert.False(t, shouldSuppressHeader(wrong))
}
