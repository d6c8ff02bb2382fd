package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zenstackhq/zenstack-v3-sub005/privacy"
)

func TestWithViewerRoundTrips(t *testing.T) {
	ctx := privacy.WithViewer(context.Background(), privacy.ClaimsMap{"id": "u1"})
	v, ok := privacy.ViewerFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"id": "u1"}, v.Claims())
}

func TestViewerFromContextAbsent(t *testing.T) {
	_, ok := privacy.ViewerFromContext(context.Background())
	assert.False(t, ok)
}

func TestAuthValueAnonymousIsNil(t *testing.T) {
	assert.Nil(t, privacy.AuthValue(context.Background()))
}

func TestAuthValueResolvesViewerClaims(t *testing.T) {
	ctx := privacy.WithViewer(context.Background(), privacy.ClaimsMap{"id": "u1", "role": "admin"})
	assert.Equal(t, map[string]any{"id": "u1", "role": "admin"}, privacy.AuthValue(ctx))
}
