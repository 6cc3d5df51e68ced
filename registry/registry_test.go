package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestTokenRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.SaveToken(ctx, TokenMeta{
		ID:          "0:cafe",
		Name:        "Cafe Coin",
		Symbol:      "CAFE",
		Description: "a coin for coffee",
		ImageURI:    "ipfs://QmCafe",
		Creator:     "0:owner",
	}))

	got, err := r.Token(ctx, "0:cafe")
	require.NoError(t, err)
	assert.Equal(t, "Cafe Coin", got.Name)
	assert.Equal(t, "CAFE", got.Symbol)
	assert.Equal(t, "0:owner", got.Creator)
	assert.False(t, got.CreatedAt.IsZero())

	// Upsert updates the display fields, keeps identity.
	require.NoError(t, r.SaveToken(ctx, TokenMeta{
		ID:      "0:cafe",
		Name:    "Cafe Coin v2",
		Symbol:  "CAFE",
		Creator: "0:owner",
	}))
	got, err = r.Token(ctx, "0:cafe")
	require.NoError(t, err)
	assert.Equal(t, "Cafe Coin v2", got.Name)

	_, err = r.Token(ctx, "0:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenListing(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"0:a", "0:b", "0:c"} {
		require.NoError(t, r.SaveToken(ctx, TokenMeta{ID: id, Name: id, Symbol: "T", Creator: "0:owner"}))
	}
	tokens, err := r.Tokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 3)
}

func TestAgentProfile(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.SaveToken(ctx, TokenMeta{ID: "0:cafe", Name: "Cafe", Symbol: "CAFE", Creator: "0:owner"}))
	require.NoError(t, r.SaveAgent(ctx, AgentMeta{
		TokenID:      "0:cafe",
		DisplayName:  "Barista",
		Greeting:     "welcome",
		SystemPrompt: "you are a barista",
	}))

	agent, err := r.Agent(ctx, "0:cafe")
	require.NoError(t, err)
	assert.Equal(t, "Barista", agent.DisplayName)

	_, err = r.Agent(ctx, "0:other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteToken(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.SaveToken(ctx, TokenMeta{ID: "0:cafe", Name: "Cafe", Symbol: "CAFE", Creator: "0:owner"}))
	require.NoError(t, r.SaveAgent(ctx, AgentMeta{TokenID: "0:cafe", DisplayName: "Barista"}))

	require.NoError(t, r.DeleteToken(ctx, "0:cafe"))
	_, err := r.Token(ctx, "0:cafe")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Agent(ctx, "0:cafe")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.DeleteToken(ctx, "0:cafe"), ErrNotFound)
}
