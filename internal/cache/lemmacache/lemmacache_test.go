package lemmacache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreateFabricatesOnMiss(t *testing.T) {
	t.Parallel()

	c := New(10, time.Minute, nil)
	h, err := c.GetOrCreate(context.Background(), "site1", "cat")
	require.NoError(t, err)
	require.Equal(t, 0, h.Frequency)
}

func TestGetOrCreateConsultsLookupOnMiss(t *testing.T) {
	t.Parallel()

	c := New(10, time.Minute, func(_ context.Context, site, text string) (string, int, bool, error) {
		require.Equal(t, "site1", site)
		require.Equal(t, "cat", text)
		return "lemma-42", 7, true, nil
	})
	h, err := c.GetOrCreate(context.Background(), "site1", "cat")
	require.NoError(t, err)
	require.Equal(t, "lemma-42", h.LemmaID)
	require.Equal(t, 7, h.Frequency)
}

func TestGetOrCreateReturnsSameHandleOnHit(t *testing.T) {
	t.Parallel()

	c := New(10, time.Minute, nil)
	h1, err := c.GetOrCreate(context.Background(), "site1", "cat")
	require.NoError(t, err)
	h1.AddFrequency(5)

	h2, err := c.GetOrCreate(context.Background(), "site1", "cat")
	require.NoError(t, err)
	require.Same(t, h1, h2)
	_, freq := h2.Snapshot()
	require.Equal(t, 5, freq)
}

func TestClearEmptiesCacheButLeavesHeldHandlesValid(t *testing.T) {
	t.Parallel()

	c := New(10, time.Minute, nil)
	h, err := c.GetOrCreate(context.Background(), "site1", "cat")
	require.NoError(t, err)

	c.Clear()
	require.Equal(t, 0, c.Len())

	// A handle already checked out by a caller remains usable after Clear.
	h.AddFrequency(1)
	_, freq := h.Snapshot()
	require.Equal(t, 1, freq)
}
