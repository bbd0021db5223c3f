package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLCanonicalizesScheme_Host_Path(t *testing.T) {
	t.Parallel()

	got, err := URL("HTTP://Example.TEST:80//a//b//")
	require.NoError(t, err)
	require.Equal(t, "http://example.test/a/b", got)
}

func TestURLDefaultsEmptyPathToRoot(t *testing.T) {
	t.Parallel()

	got, err := URL("https://example.test")
	require.NoError(t, err)
	require.Equal(t, "https://example.test/", got)
}

func TestURLDropsFragmentKeepsQuery(t *testing.T) {
	t.Parallel()

	got, err := URL("https://example.test/a?x=1#section")
	require.NoError(t, err)
	require.Equal(t, "https://example.test/a?x=1", got)
}

func TestURLMalformedMissingHost(t *testing.T) {
	t.Parallel()

	_, err := URL("/relative/path")
	require.ErrorIs(t, err, ErrMalformedURL)
}

func TestURLIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTP://Example.TEST:80//a//b//",
		"https://example.test",
		"https://example.test/a?x=1#frag",
	}
	for _, in := range inputs {
		once, err := URL(in)
		require.NoError(t, err)
		twice, err := URL(once)
		require.NoError(t, err)
		require.Equal(t, once, twice, "normalize(normalize(u)) must equal normalize(u)")
	}
}

func TestIsInternalSuffixMatch(t *testing.T) {
	t.Parallel()

	require.True(t, IsInternal("example.test", "example.test"))
	require.True(t, IsInternal("sub.example.test", "example.test"))
	require.True(t, IsInternal("www.example.test", "example.test"))
	require.False(t, IsInternal("notexample.test", "example.test"))
	require.False(t, IsInternal("evil-example.test", "example.test"))
	require.False(t, IsInternal("other.test", "example.test"))
}

func TestIsInternalSubstringRejectedAlternative(t *testing.T) {
	t.Parallel()

	// Documents the looser Java-source behavior this project does not use in
	// production: a substring match would wrongly call this internal.
	require.True(t, IsInternalSubstring("notexample.test", "example.test"))
	require.False(t, IsInternal("notexample.test", "example.test"))
}

func TestPathAndHost(t *testing.T) {
	t.Parallel()

	normalized, err := URL("https://example.test/a/b/")
	require.NoError(t, err)

	path, err := Path(normalized)
	require.NoError(t, err)
	require.Equal(t, "/a/b", path)

	host, err := Host(normalized)
	require.NoError(t, err)
	require.Equal(t, "example.test", host)
}
