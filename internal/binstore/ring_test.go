package binstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinRotationStartsAtHashedIndex(t *testing.T) {
	ring := []string{"a:1", "b:2", "c:3", "d:4"}
	d := New(ring)

	h := d.Bin("alice")
	idx := StableHash("alice") % uint64(len(ring))
	require.Equal(t, ring[idx], h.Ring[0])
	require.Len(t, h.Ring, len(ring))
	require.Zero(t, h.Clock)
}

func TestBinStableAcrossCalls(t *testing.T) {
	d := New([]string{"a:1", "b:2", "c:3"})
	first := d.Bin("bob")
	second := d.Bin("bob")
	require.Equal(t, first.Ring, second.Ring)
}

func TestEscapeRoundTrip(t *testing.T) {
	cases := []string{"plain", "with:colon", `with\backslash`, `both:and\`, ""}
	for _, c := range cases {
		require.Equal(t, c, Unescape(Escape(c)), "case %q", c)
	}
}

func TestComposeKeyUnambiguous(t *testing.T) {
	a := ComposeKey("alice", "KeyString", "a:b")
	b := ComposeKey("alice:KeyString:a", "", "b")
	require.NotEqual(t, a, b)
}

func TestParseKeyRoundTrip(t *testing.T) {
	key := ComposeKey("alice:bob", "KeyList", `weird\:key`)
	bin, kind, userKey, ok := ParseKey(key)
	require.True(t, ok)
	require.Equal(t, "alice:bob", bin)
	require.Equal(t, "KeyList", kind)
	require.Equal(t, `weird\:key`, userKey)
}

func TestNextLiveWrapsAndSkipsDead(t *testing.T) {
	live := []bool{true, false, false, true, false}
	require.Equal(t, 3, NextLive(live, 0))
	require.Equal(t, 0, NextLive(live, 3))
	require.Equal(t, -1, NextLive([]bool{false, false}, 0))
}

func TestKeyPrimaryIdxFallsForwardToLive(t *testing.T) {
	live := []bool{false, false, false, false}
	require.Equal(t, -1, KeyPrimaryIdx("alice", 4, live))

	live[1] = true
	idx := KeyPrimaryIdx("alice", 4, live)
	require.Equal(t, 1, idx)
}
