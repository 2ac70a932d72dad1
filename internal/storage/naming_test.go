package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyConfig_ObjectKey(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := KeyConfig{Prefix: "prod/", Now: func() time.Time { return fixed }}

	key := cfg.ObjectKey("org-1", "c-42", "daily")
	require.True(t, strings.HasPrefix(key, "prod/contracts/org-1/c-42/daily-"))
	require.True(t, strings.HasSuffix(key, ".pdf"))

	parts, ok := cfg.ParseObjectKey(key)
	require.True(t, ok)
	assert.Equal(t, "org-1", parts.OrganizationID)
	assert.Equal(t, "c-42", parts.DocumentID)
	assert.Equal(t, "daily", parts.Kind)
	assert.False(t, parts.CreatedAt.Before(fixed))
}

func TestKeyConfig_ObjectKeyUniqueWithFixedClock(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := KeyConfig{Now: func() time.Time { return fixed }}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := cfg.ObjectKey("org", "doc", "version-v1")
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestKeyConfig_ParseObjectKey(t *testing.T) {
	cfg := KeyConfig{}

	tests := []struct {
		name string
		key  string
		ok   bool
		kind string
	}{
		{name: "valid", key: "contracts/o/d/daily-100.pdf", ok: true, kind: "daily"},
		{name: "kind with dash", key: "contracts/o/d/version-v3-100.pdf", ok: true, kind: "version-v3"},
		{name: "wrong prefix", key: "other/o/d/daily-100.pdf"},
		{name: "missing extension", key: "contracts/o/d/daily-100"},
		{name: "non numeric suffix", key: "contracts/o/d/daily-abc.pdf"},
		{name: "too deep", key: "contracts/o/d/x/daily-100.pdf"},
		{name: "no kind", key: "contracts/o/d/-100.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, ok := cfg.ParseObjectKey(tt.key)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.kind, parts.Kind)
			}
		})
	}
}

func TestEncodeSegment(t *testing.T) {
	assert.Equal(t, "%", encodeSegment(""))
	assert.Equal(t, "a%2Fb%20c", encodeSegment("a/b c"))
	assert.Equal(t, "%2E%2E", encodeSegment(".."))
	assert.Equal(t, "100%25", encodeSegment("100%"))
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", encodeSegment("550e8400-e29b-41d4-a716-446655440000"))

	for _, s := range []string{"", "acme 1", "a/b", "..", "100%", "ünïcode", "already%20escaped"} {
		got, ok := decodeSegment(encodeSegment(s))
		require.True(t, ok, s)
		assert.Equal(t, s, got)
	}
}

func TestKeyConfig_DistinctPrefixes(t *testing.T) {
	cfg := KeyConfig{}

	orgs := []string{"acme_1", "acme 1", "acme/1", "acme%201", ""}
	seen := make(map[string]string)
	for _, org := range orgs {
		p := cfg.OrganizationPrefix(org)
		prev, dup := seen[p]
		require.False(t, dup, "%q and %q share prefix %s", prev, org, p)
		seen[p] = org
	}

	assert.NotEqual(t, cfg.DocumentPrefix("o", "a/b"), cfg.DocumentPrefix("o", "a_b"))

	parts, ok := cfg.ParseObjectKey(cfg.ObjectKey("acme 1", "a/b", "daily"))
	require.True(t, ok)
	assert.Equal(t, "acme 1", parts.OrganizationID)
	assert.Equal(t, "a/b", parts.DocumentID)
}

func TestNewest(t *testing.T) {
	t0 := time.Unix(100, 0)
	_, ok := newest(nil)
	require.False(t, ok)

	got, ok := newest([]ObjectInfo{
		{Key: "a", CreatedAt: t0},
		{Key: "c", CreatedAt: t0.Add(time.Second)},
		{Key: "b", CreatedAt: t0.Add(time.Second)},
	})
	require.True(t, ok)
	assert.Equal(t, "c", got.Key)
}
