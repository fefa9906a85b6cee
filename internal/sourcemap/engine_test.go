package sourcemap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher returns canned bytes per URL (nil for unknown URLs), modeling the
// "injected fetcher" of spec §4.4.
type stubFetcher struct {
	byURL map[string][]byte
}

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := s.byURL[url]
	if !ok {
		return nil, nil
	}
	return data, nil
}

// memCache is an in-process ContentCache stand-in for RedisCache, so
// tests can assert a Set actually happened without a real Redis.
type memCache struct {
	entries map[string]string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, content string) {
	c.entries[key] = content
}

// oneMappingSourceMap encodes a single VLQ segment by hand for a one-mapping
// source map: generated (line 0, col 0) -> source 0, original (line 5,
// col 2), name 0. Field deltas: [genCol=0, sourceIndex=0, origLine=5, origCol=2, nameIndex=0]
func oneMappingSourceMap(t *testing.T) []byte {
	t.Helper()
	m := V3Map{
		Version:        3,
		Sources:        []string{"src/a.ts"},
		SourcesContent: []string{"export function f() {}\n"},
		Names:          []string{"f"},
		Mappings:       "AAKEA", // genCol=0,srcIdx=0,origLine=5,origCol=2,nameIdx=0 (VLQ-encoded)
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return data
}

func TestEngineLoadExternalAndQueryGeneratedToOriginal(t *testing.T) {
	scriptURL := "file:///d/b.js"
	mapURL := "file:///d/b.js.map"
	fetcher := &stubFetcher{byURL: map[string][]byte{mapURL: oneMappingSourceMap(t)}}

	e := New(fetcher, nil)
	e.Load(context.Background(), "s-1", scriptURL, "b.js.map")

	require.True(t, e.Has("s-1"))

	// Generated call frame is 0-based on the wire (line 0); projecting
	// adds 1 before the source-map query per spec §4.4.
	pos, ok := e.Generated("s-1", 0+1, 0)
	require.True(t, ok)
	assert.Equal(t, "src/a.ts", pos.Source)
	assert.Equal(t, 6, pos.Line)
	assert.Equal(t, 2, pos.Column)
	assert.True(t, pos.HasName)
	assert.Equal(t, "f", pos.Name)
}

func TestEngineRoundTripPositionLineMatches(t *testing.T) {
	fetcher := &stubFetcher{byURL: map[string][]byte{"file:///d/b.js.map": oneMappingSourceMap(t)}}
	e := New(fetcher, nil)
	e.Load(context.Background(), "s-1", "file:///d/b.js", "b.js.map")

	original, ok := e.Generated("s-1", 1, 0)
	require.True(t, ok)

	generated, ok := e.Original("s-1", original.Source, original.Line, original.Column)
	require.True(t, ok)
	// R2: reverse projection lands on a position whose line equals the
	// forward-projected generated line (column may differ).
	assert.Equal(t, 1, generated.Line)
}

func TestEngineInlineDataURL(t *testing.T) {
	raw := oneMappingSourceMap(t)
	encoded := base64.StdEncoding.EncodeToString(raw)
	ref := "data:application/json;charset=utf-8;base64," + encoded

	e := New(&stubFetcher{}, nil)
	e.Load(context.Background(), "s-2", "file:///d/c.js", ref)

	require.True(t, e.Has("s-2"))
	content, ok := e.SourceContent(context.Background(), "s-2", "src/a.ts")
	require.True(t, ok)
	assert.Contains(t, content, "export function f")
}

func TestEngineSwallowsFetchFailure(t *testing.T) {
	e := New(&stubFetcher{}, nil)
	e.Load(context.Background(), "s-3", "file:///d/missing.js", "missing.js.map")
	assert.False(t, e.Has("s-3"))
}

func TestEngineFetchOriginalSourceFetchesAndCaches(t *testing.T) {
	mapURL := "file:///d/b.js.map"
	m := V3Map{
		Version:  3,
		Sources:  []string{"src/a.ts"},
		Names:    []string{"f"},
		Mappings: "AAKEA",
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	fetcher := &stubFetcher{byURL: map[string][]byte{
		mapURL:            data,
		"file:///d/src/a.ts": []byte("export function f() {}\n"),
	}}
	cache := newMemCache()
	e := New(fetcher, cache)
	e.Load(context.Background(), "s-1", "file:///d/b.js", "b.js.map")
	require.True(t, e.Has("s-1"))

	content, ok := e.FetchOriginalSource(context.Background(), "s-1", "src/a.ts")
	require.True(t, ok)
	assert.Contains(t, content, "export function f")

	cached, ok := cache.Get(context.Background(), cacheKey("s-1", "src/a.ts"))
	require.True(t, ok)
	assert.Equal(t, content, cached)
}

func TestEngineFetchOriginalSourceSkipsInlineMaps(t *testing.T) {
	raw := oneMappingSourceMap(t)
	encoded := base64.StdEncoding.EncodeToString(raw)
	ref := "data:application/json;charset=utf-8;base64," + encoded

	e := New(&stubFetcher{}, nil)
	e.Load(context.Background(), "s-2", "file:///d/c.js", ref)

	_, ok := e.FetchOriginalSource(context.Background(), "s-2", "src/does-not-exist.ts")
	assert.False(t, ok)
}

func TestEngineSourcesQuery(t *testing.T) {
	fetcher := &stubFetcher{byURL: map[string][]byte{"file:///d/b.js.map": oneMappingSourceMap(t)}}
	e := New(fetcher, nil)
	e.Load(context.Background(), "s-1", "file:///d/b.js", "b.js.map")
	assert.Equal(t, []string{"src/a.ts"}, e.Sources("s-1"))
}
