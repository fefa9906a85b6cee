// Package sourcemap implements the source-map engine of spec §4.4: it
// resolves and loads source maps referenced by scriptParsed events,
// caches the decoded consumer per script, and serves the four original/
// generated position and content queries.
package sourcemap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/streamspace-dev/inspector-broker/internal/logger"
)

// Engine owns every loaded source map for one session. It is built,
// queried, and torn down exclusively by that session (spec §3
// Ownership: "No cross-session sharing").
type Engine struct {
	fetcher Fetcher
	cache   ContentCache

	mu        sync.RWMutex
	consumers map[string]*Consumer // scriptId -> consumer
	sourceMapURL map[string]string // scriptId -> resolved source-map URL, the base for original source paths
}

// New builds an Engine. A nil cache defaults to NoopCache.
func New(fetcher Fetcher, cache ContentCache) *Engine {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Engine{
		fetcher:      fetcher,
		cache:        cache,
		consumers:    make(map[string]*Consumer),
		sourceMapURL: make(map[string]string),
	}
}

// Load resolves and parses the source map referenced by sourceMapRef for
// scriptID (whose own URL is scriptURL). Any failure is swallowed: the
// script remains debuggable without original-source projection, and the
// failure is logged at warn level, never propagated (spec §4.4, §7).
//
// Intended to be called from a goroutine spawned by the event demux so
// it never blocks the event stream (spec §4.3 scriptParsed handling).
func (e *Engine) Load(ctx context.Context, scriptID, scriptURL, sourceMapRef string) {
	consumer, resolvedURL, err := e.load(ctx, scriptURL, sourceMapRef)
	if err != nil {
		logger.SourceMap().Warn().
			Str("scriptId", scriptID).
			Str("scriptURL", scriptURL).
			Str("sourceMapRef", sourceMapRef).
			Err(err).
			Msg("source map load failed; script remains debuggable without original-source projection")
		return
	}

	e.mu.Lock()
	e.consumers[scriptID] = consumer
	e.sourceMapURL[scriptID] = resolvedURL
	e.mu.Unlock()
}

func (e *Engine) load(ctx context.Context, scriptURL, ref string) (*Consumer, string, error) {
	var data []byte
	resolvedURL := ref

	if isInlineDataURL(ref) {
		decoded, ok, err := decodeInlineDataURL(ref)
		if err != nil {
			return nil, "", fmt.Errorf("decode inline source map: %w", err)
		}
		if !ok {
			return nil, "", fmt.Errorf("malformed inline source map reference")
		}
		data = decoded
		resolvedURL = "(inline)"
	} else {
		resolved, err := resolveReference(scriptURL, ref)
		if err != nil {
			return nil, "", err
		}
		resolvedURL = resolved

		fetched, err := e.fetcher.Fetch(ctx, resolved)
		if err != nil {
			return nil, "", fmt.Errorf("fetch %s: %w", resolved, err)
		}
		if len(fetched) == 0 {
			return nil, "", fmt.Errorf("empty source map at %s", resolved)
		}
		data = fetched
	}

	v3, err := ParseV3(data)
	if err != nil {
		return nil, "", fmt.Errorf("parse source map: %w", err)
	}
	consumer, err := NewConsumer(v3)
	if err != nil {
		return nil, "", err
	}
	return consumer, resolvedURL, nil
}

// Has reports whether scriptID has a loaded source map.
func (e *Engine) Has(scriptID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.consumers[scriptID]
	return ok
}

// Generated is query 1 of spec §4.4.
func (e *Engine) Generated(scriptID string, line, column int) (OriginalPosition, bool) {
	e.mu.RLock()
	consumer, ok := e.consumers[scriptID]
	e.mu.RUnlock()
	if !ok {
		return OriginalPosition{}, false
	}
	return consumer.Generated(line, column)
}

// Original is query 2 of spec §4.4.
func (e *Engine) Original(scriptID, source string, line, column int) (GeneratedPosition, bool) {
	e.mu.RLock()
	consumer, ok := e.consumers[scriptID]
	e.mu.RUnlock()
	if !ok {
		return GeneratedPosition{}, false
	}
	return consumer.Original(source, line, column)
}

// SourceContent is query 3 of spec §4.4, backed by the optional
// cross-session ContentCache when the map itself carries no inline
// sourcesContent for the requested source.
func (e *Engine) SourceContent(ctx context.Context, scriptID, source string) (string, bool) {
	e.mu.RLock()
	consumer, ok := e.consumers[scriptID]
	e.mu.RUnlock()
	if !ok {
		return "", false
	}

	if content, ok := consumer.SourceContent(source); ok {
		return content, true
	}

	key := cacheKey(scriptID, source)
	if content, ok := e.cache.Get(ctx, key); ok {
		return content, true
	}
	return "", false
}

// CacheSourceContent stores externally-fetched original source text
// (FetchOriginalSource calls it after a successful fetch) in the
// ContentCache under the script id and source path.
func (e *Engine) CacheSourceContent(ctx context.Context, scriptID, source, content string) {
	e.cache.Set(ctx, cacheKey(scriptID, source), content)
}

// FetchOriginalSource is get_script_source's prefer_original path (spec
// §4.4 query 3, §3 "optional cached original source contents"): it
// returns the map's inlined sourcesContent or a prior cache hit via
// SourceContent, and otherwise fetches the source's own declared path
// (resolved against the loaded map's URL) through the same fetcher used
// to load the map, caching the result under the script id and source
// path; a later lookup hits the cache only for that same script id and
// source. Inline (data-URL) maps have no
// external base to resolve against, so a miss there is reported as-is.
func (e *Engine) FetchOriginalSource(ctx context.Context, scriptID, source string) (string, bool) {
	if content, ok := e.SourceContent(ctx, scriptID, source); ok {
		return content, true
	}

	e.mu.RLock()
	mapURL, ok := e.sourceMapURL[scriptID]
	e.mu.RUnlock()
	if !ok || mapURL == "(inline)" {
		return "", false
	}

	resolved, err := resolveReference(mapURL, source)
	if err != nil {
		logger.SourceMap().Warn().Str("scriptId", scriptID).Str("source", source).Err(err).Msg("could not resolve original source path")
		return "", false
	}

	data, err := e.fetcher.Fetch(ctx, resolved)
	if err != nil || len(data) == 0 {
		logger.SourceMap().Warn().Str("scriptId", scriptID).Str("source", source).Str("resolved", resolved).Err(err).Msg("could not fetch original source content")
		return "", false
	}

	content := string(data)
	e.CacheSourceContent(ctx, scriptID, source, content)
	return content, true
}

// Sources is query 4 of spec §4.4.
func (e *Engine) Sources(scriptID string) []string {
	e.mu.RLock()
	consumer, ok := e.consumers[scriptID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	return consumer.Sources()
}

func cacheKey(scriptID, source string) string {
	return strings.Join([]string{"sourcemap", scriptID, source}, ":")
}
