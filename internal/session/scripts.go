package session

import (
	"context"
	"strings"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

// Script is the session's record of one parsed script (spec §3 Script
// record). Keyed on ScriptID; multiple records may share a URL.
type Script struct {
	ID               string
	URL              string
	SourceMapURL     string
	StartLine        int
	StartColumn      int
	EndLine          int
	EndColumn        int
	Hash             string
	IsModule         bool
	IsInternalScript bool
}

// HasSourceMap reports whether the scriptParsed event carried a
// source-map reference.
func (sc *Script) HasSourceMap() bool { return sc.SourceMapURL != "" }

// onScriptParsed inserts a script record and, if it carries a source-map
// reference, kicks off a non-blocking source-map load (spec §4.3).
func (s *Session) onScriptParsed(evt protocol.ScriptParsedEvent) {
	sc := &Script{
		ID:               evt.ScriptID,
		URL:              evt.URL,
		SourceMapURL:     evt.SourceMapURL,
		StartLine:        evt.StartLine,
		StartColumn:      evt.StartColumn,
		EndLine:          evt.EndLine,
		EndColumn:        evt.EndColumn,
		Hash:             evt.Hash,
		IsModule:         evt.IsModule,
		IsInternalScript: evt.IsInternalScript,
	}

	s.mu.Lock()
	s.scripts[sc.ID] = sc
	s.mu.Unlock()

	if sc.SourceMapURL != "" {
		go s.sourcemaps.Load(context.Background(), sc.ID, sc.URL, sc.SourceMapURL)
	}
}

func (s *Session) script(id string) (*Script, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scripts[id]
	return sc, ok
}

// ListScripts filters out internal scripts unless includeInternal is set
// (spec §4.6 list_scripts): empty URL, "node:"-prefixed, "internal/"-
// prefixed, or containing "node_modules".
func (s *Session) ListScripts(includeInternal bool) []*Script {
	s.mu.Lock()
	all := make([]*Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		all = append(all, sc)
	}
	s.mu.Unlock()

	if includeInternal {
		return all
	}

	out := make([]*Script, 0, len(all))
	for _, sc := range all {
		if isInternalScriptURL(sc.URL) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

func isInternalScriptURL(u string) bool {
	if u == "" {
		return true
	}
	if strings.HasPrefix(u, "node:") {
		return true
	}
	if strings.HasPrefix(u, "internal/") {
		return true
	}
	if strings.Contains(u, "node_modules") {
		return true
	}
	return false
}

// GetScriptSource implements spec §4.6 get_script_source: when a source
// map is loaded and preferOriginal is set, returns the first declared
// original source's content; otherwise (or if that content is absent)
// falls back to the target's generated source.
func (s *Session) GetScriptSource(ctx context.Context, scriptID string, preferOriginal bool) (source, sourceURL string, isOriginal bool, sourceMapURL string, err error) {
	sc, ok := s.script(scriptID)
	if !ok {
		return "", "", false, "", brokererr.ScriptNotFound(scriptID)
	}

	if preferOriginal && s.sourcemaps.Has(scriptID) {
		sources := s.sourcemaps.Sources(scriptID)
		if len(sources) > 0 {
			if content, ok := s.sourcemaps.FetchOriginalSource(ctx, scriptID, sources[0]); ok {
				return content, sources[0], true, sc.SourceMapURL, nil
			}
		}
		logger.Session().Debug().Str("scriptId", scriptID).Msg("preferOriginal requested but no original content available, falling back to generated source")
	}

	generated, err := s.fetchGeneratedSource(ctx, scriptID)
	if err != nil {
		return "", "", false, "", err
	}
	return generated, sc.URL, false, sc.SourceMapURL, nil
}

func (s *Session) fetchGeneratedSource(ctx context.Context, scriptID string) (string, error) {
	result, err := s.correlator.Call(ctx, "Debugger.getScriptSource", protocol.GetScriptSourceParams{ScriptID: scriptID})
	if err != nil {
		return "", translateCommandErr("Debugger.getScriptSource", err)
	}
	var parsed protocol.GetScriptSourceResult
	if err := unmarshalResult(result, &parsed); err != nil {
		return "", brokererr.ProtocolError("Debugger.getScriptSource", err)
	}
	return parsed.ScriptSource, nil
}

// GetOriginalLocation implements spec §4.6/§4.4 get_original_location:
// projects a 1-based line / 0-based column generated position through
// the script's loaded source map, if any.
func (s *Session) GetOriginalLocation(scriptID string, line, column int) (hasSourceMap bool, pos OriginalLocation, err error) {
	if _, ok := s.script(scriptID); !ok {
		return false, OriginalLocation{}, brokererr.ScriptNotFound(scriptID)
	}
	if !s.sourcemaps.Has(scriptID) {
		return false, OriginalLocation{}, nil
	}
	original, ok := s.sourcemaps.Generated(scriptID, line, column)
	if !ok {
		return true, OriginalLocation{}, nil
	}
	return true, OriginalLocation{
		Source: original.Source,
		Line:   original.Line,
		Column: original.Column,
		Name:   original.Name,
		HasName: original.HasName,
	}, nil
}

// OriginalLocation is the result of a get_original_location query.
type OriginalLocation struct {
	Source  string
	Line    int
	Column  int
	Name    string
	HasName bool
}
