// Consumer decodes a parsed V3Map's "mappings" VLQ stream into a queryable
// bidirectional position table.
//
// Convention (spec §4.4): the engine's internal and public query surface
// is 1-based for lines (matching "source-map data uses 1-based"); columns
// are 0-based throughout. The raw VLQ stream itself encodes 0-based,
//0-indexed generated lines (one semicolon-separated group per generated
// line) and 0-based original lines; Consumer converts at its boundary.
package sourcemap

import (
	"fmt"
	"sort"
)

type mapping struct {
	genLine, genCol       int // 0-based, as decoded from the VLQ stream
	hasSource             bool
	sourceIndex           int
	origLine, origCol     int // 0-based
	hasName               bool
	nameIndex             int
}

// OriginalPosition is the result of projecting a generated position.
type OriginalPosition struct {
	Source string
	Line   int // 1-based
	Column int // 0-based
	Name   string
	HasName bool
}

// GeneratedPosition is the result of projecting an original position.
type GeneratedPosition struct {
	Line   int // 1-based
	Column int // 0-based
}

// Consumer is a decoded, queryable source map for one script.
type Consumer struct {
	sources        []string
	sourcesContent []string
	names          []string
	mappings       []mapping // sorted by (genLine, genCol)
}

// NewConsumer decodes m's mappings field and builds a Consumer.
func NewConsumer(m *V3Map) (*Consumer, error) {
	decoded, err := decodeMappings(m.Mappings)
	if err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	sort.SliceStable(decoded, func(i, j int) bool {
		if decoded[i].genLine != decoded[j].genLine {
			return decoded[i].genLine < decoded[j].genLine
		}
		return decoded[i].genCol < decoded[j].genCol
	})
	return &Consumer{
		sources:        m.Sources,
		sourcesContent: m.SourcesContent,
		names:          m.Names,
		mappings:       decoded,
	}, nil
}

func decodeMappings(raw string) ([]mapping, error) {
	var result []mapping

	genLine := 0
	sourceIndex, origLine, origCol, nameIndex := 0, 0, 0, 0

	lineStart := 0
	for pos := 0; pos <= len(raw); pos++ {
		if pos < len(raw) && raw[pos] != ';' {
			continue
		}
		line := raw[lineStart:pos]
		lineStart = pos + 1

		genCol := 0
		for _, segment := range splitSegments(line) {
			if segment == "" {
				continue
			}
			fields, err := decodeVLQSegment(segment)
			if err != nil {
				return nil, err
			}
			if len(fields) == 0 {
				continue
			}

			genCol += fields[0]
			m := mapping{genLine: genLine, genCol: genCol}

			if len(fields) >= 4 {
				sourceIndex += fields[1]
				origLine += fields[2]
				origCol += fields[3]
				m.hasSource = true
				m.sourceIndex = sourceIndex
				m.origLine = origLine
				m.origCol = origCol
			}
			if len(fields) >= 5 {
				nameIndex += fields[4]
				m.hasName = true
				m.nameIndex = nameIndex
			}
			result = append(result, m)
		}
		genLine++
	}
	return result, nil
}

func splitSegments(line string) []string {
	if line == "" {
		return nil
	}
	var segments []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == ',' {
			segments = append(segments, line[start:i])
			start = i + 1
		}
	}
	segments = append(segments, line[start:])
	return segments
}

// Generated projects a generated position (1-based line, 0-based column)
// onto its original source, if the map carries one (spec §4.4 query 1).
func (c *Consumer) Generated(line, column int) (OriginalPosition, bool) {
	genLine := line - 1
	best := -1
	for i, m := range c.mappings {
		if m.genLine != genLine || !m.hasSource {
			continue
		}
		if m.genCol <= column {
			best = i
			continue
		}
		break
	}
	if best < 0 {
		return OriginalPosition{}, false
	}
	m := c.mappings[best]

	source := ""
	if m.sourceIndex >= 0 && m.sourceIndex < len(c.sources) {
		source = c.sources[m.sourceIndex]
	}
	pos := OriginalPosition{Source: source, Line: m.origLine + 1, Column: m.origCol}
	if m.hasName && m.nameIndex >= 0 && m.nameIndex < len(c.names) {
		pos.Name = c.names[m.nameIndex]
		pos.HasName = true
	}
	return pos, true
}

// Original projects an original position (1-based line, 0-based column)
// in source back onto the generated code (spec §4.4 query 2).
func (c *Consumer) Original(source string, line, column int) (GeneratedPosition, bool) {
	sourceIndex := -1
	for i, s := range c.sources {
		if s == source {
			sourceIndex = i
			break
		}
	}
	if sourceIndex < 0 {
		return GeneratedPosition{}, false
	}
	origLine := line - 1

	best := -1
	bestColDist := 0
	for i, m := range c.mappings {
		if !m.hasSource || m.sourceIndex != sourceIndex || m.origLine != origLine {
			continue
		}
		dist := m.origCol - column
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestColDist {
			best = i
			bestColDist = dist
		}
	}
	if best < 0 {
		return GeneratedPosition{}, false
	}
	m := c.mappings[best]
	return GeneratedPosition{Line: m.genLine + 1, Column: m.genCol}, true
}

// SourceContent returns the inlined content for source, if the map
// carries sourcesContent for it (spec §4.4 query 3).
func (c *Consumer) SourceContent(source string) (string, bool) {
	for i, s := range c.sources {
		if s == source {
			if i < len(c.sourcesContent) && c.sourcesContent[i] != "" {
				return c.sourcesContent[i], true
			}
			return "", false
		}
	}
	return "", false
}

// Sources returns the list of original source paths the map declares
// (spec §4.4 query 4).
func (c *Consumer) Sources() []string {
	out := make([]string, len(c.sources))
	copy(out, c.sources)
	return out
}
