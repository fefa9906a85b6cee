package sourcemap

import "encoding/json"

// V3Map is the subset of a standard v3 source map the broker reads
// (spec §6.3): version, sources, names, mappings, and sourcesContent;
// all other fields are ignored.
type V3Map struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// ParseV3 decodes raw JSON into a V3Map.
func ParseV3(data []byte) (*V3Map, error) {
	var m V3Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
