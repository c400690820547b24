package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// refreshRoot is the top-level key whose scalars are kept verbatim.
const refreshRoot = "BackgroundRefresh"

// isYAML reports whether path is decoded as YAML rather than JSON.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON rewrites a YAML document as JSON so one strict decoder serves
// both formats. JSON input is returned as is.
//
// Scalars below the BackgroundRefresh root keep their literal text: the
// refresh settings are strings, and "00:01:00" or "0.50" must reach
// ParseDuration exactly as written.
func yamlToJSON(path string, data []byte) ([]byte, error) {
	if !isYAML(path) {
		return data, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if doc.Kind == 0 {
		// empty file
		return []byte("{}"), nil
	}
	v, err := nodeValue(&doc, false)
	if err != nil {
		return nil, err
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

func nodeValue(n *yaml.Node, literal bool) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return map[string]any{}, nil
		}
		return nodeValue(n.Content[0], literal)
	case yaml.AliasNode:
		return nodeValue(n.Alias, literal)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if key == "<<" {
				if err := mergeInto(m, n.Content[i+1], literal); err != nil {
					return nil, err
				}
				continue
			}
			v, err := nodeValue(n.Content[i+1], literal || key == refreshRoot)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			m[key] = v
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c, literal)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		if literal {
			if n.Tag == "!!null" {
				return nil, nil
			}
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
}

// mergeInto applies a "<<" merge key; explicit keys of the mapping win.
func mergeInto(dst map[string]any, src *yaml.Node, literal bool) error {
	v, err := nodeValue(src, literal)
	if err != nil {
		return err
	}
	srcs := []any{v}
	if seq, ok := v.([]any); ok {
		srcs = seq
	}
	for _, s := range srcs {
		m, ok := s.(map[string]any)
		if !ok {
			return fmt.Errorf("merge key expects a mapping")
		}
		for k, val := range m {
			if _, exists := dst[k]; !exists {
				dst[k] = val
			}
		}
	}
	return nil
}
