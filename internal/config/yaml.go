package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var errEmptyConfig = errors.New("config is empty")

// toJSON returns data as JSON so that both formats go through the same
// strict decoder. The format is picked by the extension of name.
func toJSON(name string, data []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyConfig
	}
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q (want .json, .yaml or .yml)", name, ext)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	if doc == nil {
		return nil, errEmptyConfig
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return out, nil
}

// stringKeys rewrites YAML mappings with non-string keys (numbers, bools)
// into JSON-compatible maps.
func stringKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = stringKeys(child)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range node {
			node[i] = stringKeys(child)
		}
		return node
	}
	return v
}
