package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON returns config bytes ready for the strict JSON decoder. Files with a
// .yaml or .yml extension are decoded as YAML first; anything else is taken
// as JSON as is.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		// An empty YAML file is an empty config.
		return []byte("{}"), nil
	}
	j, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return j, nil
}

// stringKeys rewrites map[any]any nodes (YAML allows non-string keys) into
// map[string]any so encoding/json accepts them.
func stringKeys(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, child := range n {
			n[k] = stringKeys(child)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, child := range n {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range n {
			n[i] = stringKeys(child)
		}
		return n
	}
	return v
}
