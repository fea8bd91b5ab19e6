package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolConfig describes how to launch a lock-test executable.
type ToolConfig struct {
	Name           string            `yaml:"name" json:"name"`
	Command        string            `yaml:"command" json:"command"`
	Args           []string          `yaml:"args" json:"args"`
	Environment    map[string]string `yaml:"env" json:"env"`
	Dir            string            `yaml:"dir" json:"dir"`
	CombinedOutput bool              `yaml:"combined_output" json:"combined_output"`
	Description    string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of tools.yaml
type ConfigFile struct {
	Tools []ToolConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a tool registry (YAML or JSON) and returns a map of tool names to configs.
// A missing file yields an empty registry.
func LoadTools(path string) (map[string]ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ToolConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	toolMap := make(map[string]ToolConfig)
	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			tool.Command = tool.Name
		}
		toolMap[tool.Name] = tool
	}

	return toolMap, nil
}

// Resolve returns the registered tool called name, or a bare tool whose command is name.
func Resolve(registry map[string]ToolConfig, name string) ToolConfig {
	if tool, ok := registry[name]; ok {
		return tool
	}
	return ToolConfig{Name: name, Command: name}
}
