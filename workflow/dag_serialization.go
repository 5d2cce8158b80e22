package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
)

// ParseConfig decodes a workflow config from JSON or YAML and validates it.
// Input starting with '{' is treated as JSON.
func ParseConfig(data []byte) (models.WorkflowConfig, error) {
	var cfg models.WorkflowConfig
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return cfg, types.NewConfigurationError("empty workflow config")
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, types.NewConfigurationError("invalid workflow JSON: %v", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, types.NewConfigurationError("invalid workflow YAML: %v", err)
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MarshalConfigJSON renders cfg as indented JSON.
func MarshalConfigJSON(cfg models.WorkflowConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return data, nil
}

// MarshalConfigYAML renders cfg as YAML.
func MarshalConfigYAML(cfg models.WorkflowConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return data, nil
}

// LoadConfigFile reads and validates a workflow config file.
func LoadConfigFile(filename string) (models.WorkflowConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return models.WorkflowConfig{}, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseConfig(data)
}

// SaveConfigFile writes cfg as YAML, or as JSON when filename ends in .json.
func SaveConfigFile(filename string, cfg models.WorkflowConfig) error {
	marshal := MarshalConfigYAML
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		marshal = MarshalConfigJSON
	}
	data, err := marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
