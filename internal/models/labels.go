package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"nerdemo/internal/labels"
)

// hfConfig is the part of a HuggingFace config.json that names output ids.
type hfConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

// LabelsFromConfig builds a labels.json body from config.json id2label. Each
// raw output id maps to LABEL_<table id> of the tag it names, so models
// trained with a different tag order resolve correctly.
func LabelsFromConfig(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg hfConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, fmt.Errorf("%s has no id2label", path)
	}
	out := make(map[string]string, len(cfg.ID2Label))
	for k, tag := range cfg.ID2Label {
		if _, err := strconv.Atoi(k); err != nil {
			return nil, fmt.Errorf("id2label key %q is not numeric", k)
		}
		id, ok := labels.ID(tag)
		if !ok {
			return nil, fmt.Errorf("model label %q is not a CoNLL-2003 tag", tag)
		}
		out[k] = "LABEL_" + strconv.Itoa(id)
	}
	return json.MarshalIndent(out, "", "  ")
}

// writeLabels ensures dir has a labels.json: config.json id2label wins over
// the bundled mapping for modelName.
func writeLabels(dir, modelName string) error {
	dest := filepath.Join(dir, "labels.json")
	if fileExists(dest) {
		return nil
	}
	cfgPath := filepath.Join(dir, "config.json")
	if fileExists(cfgPath) {
		data, err := LabelsFromConfig(cfgPath)
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	}
	if data, ok := EmbeddedLabels(modelName); ok {
		return os.WriteFile(dest, data, 0o644)
	}
	return nil
}
