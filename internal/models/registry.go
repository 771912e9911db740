package models

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
)

//go:embed registry.json
var embeddedRegistry []byte

type Registry struct {
	Version string      `json:"version"`
	Models  []ModelSpec `json:"models"`
}

type Accuracy struct {
	F1Score   float64 `json:"f1_score"`
	Benchmark string  `json:"benchmark"`
}

type Requirements struct {
	MinMemoryMB int    `json:"min_memory_mb"`
	ONNXVersion string `json:"onnx_version"`
}

type ModelSpec struct {
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	Version      string       `json:"version"`
	Language     string       `json:"language"`
	URL          string       `json:"url"`
	Checksum     string       `json:"checksum"`
	SizeBytes    int64        `json:"size_bytes"`
	EntityTypes  []string     `json:"entity_types"`
	Description  string       `json:"description"`
	Architecture string       `json:"architecture"`
	Accuracy     Accuracy     `json:"accuracy"`
	Requirements Requirements `json:"requirements"`
	License      string       `json:"license"`
	Recommended  bool         `json:"recommended"`
}

func LoadEmbeddedRegistry() (Registry, error) {
	return parseRegistry(embeddedRegistry)
}

// LoadRegistry reads a registry JSON file, or the built-in one when path is
// empty.
func LoadRegistry(path string) (Registry, error) {
	if path == "" {
		return LoadEmbeddedRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read model registry: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse model registry: %w", err)
	}
	if dup := lo.FindDuplicatesBy(reg.Models, func(m ModelSpec) string { return m.Name }); len(dup) > 0 {
		return Registry{}, fmt.Errorf("parse model registry: duplicate model %q", dup[0].Name)
	}
	slices.SortFunc(reg.Models, func(a, b ModelSpec) int { return strings.Compare(a.Name, b.Name) })
	return reg, nil
}

// Recommended returns the first model flagged as recommended.
func (r Registry) Recommended() (ModelSpec, bool) {
	return lo.Find(r.Models, func(m ModelSpec) bool { return m.Recommended })
}

func (r Registry) Find(name string) (ModelSpec, bool) {
	return lo.Find(r.Models, func(m ModelSpec) bool { return m.Name == name })
}

// InstalledDir picks the directory to serve from root: the recommended model
// when installed, otherwise the first installed one.
func (r Registry) InstalledDir(root string) (string, bool) {
	if m, ok := r.Recommended(); ok && IsInstalled(root, m) {
		return ModelInstallPath(root, m.Name), true
	}
	if m, ok := lo.Find(r.Models, func(m ModelSpec) bool { return IsInstalled(root, m) }); ok {
		return ModelInstallPath(root, m.Name), true
	}
	return "", false
}

// Published reports whether the entry can be downloaded.
func (m ModelSpec) Published() bool {
	return strings.TrimSpace(m.URL) != "" && strings.TrimSpace(m.Checksum) != ""
}

// Names lists registry model names in sorted order.
func (r Registry) Names() []string {
	return lo.Map(r.Models, func(m ModelSpec, _ int) string { return m.Name })
}

func DefaultModelsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nerdemo", "models"), nil
}

func ModelInstallPath(root, name string) string {
	return filepath.Join(root, name)
}

// RequiredFiles must exist in every installed model directory. labels.json is
// optional and defaults to LABEL_<id> identifiers.
var RequiredFiles = []string{"model.onnx", "tokenizer.json"}

// optionalFiles travel with the required ones when an archive is unpacked.
var optionalFiles = []string{"labels.json", "tokenizer_config.json", "config.json"}

func IsInstalled(root string, model ModelSpec) bool {
	return hasRequiredFiles(ModelInstallPath(root, model.Name))
}

func hasRequiredFiles(dir string) bool {
	return lo.EveryBy(RequiredFiles, func(f string) bool { return fileExists(filepath.Join(dir, f)) })
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
