package models

import "embed"

//go:embed assets
var assets embed.FS

// EmbeddedLabels returns the bundled labels.json for modelName, used when a
// downloaded archive ships without one.
func EmbeddedLabels(modelName string) ([]byte, bool) {
	data, err := assets.ReadFile("assets/" + modelName + "/labels.json")
	if err != nil {
		return nil, false
	}
	return data, true
}
