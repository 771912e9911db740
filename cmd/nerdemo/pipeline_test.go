package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nerdemo/internal/config"
	"nerdemo/internal/detect"
	"nerdemo/internal/models"
)

func TestInferenceConfigUsesInstalledModel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.Model.Dir)

	require.Equal(t, detect.DefaultModelDir, inferenceConfig(cfg).ModelDir)

	reg, err := models.LoadRegistry("")
	require.NoError(t, err)
	rec, ok := reg.Recommended()
	require.True(t, ok)
	installed := models.ModelInstallPath(cfg.Model.Root, rec.Name)
	installFiles(t, installed, map[string]string{"model.onnx": "x", "tokenizer.json": "{}"})

	require.Equal(t, installed, inferenceConfig(cfg).ModelDir)

	cfg.Model.Dir = "/srv/models/pinned"
	require.Equal(t, "/srv/models/pinned", inferenceConfig(cfg).ModelDir)
}

func TestInferenceConfigHonoursModelRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Root = t.TempDir()
	registry := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(registry, []byte(`{"models":[{"name":"local_ner"}]}`), 0o644))
	cfg.Model.Registry = registry

	dir := filepath.Join(cfg.Model.Root, "local_ner")
	installFiles(t, dir, map[string]string{"model.onnx": "x", "tokenizer.json": "{}"})
	require.Equal(t, dir, inferenceConfig(cfg).ModelDir)
}
