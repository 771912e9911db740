package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nerdemo/internal/models"
)

func TestHumanBytes(t *testing.T) {
	require.Equal(t, "50 MB", humanBytes(50*1024*1024))
	require.Equal(t, "2 KB", humanBytes(2048))
	require.Equal(t, "0 B", humanBytes(0))
}

func testRegistry() models.Registry {
	return models.Registry{Models: []models.ModelSpec{{
		Name: "conll03_bert", Language: "en", SizeBytes: 400 * 1024 * 1024,
		EntityTypes: []string{"B-PER", "I-PER"}, Description: "desc",
		URL: "http://example", Version: "1.0.0", Checksum: "sha256:x", Recommended: true,
	}}}
}

func installFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestModelListAndInfo(t *testing.T) {
	reg := testRegistry()
	root := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, modelList(&out, reg, root))
	require.Contains(t, out.String(), "conll03_bert *")
	require.Contains(t, out.String(), "not installed")
	require.Contains(t, out.String(), "Installed: 0/1")

	out.Reset()
	require.NoError(t, modelInfo(&out, reg, root, "conll03_bert"))
	require.Contains(t, out.String(), "NER Model: conll03_bert")
	require.Contains(t, out.String(), "Not installed")

	require.Error(t, modelInfo(&out, reg, root, "missing"))
}

func TestModelVerifyDetectsInvalidLabels(t *testing.T) {
	reg := testRegistry()
	root := t.TempDir()
	installFiles(t, filepath.Join(root, "conll03_bert"), map[string]string{
		"model.onnx":     "x",
		"labels.json":    "not-json",
		"tokenizer.json": "{}",
		".checksum":      "sha256:x\n",
	})

	var out bytes.Buffer
	require.Error(t, modelVerify(&out, reg, root, "python3"))
	require.Contains(t, out.String(), "Checksum... ✓")
	require.Contains(t, out.String(), "Loadable... ✗")
	require.Contains(t, out.String(), "labels.json")
}

func TestModelVerifyDetectsInvalidTokenizer(t *testing.T) {
	reg := testRegistry()
	root := t.TempDir()
	installFiles(t, filepath.Join(root, "conll03_bert"), map[string]string{
		"model.onnx":     "x",
		"tokenizer.json": "not-json",
	})

	var out bytes.Buffer
	require.Error(t, modelVerify(&out, reg, root, "python3"))
	require.Contains(t, out.String(), "Checksum... ✗")
	require.Contains(t, out.String(), "tokenizer.json")
}

func TestModelVerifyNothingInstalled(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, modelVerify(&out, testRegistry(), t.TempDir(), "python3"))
	require.Contains(t, out.String(), "No installed models found")
}

func TestModelRemove(t *testing.T) {
	reg := testRegistry()
	root := t.TempDir()
	dir := filepath.Join(root, "conll03_bert")
	installFiles(t, dir, map[string]string{"model.onnx": "x"})

	var out bytes.Buffer
	require.NoError(t, modelRemove(strings.NewReader("n\n"), &out, reg, root, "conll03_bert", false))
	require.Contains(t, out.String(), "Cancelled")
	require.DirExists(t, dir)

	out.Reset()
	require.NoError(t, modelRemove(strings.NewReader("yes\n"), &out, reg, root, "conll03_bert", false))
	require.NoDirExists(t, dir)

	out.Reset()
	require.NoError(t, modelRemove(nil, &out, reg, root, "conll03_bert", true))
	require.Contains(t, out.String(), "is not installed")
}

func TestValidateModelMetadataLabelsOptional(t *testing.T) {
	dir := t.TempDir()
	installFiles(t, dir, map[string]string{"tokenizer.json": `{"model":{}}`})
	require.NoError(t, validateModelMetadata(dir))

	installFiles(t, dir, map[string]string{"labels.json": "{}"})
	require.ErrorContains(t, validateModelMetadata(dir), "labels.json is empty")
}

func TestSelectDownloads(t *testing.T) {
	reg := testRegistry()
	reg.Models = append(reg.Models, models.ModelSpec{Name: "conll03_small", URL: "http://example/small", Checksum: "sha256:y"})

	all, err := selectDownloads(reg, nil, true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	named, err := selectDownloads(reg, []string{"conll03_small"}, false)
	require.NoError(t, err)
	require.Equal(t, "conll03_small", named[0].Name)

	def, err := selectDownloads(reg, nil, false)
	require.NoError(t, err)
	require.Equal(t, "conll03_bert", def[0].Name)

	_, err = selectDownloads(reg, []string{"nope"}, false)
	require.ErrorContains(t, err, "available: conll03_bert, conll03_small")
	_, err = selectDownloads(reg, []string{"conll03_bert"}, true)
	require.Error(t, err)
}
