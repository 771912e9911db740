package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"nerdemo/internal/annotate"
	"nerdemo/internal/config"
	"nerdemo/internal/detect"
	"nerdemo/internal/detect/mocks"
)

// execute runs the CLI with a config file that does not exist, so defaults
// plus NERDEMO_* env apply.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("NERDEMO_AUDIT_FILE", filepath.Join(t.TempDir(), "annotations.jsonl"))
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func stubInferencer(t *testing.T, inf detect.Inferencer) {
	t.Helper()
	old := newInferencer
	newInferencer = func(config.Config, *zap.Logger) (detect.Inferencer, func(), error) {
		return inf, func() {}, nil
	}
	t.Cleanup(func() { newInferencer = old })
}

func TestAnnotateCommandTable(t *testing.T) {
	ctrl := gomock.NewController(t)
	inf := mocks.NewMockInferencer(ctrl)
	inf.EXPECT().Predict(gomock.Any(), "Elon Musk is the CEO of Tesla.").Return([]detect.Prediction{
		{Entity: "LABEL_1", Word: "Elon", Score: 0.99, Start: 0, End: 4},
		{Entity: "LABEL_3", Word: "Tesla", Score: 0.98766, Start: 24, End: 29},
	}, nil)
	stubInferencer(t, inf)

	out, err := execute(t, "", "annotate", "Elon", "Musk", "is", "the", "CEO", "of", "Tesla.")
	require.NoError(t, err)
	require.Contains(t, out, "Tesla")
	require.Contains(t, out, "B-ORG")
	require.Contains(t, out, "0.9877")
	require.Contains(t, out, "24-29")
	require.NotContains(t, out, "Elon")
}

func TestAnnotateCommandJSONFromStdin(t *testing.T) {
	ctrl := gomock.NewController(t)
	inf := mocks.NewMockInferencer(ctrl)
	inf.EXPECT().Predict(gomock.Any(), "Elon Musk\n").Return([]detect.Prediction{
		{Entity: "LABEL_1", Word: "Elon"},
		{Entity: "LABEL_2", Word: "Musk"},
	}, nil)
	stubInferencer(t, inf)

	out, err := execute(t, "Elon Musk\n", "annotate", "--json", "--exclude", "O")
	require.NoError(t, err)
	var got []annotate.Annotation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	require.Equal(t, "B-PER", got[0].Tag)
}

func TestAnnotateCommandEmptyInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	inf := mocks.NewMockInferencer(ctrl)
	inf.EXPECT().Predict(gomock.Any(), gomock.Any()).Times(0)
	stubInferencer(t, inf)

	_, err := execute(t, "  \n", "annotate")
	require.ErrorIs(t, err, annotate.ErrEmptyInput)
}

func TestAnnotateCommandNoEntities(t *testing.T) {
	ctrl := gomock.NewController(t)
	inf := mocks.NewMockInferencer(ctrl)
	inf.EXPECT().Predict(gomock.Any(), gomock.Any()).Return(nil, nil)
	stubInferencer(t, inf)

	out, err := execute(t, "", "annotate", "hello")
	require.NoError(t, err)
	require.Contains(t, out, "No entities found")
}

func TestLabelsCommand(t *testing.T) {
	out, err := execute(t, "", "labels")
	require.NoError(t, err)
	for _, tag := range []string{"B-PER", "I-PER", "B-ORG", "I-MISC"} {
		require.Contains(t, out, tag)
	}
	require.Equal(t, 2, strings.Count(out, "| no "))
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Setenv("NERDEMO_INFERENCE_BACKEND", "gpu")
	_, err := execute(t, "", "labels")
	require.ErrorContains(t, err, "invalid config")
}

func TestLogLevelOverrideIsValidated(t *testing.T) {
	_, err := execute(t, "", "--log-level", "bogus", "labels")
	require.ErrorContains(t, err, "invalid config")

	_, err = execute(t, "", "--log-level", "WARN", "labels")
	require.NoError(t, err)
}

func TestAboutCommand(t *testing.T) {
	out, err := execute(t, "", "about", "--width", "100")
	require.NoError(t, err)
	require.Contains(t, out, "About This Project (by Hareetima Sonkar)")
	require.Contains(t, out, "CoNLL-2003")
}
