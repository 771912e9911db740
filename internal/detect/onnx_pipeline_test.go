package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	labelsByToken []int
	numLabels     int
	calls         int
	err           error
}

func (f *fakeSession) Run(_ context.Context, inputIDs, _, _ []int64) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputIDs))
	for i := range out {
		row := make([]float32, f.numLabels)
		if i < len(f.labelsByToken) {
			row[f.labelsByToken[i]] = 8
		}
		out[i] = row
	}
	return out, nil
}

// loadedPipeline returns a pipeline whose lazy init has already run with the
// given session and label names.
func loadedPipeline(t *testing.T, session nerSession, names map[int]string) *ONNXPipeline {
	t.Helper()
	tok, err := newWordPieceTokenizer(testVocab(), false)
	require.NoError(t, err)
	p := NewONNXPipeline(Config{ModelDir: t.TempDir()}, nil)
	p.once.Do(func() {})
	p.tokenizer = tok
	p.session = session
	p.names = names
	return p
}

func TestONNXPipeline_ModelNotFound(t *testing.T) {
	p := NewONNXPipeline(Config{ModelDir: filepath.Join(t.TempDir(), "missing")}, nil)
	_, err := p.Predict(context.Background(), "John Smith lives in Berlin.")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNERUnavailable), "got %v", err)
	require.Error(t, p.loadErr)
}

func TestONNXPipeline_InvalidLabelsJSON(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "model.onnx"), "x")
	mustWrite(t, filepath.Join(dir, "labels.json"), "{")
	mustWrite(t, filepath.Join(dir, "tokenizer.json"), `{"model":{"vocab":{"[UNK]":1,"[CLS]":2,"[SEP]":3}}}`)
	p := NewONNXPipeline(Config{ModelDir: dir}, nil)
	_, err := p.Predict(context.Background(), "hello world")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "load labels"), "unexpected err %v", err)
}

func TestONNXPipeline_InvalidTokenizerJSON(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "model.onnx"), "x")
	mustWrite(t, filepath.Join(dir, "tokenizer.json"), "{")
	p := NewONNXPipeline(Config{ModelDir: dir}, nil)
	_, err := p.Predict(context.Background(), "hello world")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "load tokenizer"), "unexpected err %v", err)
}

func TestONNXPipeline_ContextCancellation(t *testing.T) {
	p := NewONNXPipeline(Config{ModelDir: filepath.Join(t.TempDir(), "missing")}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Predict(ctx, "abc")
	require.ErrorIs(t, err, context.Canceled)
}

func TestONNXPipeline_TextTooLarge(t *testing.T) {
	p := NewONNXPipeline(Config{MaxBytes: 10}, nil)
	_, err := p.Predict(context.Background(), strings.Repeat("a", 50))
	require.ErrorIs(t, err, ErrInputTooLarge)
}

func TestONNXPipeline_BlankInputSkipsInference(t *testing.T) {
	session := &fakeSession{numLabels: 9}
	p := loadedPipeline(t, session, nil)
	preds, err := p.Predict(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, preds)
	require.Zero(t, session.calls)
}

func TestONNXPipeline_PredictEmitsLabelIdentifiers(t *testing.T) {
	// [CLS] Elon Musk is the CEO of Tes ##la . [SEP]
	session := &fakeSession{numLabels: 9, labelsByToken: []int{0, 1, 2, 0, 0, 0, 0, 3, 4, 0, 0}}
	p := loadedPipeline(t, session, map[int]string{})

	preds, err := p.Predict(context.Background(), "Elon Musk is the CEO of Tesla.")
	require.NoError(t, err)
	require.Len(t, preds, 9)
	require.Equal(t, Prediction{Entity: "LABEL_1", Word: "Elon", Score: preds[0].Score, Index: 1, Start: 0, End: 4}, preds[0])
	require.Equal(t, "LABEL_3", preds[6].Entity)
	require.Equal(t, "Tes", preds[6].Word)
	require.Equal(t, 24, preds[6].Start)
	require.Equal(t, "##la", preds[7].Word)
	require.Greater(t, preds[0].Score, 0.9)
}

func TestONNXPipeline_NamedOLabelsAreDropped(t *testing.T) {
	session := &fakeSession{numLabels: 9, labelsByToken: []int{0, 1, 2, 0, 0, 0, 0, 3, 4, 0, 0}}
	p := loadedPipeline(t, session, map[int]string{0: "O", 1: "LABEL_1", 2: "LABEL_2", 3: "LABEL_3", 4: "LABEL_4"})

	preds, err := p.Predict(context.Background(), "Elon Musk is the CEO of Tesla.")
	require.NoError(t, err)
	require.Len(t, preds, 4)
	require.Equal(t, []string{"Elon", "Musk", "Tes", "##la"}, []string{preds[0].Word, preds[1].Word, preds[2].Word, preds[3].Word})
}

func TestONNXPipeline_SessionErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	p := loadedPipeline(t, &fakeSession{err: boom}, nil)
	_, err := p.Predict(context.Background(), "Elon Musk")
	require.ErrorIs(t, err, boom)
}

func TestLoadLabelNames(t *testing.T) {
	dir := t.TempDir()
	names, err := loadLabelNames(filepath.Join(dir, "labels.json"))
	require.NoError(t, err)
	require.Empty(t, names)

	mustWrite(t, filepath.Join(dir, "labels.json"), `{"0":"LABEL_0","3":"LABEL_3"}`)
	names, err = loadLabelNames(filepath.Join(dir, "labels.json"))
	require.NoError(t, err)
	require.Equal(t, "LABEL_3", names[3])

	mustWrite(t, filepath.Join(dir, "labels.json"), `{"x":"LABEL_0"}`)
	_, err = loadLabelNames(filepath.Join(dir, "labels.json"))
	require.Error(t, err)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "gpu"}, nil)
	require.Error(t, err)

	inf, err := New(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, &ONNXPipeline{}, inf)
}

func TestParsePythonResponse(t *testing.T) {
	logits, err := parsePythonResponse([]byte(`{"logits":[[0.1,0.9]]}`))
	require.NoError(t, err)
	require.Len(t, logits, 1)

	_, err = parsePythonResponse([]byte(`{"error":"missing python dependencies"}`))
	require.ErrorContains(t, err, "missing python dependencies")

	_, err = parsePythonResponse([]byte(`not json`))
	require.Error(t, err)
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
