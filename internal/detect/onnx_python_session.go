package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// pythonONNXSession shells out to python onnxruntime for each call. It needs
// no cgo and works wherever `pip install onnxruntime numpy` does.
type pythonONNXSession struct {
	python    string
	modelPath string
}

type pythonInferRequest struct {
	ModelPath     string  `json:"model_path"`
	InputIDs      []int64 `json:"input_ids"`
	AttentionMask []int64 `json:"attention_mask"`
	TokenTypeIDs  []int64 `json:"token_type_ids"`
}

type pythonInferResponse struct {
	Logits [][]float32 `json:"logits"`
	Error  string      `json:"error"`
}

func newPythonONNXSession(python, modelPath string) nerSession {
	return &pythonONNXSession{python: python, modelPath: modelPath}
}

func (s *pythonONNXSession) Run(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([][]float32, error) {
	payload, err := json.Marshal(pythonInferRequest{
		ModelPath:     s.modelPath,
		InputIDs:      inputIDs,
		AttentionMask: attentionMask,
		TokenTypeIDs:  tokenTypeIDs,
	})
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.python, "-c", pythonONNXInferScript)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := truncate(stderr.String(), 400); msg != "" {
			return nil, fmt.Errorf("python onnx inference (%s): %w: %s", s.python, err, msg)
		}
		return nil, fmt.Errorf("python onnx inference (%s): %w", s.python, err)
	}
	logits, err := parsePythonResponse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if len(logits) != len(inputIDs) {
		return nil, fmt.Errorf("python onnx inference: got %d logit rows for %d tokens", len(logits), len(inputIDs))
	}
	return logits, nil
}

func parsePythonResponse(raw []byte) ([][]float32, error) {
	var resp pythonInferResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse python onnx output: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python onnx inference error: %s", resp.Error)
	}
	if len(resp.Logits) == 0 {
		return nil, fmt.Errorf("python onnx inference returned no logits")
	}
	return resp.Logits, nil
}

const pythonONNXInferScript = `
import json
import sys

try:
    import numpy as np
    import onnxruntime as ort
except Exception as exc:
    print(json.dumps({"error": f"missing python dependencies (onnxruntime, numpy): {exc}"}))
    sys.exit(0)

try:
    req = json.load(sys.stdin)
    sess = ort.InferenceSession(req["model_path"], providers=["CPUExecutionProvider"])
    seq_len = len(req["input_ids"])
    inputs = {
        "input_ids": np.array([req["input_ids"]], dtype=np.int64),
        "attention_mask": np.array([req["attention_mask"]], dtype=np.int64),
        "token_type_ids": np.array([req["token_type_ids"]], dtype=np.int64),
    }
    feed = {}
    for meta in sess.get_inputs():
        match = next((v for k, v in inputs.items() if k in meta.name), None)
        feed[meta.name] = match if match is not None else np.zeros((1, seq_len), dtype=np.int64)
    logits = sess.run(None, feed)[0][0].astype(np.float32).tolist()
    print(json.dumps({"logits": logits}))
except Exception as exc:
    print(json.dumps({"error": str(exc)}))
`
