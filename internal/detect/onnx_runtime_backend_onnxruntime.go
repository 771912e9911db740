//go:build onnxruntime

package detect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"nerdemo/internal/labels"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initORT(libPath string) error {
	ortInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

type nativeSession struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputNames []string
	numLabels  int64
}

func newNativeSession(modelPath, libPath string) (nerSession, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model has no outputs")
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inputNames = append(inputNames, in.Name)
	}
	numLabels := int64(labels.Len())
	if dims := outputs[0].Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 {
		numLabels = dims[len(dims)-1]
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnxruntime session: %w", err)
	}
	return &nativeSession{session: session, inputNames: inputNames, numLabels: numLabels}, nil
}

func (s *nativeSession) Run(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqLen := int64(len(inputIDs))
	shape := ort.NewShape(1, seqLen)
	feeds := make([]ort.Value, 0, len(s.inputNames))
	for _, name := range s.inputNames {
		var data []int64
		switch {
		case strings.Contains(name, "input_ids"):
			data = inputIDs
		case strings.Contains(name, "attention_mask"):
			data = attentionMask
		case strings.Contains(name, "token_type_ids"):
			data = tokenTypeIDs
		default:
			data = make([]int64, seqLen)
		}
		tensor, err := ort.NewTensor(shape, append([]int64(nil), data...))
		if err != nil {
			return nil, fmt.Errorf("input tensor %s: %w", name, err)
		}
		defer tensor.Destroy()
		feeds = append(feeds, tensor)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, s.numLabels))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	s.mu.Lock()
	err = s.session.Run(feeds, []ort.Value{output})
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnxruntime run: %w", err)
	}

	flat := output.GetData()
	logits := make([][]float32, seqLen)
	for i := range logits {
		row := make([]float32, s.numLabels)
		copy(row, flat[int64(i)*s.numLabels:int64(i+1)*s.numLabels])
		logits[i] = row
	}
	return logits, nil
}

func (s *nativeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Destroy()
}
