//go:build !onnxruntime

package detect

import "fmt"

func newNativeSession(string, string) (nerSession, error) {
	return nil, fmt.Errorf("native ONNX backend requires build tag 'onnxruntime'")
}
