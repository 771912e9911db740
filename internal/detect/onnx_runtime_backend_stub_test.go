//go:build !onnxruntime

package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateONNXSession_NativeRequestedWithoutTag(t *testing.T) {
	_, err := createONNXSession(Config{Backend: BackendNative}, "/tmp/model.onnx")
	require.Error(t, err)
	require.Contains(t, err.Error(), "onnxruntime")
}

func TestCreateONNXSession_DefaultsToPython(t *testing.T) {
	s, err := createONNXSession(Config{}.withDefaults(), "/tmp/model.onnx")
	require.NoError(t, err)
	py, ok := s.(*pythonONNXSession)
	require.True(t, ok, "expected python session, got %T", s)
	require.Equal(t, "python3", py.python)
}

func TestCreateONNXSession_RemoteRejected(t *testing.T) {
	_, err := createONNXSession(Config{Backend: BackendRemote}, "/tmp/model.onnx")
	require.Error(t, err)
}
