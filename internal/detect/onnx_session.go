package detect

import "fmt"

func createONNXSession(cfg Config, modelPath string) (nerSession, error) {
	switch cfg.Backend {
	case BackendNative:
		return newNativeSession(modelPath, cfg.ORTLibrary)
	case BackendPython, "":
		return newPythonONNXSession(cfg.PythonBin, modelPath), nil
	default:
		return nil, fmt.Errorf("backend %q does not use a local onnx session", cfg.Backend)
	}
}
