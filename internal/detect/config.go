package detect

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	BackendPython = "python"
	BackendNative = "native"
	BackendRemote = "remote"

	TokenizerWordPiece = "wordpiece"
	TokenizerHF        = "hf"

	tracerName = "nerdemo/detect"
)

type Config struct {
	Backend     string
	ModelDir    string
	MaxBytes    int
	Tokenizer   string
	PythonBin   string
	ORTLibrary  string
	RemoteURL   string
	RemoteToken string
	Timeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendPython
	}
	if c.ModelDir == "" {
		c.ModelDir = DefaultModelDir
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 32 * 1024
	}
	if c.Tokenizer == "" {
		c.Tokenizer = TokenizerWordPiece
	}
	if c.PythonBin == "" {
		c.PythonBin = "python3"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// DefaultModelDir is used when no model directory is configured or installed.
const DefaultModelDir = "my_ner_model"

// New builds the inference capability selected by cfg.Backend.
func New(cfg Config, logger *zap.Logger) (Inferencer, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendPython, BackendNative:
		return NewONNXPipeline(cfg, logger), nil
	case BackendRemote:
		return NewRemotePipeline(cfg)
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Backend)
	}
}
