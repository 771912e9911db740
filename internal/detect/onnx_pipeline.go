package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNERUnavailable = errors.New("onnx ner unavailable")
	ErrInputTooLarge  = errors.New("input exceeds inference size limit")
)

// nerSession runs the token-classification graph for a single sequence and
// returns logits shaped [tokens][labels].
type nerSession interface {
	Run(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([][]float32, error)
}

// ONNXPipeline loads a fine-tuned token-classification model from a model
// directory (model.onnx, tokenizer.json, optional labels.json) on first use.
type ONNXPipeline struct {
	cfg    Config
	logger *zap.Logger

	once      sync.Once
	loadErr   error
	names     map[int]string
	tokenizer Encoder
	session   nerSession
}

func NewONNXPipeline(cfg Config, logger *zap.Logger) *ONNXPipeline {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ONNXPipeline{cfg: cfg, logger: logger}
}

func (p *ONNXPipeline) init() error {
	p.once.Do(func() {
		modelPath := filepath.Join(p.cfg.ModelDir, "model.onnx")
		tokenizerPath := filepath.Join(p.cfg.ModelDir, "tokenizer.json")
		if _, err := os.Stat(modelPath); err != nil {
			p.loadErr = fmt.Errorf("model missing: %w", err)
			return
		}
		names, err := loadLabelNames(filepath.Join(p.cfg.ModelDir, "labels.json"))
		if err != nil {
			p.loadErr = fmt.Errorf("load labels: %w", err)
			return
		}
		tok, err := newEncoder(p.cfg.Tokenizer, tokenizerPath)
		if err != nil {
			p.loadErr = fmt.Errorf("load tokenizer: %w", err)
			return
		}
		session, err := createONNXSession(p.cfg, modelPath)
		if err != nil {
			p.loadErr = fmt.Errorf("create session: %w", err)
			return
		}
		p.names = names
		p.tokenizer = tok
		p.session = session
		p.logger.Info("onnx ner model loaded",
			zap.String("model_dir", p.cfg.ModelDir),
			zap.String("backend", p.cfg.Backend),
			zap.String("tokenizer", p.cfg.Tokenizer),
			zap.Int("labels", len(names)))
	})
	if p.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrNERUnavailable, p.loadErr)
	}
	return nil
}

// loadLabelNames reads the model's id -> label identifier map. A missing file
// means the checkpoint uses the default LABEL_<id> names.
func loadLabelNames(path string) (map[int]string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[int]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var byKey map[string]string
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	names := make(map[int]string, len(byKey))
	for k, v := range byKey {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("label key %q is not an integer", k)
		}
		names[idx] = v
	}
	return names, nil
}

func newEncoder(kind, path string) (Encoder, error) {
	switch kind {
	case TokenizerHF:
		return NewHFTokenizer(path)
	default:
		return NewWordPieceTokenizer(path)
	}
}

func (p *ONNXPipeline) Predict(ctx context.Context, text string) ([]Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(text) > p.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrInputTooLarge, len(text), p.cfg.MaxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.init(); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "detect.onnx.predict")
	defer span.End()

	text = norm.NFC.String(text)
	startTok := time.Now()
	enc, err := p.tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	tokDur := time.Since(startTok)

	startInf := time.Now()
	logits, err := p.session.Run(ctx, enc.InputIDs, enc.AttentionMask, enc.TokenTypeIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	infDur := time.Since(startInf)

	preds, err := decodeLogits(enc, logits, p.names)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("tokens", len(enc.InputIDs)), attribute.Int("predictions", len(preds)))
	p.logger.Debug("onnx ner inference",
		zap.Int("tokens", len(enc.InputIDs)),
		zap.Duration("tokenize", tokDur),
		zap.Duration("inference", infDur))
	return preds, nil
}

func (p *ONNXPipeline) Close() error {
	if c, ok := p.session.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
