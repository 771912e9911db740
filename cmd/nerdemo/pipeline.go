package main

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"nerdemo/internal/annotate"
	"nerdemo/internal/audit"
	"nerdemo/internal/cache"
	"nerdemo/internal/config"
	"nerdemo/internal/detect"
	"nerdemo/internal/models"
)

// newInferencer is swapped in tests.
var newInferencer = buildInferencer

// modelDir resolves the model directory: model.dir when set, then the
// installed registry model under model.root, then detect.DefaultModelDir.
func modelDir(cfg config.Config) string {
	if cfg.Model.Dir != "" {
		return cfg.Model.Dir
	}
	if reg, err := models.LoadRegistry(cfg.Model.Registry); err == nil {
		if dir, ok := reg.InstalledDir(cfg.Model.Root); ok {
			return dir
		}
	}
	return detect.DefaultModelDir
}

func inferenceConfig(cfg config.Config) detect.Config {
	return detect.Config{
		Backend:     cfg.Inference.Backend,
		ModelDir:    modelDir(cfg),
		MaxBytes:    cfg.Inference.MaxBytes,
		Tokenizer:   cfg.Inference.Tokenizer,
		PythonBin:   cfg.Inference.PythonBin,
		ORTLibrary:  cfg.Inference.ORTLibrary,
		RemoteURL:   cfg.Inference.RemoteURL,
		RemoteToken: cfg.Inference.RemoteToken,
		Timeout:     cfg.Inference.Timeout,
	}
}

// buildInferencer returns the configured backend, wrapped in the Redis cache
// when enabled and reachable, plus a cleanup func.
func buildInferencer(cfg config.Config, logger *zap.Logger) (detect.Inferencer, func(), error) {
	dcfg := inferenceConfig(cfg)
	logger.Info("inference backend", zap.String("backend", dcfg.Backend), zap.String("model_dir", dcfg.ModelDir))
	inf, err := detect.New(dcfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var closers []io.Closer
	if c, ok := inf.(io.Closer); ok {
		closers = append(closers, c)
	}

	if cfg.Cache.Enabled {
		client := cache.NewClient(cache.Options{Addr: cfg.Cache.RedisAddr, Password: cfg.Cache.Password, DB: cfg.Cache.DB})
		cached := cache.Wrap(inf, client, cache.Options{TTL: cfg.Cache.TTL, Namespace: dcfg.ModelDir}, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		pingErr := cached.Ping(ctx)
		cancel()
		if pingErr != nil {
			logger.Warn("prediction cache disabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(pingErr))
			_ = client.Close()
		} else {
			logger.Info("prediction cache enabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Duration("ttl", cfg.Cache.TTL))
			inf = cached
			closers = append(closers, cached)
		}
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close inference resource", zap.Error(err))
			}
		}
	}
	return inf, cleanup, nil
}

// buildAnnotator wires the exclusion set, timeout and audit log from cfg.
func buildAnnotator(cfg config.Config, inf detect.Inferencer, logger *zap.Logger) (*annotate.Annotator, error) {
	opts := []annotate.Option{
		annotate.WithLogger(logger),
		annotate.WithExcludedTags(cfg.Annotator.ExcludeTags),
		annotate.WithTimeout(cfg.Inference.Timeout),
	}
	if cfg.Audit.Enabled {
		l, err := audit.NewJSONLLogger(cfg.Audit.File)
		if err != nil {
			return nil, err
		}
		opts = append(opts, annotate.WithAuditLogger(l))
	}
	return annotate.New(inf, opts...), nil
}
