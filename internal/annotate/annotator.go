// Package annotate turns raw token-classification predictions into tagged
// entities for display.
package annotate

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nerdemo/internal/audit"
	"nerdemo/internal/detect"
	"nerdemo/internal/labels"
	"nerdemo/internal/metrics"
	"nerdemo/internal/session"
)

const tracerName = "nerdemo/annotate"

// DefaultExcludedTags are dropped from every result unless overridden.
var DefaultExcludedTags = []string{"O", "B-PER"}

type Annotation struct {
	Word    string  `json:"word"`
	Tag     string  `json:"tag"`
	LabelID int     `json:"label_id"`
	Score   float64 `json:"score"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
}

type Annotator struct {
	inf      detect.Inferencer
	excluded []string
	logger   *zap.Logger
	audit    audit.Logger
	timeout  time.Duration
}

type Option func(*Annotator)

// WithExcludedTags replaces the exclusion set. A nil slice keeps the default;
// an empty one excludes nothing.
func WithExcludedTags(tags []string) Option {
	return func(a *Annotator) {
		if tags != nil {
			a.excluded = lo.Uniq(tags)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Annotator) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithAuditLogger(l audit.Logger) Option {
	return func(a *Annotator) {
		if l != nil {
			a.audit = l
		}
	}
}

// WithTimeout bounds each inference call. Zero means no extra deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Annotator) { a.timeout = d }
}

func New(inf detect.Inferencer, opts ...Option) *Annotator {
	a := &Annotator{
		inf:      inf,
		excluded: append([]string(nil), DefaultExcludedTags...),
		logger:   zap.NewNop(),
		audit:    audit.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if lo.Contains(a.excluded, "B-PER") && !lo.Contains(a.excluded, "I-PER") {
		a.logger.Warn("B-PER is excluded but I-PER is not; person continuations will be shown without their first token",
			zap.Strings("excluded_tags", a.excluded))
	}
	return a
}

func (a *Annotator) ExcludedTags() []string {
	return append([]string(nil), a.excluded...)
}

// Annotate runs inference on text and returns the predictions whose resolved
// tag is not excluded, in inference order.
func (a *Annotator) Annotate(ctx context.Context, text string) ([]Annotation, error) {
	return a.AnnotateFrom(ctx, "", text)
}

// AnnotateFrom is Annotate with source ("web", "api", "cli") recorded in the
// audit log.
func (a *Annotator) AnnotateFrom(ctx context.Context, source, text string) ([]Annotation, error) {
	sid := session.GetIDFromContext(ctx)
	entry := audit.Entry{Source: source, Session: sid, TextBytes: len(text)}
	if strings.TrimSpace(text) == "" {
		metrics.AnnotationsTotal.WithLabelValues("empty_input").Inc()
		return nil, ErrEmptyInput
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "annotate.Annotate",
		trace.WithAttributes(attribute.Int("text.bytes", len(text)), attribute.String("source", source)))
	defer span.End()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	preds, err := a.inf.Predict(ctx, text)
	elapsed := time.Since(start)
	metrics.InferenceDuration.Observe(elapsed.Seconds())
	entry.LatencyMs = float64(elapsed.Microseconds()) / 1000

	if err != nil {
		metrics.AnnotationsTotal.WithLabelValues("inference_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		a.logger.Error("inference failed", zap.Error(err), zap.String("source", source), zap.String("session", sid))
		entry.Error = err.Error()
		a.record(entry)
		return nil, &InferenceError{Err: err}
	}

	out := a.filter(preds)

	entry.Predictions = len(preds)
	entry.Emitted = len(out)
	entry.Tags = lo.CountValuesBy(out, func(an Annotation) string { return an.Tag })
	a.record(entry)

	metrics.AnnotationsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(
		attribute.Int("predictions", len(preds)),
		attribute.Int("entities", len(out)),
	)
	a.logger.Debug("annotated",
		zap.String("source", source),
		zap.String("session", sid),
		zap.Int("predictions", len(preds)),
		zap.Int("entities", len(out)),
		zap.Duration("latency", elapsed))
	return out, nil
}

func (a *Annotator) filter(preds []detect.Prediction) []Annotation {
	resolved := lo.Map(preds, func(p detect.Prediction, _ int) Annotation {
		id, tag := labels.ResolveLabel(p.Entity)
		return Annotation{Word: p.Word, Tag: tag, LabelID: id, Score: p.Score, Start: p.Start, End: p.End}
	})
	out := make([]Annotation, 0, len(resolved))
	for _, an := range resolved {
		if lo.Contains(a.excluded, an.Tag) {
			metrics.EntitiesExcluded.WithLabelValues(an.Tag).Inc()
			continue
		}
		metrics.EntitiesEmitted.WithLabelValues(an.Tag).Inc()
		out = append(out, an)
	}
	return out
}

func (a *Annotator) record(e audit.Entry) {
	if err := a.audit.Log(e); err != nil {
		a.logger.Warn("audit log write failed", zap.Error(err))
	}
}
