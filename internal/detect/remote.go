package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RemotePipeline calls a hosted token-classification endpoint that speaks the
// HuggingFace inference API shape: POST {"inputs": text} -> [{entity, score,
// word, start, end, index}].
type RemotePipeline struct {
	url    string
	token  string
	client *http.Client
}

type remoteRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type remotePrediction struct {
	Entity      string  `json:"entity"`
	EntityGroup string  `json:"entity_group"`
	Score       float64 `json:"score"`
	Word        string  `json:"word"`
	Index       int     `json:"index"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
}

func NewRemotePipeline(cfg Config) (*RemotePipeline, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.RemoteURL) == "" {
		return nil, fmt.Errorf("remote backend requires a url")
	}
	return &RemotePipeline{
		url:    cfg.RemoteURL,
		token:  cfg.RemoteToken,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *RemotePipeline) Predict(ctx context.Context, text string) ([]Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(remoteRequest{
		Inputs:     text,
		Parameters: map[string]any{"aggregation_strategy": "none"},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote inference: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read remote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote inference status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	var items []remotePrediction
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse remote response: %w", err)
	}
	out := make([]Prediction, 0, len(items))
	for _, it := range items {
		entity := it.Entity
		if entity == "" {
			entity = it.EntityGroup
		}
		out = append(out, Prediction{Entity: entity, Word: it.Word, Score: it.Score, Index: it.Index, Start: it.Start, End: it.End})
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
