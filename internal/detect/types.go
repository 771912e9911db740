package detect

import "context"

//go:generate mockgen -source=types.go -destination=mocks/mock_inferencer.go -package=mocks

// Prediction is one token-level result as produced by a token-classification
// pipeline. Entity carries the model's raw label identifier (LABEL_<id>).
type Prediction struct {
	Entity string  `json:"entity"`
	Word   string  `json:"word"`
	Score  float64 `json:"score"`
	Index  int     `json:"index"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

type Inferencer interface {
	Predict(ctx context.Context, text string) ([]Prediction, error)
}
