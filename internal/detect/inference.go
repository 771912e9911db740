package detect

import (
	"fmt"
	"math"
)

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := float64(logits[0])
	for _, l := range logits[1:] {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(probs []float64) (int, float64) {
	best, bestP := 0, math.Inf(-1)
	for i, p := range probs {
		if p > bestP {
			best, bestP = i, p
		}
	}
	return best, bestP
}

func labelName(names map[int]string, id int) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("LABEL_%d", id)
}

// decodeLogits converts per-token logits into predictions, skipping special
// tokens and tokens whose label is literally "O".
func decodeLogits(enc *TokenizerOutput, logits [][]float32, names map[int]string) ([]Prediction, error) {
	if len(logits) != len(enc.InputIDs) {
		return nil, fmt.Errorf("logits length %d does not match %d input tokens", len(logits), len(enc.InputIDs))
	}
	out := make([]Prediction, 0, len(logits))
	for i, row := range logits {
		if enc.TokenToWordIdx[i] < 0 || len(row) == 0 {
			continue
		}
		id, score := argmax(softmax(row))
		entity := labelName(names, id)
		if entity == "O" {
			continue
		}
		out = append(out, Prediction{
			Entity: entity,
			Word:   enc.Tokens[i],
			Score:  score,
			Index:  i,
			Start:  enc.Offsets[i][0],
			End:    enc.Offsets[i][1],
		})
	}
	return out, nil
}
