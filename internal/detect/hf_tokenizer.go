package detect

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer runs the full tokenizer.json pipeline (normalizer,
// pre-tokenizer, model, post-processor) instead of the built-in WordPiece
// approximation.
type HFTokenizer struct {
	tk        *tokenizer.Tokenizer
	maxSeqLen int
}

func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load hf tokenizer: %w", err)
	}
	return &HFTokenizer{tk: tk, maxSeqLen: 512}, nil
}

func (t *HFTokenizer) Encode(text string) (*TokenizerOutput, error) {
	enc, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("hf encode: %w", err)
	}
	n := len(enc.Ids)
	out := &TokenizerOutput{}
	for i := 0; i < n; i++ {
		if len(out.InputIDs) >= t.maxSeqLen-1 && i < n-1 {
			// keep the trailing [SEP]
			i = n - 1
		}
		special := i < len(enc.SpecialTokenMask) && enc.SpecialTokenMask[i] == 1
		start, end := 0, 0
		if i < len(enc.Offsets) && len(enc.Offsets[i]) == 2 {
			start, end = clampOffsets(text, enc.Offsets[i][0], enc.Offsets[i][1])
		}
		word := i
		if special {
			word = -1
		}
		tokenText := ""
		if i < len(enc.Tokens) {
			tokenText = enc.Tokens[i]
		}
		out.append(enc.Ids[i], tokenText, start, end, word)
		if i < len(enc.TypeIds) {
			out.TokenTypeIDs[len(out.TokenTypeIDs)-1] = int64(enc.TypeIds[i])
		}
	}
	return out, nil
}

func clampOffsets(text string, start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start = end
	}
	return start, end
}
