package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Encoder turns text into model inputs. Offsets are byte offsets into the
// encoded text; special tokens have TokenToWordIdx -1.
type Encoder interface {
	Encode(text string) (*TokenizerOutput, error)
}

type Token struct {
	Text       string
	Start, End int
}

type TokenizerOutput struct {
	InputIDs       []int64
	AttentionMask  []int64
	TokenTypeIDs   []int64
	Tokens         []string
	Offsets        [][2]int
	TokenToWordIdx []int
	Words          []Token
}

func (o *TokenizerOutput) append(id int, text string, start, end, word int) {
	o.InputIDs = append(o.InputIDs, int64(id))
	o.AttentionMask = append(o.AttentionMask, 1)
	o.TokenTypeIDs = append(o.TokenTypeIDs, 0)
	o.Tokens = append(o.Tokens, text)
	o.Offsets = append(o.Offsets, [2]int{start, end})
	o.TokenToWordIdx = append(o.TokenToWordIdx, word)
}

// WordPieceTokenizer is a BERT basic+wordpiece tokenizer driven by the vocab
// in a HuggingFace tokenizer.json.
type WordPieceTokenizer struct {
	vocab      map[string]int
	unkID      int
	clsID      int
	sepID      int
	maxWordLen int
	maxSeqLen  int
	lowercase  bool
}

type tokenizerJSON struct {
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	Normalizer struct {
		Lowercase *bool `json:"lowercase"`
	} `json:"normalizer"`
}

func NewWordPieceTokenizer(tokenizerPath string) (*WordPieceTokenizer, error) {
	vocab, lowercase, err := loadTokenizerConfig(tokenizerPath)
	if err != nil {
		return nil, err
	}
	return newWordPieceTokenizer(vocab, lowercase)
}

func newWordPieceTokenizer(vocab map[string]int, lowercase bool) (*WordPieceTokenizer, error) {
	ids := make(map[string]int, 3)
	for _, special := range []string{"[UNK]", "[CLS]", "[SEP]"} {
		id, ok := vocab[special]
		if !ok {
			return nil, fmt.Errorf("tokenizer vocab is missing %s", special)
		}
		ids[special] = id
	}
	return &WordPieceTokenizer{
		vocab:      vocab,
		unkID:      ids["[UNK]"],
		clsID:      ids["[CLS]"],
		sepID:      ids["[SEP]"],
		maxWordLen: 100,
		maxSeqLen:  512,
		lowercase:  lowercase,
	}, nil
}

func loadTokenizerConfig(path string) (map[string]int, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	var cfg tokenizerJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, false, err
	}
	if len(cfg.Model.Vocab) == 0 {
		return nil, false, fmt.Errorf("tokenizer.json model.vocab is empty")
	}
	// CoNLL checkpoints are usually bert-base-cased; only lowercase when the
	// normalizer says so.
	lowercase := false
	if cfg.Normalizer.Lowercase != nil {
		lowercase = *cfg.Normalizer.Lowercase
	}
	return cfg.Model.Vocab, lowercase, nil
}

func (t *WordPieceTokenizer) Encode(text string) (*TokenizerOutput, error) {
	words := splitWordsWithOffsets(text)
	out := &TokenizerOutput{Words: words}
	out.append(t.clsID, "[CLS]", 0, 0, -1)
	full := false
	for wi, word := range words {
		for _, p := range t.wordToPieces(word) {
			if len(out.InputIDs) >= t.maxSeqLen-1 {
				full = true
				break
			}
			out.append(p.id, p.text, p.start, p.end, wi)
		}
		if full {
			break
		}
	}
	out.append(t.sepID, "[SEP]", 0, 0, -1)
	return out, nil
}

type wordPiece struct {
	id         int
	text       string
	start, end int
}

func (t *WordPieceTokenizer) wordToPieces(word Token) []wordPiece {
	unk := []wordPiece{{id: t.unkID, text: "[UNK]", start: word.Start, end: word.End}}
	if word.Text == "" {
		return unk
	}
	original := []rune(word.Text)
	runes := original
	if t.lowercase {
		runes = []rune(strings.ToLower(word.Text))
		if len(runes) != len(original) {
			runes = original
		}
	}
	if len(runes) > t.maxWordLen {
		return unk
	}
	if id, ok := t.vocab[string(runes)]; ok {
		return []wordPiece{{id: id, text: string(runes), start: word.Start, end: word.End}}
	}

	// byteAt[i] is the byte offset of rune i within the original text.
	byteAt := make([]int, len(original)+1)
	off := word.Start
	for i, r := range original {
		byteAt[i] = off
		off += len(string(r))
	}
	byteAt[len(original)] = off

	pieces := make([]wordPiece, 0, 2)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := -1
		var piece string
		for end > start {
			piece = string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found == -1 {
			return unk
		}
		pieces = append(pieces, wordPiece{id: found, text: piece, start: byteAt[start], end: byteAt[end]})
		start = end
	}
	if len(pieces) == 0 {
		return unk
	}
	return pieces
}

// splitWordsWithOffsets mirrors BERT's basic tokenizer: runs of letters and
// digits form words, every punctuation or symbol rune is its own word.
func splitWordsWithOffsets(text string) []Token {
	tokens := make([]Token, 0)
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, Token{Text: text[start:end], Start: start, End: end})
			start = -1
		}
	}
	for i, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			if start < 0 {
				start = i
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(i)
			end := i + len(string(r))
			tokens = append(tokens, Token{Text: text[i:end], Start: i, End: end})
		default:
			flush(i)
		}
	}
	flush(len(text))
	return tokens
}
