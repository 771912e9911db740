package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testVocab() map[string]int {
	words := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "Elon", "Musk", "is", "the", "CEO", "of", "Tes", "##la", ".", ","}
	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[w] = i
	}
	return vocab
}

func TestSplitWordsWithOffsets(t *testing.T) {
	out := splitWordsWithOffsets("My name is John Smith.")
	require.Len(t, out, 6)
	require.Equal(t, Token{Text: "John", Start: 11, End: 15}, out[3])
	require.Equal(t, Token{Text: ".", Start: 21, End: 22}, out[5])
}

func TestSplitWordsKeepsUnicodeOffsets(t *testing.T) {
	out := splitWordsWithOffsets("Zürich, Schweiz")
	require.Len(t, out, 3)
	require.Equal(t, "Zürich", out[0].Text)
	require.Equal(t, 7, out[0].End)
	require.Equal(t, ",", out[1].Text)
}

func TestWordPieceEncode(t *testing.T) {
	tok, err := newWordPieceTokenizer(testVocab(), false)
	require.NoError(t, err)

	out, err := tok.Encode("Elon Musk is the CEO of Tesla.")
	require.NoError(t, err)
	require.Equal(t, []string{"[CLS]", "Elon", "Musk", "is", "the", "CEO", "of", "Tes", "##la", ".", "[SEP]"}, out.Tokens)
	require.Equal(t, -1, out.TokenToWordIdx[0])
	require.Equal(t, -1, out.TokenToWordIdx[len(out.TokenToWordIdx)-1])
	require.Equal(t, [2]int{24, 27}, out.Offsets[7])
	require.Equal(t, [2]int{27, 29}, out.Offsets[8])
	require.Len(t, out.AttentionMask, len(out.InputIDs))
	require.Len(t, out.TokenTypeIDs, len(out.InputIDs))
}

func TestWordPieceUnknownWord(t *testing.T) {
	tok, err := newWordPieceTokenizer(testVocab(), false)
	require.NoError(t, err)
	out, err := tok.Encode("Zebra")
	require.NoError(t, err)
	require.Equal(t, "[UNK]", out.Tokens[1])
	require.Equal(t, int64(1), out.InputIDs[1])
}

func TestWordPieceTruncatesLongInput(t *testing.T) {
	tok, err := newWordPieceTokenizer(testVocab(), false)
	require.NoError(t, err)
	tok.maxSeqLen = 5
	out, err := tok.Encode("Elon Musk is the CEO of Tesla.")
	require.NoError(t, err)
	require.Len(t, out.InputIDs, 5)
	require.Equal(t, "[SEP]", out.Tokens[4])
}

func TestNewWordPieceTokenizerMissingSpecials(t *testing.T) {
	_, err := newWordPieceTokenizer(map[string]int{"[UNK]": 0}, false)
	require.ErrorContains(t, err, "[CLS]")
}

func TestLoadTokenizerConfigLowercase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"normalizer":{"lowercase":true},"model":{"vocab":{"[UNK]":0,"[CLS]":1,"[SEP]":2,"elon":3}}}`), 0o644))
	tok, err := NewWordPieceTokenizer(path)
	require.NoError(t, err)
	out, err := tok.Encode("Elon")
	require.NoError(t, err)
	require.Equal(t, "elon", out.Tokens[1])
	require.Equal(t, [2]int{0, 4}, out.Offsets[1])
}
