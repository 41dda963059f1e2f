package backend

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"recipe-gen/recipe"
)

// BPETokenizer implements GPT-2 byte-level BPE with atomic added tokens
type BPETokenizer struct {
	encoder     map[string]int
	decoder     map[int]string
	bpeRanks    map[string]int // "a b" -> merge priority
	byteEncoder [256]rune
	byteDecoder map[rune]byte
	pattern     *regexp.Regexp

	added      map[string]int
	addedByID  map[int]string
	addedOrder []string // longest first

	special   recipe.SpecialTokens
	eosID     int
	padID     int
	vocabSize int
}

// NewBPETokenizer loads vocab.json and merges.txt from dir, plus any added
// tokens from added_tokens.json or tokenizer.json
func NewBPETokenizer(dir string) (*BPETokenizer, error) {
	t := &BPETokenizer{
		encoder:     make(map[string]int),
		decoder:     make(map[int]string),
		bpeRanks:    make(map[string]int),
		byteEncoder: buildByteEncoder(),
		byteDecoder: make(map[rune]byte),
		added:       make(map[string]int),
		addedByID:   make(map[int]string),
		// GPT-2 pre-tokenization (simplified for RE2)
		pattern: regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`),
	}
	for b, r := range t.byteEncoder {
		t.byteDecoder[r] = byte(b)
	}

	data, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	if err := json.Unmarshal(data, &t.encoder); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}
	for token, id := range t.encoder {
		t.decoder[id] = token
	}

	if err := t.loadMerges(filepath.Join(dir, "merges.txt")); err != nil {
		return nil, fmt.Errorf("failed to load merges: %w", err)
	}

	if err := t.loadAddedTokens(dir); err != nil {
		return nil, err
	}

	if t.special, err = LoadSpecialTokens(dir); err != nil {
		return nil, err
	}
	// special tokens that live in the base vocab are still atomic
	for _, tok := range t.special.All() {
		if id, ok := t.encoder[tok]; ok {
			t.addToken(tok, id)
		}
	}
	sort.Slice(t.addedOrder, func(i, j int) bool {
		return len(t.addedOrder[i]) > len(t.addedOrder[j])
	})

	t.eosID = -1
	if id, ok := t.TokenID(t.special.EOS); ok {
		t.eosID = id
	} else if id, ok := t.TokenID("<|endoftext|>"); ok {
		t.eosID = id
	}
	t.padID = t.eosID
	if id, ok := t.TokenID(t.special.Pad); ok {
		t.padID = id
	}

	for id := range t.decoder {
		t.vocabSize = max(t.vocabSize, id+1)
	}
	for id := range t.addedByID {
		t.vocabSize = max(t.vocabSize, id+1)
	}

	return t, nil
}

// buildByteEncoder creates GPT-2's byte-to-unicode mapping
func buildByteEncoder() [256]rune {
	var encoder [256]rune
	assigned := [256]bool{}

	for _, span := range [][2]int{{'!', '~'}, {'¡', '¬'}, {'®', 'ÿ'}} {
		for b := span[0]; b <= span[1]; b++ {
			encoder[b] = rune(b)
			assigned[b] = true
		}
	}

	n := 0
	for b := 0; b < 256; b++ {
		if !assigned[b] {
			encoder[b] = rune(256 + n)
			n++
		}
	}

	return encoder
}

func (t *BPETokenizer) loadMerges(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	rank := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		t.bpeRanks[line] = rank
		rank++
	}

	return scanner.Err()
}

func (t *BPETokenizer) loadAddedTokens(dir string) error {
	var addedJSON map[string]int
	if _, err := readOptionalJSON(filepath.Join(dir, "added_tokens.json"), &addedJSON); err != nil {
		return err
	}
	for tok, id := range addedJSON {
		t.addToken(tok, id)
	}

	var tokenizerJSON struct {
		AddedTokens []struct {
			ID      int    `json:"id"`
			Content string `json:"content"`
		} `json:"added_tokens"`
	}
	if _, err := readOptionalJSON(filepath.Join(dir, "tokenizer.json"), &tokenizerJSON); err != nil {
		return err
	}
	for _, a := range tokenizerJSON.AddedTokens {
		t.addToken(a.Content, a.ID)
	}

	return nil
}

func (t *BPETokenizer) addToken(tok string, id int) {
	if tok == "" {
		return
	}
	if _, ok := t.added[tok]; !ok {
		t.addedOrder = append(t.addedOrder, tok)
	}
	t.added[tok] = id
	t.addedByID[id] = tok
}

// Encode converts text to token IDs. Added tokens such as <|startofrecipe|>
// and [TITLE] are matched literally before BPE runs on the text between them.
func (t *BPETokenizer) Encode(text string) ([]int, error) {
	var tokenIDs []int

	for len(text) > 0 {
		pos, tok := t.nextAdded(text)
		if pos < 0 {
			tokenIDs = t.encodeOrdinary(tokenIDs, text)
			break
		}
		tokenIDs = t.encodeOrdinary(tokenIDs, text[:pos])
		tokenIDs = append(tokenIDs, t.added[tok])
		text = text[pos+len(tok):]
	}

	return tokenIDs, nil
}

// nextAdded finds the earliest added token in text, preferring the longest
// at the same position
func (t *BPETokenizer) nextAdded(text string) (int, string) {
	best, bestTok := -1, ""
	for _, tok := range t.addedOrder {
		i := strings.Index(text, tok)
		if i >= 0 && (best < 0 || i < best) {
			best, bestTok = i, tok
		}
	}
	return best, bestTok
}

func (t *BPETokenizer) encodeOrdinary(tokenIDs []int, text string) []int {
	for _, piece := range t.pattern.FindAllString(text, -1) {
		var sb strings.Builder
		for _, b := range []byte(piece) {
			sb.WriteRune(t.byteEncoder[b])
		}

		for _, tok := range t.bpe(sb.String()) {
			if id, ok := t.encoder[tok]; ok {
				tokenIDs = append(tokenIDs, id)
			}
		}
	}
	return tokenIDs
}

// bpe applies the merge rules to one pre-tokenized word
func (t *BPETokenizer) bpe(token string) []string {
	word := make([]string, 0, len(token))
	for _, r := range token {
		word = append(word, string(r))
	}

	for len(word) > 1 {
		minRank, minIdx := -1, -1
		for i := 0; i < len(word)-1; i++ {
			rank, ok := t.bpeRanks[word[i]+" "+word[i+1]]
			if ok && (minRank < 0 || rank < minRank) {
				minRank, minIdx = rank, i
			}
		}
		if minIdx < 0 {
			break
		}

		first, second := word[minIdx], word[minIdx+1]
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); i++ {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i++
				continue
			}
			merged = append(merged, word[i])
		}
		word = merged
	}

	return word
}

// Decode converts token IDs to text. Added tokens are written literally;
// padding and unknown IDs are skipped.
func (t *BPETokenizer) Decode(tokenIDs []int) (string, error) {
	var (
		sb  strings.Builder
		buf []byte
	)
	flush := func() {
		sb.Write(buf)
		buf = buf[:0]
	}

	for _, id := range tokenIDs {
		if id == t.padID && id != t.eosID {
			continue
		}
		if tok, ok := t.addedByID[id]; ok {
			flush()
			sb.WriteString(tok)
			continue
		}
		tok, ok := t.decoder[id]
		if !ok {
			continue
		}
		for _, r := range tok {
			if b, ok := t.byteDecoder[r]; ok {
				buf = append(buf, b)
			}
		}
	}
	flush()

	return sb.String(), nil
}

// TokenID looks up a token in the added tokens and the base vocab
func (t *BPETokenizer) TokenID(token string) (int, bool) {
	if id, ok := t.added[token]; ok {
		return id, true
	}
	id, ok := t.encoder[token]
	return id, ok
}

// SpecialTokens returns the special token strings the tokenizer resolved
func (t *BPETokenizer) SpecialTokens() recipe.SpecialTokens {
	return t.special
}

// EOSTokenID returns the EOS token ID
func (t *BPETokenizer) EOSTokenID() int {
	return t.eosID
}

// PadTokenID returns the padding token ID
func (t *BPETokenizer) PadTokenID() int {
	return t.padID
}

// VocabSize returns one past the largest token ID
func (t *BPETokenizer) VocabSize() int {
	return t.vocabSize
}
