package generation

import (
	"context"
	"strings"
	"sync"
)

// scriptTokenizer encodes text one rune per token and decodes scripted
// multi-character pieces for IDs registered in pieces
type scriptTokenizer struct {
	pieces map[int]string
	eos    int
	pad    int
}

const runeBase = 1000

func newScriptTokenizer(eos, pad int, pieces map[int]string) *scriptTokenizer {
	if pieces == nil {
		pieces = map[int]string{}
	}
	return &scriptTokenizer{pieces: pieces, eos: eos, pad: pad}
}

func (t *scriptTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		ids = append(ids, runeBase+int(r))
	}
	return ids, nil
}

func (t *scriptTokenizer) Decode(tokenIDs []int) (string, error) {
	var b strings.Builder
	for _, id := range tokenIDs {
		if id == t.pad {
			continue
		}
		if p, ok := t.pieces[id]; ok {
			b.WriteString(p)
			continue
		}
		b.WriteRune(rune(id - runeBase))
	}
	return b.String(), nil
}

func (t *scriptTokenizer) TokenID(token string) (int, bool) {
	for id, p := range t.pieces {
		if p == token {
			return id, true
		}
	}
	return 0, false
}

func (t *scriptTokenizer) EOSTokenID() int { return t.eos }
func (t *scriptTokenizer) PadTokenID() int { return t.pad }
func (t *scriptTokenizer) VocabSize() int  { return 2000 }

// scriptRunner returns one-hot logits that make the scripted token the argmax
// at each step, then repeats the last one
type scriptRunner struct {
	mu       sync.Mutex
	script   []int
	vocab    int
	calls    int
	released int
	closed   bool
	err      error
}

func (r *scriptRunner) Run(ctx context.Context, seq *Sequence) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	r.calls++

	step := seq.NumCompletionTokens()
	if step >= len(r.script) {
		step = len(r.script) - 1
	}
	seq.NumCachedTokens = seq.Len()

	logits := make([]float32, r.vocab)
	logits[r.script[step]] = 10
	return logits, nil
}

func (r *scriptRunner) Release(seq *Sequence) {
	r.mu.Lock()
	r.released++
	r.mu.Unlock()
}

func (r *scriptRunner) Close() error {
	r.closed = true
	return nil
}
