// Package vocab maps caption tokens to integer ids and back.
//
// A Vocabulary is a bijection between token strings and the ids [0, Size()).
// It must contain NullToken, which the decoder uses as its padding index.
// StartToken is needed only for sampling and EndToken only for Decode.
package vocab

import (
	"strings"

	"github.com/pkg/errors"
)

// Reserved control tokens.
const (
	NullToken  = "<NULL>"
	StartToken = "<START>"
	EndToken   = "<END>"
)

// ErrInvalid marks a mapping that is not a usable vocabulary.
var ErrInvalid = errors.New("invalid vocabulary")

// Vocabulary is an immutable token <-> id mapping.
type Vocabulary struct {
	words []string
	ids   map[string]int
}

// New builds a vocabulary in which words[i] has id i.
func New(words []string) (*Vocabulary, error) {
	v := &Vocabulary{
		words: make([]string, len(words)),
		ids:   make(map[string]int, len(words)),
	}
	for id, w := range words {
		if w == "" {
			return nil, errors.Wrapf(ErrInvalid, "empty token at id %d", id)
		}
		if prev, ok := v.ids[w]; ok {
			return nil, errors.Wrapf(ErrInvalid, "token %q has ids %d and %d", w, prev, id)
		}
		v.words[id] = w
		v.ids[w] = id
	}
	if _, ok := v.ids[NullToken]; !ok {
		return nil, errors.Wrapf(ErrInvalid, "missing %s token", NullToken)
	}
	return v, nil
}

// FromMap builds a vocabulary from a token -> id mapping. The ids must be
// exactly 0..len(m)-1.
func FromMap(m map[string]int) (*Vocabulary, error) {
	words := make([]string, len(m))
	for w, id := range m {
		if id < 0 || id >= len(m) {
			return nil, errors.Wrapf(ErrInvalid, "token %q has id %d outside [0, %d)", w, id, len(m))
		}
		if words[id] != "" {
			return nil, errors.Wrapf(ErrInvalid, "id %d is shared by %q and %q", id, words[id], w)
		}
		words[id] = w
	}
	return New(words)
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int { return len(v.words) }

// ID returns the id of word.
func (v *Vocabulary) ID(word string) (int, bool) {
	id, ok := v.ids[word]
	return id, ok
}

// Word returns the token with the given id.
func (v *Vocabulary) Word(id int) (string, bool) {
	if id < 0 || id >= len(v.words) {
		return "", false
	}
	return v.words[id], true
}

// NullID returns the id of the padding token.
func (v *Vocabulary) NullID() int { return v.ids[NullToken] }

// StartID returns the id of the start token, if present.
func (v *Vocabulary) StartID() (int, bool) { return v.ID(StartToken) }

// EndID returns the id of the end token, if present.
func (v *Vocabulary) EndID() (int, bool) { return v.ID(EndToken) }

// Words returns the tokens ordered by id.
func (v *Vocabulary) Words() []string {
	return append([]string(nil), v.words...)
}

// Decode turns a sampled caption into words. It stops at the first end
// token and skips null and start tokens. Ids outside the vocabulary are
// skipped as well.
func (v *Vocabulary) Decode(ids []int) []string {
	endID, hasEnd := v.EndID()
	startID, hasStart := v.StartID()
	nullID := v.NullID()

	var words []string
	for _, id := range ids {
		if hasEnd && id == endID {
			break
		}
		if id == nullID || (hasStart && id == startID) {
			continue
		}
		if w, ok := v.Word(id); ok {
			words = append(words, w)
		}
	}
	return words
}

// DecodeString is Decode joined with single spaces.
func (v *Vocabulary) DecodeString(ids []int) string {
	return strings.Join(v.Decode(ids), " ")
}
