package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrIncorrectTokenCount is returned by a strict tokenizer when a line does not have one token per name.
var ErrIncorrectTokenCount = errors.New("incorrect token count")

// FieldSet is one tokenized line. Values are addressed by position or by the tokenizer's names.
type FieldSet struct {
	names  []string
	values []string
}

// NewFieldSet creates a FieldSet. names may be shorter or longer than values.
func NewFieldSet(names, values []string) FieldSet {
	return FieldSet{names: names, values: values}
}

// Get returns the value of the named field, or "" when the name is unknown or the line
// was too short to carry it.
func (fs FieldSet) Get(name string) string {
	for i, n := range fs.names {
		if n == name {
			return fs.At(i)
		}
	}
	return ""
}

// At returns the value at index i, or "" when i is out of range.
func (fs FieldSet) At(i int) string {
	if i < 0 || i >= len(fs.values) {
		return ""
	}
	return fs.values[i]
}

// Len returns the number of tokens on the line.
func (fs FieldSet) Len() int { return len(fs.values) }

// Names returns the field names.
func (fs FieldSet) Names() []string { return fs.names }

// Values returns the raw tokens.
func (fs FieldSet) Values() []string { return fs.values }

// LineTokenizer splits a line into a FieldSet.
type LineTokenizer interface {
	Tokenize(line string) (FieldSet, error)
}

// DelimitedLineTokenizer splits a line on Delimiter. Quoted tokens follow CSV rules,
// and stray quotes inside unquoted tokens are kept as is.
//
// With Strict unset, lines with fewer tokens than Names leave the trailing fields empty
// and extra tokens are ignored.
type DelimitedLineTokenizer struct {
	Delimiter rune
	Names     []string
	Strict    bool
}

// NewDelimitedLineTokenizer creates a tokenizer for delimiter and names.
func NewDelimitedLineTokenizer(delimiter rune, names []string, strict bool) *DelimitedLineTokenizer {
	return &DelimitedLineTokenizer{Delimiter: delimiter, Names: names, Strict: strict}
}

// Tokenize implements LineTokenizer.
func (t *DelimitedLineTokenizer) Tokenize(line string) (FieldSet, error) {
	delimiter := t.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}

	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	tokens, err := r.Read()
	if errors.Is(err, io.EOF) {
		tokens, err = []string{}, nil
	}
	if err != nil {
		return FieldSet{}, err
	}

	if t.Strict && len(t.Names) > 0 && len(tokens) != len(t.Names) {
		return FieldSet{}, fmt.Errorf("%w: expected %d, found %d", ErrIncorrectTokenCount, len(t.Names), len(tokens))
	}
	return NewFieldSet(t.Names, tokens), nil
}

var _ LineTokenizer = (*DelimitedLineTokenizer)(nil)
