// Package bio reads sequence alignments and encodes them as model
// states.
package bio

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrNoPrefix is returned if a sequence line precedes the first name
// line.
var ErrNoPrefix = errors.New("sequence w/o prefix")

// Sequence is a type which is intended for storing nucleotide or
// protein sequence with it's name.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences. E.g. a sequence alignment.
type Sequences []Sequence

// ParseFasta parses FASTA sequences from a reader.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 10)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			seqs = append(seqs, Sequence{Name: line[1:]})
			continue
		}
		if len(seqs) == 0 {
			return nil, ErrNoPrefix
		}
		line = strings.ToUpper(strings.Replace(line, " ", "", -1))
		seqs[len(seqs)-1].Sequence += line
	}
	return seqs, scanner.Err()
}

// Encode converts a sequence to state indices in the alphabet states.
// Gaps and ambiguous characters are encoded as -1. For nucleotides U
// is read as T.
func (seq Sequence) Encode(states string) []int {
	res := make([]int, len(seq.Sequence))
	for i, c := range []byte(seq.Sequence) {
		if c == 'U' && states == "ACGT" {
			c = 'T'
		}
		res[i] = strings.IndexByte(states, c)
	}
	return res
}

// Encode converts all sequences to state indices.
func (seqs Sequences) Encode(states string) [][]int {
	res := make([][]int, len(seqs))
	for i, seq := range seqs {
		res[i] = seq.Encode(states)
	}
	return res
}
