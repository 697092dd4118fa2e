package vocab

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Save writes the vocabulary to a file.
//
// File format, one token per line ordered by id:
//
//	<token> <id>
func (v *Vocabulary) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	if err := v.Write(file); err != nil {
		return err
	}
	return file.Close()
}

// Write writes the vocabulary in the Save format.
func (v *Vocabulary) Write(w io.Writer) error {
	writer := bufio.NewWriter(w)
	for id, word := range v.words {
		if strings.ContainsAny(word, " \t\r\n") {
			return errors.Wrapf(ErrInvalid, "token %q at id %d contains whitespace", word, id)
		}
		if _, err := writer.WriteString(word + " " + strconv.Itoa(id) + "\n"); err != nil {
			return errors.Wrapf(err, "failed to write token %d", id)
		}
	}
	if err := writer.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush writer")
	}
	return nil
}

// Load reads a vocabulary written by Save.
func Load(path string) (*Vocabulary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return Read(file)
}

// Read parses the Save format. Blank lines are ignored; lines may appear in
// any order.
func Read(r io.Reader) (*Vocabulary, error) {
	m := make(map[string]int)
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, errors.Wrapf(ErrInvalid, "line %d: expected 2 fields, got %d", lineNum, len(parts))
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "line %d: invalid id %q", lineNum, parts[1])
		}
		if _, ok := m[parts[0]]; ok {
			return nil, errors.Wrapf(ErrInvalid, "line %d: duplicate token %q", lineNum, parts[0])
		}
		m[parts[0]] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading vocabulary")
	}

	return FromMap(m)
}
