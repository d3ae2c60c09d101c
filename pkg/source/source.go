// Package source streams raw image records out of a BDD100K label file.
//
// A label file is a JSON document whose top level is either an array of image
// records or an object holding an "images" array. Files with a .jsonl extension
// hold one record per line. Records are handed out undecoded; interpreting them is
// the job of package schema.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/bddconv/pkg/types"
)

// maxLineSize bounds a single .jsonl record
const maxLineSize = 64 << 20

// MalformedInputError reports a label file that is missing, is not valid JSON,
// or does not have one of the supported top-level shapes.
type MalformedInputError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed input %s: %s", e.Path, e.Reason)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Source is a restartable sequence of raw records backed by a file.
// Every call to Records opens the file again, so concurrent consumers never
// share a cursor.
type Source struct {
	path string
}

// New creates a source for the label file at path
func New(path string) *Source {
	return &Source{path: path}
}

// Path returns the label file path
func (s *Source) Path() string {
	return s.path
}

// Records streams the records of the file. On failure it yields a single
// *MalformedInputError and stops.
func (s *Source) Records() iter.Seq2[types.RawImageRecord, error] {
	return func(yield func(types.RawImageRecord, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(nil, s.malformed("cannot open label file", err))
			return
		}
		defer f.Close()

		if strings.EqualFold(filepath.Ext(s.path), ".jsonl") {
			s.lines(f, yield)
			return
		}
		s.document(f, yield)
	}
}

// Count reads the whole file and returns the number of records
func (s *Source) Count() (int, error) {
	n := 0
	for _, err := range s.Records() {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Source) malformed(reason string, err error) *MalformedInputError {
	return &MalformedInputError{Path: s.path, Reason: reason, Err: err}
}

func (s *Source) document(r io.Reader, yield func(types.RawImageRecord, error) bool) {
	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))

	tok, err := dec.Token()
	if err != nil {
		yield(nil, s.malformed("not valid JSON", err))
		return
	}
	delim, _ := tok.(json.Delim)
	switch delim {
	case '[':
		if !s.array(dec, yield) {
			return
		}
		s.end(dec, yield)
	case '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				yield(nil, s.malformed("not valid JSON", err))
				return
			}
			if key, _ := keyTok.(string); key != "images" {
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					yield(nil, s.malformed("not valid JSON", err))
					return
				}
				continue
			}
			tok, err := dec.Token()
			if err != nil {
				yield(nil, s.malformed("not valid JSON", err))
				return
			}
			if d, _ := tok.(json.Delim); d != '[' {
				yield(nil, s.malformed(`"images" is not an array`, nil))
				return
			}
			if !s.array(dec, yield) {
				return
			}
		}
		if _, err := dec.Token(); err != nil {
			yield(nil, s.malformed("not valid JSON", err))
			return
		}
		s.end(dec, yield)
	default:
		yield(nil, s.malformed(`top level must be an array or an object with an "images" array`, nil))
	}
}

// end requires the input to stop after the top-level value
func (s *Source) end(dec *json.Decoder, yield func(types.RawImageRecord, error) bool) {
	tok, err := dec.Token()
	switch {
	case err == io.EOF:
	case err != nil:
		yield(nil, s.malformed("trailing data after top-level value", err))
	default:
		yield(nil, s.malformed(fmt.Sprintf("trailing data after top-level value: %v", tok), nil))
	}
}

// array consumes array elements up to and including the closing bracket.
// It returns false when iteration must stop.
func (s *Source) array(dec *json.Decoder, yield func(types.RawImageRecord, error) bool) bool {
	for i := 0; dec.More(); i++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			yield(nil, s.malformed(fmt.Sprintf("record %d is not valid JSON", i), err))
			return false
		}
		if !yield(types.RawImageRecord(raw), nil) {
			return false
		}
	}
	if _, err := dec.Token(); err != nil {
		yield(nil, s.malformed("not valid JSON", err))
		return false
	}
	return true
}

func (s *Source) lines(r io.Reader, yield func(types.RawImageRecord, error) bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			yield(nil, s.malformed(fmt.Sprintf("line %d is not valid JSON", n), nil))
			return
		}
		if !yield(types.RawImageRecord(bytes.Clone(line)), nil) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		yield(nil, s.malformed("read failed", err))
	}
}
