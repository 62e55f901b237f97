// Package training records self-play examples for later network training.
// Examples are gob streams inside gzip members, one file per batch.
package training

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Example is one recorded position: the encoded input planes, the search's
// visit distribution as the policy target, and the final game outcome in
// [-1,1] from the side to move's perspective.
type Example struct {
	GameID uuid.UUID
	Board  []float32
	Policy []float32
	Value  float32
}

// A Writer streams compressed examples.
type Writer struct {
	zw  *gzip.Writer
	enc *gob.Encoder
}

func NewWriter(w io.Writer) *Writer {
	zw := gzip.NewWriter(w)
	return &Writer{zw: zw, enc: gob.NewEncoder(zw)}
}

func (w *Writer) Write(ex Example) error {
	if err := w.enc.Encode(ex); err != nil {
		return errors.Wrap(err, "unable to encode example")
	}
	return nil
}

func (w *Writer) Close() error {
	return errors.Wrap(w.zw.Close(), "unable to finish example stream")
}

// A Reader streams examples back.
type Reader struct {
	zr  *gzip.Reader
	dec *gob.Decoder
}

func NewReader(r io.Reader) (*Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open example stream")
	}
	return &Reader{zr: zr, dec: gob.NewDecoder(zr)}, nil
}

// Next returns the next example, io.EOF at the end of the stream.
func (r *Reader) Next() (Example, error) {
	var ex Example
	err := r.dec.Decode(&ex)
	if err == io.EOF {
		return ex, io.EOF
	}
	return ex, errors.Wrap(err, "unable to decode example")
}

func (r *Reader) Close() error { return r.zr.Close() }

// Record writes a batch of examples to path.
func Record(path string, examples []Example) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %q", path)
	}
	defer f.Close()

	w := NewWriter(f)
	for _, ex := range examples {
		if err := w.Write(ex); err != nil {
			return err
		}
	}
	return w.Close()
}

// Load reads every example from path.
func Load(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %q", path)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var examples []Example
	for {
		ex, err := r.Next()
		if err == io.EOF {
			return examples, nil
		}
		if err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
}
