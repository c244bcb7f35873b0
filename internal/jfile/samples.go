// Public domain.

package jfile

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/soniakeys/joker/internal/jsolver"
	"github.com/soniakeys/joker/rv"
)

// SampleExt is the conventional extension of a sample file.
const SampleExt = ".samples"

// Version of the sample file layout.
const Version = 1

// Header identifies the run that produced a sample file.
type Header struct {
	Version int
	RunID   uuid.UUID
	Created time.Time
	Seed    uint64
	Data    string // observation file name
}

// NewHeader returns a header for a new run, with a fresh random run id.
func NewHeader(seed uint64, data string) Header {
	return Header{
		Version: Version,
		RunID:   uuid.New(),
		Created: time.Now().UTC(),
		Seed:    seed,
		Data:    data,
	}
}

// ErrVersion is returned when reading a sample file of another layout.
var ErrVersion = errors.New("jfile: unsupported sample file version")

// WriteSamples writes h and s as a gob stream to file fn.
//
// The stream is the header, the instrument names, the diagnostics, and
// the orbits, encoded one after another.
func WriteSamples(fn string, h Header, s *jsolver.SampleSet) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()
	enc := gob.NewEncoder(f)
	for _, v := range []interface{}{h, s.Instruments, s.Diag, s.Orbits} {
		if err = enc.Encode(v); err != nil {
			return fmt.Errorf("jfile: %s: %w", fn, err)
		}
	}
	return nil
}

// ReadSamples reads a file written by WriteSamples.
func ReadSamples(fn string) (h Header, s *jsolver.SampleSet, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	if err = dec.Decode(&h); err != nil {
		return h, nil, fmt.Errorf("jfile: %s: %w", fn, err)
	}
	if h.Version != Version {
		return h, nil, fmt.Errorf("%w %d", ErrVersion, h.Version)
	}
	s = new(jsolver.SampleSet)
	if err = dec.Decode(&s.Instruments); err == nil {
		if err = dec.Decode(&s.Diag); err == nil {
			err = dec.Decode(&s.Orbits)
		}
	}
	if err != nil {
		return h, nil, fmt.Errorf("jfile: %s: %w", fn, err)
	}
	if s.Orbits == nil {
		s.Orbits = []rv.Orbit{}
	}
	return h, s, nil
}
