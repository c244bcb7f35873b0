// Public domain.

// Package jfile reads and writes the files of the joker command: radial
// velocity observations in, sample sets out.
package jfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/soniakeys/joker/rv"
)

// ParseError reports a line of an observation file that could not be
// parsed.
type ParseError struct {
	Line int // 1 based
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jfile: line %d: %v (%q)", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadRV reads radial velocity observations.
//
// Each data line has whitespace separated fields
//
//	t rv err [instrument]
//
// Blank lines and anything following # are ignored.  If no line names an
// instrument the result has a nil Instrument column; otherwise lines
// without one get the unnamed instrument "".
//
// The result is validated with rv.Data.Validate.
func ReadRV(r io.Reader) (*rv.Data, error) {
	var d rv.Data
	var named bool
	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		text := sc.Text()
		line := text
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		f := strings.Fields(line)
		switch {
		case len(f) == 0:
			continue
		case len(f) < 3 || len(f) > 4:
			return nil, &ParseError{ln, text,
				fmt.Errorf("%d fields, want 3 or 4", len(f))}
		}
		var v [3]float64
		for i := range v {
			x, err := strconv.ParseFloat(f[i], 64)
			if err != nil {
				return nil, &ParseError{ln, text, err}
			}
			v[i] = x
		}
		d.T = append(d.T, v[0])
		d.RV = append(d.RV, v[1])
		d.Err = append(d.Err, v[2])
		inst := ""
		if len(f) == 4 {
			inst = f[3]
			named = true
		}
		d.Instrument = append(d.Instrument, inst)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("jfile: %w", err)
	}
	if !named {
		d.Instrument = nil
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ReadRVFile is ReadRV on the named file, or on stdin if fn is "-".
func ReadRVFile(fn string) (*rv.Data, error) {
	if fn == "-" {
		return ReadRV(os.Stdin)
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRV(f)
}
