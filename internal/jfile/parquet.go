// Public domain.

package jfile

import (
	"fmt"

	"github.com/soniakeys/unit"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/soniakeys/joker/internal/jsolver"
	"github.com/soniakeys/joker/rv"
)

// sampleRecord is one row of a parquet export, one accepted orbit.
// Angles are radians.
type sampleRecord struct {
	RunID  string    `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Index  int64     `parquet:"name=index, type=INT64"`
	P      float64   `parquet:"name=p, type=DOUBLE"`
	Ecc    float64   `parquet:"name=e, type=DOUBLE"`
	Phi0   float64   `parquet:"name=phi0, type=DOUBLE"`
	Omega  float64   `parquet:"name=omega, type=DOUBLE"`
	Jitter float64   `parquet:"name=jitter, type=DOUBLE"`
	K      float64   `parquet:"name=k, type=DOUBLE"`
	V0     []float64 `parquet:"name=v0, type=DOUBLE, repetitiontype=REPEATED"`
}

// WriteParquet exports the orbits of s to parquet file fn, one row per
// orbit, tagged with the run id of h.
func WriteParquet(fn string, h Header, s *jsolver.SampleSet) error {
	fw, err := local.NewLocalFileWriter(fn)
	if err != nil {
		return fmt.Errorf("jfile: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(sampleRecord), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("jfile: new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	id := h.RunID.String()
	for i := range s.Orbits {
		o := &s.Orbits[i]
		rec := sampleRecord{
			RunID:  id,
			Index:  int64(i),
			P:      o.P,
			Ecc:    o.Ecc,
			Phi0:   o.Phi0.Rad(),
			Omega:  o.Omega.Rad(),
			Jitter: o.Jitter,
			K:      o.K,
			V0:     o.V0,
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("jfile: write sample %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("jfile: finalize parquet: %w", err)
	}
	return fw.Close()
}

// ReadParquet reads orbits written by WriteParquet, with the run id they
// were tagged with.
func ReadParquet(fn string) (runID string, orbits []rv.Orbit, err error) {
	fr, err := local.NewLocalFileReader(fn)
	if err != nil {
		return "", nil, fmt.Errorf("jfile: %w", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(sampleRecord), 1)
	if err != nil {
		return "", nil, fmt.Errorf("jfile: new parquet reader: %w", err)
	}
	defer pr.ReadStop()
	recs := make([]sampleRecord, pr.GetNumRows())
	if len(recs) > 0 {
		if err := pr.Read(&recs); err != nil {
			return "", nil, fmt.Errorf("jfile: read parquet: %w", err)
		}
		runID = recs[0].RunID
	}
	orbits = make([]rv.Orbit, len(recs))
	for i, r := range recs {
		orbits[i] = rv.Orbit{
			P:      r.P,
			Ecc:    r.Ecc,
			Phi0:   unit.Angle(r.Phi0),
			Omega:  unit.Angle(r.Omega),
			Jitter: r.Jitter,
			K:      r.K,
			V0:     append([]float64(nil), r.V0...),
		}
	}
	return runID, orbits, nil
}
