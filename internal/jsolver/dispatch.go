// Public domain.

package jsolver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/soniakeys/joker/internal/jprior"
)

// Chunk is one unit of work: a contiguous block of candidates.
//
// If Candidates is nil the worker draws Size candidates from the prior
// using a random stream seeded with Seed.  Otherwise Candidates are
// evaluated as given.
type Chunk struct {
	Index      int
	Start      int // global index of the first candidate
	Size       int
	Seed       uint64
	Candidates []jprior.Candidate
}

// ChunkResult holds the evaluations of a chunk, in candidate order.
type ChunkResult struct {
	Index int
	Evals []Evaluation
}

// ChunkFunc evaluates a chunk.
type ChunkFunc func(Chunk) (ChunkResult, error)

// Pool maps a function over chunks, returning one result per chunk.
//
// Results may be in any order.  An implementation should stop
// dispatching new chunks once ctx is done.  The sampler only calls Map;
// starting and stopping whatever is behind a Pool is the caller's job.
type Pool interface {
	Map(ctx context.Context, fn ChunkFunc, chunks []Chunk) ([]ChunkResult, error)
}

// PoolError reports a chunk that failed.  A run with a failed chunk cannot
// be trusted to normalize likelihoods over every candidate, so it is fatal.
type PoolError struct {
	Chunk int // -1 if not attributable to a chunk
	Err   error
}

func (e *PoolError) Error() string {
	if e.Chunk < 0 {
		return "jsolver: pool: " + e.Err.Error()
	}
	return fmt.Sprintf("jsolver: chunk %d: %v", e.Chunk, e.Err)
}

func (e *PoolError) Unwrap() error { return e.Err }

// call runs fn on c, turning an error or panic into a *PoolError.
func call(fn ChunkFunc, c Chunk) (r ChunkResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PoolError{Chunk: c.Index, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if r, err = fn(c); err != nil {
		err = &PoolError{Chunk: c.Index, Err: err}
	}
	return
}

// Serial is a Pool that runs chunks one after another on the calling
// goroutine.
type Serial struct{}

func (Serial) Map(ctx context.Context, fn ChunkFunc, chunks []Chunk) ([]ChunkResult, error) {
	rs := make([]ChunkResult, 0, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := call(fn, c)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// Goroutines is a Pool running chunks on up to Workers goroutines.
// Workers < 1 means runtime.GOMAXPROCS(0).
type Goroutines struct {
	Workers int
}

type outcome struct {
	r   ChunkResult
	err error
}

type chunkTicket struct {
	c   Chunk
	rch chan outcome
}

func (g Goroutines) Map(ctx context.Context, fn ChunkFunc, chunks []Chunk) ([]ChunkResult, error) {
	maxWorkers := g.Workers
	if maxWorkers < 1 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// prCh holds result channels in submission order.  it is big enough
	// that the dispatcher never waits on it.
	prCh := make(chan chan outcome, len(chunks))
	workCh := make(chan chunkTicket)

	// dispatcher.  for each chunk, attach a return channel that works like
	// a ticket for picking up the result, wait for an available worker,
	// hand over the chunk and queue the ticket.
	go func() {
		defer close(prCh)
		defer close(workCh)
		for _, c := range chunks {
			if ctx.Err() != nil {
				return
			}
			rch := make(chan outcome, 1)
			select {
			case workCh <- chunkTicket{c, rch}:
			case <-ctx.Done():
				return
			}
			prCh <- rch
		}
	}()

	for n := 0; n < maxWorkers && n < len(chunks); n++ {
		go func() {
			for t := range workCh {
				r, err := call(fn, t.c)
				t.rch <- outcome{r, err} // buffered.  drop off and continue
			}
		}()
	}

	rs := make([]ChunkResult, 0, len(chunks))
	for rch := range prCh {
		o := <-rch
		if o.err != nil {
			return nil, o.err
		}
		rs = append(rs, o.r)
	}
	if len(rs) < len(chunks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Partition splits n candidates into chunks of at most size, each with its
// own seed derived from seed and the chunk index.
func Partition(n, size int, seed uint64) []Chunk {
	if size < 1 {
		size = n
	}
	var cs []Chunk
	for start := 0; start < n; start += size {
		sz := size
		if start+sz > n {
			sz = n - start
		}
		cs = append(cs, Chunk{
			Index: len(cs),
			Start: start,
			Size:  sz,
			Seed:  chunkSeed(seed, len(cs)),
		})
	}
	return cs
}

// Dispatch runs chunks on pool, or serially if pool is nil, and returns
// all evaluations concatenated in chunk order.
//
// Any pool failure other than cancellation of ctx comes back as a
// *PoolError.  Partial results are discarded.
func Dispatch(ctx context.Context, pool Pool, fn ChunkFunc, chunks []Chunk) ([]Evaluation, error) {
	if pool == nil {
		pool = Serial{}
	}
	rs, err := pool.Map(ctx, fn, chunks)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		var pe *PoolError
		if !errors.As(err, &pe) {
			err = &PoolError{Chunk: -1, Err: err}
		}
		return nil, err
	}
	if len(rs) != len(chunks) {
		return nil, &PoolError{Chunk: -1, Err: fmt.Errorf(
			"%d results for %d chunks", len(rs), len(chunks))}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Index < rs[j].Index })
	total := 0
	for i, r := range rs {
		c := chunks[i]
		if r.Index != c.Index || len(r.Evals) != c.Size {
			return nil, &PoolError{Chunk: c.Index, Err: fmt.Errorf(
				"result %d has %d evaluations, want chunk %d with %d",
				r.Index, len(r.Evals), c.Index, c.Size)}
		}
		total += len(r.Evals)
	}
	evals := make([]Evaluation, 0, total)
	for _, r := range rs {
		evals = append(evals, r.Evals...)
	}
	return evals, nil
}

// chunkSeed mixes a chunk index into a run seed, splitmix64 style, so
// chunk streams do not overlap in any practical sense.
func chunkSeed(seed uint64, i int) uint64 {
	return mix(seed + uint64(i+1)*0x9e3779b97f4a7c15)
}

// acceptSeed is the seed of the stream used for acceptance decisions and
// linear parameter draws.  It is distinct from every chunk stream.
func acceptSeed(seed uint64) uint64 {
	return mix(seed ^ 0xd1b54a32d192ed03)
}

func mix(z uint64) uint64 {
	z = (z ^ z>>30) * 0xbf58476d1ce4e5b9
	z = (z ^ z>>27) * 0x94d049bb133111eb
	return z ^ z>>31
}
