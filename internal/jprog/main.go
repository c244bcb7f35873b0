// Public domain.

// Package jprog is the joker command.
package jprog

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/soniakeys/exit"
	sexa "github.com/soniakeys/sexagesimal"

	"github.com/soniakeys/joker/internal/jconf"
	"github.com/soniakeys/joker/internal/jfile"
	"github.com/soniakeys/joker/internal/jlog"
	"github.com/soniakeys/joker/internal/jsolver"
	"github.com/soniakeys/joker/rv"
)

const versionString = "joker version 0.1 Go source."
const copyrightString = "Public domain."

// Main runs the command with os.Args and terminates the process on error.
func Main() {
	defer exit.Handler()

	// a missing .env is normal
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		exit.Log(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := Run(ctx, os.Args[1:], os.Stdout, jlog.New()); err != nil {
		if err == flag.ErrHelp {
			return
		}
		exit.Log(err)
	}
}

type commandLine struct {
	dc      string // config file
	fnRV    string // observations
	n       int    // -n, 0 for config value
	seed    string // -s, "" for config value
	w       int    // -w, -1 for config value
	out     string // -o, gob sample file
	parquet string // -p
	curves  string // -curves
	nCurves int
	v       bool
}

func parseCommandLine(args []string, stderr io.Writer) (*commandLine, error) {
	var cl commandLine
	fs := flag.NewFlagSet("joker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cl.dc, "c", "", "")
	fs.IntVar(&cl.n, "n", 0, "")
	fs.StringVar(&cl.seed, "s", "", "")
	fs.IntVar(&cl.w, "w", -1, "")
	fs.StringVar(&cl.out, "o", "", "")
	fs.StringVar(&cl.parquet, "p", "", "")
	fs.StringVar(&cl.curves, "curves", "", "")
	fs.IntVar(&cl.nCurves, "ncurves", 64, "")
	fs.BoolVar(&cl.v, "v", false, "")
	fs.Usage = func() {
		io.WriteString(stderr, `
Usage: joker [options] <rvfile>    sample orbits for observations in file
       joker [options] -           sample orbits for observations from stdin
       joker -h                    display this help
       joker -v                    display version and copyright

Options:
       -c <config-file>     YAML configuration
       -n <samples>         number of prior samples
       -s <seed>            random seed
       -w <workers>         worker goroutines, 0 for one per CPU
       -o <sample-file>     gob sample file, overrides output.samples
       -p <parquet-file>    parquet export, overrides output.parquet
       -curves <file>       model curves of accepted samples, for plotting
       -ncurves <n>         number of curves, default 64

Observation file lines are "t rv err [instrument]", # starts a comment.
`)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch {
	case cl.v:
		return &cl, nil
	case fs.NArg() != 1:
		fs.Usage()
		return nil, fmt.Errorf("joker: one observation file required")
	}
	cl.fnRV = fs.Arg(0)
	return &cl, nil
}

// Run is the command with its arguments.  The summary goes to stdout; log is
// configured from the configuration file and used for everything else.
func Run(ctx context.Context, args []string, stdout io.Writer, log *logrus.Logger) error {
	cl, err := parseCommandLine(args, os.Stderr)
	if err != nil {
		return err
	}
	if cl.v {
		fmt.Fprintln(stdout, versionString)
		fmt.Fprintln(stdout, copyrightString)
		return nil
	}
	cfg, err := readConfig(cl)
	if err != nil {
		return err
	}
	lc := cfg.Logging
	if err := jlog.Configure(log, lc.Level, lc.Format, lc.Output, lc.MaxAge); err != nil {
		return err
	}

	d, err := jfile.ReadRVFile(cl.fnRV)
	if err != nil {
		return err
	}
	sc, err := cfg.SolverConfig()
	if err != nil {
		return err
	}
	h := jfile.NewHeader(sc.Seed, cl.fnRV)
	entry := log.WithField("run_id", h.RunID.String())
	s, err := jsolver.New(sc, entry)
	if err != nil {
		return err
	}
	workers := cfg.Sampler.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	entry.WithFields(logrus.Fields{
		"component":    "joker",
		"observations": d.Len(),
		"samples":      sc.NumSamples,
		"seed":         sc.Seed,
		"workers":      workers,
	}).Info("starting run")

	set, err := s.Run(ctx, d, jsolver.Goroutines{Workers: workers})
	if err != nil {
		return err
	}
	printSummary(stdout, h, set)

	if fn := cfg.Output.Samples; fn > "" {
		if err := jfile.WriteSamples(fn, h, set); err != nil {
			return err
		}
		entry.WithField("file", fn).Info("samples written")
	}
	if fn := cfg.Output.Parquet; fn > "" {
		if err := jfile.WriteParquet(fn, h, set); err != nil {
			return err
		}
		entry.WithField("file", fn).Info("parquet written")
	}
	if cl.curves > "" {
		if err := writeCurves(cl.curves, d, set, cl.nCurves); err != nil {
			return err
		}
		entry.WithField("file", cl.curves).Info("curves written")
	}
	return nil
}

// readConfig loads the configuration file, then applies command line
// overrides.
func readConfig(cl *commandLine) (*jconf.Config, error) {
	cfg, err := jconf.Load(cl.dc)
	if err != nil {
		return nil, err
	}
	if cl.n > 0 {
		cfg.Sampler.NumSamples = cl.n
	}
	if cl.seed > "" {
		if _, err := fmt.Sscan(cl.seed, &cfg.Sampler.Seed); err != nil {
			return nil, fmt.Errorf("joker: seed %q: %w", cl.seed, err)
		}
	}
	if cl.w >= 0 {
		cfg.Sampler.Workers = cl.w
	}
	if cl.out > "" {
		cfg.Output.Samples = cl.out
	}
	if cl.parquet > "" {
		cfg.Output.Parquet = cl.parquet
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printSummary(w io.Writer, h jfile.Header, set *jsolver.SampleSet) {
	dg := &set.Diag
	fmt.Fprintln(w, versionString)
	fmt.Fprintf(w, "Run %s, seed %d\n", h.RunID, h.Seed)
	fmt.Fprintf(w, "%d candidates, %d invalid (%d non-convergent, %d singular, %d non-finite)\n",
		dg.Evaluated, dg.Invalid(), dg.NonConvergence, dg.Singular, dg.NonFinite)
	if dg.NoneAccepted {
		fmt.Fprintln(w, "No samples accepted.  Try more prior samples.")
		return
	}
	fmt.Fprintf(w, "%d samples accepted, max ln L %.3f\n", dg.Accepted, dg.MaxLnL)

	// fold sign of K into ω before averaging, or the mean of a unimodal
	// posterior lands between the two equivalent modes.
	folded := *set
	folded.Orbits = make([]rv.Orbit, len(set.Orbits))
	for i := range set.Orbits {
		folded.Orbits[i] = set.Orbits[i].Canonical()
	}
	m := folded.Mean()
	sd := folded.StdDev()
	fmt.Fprintln(w, "Mean orbit:")
	fmt.Fprintf(w, "  P      %12.4f  ± %.4f\n", m.P, sd[0])
	fmt.Fprintf(w, "  e      %12.4f  ± %.4f\n", m.Ecc, sd[1])
	fmt.Fprintf(w, "  phi0   %12s\n", fmt.Sprintf("%.0d", sexa.FmtAngle(m.Phi0)))
	fmt.Fprintf(w, "  omega  %12s\n", fmt.Sprintf("%.0d", sexa.FmtAngle(m.Omega)))
	fmt.Fprintf(w, "  jitter %12.4f  ± %.4f\n", m.Jitter, sd[4])
	fmt.Fprintf(w, "  K      %12.4f  ± %.4f\n", m.K, sd[5])
	for i, v0 := range m.V0 {
		name := set.Instruments[i]
		if name == "" {
			name = "v0"
		}
		fmt.Fprintf(w, "  %-6s %12.4f  ± %.4f\n", name, v0, sd[6+i])
	}
}

// writeCurves writes model velocity curves of up to n accepted samples,
// over 512 epochs spanning the data plus a tenth either side.  The first
// line is the epochs, each following line one curve.
func writeCurves(fn string, d *rv.Data, set *jsolver.SampleSet, n int) (err error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, t := range d.T {
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}
	pad := (hi - lo) / 10
	if pad == 0 {
		pad = 1
	}
	lo, hi = lo-pad, hi+pad
	const nt = 512
	tGrid := make([]float64, nt)
	for i := range tGrid {
		tGrid[i] = lo + (hi-lo)*float64(i)/(nt-1)
	}
	rows, err := set.Curves(tGrid, n)
	if err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()
	bw := bufio.NewWriter(f)
	for _, r := range append([][]float64{tGrid}, rows...) {
		for i, x := range r {
			if i > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%.6g", x)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
