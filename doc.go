/*
Command joker samples the posterior distribution of two-body orbits given
sparse radial velocity measurements.

Contents

  Program overview
  Command line usage
  Configuration
  File formats
  Algorithm outline


Program overview

Input is a file of radial velocity measurements of a single star, each an
epoch, a velocity, and the velocity uncertainty.  Output is a set of orbits
sampled from the posterior, with a summary printed to the terminal.

Sparse data leave the period badly constrained.  The likelihood surface in
period is multimodal, with aliases that a least squares fit will happily
settle in.  Rather than fitting, joker draws a large number of orbits from a
prior and keeps each with probability proportional to its likelihood.  With
few data most draws are kept and the samples show all the orbits the data
allow.  With many data few are kept, and the run needs more prior samples.

Sample run:

	$ joker -n 262144 -s 1 hd1234.rv
	joker version 0.1 Go source.
	Run 5b1c2a6e-8a0d-4a69-9d43-6f6c5b38f1e2, seed 1
	262144 candidates, 0 invalid (0 non-convergent, 0 singular, 0 non-finite)
	17 samples accepted, max ln L -121.944
	Mean orbit:
	  P           61.2390  ± 0.3419
	  e            0.0711  ± 0.0418
	  phi0          52°13′08″
	  omega        208°46′51″
	  jitter       0.0000  ± 0.0000
	  K          148.8175  ± 5.9248
	  v0          24.6554  ± 4.3710

The mean orbit is a convenience.  When the samples fall in more than one
period mode the mean lies between them and means nothing; look at the
samples.


Command line usage

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

Options override the configuration file.  A .env file in the working
directory, if present, is loaded into the environment first.


Configuration

The configuration file is YAML with sections prior, sampler, logging and
output.  Everything has a default so the file is optional.  See package
internal/jconf for the full layout and defaults.

Priors are given by distribution name and parameters,

	prior:
	  period:       {dist: log-uniform, min: 16, max: 8192}
	  eccentricity: {dist: beta, alpha: 0.867, beta: 3.03}
	  jitter:       {dist: log-uniform, min: 0.1, max: 20}

Distributions are log-uniform, uniform, beta, fixed, and grid.  Angles are
in radians.  Period and jitter are in the units of the data; joker does
no unit conversion.

The same seed with the same data and configuration gives the same samples,
regardless of the number of workers.  JOKER_SEED and JOKER_WORKERS in the
environment override the configured seed and workers.  LOG_LEVEL
overrides the configured log level.


File formats

Observations are lines of whitespace separated fields,

	t rv err [instrument]

A # starts a comment.  If any line names an instrument, each instrument
gets its own systemic velocity.

The sample file is a gob stream: a header with the run id, seed, and data
file name, then instrument names, run diagnostics, and the orbits.  The
parquet export has one row per orbit with columns run_id, index, p, e,
phi0, omega, jitter, k, and v0, v0 repeated once per instrument.

The curves file has the plotting epochs on the first line and one line of
model velocities per sample after that.


Algorithm outline

1.  Candidates for the nonlinear parameters, period, eccentricity, phase,
argument of periastron, and jitter, are drawn from the prior.  Draws are
made in chunks, each chunk with its own random stream derived from the seed.

2.  For each candidate, Kepler's equation is solved at each epoch and a
design matrix is built.  Its columns are the velocity curve for unit
semi-amplitude and one indicator column per instrument.

3.  Velocity is linear in the semi-amplitude and systemic velocities.  With
a broad Gaussian prior on these the likelihood is marginalized over them in
closed form, giving the marginal likelihood of the candidate and a Gaussian
posterior for its linear parameters.  Candidates for which Kepler's equation
does not converge or the normal equations are singular get zero likelihood.

4.  Once all chunks are in, each candidate is kept if its likelihood
relative to the largest of the whole run exceeds a uniform random number.

5.  Each kept candidate is completed with one draw of its linear parameters
from their posterior.

-------------
Public domain.
*/
package main
