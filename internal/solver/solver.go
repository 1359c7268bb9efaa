// Package solver implements the iterative deconvolution of the
// (m/z x charge) grid: Richardson-Lucy updates through the isotope
// envelopes and the peak shape, regularized by the smoothing priors.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
	"github.com/524D/mzdecon/internal/isotope"
	"github.com/524D/mzdecon/internal/kernel"
	"github.com/524D/mzdecon/internal/smooth"
)

// ErrNumericInstability means a NaN or infinite value appeared during
// the iteration
var ErrNumericInstability = errors.New("solver: numeric instability")

// Cells below this fraction of the largest amplitude are pruned after
// iterating
const pruneCutoff = 1e-6

// Number of consecutive rounds below the convergence tolerance before
// iteration stops early
const calmRounds = 2

// State is the phase of a Solver
type State int

const (
	Init State = iota
	Baseline
	Iterate
	Prune
	Reconvolve
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Baseline:
		return "baseline"
	case Iterate:
		return "iterate"
	case Prune:
		return "prune"
	case Reconvolve:
		return "reconvolve"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Iteration describes one Richardson-Lucy round. The slices belong to
// the solver and are only valid until the next call of Step.
type Iteration struct {
	Index    int
	Blur     []float64 // amplitude grid after the round
	Sim      []float64 // simulated spectrum before the update
	Baseline []float64
	Noise    []float64 // data minus simulated spectrum
	NoiseStd float64
	Residual float64 // sum of squared noise
	Change   float64 // squared change of blur relative to its squared norm
}

// Result is the final state of a finished solver
type Result struct {
	Blur       []float64 // pruned amplitude grid
	NewBlur    []float64 // amplitude grid after reconvolution
	Fit        []float64 // simulated spectrum of Blur, including baseline
	Baseline   []float64
	Active     []bool
	BlurMax    float64
	Iterations int
	Converged  bool
	Error      float64 // sum of squared differences between data and Fit
	RSquared   float64
}

// Solver holds the buffers of one deconvolution. It is not safe for
// concurrent use.
type Solver struct {
	cfg   *config.Config
	g     *grid.Grid
	env   *isotope.Envelopes
	shape kernel.PeakShape
	op    *smooth.Operator

	// Trace, when set, is called after every iteration
	Trace func(Iteration)

	state  State
	active []bool
	data   []float64 // working data
	blur   []float64
	prev   []float64
	tmp    []float64

	sim      []float64
	baseline []float64
	noise    []float64
	delta    []float64
	conv     []float64
	ratio    []float64
	back     []float64

	it        int
	calm      int
	converged bool
	result    *Result
}

// New prepares a solver for grid g with isotope envelopes env. It builds
// the working peak shape and the smoothing operator, kills cells whose
// isotope peaks fall on data below IntThresh, and seeds the amplitudes.
// grid.ErrEmptySearchSpace is returned when no cell has a positive seed.
func New(cfg *config.Config, g *grid.Grid, env *isotope.Envelopes) (*Solver, error) {
	shape, err := kernel.New(cfg, g.MZ, g.Charges, cfg.PeakShapeInflate)
	if err != nil {
		return nil, err
	}
	n, cells := g.Len(), g.Cells()
	s := &Solver{
		cfg:      cfg,
		g:        g,
		env:      env,
		shape:    shape,
		state:    Init,
		data:     make([]float64, n),
		blur:     make([]float64, cells),
		prev:     make([]float64, cells),
		tmp:      make([]float64, cells),
		sim:      make([]float64, n),
		baseline: make([]float64, n),
		noise:    make([]float64, n),
		delta:    make([]float64, n),
		conv:     make([]float64, n),
		ratio:    make([]float64, n),
		back:     make([]float64, n),
	}
	copy(s.data, g.Data)
	s.active = s.killCells()
	seeded := 0
	for c, ok := range s.active {
		if !ok {
			continue
		}
		if cfg.Isotope != config.IsotopeOff {
			s.blur[c] = 1
		} else {
			s.blur[c] = g.Data[c/g.NumZ] / float64(g.NumZ+2)
		}
		if s.blur[c] > 0 {
			seeded++
		}
	}
	if seeded == 0 || floats.Max(g.Data) <= 0 {
		return nil, fmt.Errorf("%w: no cell with signal above the intensity threshold %g",
			grid.ErrEmptySearchSpace, cfg.IntThresh)
	}
	s.op = smooth.Build(cfg, g, s.active, kernel.NewCloseness(cfg.ZSig, cfg.MSig, cfg.MassStep))
	s.state = Baseline
	return s, nil
}

// killCells returns the valid cells that survive the intensity threshold.
// A cell is killed when one of its isotope peaks with more than half the
// intensity of the cluster's largest peak falls on data below IntThresh.
func (s *Solver) killCells() []bool {
	active := make([]bool, s.g.Cells())
	copy(active, s.g.Valid)
	if s.cfg.IntThresh <= 0 {
		return active
	}
	for c, ok := range active {
		if !ok {
			continue
		}
		pos, val := s.env.Cell(c)
		top := floats.Max(val)
		for k, p := range pos {
			if p >= 0 && val[k] > 0.5*top && s.g.Data[p] < s.cfg.IntThresh {
				active[c] = false
				break
			}
		}
	}
	return active
}

// State returns the current phase
func (s *Solver) State() State {
	return s.state
}

// Active returns the mask of cells that take part in the deconvolution
func (s *Solver) Active() []bool {
	return s.active
}

// Step executes the current phase and moves to the next one. An Iteration
// record is returned for every Richardson-Lucy round, nil for the other
// phases.
func (s *Solver) Step() (*Iteration, error) {
	switch s.state {
	case Baseline:
		s.subtractBaseline()
		s.state = Iterate
	case Iterate:
		it, err := s.iterate()
		if err != nil {
			return nil, err
		}
		if s.Trace != nil {
			s.Trace(*it)
		}
		if s.it >= s.cfg.NumIt || s.converged {
			s.state = Prune
		}
		return it, nil
	case Prune:
		s.prune()
		s.state = Reconvolve
	case Reconvolve:
		if err := s.reconvolve(); err != nil {
			return nil, err
		}
		s.state = Done
	case Done:
	default:
		return nil, fmt.Errorf("solver: unexpected state %v", s.state)
	}
	return nil, nil
}

// Run steps the solver until it is done and returns the result
func (s *Solver) Run() (*Result, error) {
	for s.state != Done {
		if _, err := s.Step(); err != nil {
			return nil, err
		}
	}
	return s.result, nil
}

// Result returns the result of a finished solver, nil before that
func (s *Solver) Result() *Result {
	return s.result
}

func (s *Solver) prune() {
	blurMax := floats.Max(s.blur)
	for c, v := range s.blur {
		if v < blurMax*pruneCutoff {
			s.blur[c] = 0
		}
	}
}

// reconvolve computes NewBlur and the final fit
func (s *Solver) reconvolve() error {
	r := &Result{
		Blur:       s.blur,
		Baseline:   s.baseline,
		Active:     s.active,
		BlurMax:    floats.Max(s.blur),
		Iterations: s.it,
		Converged:  s.converged,
	}
	final := s.shape
	if s.cfg.PeakShapeInflate != 1 {
		var err error
		final, err = kernel.New(s.cfg, s.g.MZ, s.g.Charges, 1)
		if err != nil {
			return err
		}
		r.NewBlur = make([]float64, len(s.blur))
		n, numz := s.g.Len(), s.g.NumZ
		col := make([]float64, n)
		out := make([]float64, n)
		for j := range numz {
			for i := range n {
				col[i] = s.blur[i*numz+j]
			}
			final.Convolve(out, col, j)
			for i := range n {
				r.NewBlur[i*numz+j] = out[i]
			}
		}
	} else {
		r.NewBlur = s.blur
	}

	fit := make([]float64, s.g.Len())
	s.simulate(fit, s.blur, final)
	floats.Add(fit, s.baseline)
	r.Fit = fit
	mean := stat.Mean(s.g.Data, nil)
	var tot float64
	for i, d := range s.g.Data {
		r.Error += (d - fit[i]) * (d - fit[i])
		tot += (d - mean) * (d - mean)
	}
	if tot > 0 {
		r.RSquared = 1 - r.Error/tot
	}
	if math.IsNaN(r.Error) || math.IsInf(r.Error, 0) {
		return fmt.Errorf("%w: non-finite fit error after %d iterations", ErrNumericInstability, s.it)
	}
	s.result = r
	return nil
}
