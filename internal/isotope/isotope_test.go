package isotope

import (
	"math"
	"sync"
	"testing"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"

	"gonum.org/v1/gonum/floats"
)

// fixedService returns the same distribution for every mass
type fixedService struct {
	d Distribution
}

func (f fixedService) Distribution(float64) Distribution {
	return f.d
}

func newAveragine(t *testing.T) *Averagine {
	a, err := NewAveragine(DefaultTable())
	if err != nil {
		t.Fatalf("NewAveragine: %v", err)
	}
	return a
}

func TestAveragineDistribution(t *testing.T) {
	a := newAveragine(t)
	tests := []struct {
		mass           float64
		minApex, maxAp int // offset range of the most abundant peak
	}{
		{1000, 0, 0},
		{2000, 1, 1},
		{10000, 4, 7},
		{50000, 25, 35},
	}
	for _, tt := range tests {
		d := a.Distribution(tt.mass)
		if d.Len() == 0 {
			t.Fatalf("mass %f: empty distribution", tt.mass)
		}
		if s := floats.Sum(d.Abundances); math.Abs(s-1) > 1e-12 {
			t.Errorf("mass %f: abundances sum to %f", tt.mass, s)
		}
		for k := 1; k < d.Len(); k++ {
			if math.Abs(d.Offsets[k]-d.Offsets[k-1]-Spacing) > 1e-9 {
				t.Errorf("mass %f: offsets %f and %f not %f apart",
					tt.mass, d.Offsets[k-1], d.Offsets[k], Spacing)
			}
		}
		apex := int(math.Round(d.Offsets[floats.MaxIdx(d.Abundances)] / Spacing))
		if apex < tt.minApex || apex > tt.maxAp {
			t.Errorf("mass %f: most abundant isotope at +%d, want %d..%d",
				tt.mass, apex, tt.minApex, tt.maxAp)
		}
	}
	// Tiny masses give a single peak
	if d := a.Distribution(1); d.Len() != 1 || d.Offsets[0] != 0 {
		t.Errorf("mass 1: got %+v", d)
	}
}

func TestAveragineMissingElement(t *testing.T) {
	table := DefaultTable()
	delete(table, "S")
	if _, err := NewAveragine(table); err == nil {
		t.Errorf("expected error for table without sulphur")
	}
}

func TestAveragineConcurrent(t *testing.T) {
	a := newAveragine(t)
	want := a.compute(5000)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				d := a.Distribution(5000)
				if d.Len() != want.Len() {
					t.Errorf("concurrent lookup returned %d peaks, want %d", d.Len(), want.Len())
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMonoToAverage(t *testing.T) {
	a := newAveragine(t)
	m := 10000.0
	avg := MonoToAverage(a, m)
	// Averagine at 10 kDa: average mass about 6 Da above monoisotopic
	if avg-m < 4 || avg-m > 8 {
		t.Errorf("MonoToAverage(%f) = %f", m, avg)
	}
}

func testGrid(t *testing.T) *grid.Grid {
	cfg := config.Defaults()
	cfg.MassLB = 10
	mz := make([]float64, 40)
	for i := range mz {
		mz[i] = 500 + 0.25*float64(i)
	}
	g, err := grid.New(cfg, mz, make([]float64, len(mz)), []int{1})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	return g
}

func TestBuildMono(t *testing.T) {
	g := testGrid(t)
	svc := fixedService{Distribution{
		Offsets:    []float64{0, Spacing, 2 * Spacing},
		Abundances: []float64{0.5, 0.3, 0.2},
	}}
	e := Build(g, svc, config.IsotopeMono)
	if e.Length != 3 {
		t.Fatalf("Length = %d, want 3", e.Length)
	}
	pos, val := e.Cell(g.Index(0, 0))
	// 1.0026/0.25 rounds to 4 index steps
	wantPos := []int{0, 4, 8}
	for k := range wantPos {
		if pos[k] != wantPos[k] {
			t.Errorf("pos[%d] = %d, want %d", k, pos[k], wantPos[k])
		}
	}
	if math.Abs(floats.Sum(val)-1) > 1e-12 {
		t.Errorf("values sum to %f", floats.Sum(val))
	}
	// Near the end of the axis the heavier isotopes fall off and the
	// rest is renormalized
	last := g.Len() - 2
	pos, val = e.Cell(g.Index(last, 0))
	if pos[0] != last || pos[1] != -1 || val[0] != 1 {
		t.Errorf("cell at end of axis: pos %v val %v", pos, val)
	}
}

func TestBuildAverage(t *testing.T) {
	g := testGrid(t)
	svc := fixedService{Distribution{
		Offsets:    []float64{0, Spacing, 2 * Spacing},
		Abundances: []float64{0.25, 0.5, 0.25},
	}}
	e := Build(g, svc, config.IsotopeAverage)
	c := g.Index(20, 0)
	pos, val := e.Cell(c)
	// Symmetric cluster centred on the cell
	if pos[0] != 16 || pos[1] != 20 || pos[2] != 24 {
		t.Errorf("pos = %v, want [16 20 24]", pos)
	}
	if val[1] != 0.5 {
		t.Errorf("val = %v", val)
	}
}

func TestBuildDegenerate(t *testing.T) {
	g := testGrid(t)
	e := Build(g, fixedService{}, config.IsotopeMono)
	if e.Length != 1 {
		t.Fatalf("Length = %d, want 1", e.Length)
	}
	for i := 0; i < g.Len(); i++ {
		pos, val := e.Cell(g.Index(i, 0))
		if pos[0] != i || val[0] != 1 {
			t.Fatalf("cell %d: pos %v val %v", i, pos, val)
		}
	}
}

func TestIdentity(t *testing.T) {
	g := testGrid(t)
	e := Build(g, nil, config.IsotopeOff)
	if e.Length != 1 {
		t.Fatalf("Length = %d", e.Length)
	}
	for i := 0; i < g.Len(); i++ {
		pos, val := e.Cell(g.Index(i, 0))
		if pos[0] != i || val[0] != 1 {
			t.Fatalf("cell %d: pos %v val %v", i, pos, val)
		}
	}
}
