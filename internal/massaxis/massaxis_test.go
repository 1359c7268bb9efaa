package massaxis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
)

// testGrid has m/z 100..1100 in steps of 1, charges 1 and 2 and no adduct
func testGrid(t *testing.T) (*config.Config, *grid.Grid) {
	t.Helper()
	cfg := config.Defaults()
	cfg.AdductMass = 0
	cfg.ChargeMin, cfg.ChargeMax = 1, 2
	mz := make([]float64, 1001)
	for i := range mz {
		mz[i] = 100 + float64(i)
	}
	g, err := grid.New(cfg, mz, make([]float64, len(mz)), []int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	return cfg, g
}

func TestBounds(t *testing.T) {
	cfg, g := testGrid(t)
	blur := make([]float64, g.Cells())
	blur[g.Index(400, 1)] = 10 // m/z 500, charge 2: mass 1000

	lo, hi := Bounds(cfg, g, blur, 1)
	if lo != 998 || hi != 1003 {
		t.Errorf("1. bounds %v:%v, want 998:1003", lo, hi)
	}
	cfg.MassBins = 5
	lo, hi = Bounds(cfg, g, blur, 1)
	if lo != 995 || hi != 1010 {
		t.Errorf("2. bounds %v:%v, want 995:1010", lo, hi)
	}
	cfg.MassBins = 1
	cfg.MassUB = 1001
	lo, hi = Bounds(cfg, g, blur, 1)
	if lo != 998 || hi != 1001 {
		t.Errorf("3. bounds %v:%v, want 998:1001", lo, hi)
	}
	cfg.MassUB = 5000000
	cfg.FixedMassAxis = true
	lo, hi = Bounds(cfg, g, blur, 1)
	if lo != cfg.MassLB || hi != cfg.MassUB {
		t.Errorf("4. fixed axis bounds %v:%v", lo, hi)
	}
	cfg.FixedMassAxis = false
	lo, hi = Bounds(cfg, g, make([]float64, g.Cells()), 1)
	if lo != cfg.MassLB || hi != cfg.MassUB {
		t.Errorf("5. empty blur bounds %v:%v", lo, hi)
	}
}

func TestIntegrateConserves(t *testing.T) {
	cfg, g := testGrid(t)
	r := rand.New(rand.NewSource(1))
	blur := make([]float64, g.Cells())
	for c := range blur {
		blur[c] = 1 + r.Float64()
	}
	lo, hi := Bounds(cfg, g, blur, 0.5)
	a, err := Project(cfg, g, blur, lo, hi)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := a.Total(), floats.Sum(blur); math.Abs(got-want) > 1e-9*want {
		t.Errorf("projected %v, want %v", got, want)
	}
	prof := a.ChargeProfile(0, a.Len()-1)
	if math.Abs(prof[0]+prof[1]-a.Total()) > 1e-9*a.Total() {
		t.Errorf("charge profile %v does not add up to %v", prof, a.Total())
	}
}

func TestIntegrateSplit(t *testing.T) {
	cfg, g := testGrid(t)
	cfg.MassBins = 0.5
	blur := make([]float64, g.Cells())
	// mass 500 lies a quarter bin above 499.875
	blur[g.Index(400, 0)] = 8
	a, err := Project(cfg, g, blur, 499.875, 501.375)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{6, 2, 0, 0}
	if diff := cmp.Diff(want, a.Intensity, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("split intensities (-want +got):\n%s", diff)
	}
}

func TestInterpolate(t *testing.T) {
	cfg, g := testGrid(t)
	cfg.Transform = config.Interpolate
	cfg.MassBins = 0.5
	blur := make([]float64, g.Cells())
	for i := range g.MZ {
		c := g.Index(i, 0)
		blur[c] = 2*g.Mass[c] + 1
	}
	a, err := Project(cfg, g, blur, 600, 610)
	if err != nil {
		t.Fatal(err)
	}
	for k, m := range a.Mass {
		if want := 2*m + 1; math.Abs(a.Grid[k*a.NumZ]-want) > 1e-6 {
			t.Errorf("interpolated %v at mass %v, want %v", a.Grid[k*a.NumZ], m, want)
		}
	}
}

func TestSmartMode(t *testing.T) {
	cfg, g := testGrid(t)
	cfg.Transform = config.Smart
	if m := columnMode(cfg, g, 0); m != config.Integrate {
		t.Errorf("charge 1 with 1 Da spacing: %v, want integrate", m)
	}
	if m := columnMode(cfg, g, 1); m != config.Interpolate {
		t.Errorf("charge 2 with 2 Da spacing: %v, want interpolate", m)
	}
}

func TestSharpen(t *testing.T) {
	n := 200
	y := make([]float64, n)
	s := 3 / 2.35482
	for i := range y {
		d := float64(i - 100)
		y[i] = 100 * math.Exp(-d*d/(2*s*s))
	}
	sharp, it := Sharpen(y, 1, 2, SharpenIterations)
	if it < 1 || it > SharpenIterations {
		t.Errorf("%d iterations", it)
	}
	if math.Abs(floats.Sum(sharp)-floats.Sum(y)) > 1e-9*floats.Sum(y) {
		t.Errorf("sharpening changed the total: %v -> %v", floats.Sum(y), floats.Sum(sharp))
	}
	if sharp[100] <= y[100] {
		t.Errorf("apex %v not higher than %v", sharp[100], y[100])
	}
	if floats.MaxIdx(sharp) != 100 {
		t.Errorf("apex moved to %d", floats.MaxIdx(sharp))
	}

	same, it := Sharpen(y, 1, 0, SharpenIterations)
	if it != 0 || !cmp.Equal(same, y) {
		t.Errorf("zero width must not change the spectrum")
	}
}

func TestAxisKeepsLastBin(t *testing.T) {
	cfg := config.Defaults()
	cfg.MassBins = 0.1
	tests := []struct {
		lo, hi float64
		want   int
	}{
		{100, 100.3, 4}, // (hi-lo)/bin is 2.99999...
		{100, 100.7, 8},
		{0.1, 0.7, 7},
		{100, 100.35, 4}, // partial bin is not added
	}
	for _, tt := range tests {
		a, err := newAxis(cfg, []int{1}, tt.lo, tt.hi)
		if err != nil {
			t.Fatalf("newAxis(%g, %g): %v", tt.lo, tt.hi, err)
		}
		if a.Len() != tt.want {
			t.Errorf("newAxis(%g, %g): %d bins, want %d", tt.lo, tt.hi, a.Len(), tt.want)
		}
		if last := a.Mass[a.Len()-1]; last > tt.hi+1e-9 {
			t.Errorf("newAxis(%g, %g): last bin %g beyond upper bound", tt.lo, tt.hi, last)
		}
	}
}
