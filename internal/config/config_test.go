package config

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"numit", func(c *Config) { c.NumIt = 0 }},
		{"startz", func(c *Config) { c.ChargeMin = 0 }},
		{"empty charge range", func(c *Config) { c.ChargeMin = 5; c.ChargeMax = 4 }},
		{"massbins", func(c *Config) { c.MassBins = 0 }},
		{"masslb", func(c *Config) { c.MassLB = -1 }},
		{"mass bounds swapped", func(c *Config) { c.MassLB = 2000; c.MassUB = 1000 }},
		{"mz range swapped", func(c *Config) { c.MzMin = 900; c.MzMax = 800 }},
		{"mzsig", func(c *Config) { c.MzSig = 0 }},
		{"psinflate", func(c *Config) { c.PeakShapeInflate = 0 }},
		{"psthresh", func(c *Config) { c.PSThresh = 0 }},
		{"psthresh infinite", func(c *Config) { c.PSThresh = math.Inf(1) }},
		{"intthresh", func(c *Config) { c.IntThresh = -1 }},
		{"intthresh NaN", func(c *Config) { c.IntThresh = math.NaN() }},
		{"baseline width", func(c *Config) { c.Baseline = true; c.BaselineWidth = 0 }},
		{"peakwindow", func(c *Config) { c.PeakWindow = 0 }},
		{"native charge limits", func(c *Config) { c.NativeZLB = 5; c.NativeZUB = 5 }},
		{"mtabsig", func(c *Config) { c.MassWindow = -1 }},
		{"test mass", func(c *Config) { c.TestMasses = []float64{1000, -5} }},
		{"score weights", func(c *Config) { c.ScoreWeights = ScoreWeights{} }},
		{"negative score weight", func(c *Config) { c.ScoreWeights.Width = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.modify(c)
			assert.ErrorIs(t, c.Validate(), ErrConfiguration)
		})
	}
}

func TestCharges(t *testing.T) {
	c := Defaults()
	c.ChargeMin = 2
	c.ChargeMax = 5
	z, err := c.Charges(0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, z)

	// Automatic range: (1001.007276467-adduct)*z <= 5000 for z <= 5
	c.ChargeMax = 0
	c.ChargeMin = 1
	c.MassUB = 5000
	z, err = c.Charges(1000 + ProtonMass)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, z)

	_, err = c.Charges(0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoad(t *testing.T) {
	yml := `
startz: 2
endz: 12
massbins: 0.5
psfun: lorentzian
smoothing: hybrid1
isotopemode: mono
poolflag: smart
nativezub: 10
testmasses: [1000, 2500.5]
mtabsig: 5
score_weights:
  width: 2
  residual: 1
  ladder: 0
`
	c, err := Load(strings.NewReader(yml))
	require.NoError(t, err)
	assert.Equal(t, 2, c.ChargeMin)
	assert.Equal(t, 12, c.ChargeMax)
	assert.Equal(t, 0.5, c.MassBins)
	assert.Equal(t, Lorentzian, c.Shape)
	assert.Equal(t, SmoothHybrid1, c.Smoothing)
	assert.Equal(t, IsotopeMono, c.Isotope)
	assert.Equal(t, Smart, c.Transform)
	assert.Equal(t, ScoreWeights{Width: 2, Residual: 1, Ladder: 0}, c.ScoreWeights)
	assert.Equal(t, 10.0, c.NativeZUB)
	assert.Equal(t, []float64{1000, 2500.5}, c.TestMasses)
	assert.Equal(t, 5.0, c.MassWindow)
	// Untouched parameters keep their defaults
	assert.Equal(t, Defaults().NumIt, c.NumIt)
	assert.Equal(t, Defaults().MzSig, c.MzSig)
}

func TestLoadErrors(t *testing.T) {
	for _, yml := range []string{
		"numitt: 10\n",      // unknown key
		"psfun: triangle\n", // unknown enum value
		"massbins: -1\n",    // fails validation
	} {
		_, err := Load(strings.NewReader(yml))
		assert.ErrorIs(t, err, ErrConfiguration, "input %q", yml)
	}
	// An empty document gives the defaults
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
}

func TestWriteLoadFile(t *testing.T) {
	c := Defaults()
	c.Speedy = true
	c.Transform = Interpolate
	c.ChargeShapeExponent = 0.5
	c.TestMasses = []float64{12345.5}

	var b bytes.Buffer
	require.NoError(t, c.Write(&b))
	path := filepath.Join(t.TempDir(), "decon.yaml")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestResolveSmoothing(t *testing.T) {
	c := Defaults()
	assert.Equal(t, SmoothMean, c.ResolveSmoothing())
	c.ZSig = -1
	assert.Equal(t, SmoothSum, c.ResolveSmoothing())
	c.Smoothing = SmoothHybrid2
	assert.Equal(t, SmoothHybrid2, c.ResolveSmoothing())
}
