package isotope

// Isotope is a single isotope of an element
type Isotope struct {
	Mass      float64 // exact mass (Da)
	Abundance float64 // natural abundance, fraction
}

// Table maps element symbols to their isotopes, lightest first
type Table map[string][]Isotope

// DefaultTable returns the natural isotope abundances of the elements
// that make up the averagine model (IUPAC values)
func DefaultTable() Table {
	return Table{
		"H": {
			{1.00782503207, 0.999885},
			{2.0141017778, 0.000115},
		},
		"C": {
			{12.0, 0.9893},
			{13.0033548378, 0.0107},
		},
		"N": {
			{14.0030740048, 0.99636},
			{15.0001088982, 0.00364},
		},
		"O": {
			{15.99491461956, 0.99757},
			{16.99913170, 0.00038},
			{17.9991610, 0.00205},
		},
		"S": {
			{31.97207100, 0.9499},
			{32.97145876, 0.0075},
			{33.96786690, 0.0425},
			{35.96708076, 0.0001},
		},
	}
}

// Averagine: elemental composition of an average amino acid residue
// (Senko et al., 1995)
const averagineMass = 111.1254

var averagine = []struct {
	symbol string
	count  float64
}{
	{"C", 4.9384},
	{"H", 7.7583},
	{"N", 1.3577},
	{"O", 1.4773},
	{"S", 0.0417},
}
