package quality

// unitArena is the scratch memory for scoring one unit. Each worker owns one
// arena and reuses it for every unit it scores.
type unitArena struct {
	rows     []float64 // 2n×d, spike rows then noise rows
	median   []float64 // d
	template []float64 // d
	centred  []float64 // d
	column   []float64 // n
	features []float64 // 2n×k
}

func grow(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// reset sizes the arena for n clips of d values and k features.
func (a *unitArena) reset(n, d, k int) {
	a.rows = grow(a.rows, 2*n*d)
	a.median = grow(a.median, d)
	a.template = grow(a.template, d)
	a.centred = grow(a.centred, d)
	a.column = grow(a.column, n)
	a.features = grow(a.features, 2*n*k)
}
