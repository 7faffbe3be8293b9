package particle

import "math/rand"

// ParticleList copies the particles of the 1D cell id into dst (which must be
// at least Grid.MaxNP long) and fills ids with their indices into
// Grid.Particles, returning the number of particles copied. Precomputed once
// per primary cell and reused across the N2*N3*N4 inner draws (spec.md
// section 4.4: "this amortization is essential").
func (g *Grid) ParticleList(id1 int, dst []Particle, ids []int) int {
	c := g.Cells[id1]
	n := 0
	for i := c.Start; i < c.Start+c.Count; i, n = i+1, n+1 {
		dst[n] = g.Particles[i]
		ids[n] = i
	}
	return n
}

// DrawParticle draws a uniformly random particle from the cell at cubic
// coordinate id3, applying shift to its position when the grid is periodic
// (spec.md section 3: "a lookup returns a sentinel indicating this" for
// out-of-grid cells; compute_integral.h's draw_particle additionally shifts
// the drawn particle's position by the cell separation under PERIODIC).
// Returns ok=false if the cell is out of grid bounds or empty.
func (g *Grid) DrawParticle(id3 [3]int, shift [3]float64, rng *rand.Rand) (p Particle, pid int, n, n1, n2 int, ok bool) {
	id1 := g.TestCell(id3)
	if id1 == NotInGrid {
		return Particle{}, 0, 0, 0, 0, false
	}
	c := g.Cells[id1]
	if c.Count == 0 {
		return Particle{}, 0, 0, 0, 0, false
	}
	pid = c.Start + rng.Intn(c.Count)
	p = g.Particles[pid]
	if g.Periodic {
		p.Pos[0] += shift[0]
		p.Pos[1] += shift[1]
		p.Pos[2] += shift[2]
	}
	return p, pid, c.Count, c.NP1, c.NP2, true
}

// DrawParticleWithoutClass is DrawParticle without the partition counts,
// used for k and l draws which do not need a partitioned probability split.
func (g *Grid) DrawParticleWithoutClass(id3 [3]int, shift [3]float64, rng *rand.Rand) (p Particle, pid int, n int, ok bool) {
	p, pid, n, _, _, ok = g.DrawParticle(id3, shift, rng)
	return p, pid, n, ok
}
