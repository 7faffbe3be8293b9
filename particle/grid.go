package particle

import "sort"

// Grid partitions one tracer's particles into a uniform 3D cell grid. The
// particle array is contiguous and sorted by cell; the cell array is
// addressable by 1D or 3D index; Filled lists the nonempty cells.
type Grid struct {
	Particles []Particle // sorted by cell
	Cells     []Cell     // contiguous, addressable by TestCell's 1D index
	Filled    []int      // 1D indices of cells with Count > 0

	Dims     [3]int  // number of cells along each axis
	CellSize float64 // cubic cell edge length
	BoxSize  [3]float64
	Periodic bool

	Norm  float64 // total particle weight
	MaxNP int     // max particles in any one cell

	NP  int // total particle count across the whole grid
	NP1 int // total Tracer == 1 particle count across the whole grid
	NP2 int // total Tracer == 2 particle count across the whole grid
}

// New bins particles into a Dims[0] x Dims[1] x Dims[2] grid of cubic cells
// with the given edge length. Particles are assumed to already lie within
// [0, Dims[i]*cellSize) along each axis; periodic wrapping of coordinates
// outside that range is the caller's responsibility (mirroring the external
// catalog-loading collaborator spec.md section 1 places out of scope).
func New(particles []Particle, dims [3]int, cellSize float64, periodic bool) *Grid {
	nx, ny, nz := dims[0], dims[1], dims[2]
	ncells := nx * ny * nz

	g := &Grid{
		Dims:     dims,
		CellSize: cellSize,
		BoxSize:  [3]float64{float64(nx) * cellSize, float64(ny) * cellSize, float64(nz) * cellSize},
		Periodic: periodic,
		Cells:    make([]Cell, ncells),
	}

	cellOf := func(p Particle) [3]int {
		return [3]int{
			clampIdx(int(p.Pos[0]/cellSize), nx),
			clampIdx(int(p.Pos[1]/cellSize), ny),
			clampIdx(int(p.Pos[2]/cellSize), nz),
		}
	}

	// Stable sort by flat cell index so contiguous runs form each cell.
	indexOf := make([]int, len(particles))
	for i, p := range particles {
		c := cellOf(p)
		indexOf[i] = (c[0]*ny+c[1])*nz + c[2]
	}
	order := make([]int, len(particles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return indexOf[order[a]] < indexOf[order[b]] })

	g.Particles = make([]Particle, len(particles))
	for newPos, oldIdx := range order {
		g.Particles[newPos] = particles[oldIdx]
	}

	// Fill cell start/count/partition counts in one pass over the sorted array.
	for i := range g.Cells {
		x, y, z := i/(ny*nz), (i/nz)%ny, i%nz
		g.Cells[i].Coord = [3]int{x, y, z}
	}
	var norm float64
	start := 0
	for start < len(g.Particles) {
		p := g.Particles[start]
		c := cellOf(p)
		id1 := (c[0]*ny+c[1])*nz + c[2]
		end := start
		var np1, np2 int
		for end < len(g.Particles) {
			q := g.Particles[end]
			qc := cellOf(q)
			qid := (qc[0]*ny+qc[1])*nz + qc[2]
			if qid != id1 {
				break
			}
			norm += q.Weight
			switch q.Tracer {
			case 1:
				np1++
			case 2:
				np2++
			}
			end++
		}
		count := end - start
		g.Cells[id1].Start = start
		g.Cells[id1].Count = count
		g.Cells[id1].NP1 = np1
		g.Cells[id1].NP2 = np2
		if count > g.MaxNP {
			g.MaxNP = count
		}
		g.Filled = append(g.Filled, id1)
		g.NP += count
		g.NP1 += np1
		g.NP2 += np2
		start = end
	}
	g.Norm = norm
	return g
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// TestCell converts a 3D cell coordinate to its 1D index, returning
// NotInGrid when the coordinate falls outside the grid bounds.
func (g *Grid) TestCell(id3 [3]int) int {
	nx, ny, nz := g.Dims[0], g.Dims[1], g.Dims[2]
	x, y, z := id3[0], id3[1], id3[2]
	if x < 0 || x >= nx || y < 0 || y >= ny || z < 0 || z >= nz {
		return NotInGrid
	}
	return (x*ny+y)*nz + z
}

// CellIDFrom1D converts a 1D cell index back to its 3D coordinate.
func (g *Grid) CellIDFrom1D(id1 int) [3]int {
	ny, nz := g.Dims[1], g.Dims[2]
	return [3]int{id1 / (ny * nz), (id1 / nz) % ny, id1 % nz}
}

// CellSep returns the spatial displacement corresponding to a cell-coordinate
// delta. Under periodic geometry this wraps to the shortest image; under
// non-periodic geometry it is the raw scaled offset.
func (g *Grid) CellSep(delta [3]int) [3]float64 {
	sep := [3]float64{
		float64(delta[0]) * g.CellSize,
		float64(delta[1]) * g.CellSize,
		float64(delta[2]) * g.CellSize,
	}
	if !g.Periodic {
		return sep
	}
	for i := 0; i < 3; i++ {
		half := g.BoxSize[i] / 2
		if sep[i] > half {
			sep[i] -= g.BoxSize[i]
		} else if sep[i] < -half {
			sep[i] += g.BoxSize[i]
		}
	}
	return sep
}

// NFilled returns the number of nonempty cells.
func (g *Grid) NFilled() int { return len(g.Filled) }
