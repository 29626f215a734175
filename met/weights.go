/*
Copyright © 2018 the HydroMap authors.
This file is part of HydroMap.

HydroMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HydroMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HydroMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package met

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// Interpolation schemes for the station weight grid.
type Scheme int

const (
	// InvDist weights stations by inverse distance squared.
	InvDist Scheme = iota
	// Nearest gives all weight to the closest station.
	Nearest
	// VarCress uses a variable-radius Cressman scheme limited to the
	// closest few stations.
	VarCress
)

// maxWeight is the quantization denominator: per-cell station weights are
// stored as 8-bit fractions of 255.
const maxWeight = 255

// WeightGrid holds the per-cell station weights, quantized to fractions
// of 255.
type WeightGrid struct {
	NX, NY    int
	NStations int
	w         []uint8
}

// At returns the weight row for cell (x, y).
func (g *WeightGrid) At(x, y int) []uint8 {
	i := (y*g.NX + x) * g.NStations
	return g.w[i : i+g.NStations]
}

func cellDistance(loc geom.Point, x, y int) float64 {
	dx := loc.X - float64(x)
	dy := loc.Y - float64(y)
	return math.Sqrt(dx*dx + dy*dy)
}

// ComputeWeights builds the interpolation weight grid for the given
// stations over an NX×NY raster. inBasin reports whether a cell is
// active; inactive cells get zero weights. cressRadius and cressStations
// configure the VarCress scheme. After assignment every active cell's
// weights are verified to sum to 255 ± 2.
func ComputeWeights(stations []*Station, nx, ny int, inBasin func(x, y int) bool,
	scheme Scheme, cressRadius, cressStations int) (*WeightGrid, error) {

	ns := len(stations)
	if ns == 0 {
		return nil, fmt.Errorf("met: no stations to interpolate from")
	}
	if scheme == VarCress && (cressRadius < 2 || cressStations < 2) {
		return nil, fmt.Errorf("met: bad Cressman interpolation parameters: radius %d, stations %d",
			cressRadius, cressStations)
	}

	g := &WeightGrid{NX: nx, NY: ny, NStations: ns, w: make([]uint8, nx*ny*ns)}
	dist := make([]float64, ns)

	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			if !inBasin(x, y) {
				continue
			}
			row := g.At(x, y)

			// A cell containing a station takes that station verbatim.
			if at := stationAt(stations, x, y); at >= 0 {
				row[at] = maxWeight
				continue
			}

			for i, s := range stations {
				dist[i] = cellDistance(s.Loc, x, y)
			}

			switch scheme {
			case InvDist:
				denom := 0.0
				for i := range stations {
					denom += 1 / (dist[i] * dist[i])
				}
				for i := range stations {
					row[i] = uint8(math.Round(1 / (dist[i] * dist[i]) / denom * maxWeight))
				}

			case Nearest:
				closest := 0
				for i := range stations {
					if dist[i] < dist[closest] {
						closest = i
					}
				}
				row[closest] = maxWeight

			case VarCress:
				// Sort stations by distance, then weight the closest few
				// within twice the nearest distance.
				order := make([]int, ns)
				for i := range order {
					order[i] = i
				}
				sort.Slice(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

				crt := dist[order[0]] * 2
				if crt < 1 {
					crt = 1
				}
				if cr := float64(cressRadius); crt > cr {
					crt = cr
				}
				wts := make([]float64, ns)
				denom := 0.0
				for rank, i := range order {
					if rank < cressStations && dist[i] < crt {
						wts[i] = (crt*crt - dist[i]*dist[i]) / (crt*crt + dist[i]*dist[i])
						denom += wts[i]
					}
				}
				if denom == 0 {
					// No station within the radius; fall back to nearest.
					row[order[0]] = maxWeight
					continue
				}
				for i := range stations {
					row[i] = uint8(math.Round(wts[i] / denom * maxWeight))
				}
			}
		}
	}

	if err := g.verify(inBasin); err != nil {
		return nil, err
	}
	return g, nil
}

// verify checks the quantization invariant: active-cell weights sum to
// 255 within rounding slack.
func (g *WeightGrid) verify(inBasin func(x, y int) bool) error {
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			if !inBasin(x, y) {
				continue
			}
			sum := 0
			for _, w := range g.At(x, y) {
				sum += int(w)
			}
			if sum < maxWeight-2 || sum > maxWeight+2 {
				return fmt.Errorf("met: weights at cell (%d, %d) sum to %d, want %d ± 2", x, y, sum, maxWeight)
			}
		}
	}
	return nil
}

func stationAt(stations []*Station, x, y int) int {
	for i, s := range stations {
		if int(math.Round(s.Loc.X)) == x && int(math.Round(s.Loc.Y)) == y {
			return i
		}
	}
	return -1
}
