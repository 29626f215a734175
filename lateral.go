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

package hydromap

import (
	"math"

	"github.com/spatialmodel/hydromap/science/soil"
)

// RouteSubsurface returns the manipulator for the saturated lateral
// sweep. It runs once per step after the cell sweep, using the pre-step
// snapshot of water-table depths for the driving gradient so the visit
// order cannot influence the result; the computed SatFlow increments are
// applied to the moisture profiles during the next step's vertical soil
// update.
func RouteSubsurface() DomainManipulator {
	return func(m *Model) error {
		dt := m.Dt()
		area := m.Meta.CellArea()
		xOff, yOff, err := NeighborOffsets(m.Options.NDirs)
		if err != nil {
			return err
		}

		for _, c := range m.Cells {
			c.SoilState.SatFlow = 0
			c.RoadInt = 0
		}

		var headGrad []cellGradient
		if m.Options.Gradient == GradientWaterTable {
			headGrad = m.waterTableGradients(xOff, yOff)
		}

		for ci, c := range m.Cells {
			bankHeight := math.Min(c.Column.BankHeight, c.Column.TotalDepth)
			table := c.TableSnapshot

			dir := c.Dir
			totalDir := float64(c.TotalDir)
			flowGrad := c.FlowGrad
			if headGrad != nil {
				dir = headGrad[ci].dir
				totalDir = float64(headGrad[ci].total)
				flowGrad = headGrad[ci].grad
			}

			if !m.Streams.HasChannel(c.Index) {
				var fractUsed float64
				for _, d := range dir {
					fractUsed += float64(d)
				}
				if totalDir > 0 {
					fractUsed /= totalDir
				} else {
					fractUsed = 0
				}

				var outflow float64
				if table < c.Column.TotalDepth {
					depthEff := math.Max(table, bankHeight)
					trans := soil.Transmissivity(c.Column.TotalDepth, depthEff,
						c.KsLat, c.Soil.KsExponent, c.Soil.DepthThresh)
					outflow = trans * fractUsed * flowGrad * dt / area
					available := c.Column.AvailableWater(c.Column.TotalDepth, table)
					if outflow > available {
						outflow = available
					}
				}

				// Road interception first; the remainder goes to the
				// neighbors.
				var roadOut float64
				if table < bankHeight && m.Roads.HasChannel(c.Index) {
					var fract float64
					if totalDir > 0 {
						fract = c.RoadFract
					}
					trans := soil.Transmissivity(bankHeight, table,
						c.KsLat, c.Soil.KsExponent, c.Soil.DepthThresh)
					roadOut = trans * fract * flowGrad * dt / area
					available := c.Column.AvailableWater(bankHeight, table)
					if roadOut > available {
						roadOut = available
					}
					c.RoadInt = roadOut
					m.Roads.IncInflow(c.Index, roadOut*area)
				}

				c.SoilState.SatFlow -= outflow + roadOut

				if totalDir > 0 {
					perWeight := outflow / totalDir
					for k := range dir {
						if dir[k] == 0 {
							continue
						}
						n := m.Cell(c.X+xOff[k], c.Y+yOff[k])
						if n != nil {
							n.SoilState.SatFlow += perWeight * float64(dir[k])
						}
					}
				}
			} else if table < bankHeight {
				// Stream cell: the local head difference drives flow into
				// the channel.
				gradient := 4 * (bankHeight - table)
				if gradient < 0 {
					gradient = 0
				}
				trans := soil.Transmissivity(bankHeight, table,
					c.KsLat, c.Soil.KsExponent, c.Soil.DepthThresh)
				outflow := trans * gradient * dt / area
				available := c.Column.AvailableWater(bankHeight, table)
				if outflow > available {
					outflow = available
				}
				c.SoilState.SatFlow -= outflow
				m.Streams.IncInflow(c.Index, outflow*area)
				c.ChannelInt += outflow
			}
		}
		return nil
	}
}

// cellGradient is the dynamically-recomputed flow direction data for one
// cell when the water-table gradient option is active.
type cellGradient struct {
	dir   []uint8
	total uint
	grad  float64
}

// waterTableGradients recomputes flow directions and gradients from the
// current water-table surface (surface elevation minus snapshot table
// depth).
func (m *Model) waterTableGradients(xOff, yOff []int) []cellGradient {
	out := make([]cellGradient, len(m.Cells))
	for ci, c := range m.Cells {
		head := c.Elev - c.TableSnapshot
		drops := make([]float64, len(xOff))
		var maxSlope, totalDrop float64
		for k := range xOff {
			n := m.Cell(c.X+xOff[k], c.Y+yOff[k])
			if n == nil {
				continue
			}
			dist := m.Meta.DX
			if xOff[k] != 0 && yOff[k] != 0 {
				dist *= math.Sqrt2
			}
			drop := head - (n.Elev - n.TableSnapshot)
			if drop > 0 {
				drops[k] = drop
				totalDrop += drop
				if slope := drop / dist; slope > maxSlope {
					maxSlope = slope
				}
			}
		}
		g := cellGradient{dir: make([]uint8, len(xOff))}
		if totalDrop > 0 {
			for k, d := range drops {
				w := uint8(math.Round(d / totalDrop * 255))
				g.dir[k] = w
				g.total += uint(w)
			}
			g.grad = maxSlope * m.Meta.DX
		}
		out[ci] = g
	}
	return out
}

// SnowSlide returns the manipulator for optional down-gradient snow
// redistribution: snow water equivalent above the holding capacity
// implied by the local slope slides to the steepest downslope neighbor.
func SnowSlide() DomainManipulator {
	return func(m *Model) error {
		if !m.Options.SnowSliding {
			return nil
		}
		xOff, yOff, err := NeighborOffsets(m.Options.NDirs)
		if err != nil {
			return err
		}
		s1, s2 := m.Params.SnowSlide1, m.Params.SnowSlide2
		if s1 <= 0 {
			return nil
		}
		for _, c := range m.Cells {
			var steepest *Cell
			var maxDrop float64
			for k := range xOff {
				n := m.Cell(c.X+xOff[k], c.Y+yOff[k])
				if n == nil {
					continue
				}
				if drop := c.Elev - n.Elev; drop > maxDrop {
					maxDrop = drop
					steepest = n
				}
			}
			if steepest == nil {
				continue
			}
			slope := maxDrop / m.Meta.DX
			hold := s1 * math.Exp(-s2*slope)
			if c.Snow.SWE > hold {
				excess := c.Snow.SWE - hold
				c.Snow.SWE = hold
				steepest.Snow.SWE += excess
				steepest.Snow.HasSnow = steepest.Snow.SWE > 0
				c.Snow.HasSnow = c.Snow.SWE > 0
				if !c.Snow.HasSnow {
					c.Snow.TSurf, c.Snow.TPack = 0, 0
				}
			}
		}
		return nil
	}
}
