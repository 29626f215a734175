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
	"log"
	"math"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/hydromap/channel"
	"github.com/spatialmodel/hydromap/met"
	"github.com/spatialmodel/hydromap/science/radiation"
	"github.com/spatialmodel/hydromap/science/soil"
)

// Terrain bundles the finalized topographic and class grids the core
// consumes; reading and format conversion belong to collaborators.
type Terrain struct {
	Meta GridMeta
	Mask []bool // active-basin flags, row-major

	DEM       *sparse.DenseArray // surface elevation (m)
	SoilDepth *sparse.DenseArray // depth to bedrock (m)
	KsLat     *sparse.DenseArray // lateral saturated conductivity (m/s)
	SoilClass *sparse.DenseArray // soil class IDs
	VegClass  *sparse.DenseArray // vegetation class IDs
}

// BuildCells creates the active-cell list from the terrain grids: one
// Cell per masked-in raster cell, with its soil column geometry, class
// links, initial moisture at field capacity, and topographic flow
// directions.
func BuildCells(t Terrain) DomainManipulator {
	return func(m *Model) error {
		if err := t.Meta.Validate(); err != nil {
			return err
		}
		m.Meta = t.Meta
		nx, ny := t.Meta.NX, t.Meta.NY

		m.CellIndex = make([]int, nx*ny)
		for i := range m.CellIndex {
			m.CellIndex[i] = -1
		}

		pointOnly := m.Options.Extent == ExtentPoint

		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				idx := y*nx + x
				if !t.Mask[idx] {
					continue
				}
				if pointOnly && (x != m.Options.PointX || y != m.Options.PointY) {
					continue
				}
				soilID := int(t.SoilClass.Get(y, x))
				vegID := int(t.VegClass.Get(y, x))
				st, ok := m.SoilTypes[soilID]
				if !ok {
					return newError(CodeConfiguration, "cell (%d, %d): unknown soil class %d", x, y, soilID)
				}
				vt, ok := m.VegTypes[vegID]
				if !ok {
					return newError(CodeConfiguration, "cell (%d, %d): unknown vegetation class %d", x, y, vegID)
				}

				c := &Cell{
					X: x, Y: y, Index: idx,
					Elev:   t.DEM.Get(y, x),
					SoilID: soilID, VegID: vegID,
					Soil: st, Veg: vt,
					KsLat: t.KsLat.Get(y, x),
				}

				n := st.NLayers
				c.Column = soil.Column{
					NLayers:     n,
					TotalDepth:  t.SoilDepth.Get(y, x),
					RootDepth:   vt.RootDepth,
					Ks:          st.Ks,
					PoreDist:    st.PoreDist,
					Porosity:    st.Porosity,
					FCap:        st.FieldCap,
					CutBankZone: -1,
				}
				c.Column.SetCutBank(0, t.Meta.CellArea())
				if c.Column.DeepLayerDepth() < 0 {
					return newError(CodeConfiguration,
						"cell (%d, %d): soil depth %g m is shallower than the %d root layers",
						x, y, c.Column.TotalDepth, n)
				}

				c.SoilState = soil.State{
					Moist: make([]float64, n+1),
					Perc:  make([]float64, n),
				}
				for i := 0; i <= n; i++ {
					li := i
					if li >= n {
						li = n - 1
					}
					c.SoilState.Moist[i] = st.FieldCap[li]
				}
				c.SoilState.TableDepth = c.Column.WaterTableDepth(c.SoilState.Moist)
				c.TableSnapshot = c.SoilState.TableDepth

				c.SoilTemp = make([]float64, n)
				c.IntRain = make([]float64, 2)
				c.Snow.Albedo = m.Params.AlbFresh
				c.Infilt.StormStart = true

				m.CellIndex[idx] = len(m.Cells)
				m.Cells = append(m.Cells, c)
			}
		}
		if len(m.Cells) == 0 {
			return newError(CodeConfiguration, "no active cells inside the basin mask")
		}
		return computeFlowDirections(m, t.DEM)
	}
}

// computeFlowDirections assigns each active cell its outgoing neighbor
// weights (proportional to elevation drop) and its topographic gradient,
// then verifies that every cell drains to an outlet.
func computeFlowDirections(m *Model, dem *sparse.DenseArray) error {
	xOff, yOff, err := NeighborOffsets(m.Options.NDirs)
	if err != nil {
		return err
	}
	for _, c := range m.Cells {
		c.Dir = make([]uint8, len(xOff))
		c.TotalDir = 0
		drops := make([]float64, len(xOff))
		var totalDrop, maxSlope float64
		for k := range xOff {
			n := m.Cell(c.X+xOff[k], c.Y+yOff[k])
			dist := m.Meta.DX
			if xOff[k] != 0 && yOff[k] != 0 {
				dist *= math.Sqrt2
			}
			var drop float64
			if n != nil {
				drop = c.Elev - n.Elev
			} else {
				// Neighbors outside the grid or the basin get no weight;
				// a cell with no lower active neighbor is an outlet.
				continue
			}
			if drop > 0 {
				drops[k] = drop
				totalDrop += drop
				if slope := drop / dist; slope > maxSlope {
					maxSlope = slope
				}
			}
		}
		if totalDrop > 0 {
			for k, d := range drops {
				w := uint8(math.Round(d / totalDrop * 255))
				c.Dir[k] = w
				c.TotalDir += uint(w)
			}
			c.FlowGrad = maxSlope * m.Meta.DX
		}
	}
	return validateFlowDirections(m, xOff, yOff)
}

// validateFlowDirections checks the invariant that every active cell has
// a finite directed path to an outlet (a cell with no outgoing weights,
// interior pits included, or a cell crossed by a stream channel).
func validateFlowDirections(m *Model, xOff, yOff []int) error {
	reached := make([]bool, len(m.Cells))
	// Reverse breadth-first search from the outlet cells.
	queue := make([]int, 0, len(m.Cells))
	for ci, c := range m.Cells {
		if c.TotalDir == 0 || m.Streams.HasChannel(c.Index) {
			reached[ci] = true
			queue = append(queue, ci)
		}
	}
	if len(queue) == 0 && len(m.Cells) > 1 {
		return newError(CodeConfiguration, "flow-direction graph has no outlet")
	}
	for len(queue) > 0 {
		ci := queue[0]
		queue = queue[1:]
		c := m.Cells[ci]
		// Any neighbor draining into c is also connected.
		for k := range xOff {
			n := m.Cell(c.X-xOff[k], c.Y-yOff[k])
			if n == nil {
				continue
			}
			ni := m.CellIndex[n.Index]
			if reached[ni] {
				continue
			}
			// n sits at c − offset[k], so its k-direction weight points
			// at c.
			if n.Dir[k] > 0 {
				reached[ni] = true
				queue = append(queue, ni)
			}
		}
	}
	for ci, ok := range reached {
		if !ok {
			c := m.Cells[ci]
			return cellError(CodeConfiguration, c.X, c.Y, -1, nil, "flow-direction discontinuity")
		}
	}
	return nil
}

// InitNetworks wires the channel and road networks into the raster:
// bank heights and cut areas reshape the soil columns, and road
// crossings set the lateral interception fraction.
func InitNetworks() DomainManipulator {
	return func(m *Model) error {
		area := m.Meta.CellArea()
		for _, c := range m.Cells {
			var cutArea, bank float64
			if m.Streams.HasChannel(c.Index) {
				bank = m.Streams.CellBankHeight(c.Index, c.Elev)
			}
			if m.Roads.HasChannel(c.Index) {
				if rb := m.Roads.CellBankHeight(c.Index, c.Elev); rb > bank {
					bank = rb
				}
				var roadLen float64
				for _, cr := range m.Roads.CellMap[c.Index] {
					roadLen += cr.Length
				}
				c.RoadFract = math.Min(1, roadLen/m.Meta.DX)
			}
			chanArea, roadArea := m.channelAreas(c)
			cutArea = chanArea + roadArea
			if bank > c.Column.TotalDepth {
				bank = c.Column.TotalDepth
			}
			if bank > 0 && cutArea > 0 {
				c.Column.BankHeight = bank
				c.Column.SetCutBank(cutArea, area)
			}
		}

		if m.Options.Sediment {
			nSizes := len(m.SedimentDiams)
			if nSizes == 0 {
				return newError(CodeConfiguration, "sediment routing enabled with no particle size classes")
			}
			for _, n := range []*channel.Network{m.Streams, m.Roads} {
				if n == nil {
					continue
				}
				for _, s := range n.Segments {
					s.Sediment = channel.NewSegmentSediment(nSizes)
				}
			}
		}
		return nil
	}
}

// InitGaps attaches the canopy-gap submodel to cells flagged by the gap
// map (gap diameter per cell; zero means no gap).
func InitGaps(gapMap *sparse.DenseArray) DomainManipulator {
	return func(m *Model) error {
		if !m.Options.CanopyGapping {
			return nil
		}
		for _, c := range m.Cells {
			dm := gapMap.Get(c.Y, c.X)
			if dm <= 0 || !c.Veg.OverStory {
				continue
			}
			g, err := radiation.NewGap(dm, c.Veg.Height[0], m.Params.GapViewIterations)
			if err != nil {
				return newError(CodeConfiguration, "cell (%d, %d): %v", c.X, c.Y, err)
			}
			c.Gap = g
			gapArea := math.Pi * dm * dm / 4
			c.GapFract = math.Min(1, gapArea/m.Meta.CellArea())
		}
		return nil
	}
}

// InitStations verifies station geometry and computes the interpolation
// weight grid. Stations outside the bounding box are a warning when
// outsideOK, fatal otherwise.
func InitStations(scheme met.Scheme, cressRadius, cressStations int, outsideOK bool) DomainManipulator {
	return func(m *Model) error {
		for _, s := range m.Stations {
			if !s.InBounds(m.Meta.NX, m.Meta.NY) {
				if outsideOK {
					log.Printf("hydromap: station %s at (%g, %g) is outside the basin bounding box",
						s.Name, s.Loc.X, s.Loc.Y)
				} else {
					return newError(CodeConfiguration,
						"station %s at (%g, %g) is outside the basin bounding box", s.Name, s.Loc.X, s.Loc.Y)
				}
			}
		}
		inBasin := func(x, y int) bool { return m.Cell(x, y) != nil }
		wg, err := met.ComputeWeights(m.Stations, m.Meta.NX, m.Meta.NY, inBasin,
			scheme, cressRadius, cressStations)
		if err != nil {
			return newError(CodeConfiguration, "%v", err)
		}
		m.Weights = wg
		return nil
	}
}
