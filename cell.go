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
	"github.com/spatialmodel/hydromap/met"
	"github.com/spatialmodel/hydromap/science/radiation"
	"github.com/spatialmodel/hydromap/science/snow"
	"github.com/spatialmodel/hydromap/science/soil"
)

// EvapFlux holds the evapotranspiration components of one cell for the
// current step, all in meters of water over the cell.
type EvapFlux struct {
	ETot     float64    // total evapotranspiration
	EPot     [2]float64 // potential rate per vegetation layer (m/s)
	EInt     [2]float64 // interception evaporation per layer
	EAct     [2]float64 // transpiration per layer
	EvapSoil float64    // direct soil evaporation
}

// Cell is the full state of one active raster cell. The raster
// exclusively owns every cell; routing sweeps borrow read-only views of
// neighbors and write only the cell they are visiting (plus neighbor
// SatFlow accumulators during the serialized lateral sweep).
type Cell struct {
	X, Y  int
	Index int // Y*NX + X

	Elev   float64
	SoilID int
	VegID  int
	Soil   *SoilType
	Veg    *VegType

	// Flow directions: outgoing weight per stencil direction; the sum
	// plus the outlet contribution is TotalDir.
	Dir      []uint8
	TotalDir uint
	FlowGrad float64 // precomputed topographic slope × flow width (m)

	KsLat float64 // lateral saturated conductivity (m/s)

	// RoadFract is the fraction of the cell's lateral outflow
	// intercepted by a road cut, derived from the road crossing length
	// relative to the cell width.
	RoadFract float64

	// Soil column geometry and water state.
	Column    soil.Column
	SoilState soil.State

	// Pre-step snapshot of the water-table depth; the lateral router
	// reads this for its gradient so the sweep order cannot matter.
	TableSnapshot float64

	// Soil thermal state.
	SoilTemp         []float64 // per layer (°C)
	TSurfSoil        float64   // effective soil surface temperature (°C)
	Qnet, Qs, Qe, Qg float64   // surface energy balance terms (W/m²)

	// Meteorology interpolated for the current step.
	Met     met.PixelMet
	Precip  met.Precip
	Shadow  uint8   // direct-beam shading factor for this step
	SkyView float64 // diffuse sky-view factor

	Rad radiation.Balance

	Snow     snow.Pack
	SnowCan  snow.Canopy
	IntRain  []float64 // interception storage per vegetation layer (m)
	Gap      *radiation.Gap
	GapFract float64 // fraction of the cell occupied by the canopy gap

	Infilt soil.InfiltrationState
	Evap   EvapFlux

	// Per-step water exchange bookkeeping (m over the cell).
	ChannelInt    float64 // water intercepted by stream channels
	RoadInt       float64 // water intercepted by the road network
	CulvertReturn float64 // culvert water returned to this cell
	RoadIExcess   float64 // ponded water on the road surface
	MeltEnergy    float64 // snow melt energy (W/m²)
}

// HasOverStory reports whether the cell's vegetation has an overstory.
func (c *Cell) HasOverStory() bool { return c.Veg.OverStory }

// nVegLayersAboveSnow returns the number of vegetation layers above the
// snow surface: a snow-buried understory does not transpire.
func (c *Cell) nVegLayersAboveSnow() int {
	n := c.Veg.NVegLayers()
	if c.Snow.HasSnow && c.Veg.UnderStory {
		n--
	}
	return n
}

// TotalSoilWater returns the column water content plus surface excess
// (m), for the aggregator.
func (c *Cell) TotalSoilWater() float64 {
	return c.Column.TotalWater(&c.SoilState)
}

// CanopyWater returns the total intercepted water (m over the cell).
func (c *Cell) CanopyWater() float64 {
	total := 0.0
	for _, w := range c.IntRain {
		total += w
	}
	if c.Veg.OverStory {
		total += c.SnowCan.IntSnow * c.Veg.Fract[0]
	}
	return total
}

// resetStepFluxes clears the per-step accumulators before the cell step.
func (c *Cell) resetStepFluxes() {
	c.Evap = EvapFlux{}
	c.ChannelInt = 0
	c.RoadInt = 0
	c.CulvertReturn = 0
	c.MeltEnergy = 0
	c.Snow.Outflow = 0
	c.Snow.VaporMassFlux = 0
	c.Snow.CanopyVaporMassFlux = 0
	c.Snow.Melted = 0
}
