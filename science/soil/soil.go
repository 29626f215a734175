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

// Package soil models the unsaturated soil column of one cell: vertical
// Brooks–Corey drainage between root-zone layers and a deep layer,
// redistribution of lateral saturated flow, the water-table depth, and
// the depth-dependent transmissivity used by the lateral router. The
// formulation follows Wigmosta, Vail and Lettenmaier (1994).
package soil

import "math"

// Column describes the invariant geometry and hydraulic properties of a
// cell's soil column. The root-zone layers are indexed 0..NLayers-1 from
// the surface down; index NLayers addresses the deep layer below the
// roots in the state slices.
type Column struct {
	NLayers     int       // number of root-zone layers
	TotalDepth  float64   // depth to bedrock (m)
	RootDepth   []float64 // root-zone layer thicknesses (m), len NLayers
	Ks          []float64 // vertical saturated conductivity per layer (m/s)
	PoreDist    []float64 // Brooks–Corey pore-size distribution index per layer
	Porosity    []float64 // per layer
	FCap        []float64 // field capacity per layer
	PercArea    []float64 // percolation area fraction per layer, len NLayers+1
	Adjust      []float64 // cut-bank storage adjustment per layer, len NLayers+1
	CutBankZone int       // layer containing the road/channel bed, -1 if none
	BankHeight  float64   // depth of the road/channel bed below the surface (m)
}

// DeepLayerDepth returns the thickness of the layer below the deepest
// root layer.
func (c *Column) DeepLayerDepth() float64 {
	d := c.TotalDepth
	for _, rd := range c.RootDepth {
		d -= rd
	}
	return d
}

// layerPorosity returns the porosity governing the state index i, where
// i == NLayers addresses the deep layer (which reuses the deepest
// root-layer properties).
func (c *Column) layerPorosity(i int) float64 {
	if i >= c.NLayers {
		return c.Porosity[c.NLayers-1]
	}
	return c.Porosity[i]
}

func (c *Column) layerFCap(i int) float64 {
	if i >= c.NLayers {
		return c.FCap[c.NLayers-1]
	}
	return c.FCap[i]
}

func (c *Column) layerThickness(i int) float64 {
	if i >= c.NLayers {
		return c.DeepLayerDepth()
	}
	return c.RootDepth[i]
}

// State is the mutable water state of a column. Moist and Perc have
// NLayers+1 and NLayers entries respectively.
type State struct {
	Moist      []float64 // volumetric moisture, root layers then deep layer
	Perc       []float64 // drainage memory for Crank–Nicolson smoothing (m/step)
	TableDepth float64   // water-table depth below the surface (m)
	SatFlow    float64   // lateral saturated-flow increment for this step (m)
	IExcess    float64   // infiltration excess / ponded surface water (m)
}

// UnsaturatedFlow drains each root-zone layer downward, deposits roadbed
// and surface infiltration, applies the lateral saturated-flow increment,
// and recomputes the water-table depth. Ponding (negative table depth)
// becomes surface excess, and infiltration onto an already ponded column
// is added to the surface excess instead of the top layer.
//
// roadIExcess receives roadbed water rejected because the water table is
// above the bank; when nil it is combined into the cell surface excess.
func (c *Column) UnsaturatedFlow(s *State, dt float64, infiltration, roadbedInfiltration float64,
	roadIExcess *float64) {

	deepDepth := c.DeepLayerDepth()
	n := c.NLayers

	// Roadbed infiltration enters the cut-bank layer, unless the water
	// table is already above the bed.
	if s.TableDepth <= c.BankHeight && c.BankHeight > 0 {
		if roadIExcess != nil {
			*roadIExcess += roadbedInfiltration
		} else {
			s.IExcess += roadbedInfiltration
		}
	} else if c.CutBankZone == n {
		s.Moist[n] += roadbedInfiltration / (deepDepth * c.Adjust[n])
	} else if c.CutBankZone >= 0 {
		s.Moist[c.CutBankZone] += roadbedInfiltration /
			(c.RootDepth[c.CutBankZone] * c.Adjust[c.CutBankZone])
	}

	// Surface infiltration enters the top layer, unless the column is
	// already ponded.
	if s.TableDepth <= 0 {
		s.IExcess += infiltration
	} else {
		s.Moist[0] += infiltration / (c.RootDepth[0] * c.Adjust[0])
	}

	for i := 0; i < n; i++ {
		if s.Moist[i] > c.FCap[i] {
			exponent := 2/c.PoreDist[i] + 3
			var drainage float64
			if s.Moist[i] > c.Porosity[i] {
				// Supersaturated mid-step; drain at the saturated rate.
				drainage = c.Ks[i]
			} else {
				drainage = c.Ks[i] * math.Pow(s.Moist[i]/c.Porosity[i], exponent)
			}
			drainage *= dt
			// Time-average with the previous step's drainage and account
			// for the reduced percolation area.
			s.Perc[i] = 0.5 * (s.Perc[i] + drainage) * c.PercArea[i]

			maxSoilWater := c.RootDepth[i] * c.Porosity[i] * c.Adjust[i]
			soilWater := c.RootDepth[i] * s.Moist[i] * c.Adjust[i]
			fieldCapacity := c.RootDepth[i] * c.FCap[i] * c.Adjust[i]

			if soilWater-s.Perc[i] < fieldCapacity {
				s.Perc[i] = soilWater - fieldCapacity
			}
			soilWater -= s.Perc[i]
			if soilWater > maxSoilWater {
				s.Perc[i] += soilWater - maxSoilWater
			}

			s.Moist[i] -= s.Perc[i] / (c.RootDepth[i] * c.Adjust[i])
			if i < n-1 {
				s.Moist[i+1] += s.Perc[i] / (c.RootDepth[i+1] * c.Adjust[i+1])
			}
		} else {
			s.Perc[i] = 0
		}
		// Keep the stored drainage as a straight 1-D flux.
		s.Perc[i] /= c.PercArea[i]
	}

	deepDrainage := s.Perc[n-1] * c.PercArea[n-1]
	if deepDepth > 0 {
		s.Moist[n] += deepDrainage / (deepDepth * c.Adjust[n])
	} else {
		// Bedrock at the bottom of the root zone: the drainage has
		// nowhere to go and stays in the deepest layer.
		s.Moist[n-1] += deepDrainage / (c.RootDepth[n-1] * c.Adjust[n-1])
		s.Perc[n-1] = 0
	}

	c.distributeSatFlow(s)

	s.TableDepth = c.WaterTableDepth(s.Moist)
	if s.TableDepth < 0 {
		s.IExcess += -s.TableDepth
		s.TableDepth = 0
	}
}

// distributeSatFlow applies the lateral saturated-flow increment to the
// moisture profile. Outflow (negative) is extracted starting at the layer
// containing the water table and cascading downward; inflow (positive)
// fills from the deep layer upward. Inflow that cannot fit becomes
// surface excess.
func (c *Column) distributeSatFlow(s *State) {
	n := c.NLayers
	deepDepth := c.DeepLayerDepth()
	satFlow := s.SatFlow
	s.SatFlow = 0

	if satFlow < 0 {
		depth := 0.0
		for i := 0; i < n && depth < c.TotalDepth; i++ {
			if c.RootDepth[i] < c.TotalDepth-depth {
				depth += c.RootDepth[i]
			} else {
				depth = c.TotalDepth
			}
			var available float64
			if depth > s.TableDepth {
				if depth-s.TableDepth > c.RootDepth[i] {
					available = (c.Porosity[i] - c.FCap[i]) * c.RootDepth[i] * c.Adjust[i]
				} else {
					available = (s.Moist[i] - c.FCap[i]) * c.RootDepth[i] * c.Adjust[i]
				}
			}
			if available < 0 {
				available = 0
			}
			extract := satFlow
			if -satFlow > available {
				extract = -available
			}
			s.Moist[i] += extract / (c.RootDepth[i] * c.Adjust[i])
			satFlow -= extract
			if satFlow == 0 {
				break
			}
		}
		if satFlow < 0 {
			var available float64
			if deepDepth > 0 {
				if c.TotalDepth-s.TableDepth > deepDepth {
					available = (c.layerPorosity(n) - c.layerFCap(n)) * deepDepth * c.Adjust[n]
				} else {
					available = (s.Moist[n] - c.layerFCap(n)) * deepDepth * c.Adjust[n]
				}
				if available < 0 {
					available = 0
				}
				extract := satFlow
				if -satFlow > available {
					extract = -available
				}
				s.Moist[n] += extract / (deepDepth * c.Adjust[n])
				satFlow -= extract
			}
			// Whatever could not be extracted is carried as a (small)
			// negative surface adjustment; the balance checker flags any
			// residual beyond tolerance.
			s.IExcess += satFlow
		}
		return
	}

	if satFlow > 0 {
		if deepDepth > 0 {
			gap := (c.layerPorosity(n) - s.Moist[n]) * deepDepth * c.Adjust[n]
			if gap < 0 {
				gap = 0
			}
			fill := math.Min(satFlow, gap)
			satFlow -= fill
			s.Moist[n] += fill / (deepDepth * c.Adjust[n])
		}
		for i := n - 1; i >= 0 && satFlow > 0; i-- {
			gap := (c.Porosity[i] - s.Moist[i]) * c.RootDepth[i] * c.Adjust[i]
			if gap < 0 {
				gap = 0
			}
			fill := math.Min(satFlow, gap)
			satFlow -= fill
			s.Moist[i] += fill / (c.RootDepth[i] * c.Adjust[i])
		}
		if satFlow > 0 {
			s.IExcess += satFlow
		}
	}
}

// WaterTableDepth redistributes supersaturation upward (excess above the
// top layer is returned as a negative depth, i.e. ponding) and returns
// the water-table depth implied by the moisture profile: the shallowest
// level at which the total moisture excess above field capacity fills all
// storage below.
func (c *Column) WaterTableDepth(moist []float64) float64 {
	n := c.NLayers
	deepDepth := c.DeepLayerDepth()
	deepPorosity := c.layerPorosity(n)
	deepFCap := c.layerFCap(n)

	// Push supersaturation upward through the profile.
	var transfer float64
	if moist[n] >= deepPorosity {
		transfer = (moist[n] - deepPorosity) * deepDepth * c.Adjust[n]
		moist[n] = deepPorosity
		for i := n - 1; i >= 0; i-- {
			moist[i] += transfer / (c.RootDepth[i] * c.Adjust[i])
			if moist[i] >= c.Porosity[i] {
				transfer = (moist[i] - c.Porosity[i]) * c.RootDepth[i] * c.Adjust[i]
				moist[i] = c.Porosity[i]
			} else {
				transfer = 0
				break
			}
		}
	}
	if transfer > 0 {
		// Ponding at the surface.
		return -transfer
	}

	totalStorage := deepDepth * c.Adjust[n] * (deepPorosity - deepFCap)
	excess := deepDepth * c.Adjust[n] * (moist[n] - deepFCap)
	if excess < 0 {
		excess = 0
	}
	totalExcess := excess
	for i := 0; i < n; i++ {
		totalStorage += c.RootDepth[i] * c.Adjust[i] * (c.Porosity[i] - c.FCap[i])
		excess = c.RootDepth[i] * c.Adjust[i] * (moist[i] - c.FCap[i])
		if excess < 0 {
			excess = 0
		}
		totalExcess += excess
	}

	tableDepth := c.TotalDepth * (1 - totalExcess/totalStorage)
	if tableDepth < 0 {
		tableDepth = -(totalExcess - totalStorage)
	}
	return tableDepth
}

// AvailableWater returns the water above field capacity between the water
// table and the bottom of the profile bounded by totalDepth, the amount
// the lateral router may remove this step.
func (c *Column) AvailableWater(totalDepth, tableDepth float64) float64 {
	available := 0.0
	depth := 0.0
	i := 0
	for ; i < c.NLayers && depth < totalDepth; i++ {
		if c.RootDepth[i] < totalDepth-depth {
			depth += c.RootDepth[i]
		} else {
			depth = totalDepth
		}
		if depth > tableDepth {
			if depth-tableDepth > c.RootDepth[i] {
				available += (c.Porosity[i] - c.FCap[i]) * c.RootDepth[i] * c.Adjust[i]
			} else {
				available += (c.Porosity[i] - c.FCap[i]) * (depth - tableDepth) * c.Adjust[i]
			}
		}
	}
	if depth < totalDepth {
		deepDepth := totalDepth - depth
		depth = totalDepth
		if depth-tableDepth > deepDepth {
			available += (c.layerPorosity(c.NLayers) - c.layerFCap(c.NLayers)) *
				deepDepth * c.Adjust[c.NLayers]
		} else if depth > tableDepth {
			available += (c.layerPorosity(c.NLayers) - c.layerFCap(c.NLayers)) *
				(depth - tableDepth) * c.Adjust[c.NLayers]
		}
	}
	if available < 0 {
		available = 0
	}
	return available
}

// TotalWater returns the column water content plus surface excess (m),
// used by the mass-balance audit.
func (c *Column) TotalWater(s *State) float64 {
	total := s.IExcess
	for i := 0; i < c.NLayers; i++ {
		total += s.Moist[i] * c.RootDepth[i] * c.Adjust[i]
	}
	total += s.Moist[c.NLayers] * c.DeepLayerDepth() * c.Adjust[c.NLayers]
	return total
}
