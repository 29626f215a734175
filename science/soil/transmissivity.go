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

package soil

import "math"

// Transmissivity returns the depth-integrated saturated lateral
// conductivity (m²/s) of the column between the water table and
// soilDepth. With a zero decay exponent the conductivity is uniform.
// Above depthThresh the profile decays exponentially with depth; below
// it, transmissivity tapers linearly to zero at the bottom.
func Transmissivity(soilDepth, waterTable, lateralKs, ksExponent, depthThresh float64) float64 {
	if waterTable >= soilDepth {
		return 0
	}
	if ksExponent == 0 {
		return lateralKs * (soilDepth - waterTable)
	}
	if waterTable < depthThresh {
		return (lateralKs / ksExponent) *
			(math.Exp(-ksExponent*waterTable) - math.Exp(-ksExponent*soilDepth))
	}
	transThresh := (lateralKs / ksExponent) *
		(math.Exp(-ksExponent*depthThresh) - math.Exp(-ksExponent*soilDepth))
	if soilDepth <= depthThresh {
		return 0
	}
	return (soilDepth - waterTable) / (soilDepth - depthThresh) * transThresh
}

// CutBankGeometry computes, for soil layer i with top at depth topZone
// and the given thickness, the percolation-area fraction and storage
// adjustment imposed by a road cut or channel of plan area cutArea whose
// bed sits bankHeight below the surface. It reports whether the bed lies
// within this layer. dxdy is the cell plan area.
func CutBankGeometry(i int, thickness, topZone, bankHeight, cutArea, dxdy float64) (percArea, adjust float64, isCutZone bool) {
	percArea, adjust = 1, 1
	if bankHeight <= 0 {
		return percArea, adjust, false
	}
	switch {
	case bankHeight <= topZone:
		// Below the cut: the full area percolates.
	case bankHeight <= topZone+thickness:
		// The bed bottoms out in this layer: storage is reduced by the
		// excavated prism.
		adjust = 1 - cutArea*(bankHeight-topZone)/(thickness*dxdy)
		isCutZone = true
	default:
		// Above the cut: the excavated footprint is missing entirely.
		percArea = 1 - cutArea/dxdy
		adjust = percArea
	}
	return percArea, adjust, isCutZone
}

// SetCutBank fills in the column's PercArea, Adjust and CutBankZone for a
// road/channel cut of the given plan area, walking the layers from the
// surface down.
func (c *Column) SetCutBank(cutArea, dxdy float64) {
	c.PercArea = make([]float64, c.NLayers+1)
	c.Adjust = make([]float64, c.NLayers+1)
	c.CutBankZone = -1

	depth := 0.0
	for i := 0; i < c.NLayers; i++ {
		pa, adj, isCut := CutBankGeometry(i, c.RootDepth[i], depth, c.BankHeight, cutArea, dxdy)
		c.PercArea[i], c.Adjust[i] = pa, adj
		if isCut {
			c.CutBankZone = i
		}
		depth += c.RootDepth[i]
	}
	pa, adj, isCut := CutBankGeometry(c.NLayers, c.TotalDepth-depth, depth, c.BankHeight, cutArea, dxdy)
	c.PercArea[c.NLayers], c.Adjust[c.NLayers] = pa, adj
	if isCut {
		c.CutBankZone = c.NLayers
	}
}

// MaxInfiltration is the static infiltration capacity over a step (m).
func MaxInfiltration(rate, dt, percArea, impervFrac float64) float64 {
	return (1 - impervFrac) * percArea * rate * dt
}

// InfiltrationState tracks cumulative infiltration for the dynamic
// (Parlange–Smith) capacity option. A storm begins at the first step with
// surface water after a dry step.
type InfiltrationState struct {
	StormStart bool    // true when the next wet step begins a new storm
	Accum      float64 // infiltration accumulated since the storm began (m)
	MoistInit  float64 // top-layer moisture at the storm start
}

// DynamicCapacity returns the infiltration capacity (m/s) after
// Parlange and Smith (1978), as used in KINEROS and THALES. gInfilt is
// the capillary drive parameter and surfaceWater the depth awaiting
// infiltration this step.
func (st *InfiltrationState) DynamicCapacity(ks, porosity, gInfilt, surfaceWater, topMoist, dt float64) float64 {
	if surfaceWater <= 0 {
		st.StormStart = true
		return 0
	}
	if st.StormStart {
		st.MoistInit = topMoist
		st.Accum = 0
		st.StormStart = false
	}
	if st.Accum > 0 && porosity > st.MoistInit {
		b := (porosity - st.MoistInit) * (gInfilt + surfaceWater)
		e := math.Exp(st.Accum / b)
		return ks * e / (e - 1)
	}
	return surfaceWater / dt
}
