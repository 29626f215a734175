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

	"github.com/spatialmodel/hydromap/internal/rootfind"
	"github.com/spatialmodel/hydromap/science/evap"
	"github.com/spatialmodel/hydromap/science/radiation"
)

const (
	// dzTop is the soil depth over which heat-storage change is tracked (m).
	dzTop = 0.1
	// fluxDepth is the lower boundary of the soil heat flux (m).
	fluxDepth = 1.0
	// deltaTBracket brackets the effective surface temperature (°C).
	deltaTBracket = 50.0

	chWater = 4186.8e3
	chIce   = 2100.0e3
)

// sensibleHeatFlux solves for the effective soil surface temperature
// that closes the one-layer surface energy budget, and stores the
// balance terms on the cell.
func (m *Model) sensibleHeatFlux(c *Cell, ra float64, moistureFlux, Δt float64) error {
	reference := 2 + m.Params.Z0Ground
	roughness := m.Params.Z0Ground
	if c.Snow.HasSnow {
		reference = 2 + m.Params.Z0Snow
		roughness = m.Params.Z0Snow
	}

	oldTSurf := c.TSurfSoil
	lo := 0.5*(c.TSurfSoil+c.Met.Tair) - deltaTBracket
	hi := 0.5*(c.TSurfSoil+c.Met.Tair) + deltaTBracket

	khEff := m.effectiveKh(c)
	tSoilUpper := c.SoilTemp[0]
	tSoilLower := c.SoilTemp[len(c.SoilTemp)-1]

	netShort := c.Rad.PixelNetShort
	longIn := c.Rad.PixelLongIn

	residual := func(tSurf float64) float64 {
		tMean := 0.5 * (oldTSurf + tSurf)

		raCorr := ra
		if c.Met.Wind > 0 {
			raCorr /= evap.StabilityCorrection(reference, 0, tMean, c.Met.Tair, c.Met.Wind, roughness)
		} else {
			raCorr = evap.Huge
		}

		tmp := tMean + 273.15
		longOut := radiation.Stefan * tmp * tmp * tmp * tmp
		netRad := netShort + longIn - longOut

		sensible := c.Met.AirDens * evap.CP * (c.Met.Tair - tMean) / raCorr
		latent := -(c.Met.Lv * c.Evap.ETot) / Δt * evap.WaterDensity
		ground := khEff * (tSoilLower - tMean) / fluxDepth

		heatCapacity := (1 - c.Soil.Porosity[0]) * c.Soil.Ch[0]
		if tSoilUpper >= 0 {
			heatCapacity += c.SoilState.Moist[0] * chWater
		} else {
			heatCapacity += c.SoilState.Moist[0] * chIce
		}
		storageChange := heatCapacity * (oldTSurf - tMean) * dzTop / Δt

		return c.MeltEnergy + netRad + sensible + latent + ground + storageChange
	}

	tSurf, err := rootfind.Brent(lo, hi, residual)
	if err != nil {
		return err
	}
	c.TSurfSoil = tSurf

	// Record the balance terms at the converged temperature.
	tMean := 0.5 * (oldTSurf + tSurf)
	raCorr := ra
	if c.Met.Wind > 0 {
		raCorr /= evap.StabilityCorrection(reference, 0, tMean, c.Met.Tair, c.Met.Wind, roughness)
	} else {
		raCorr = evap.Huge
	}
	tmp := tMean + 273.15
	c.Qnet = netShort + longIn - radiation.Stefan*tmp*tmp*tmp*tmp
	c.Qs = c.Met.AirDens * evap.CP * (c.Met.Tair - tMean) / raCorr
	c.Qe = -(c.Met.Lv * c.Evap.ETot) / Δt * evap.WaterDensity
	c.Qg = khEff * (tSoilLower - tMean) / fluxDepth

	// Relax the top soil layer temperature toward the surface temperature.
	c.SoilTemp[0] = 0.5 * (c.SoilTemp[0] + tSurf)
	return nil
}

// effectiveKh is the depth-weighted effective thermal conductivity of
// the soil between dzTop and fluxDepth, interpolating between the dry
// and saturated conductivities by the relative saturation of each layer.
func (m *Model) effectiveKh(c *Cell) float64 {
	depth := 0.0
	weighted := 0.0
	total := 0.0
	for i := 0; i < c.Column.NLayers; i++ {
		top := math.Max(depth, dzTop)
		bottom := math.Min(depth+c.Column.RootDepth[i], fluxDepth)
		depth += c.Column.RootDepth[i]
		if bottom <= top {
			continue
		}
		sr := c.SoilState.Moist[i] / c.Soil.Porosity[i]
		if sr > 1 {
			sr = 1
		}
		kh := c.Soil.KhDry[i] + sr*(c.Soil.KhSol[i]-c.Soil.KhDry[i])
		weighted += kh * (bottom - top)
		total += bottom - top
	}
	if total == 0 {
		return snowKhFallback
	}
	return weighted / total
}

// snowKhFallback is used when the heat-flux window lies entirely below
// the root zone.
const snowKhFallback = 0.58

// UpdateSoilTemps returns a manipulator copying station soil
// temperatures to cells when the heat-flux option is off, so the canopy
// resistance still sees a sensible soil temperature.
func UpdateSoilTemps() DomainManipulator {
	return func(m *Model) error {
		if m.Options.HeatFlux {
			return nil
		}
		for _, c := range m.Cells {
			// Stations reporting soil temperatures take precedence;
			// otherwise damp the air temperature.
			var src []float64
			for _, s := range m.Stations {
				if len(s.Data.TSoil) > 0 {
					src = s.Data.TSoil
					break
				}
			}
			for i := range c.SoilTemp {
				if src != nil {
					if i < len(src) {
						c.SoilTemp[i] = src[i]
					} else {
						c.SoilTemp[i] = src[len(src)-1]
					}
				} else {
					c.SoilTemp[i] = 0.9*c.SoilTemp[i] + 0.1*c.Met.Tair
				}
			}
		}
		return nil
	}
}
