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

// Package radiation partitions incoming shortwave and longwave radiation
// over up to two canopy layers and the ground or snow surface. Canopy
// attenuation is Beer's law with either a fixed extinction coefficient or
// a variable scheme parameterized by leaf-angle constants and the solar
// altitude (Nijssen and Lettenmaier, 1999).
package radiation

import "math"

// Stefan is the Stefan–Boltzmann constant (W/(m²·K⁴)).
const Stefan = 5.6696e-8

// Attenuation schemes for the overstory canopy.
const (
	// AttenuationFixed uses τ = exp(−k·LAI).
	AttenuationFixed = iota
	// AttenuationVariable uses the leaf-angle/solar-altitude scheme.
	AttenuationVariable
)

// Balance holds the radiation components for one cell. Layer index 0 is
// the overstory when present, otherwise the lone surface layer.
type Balance struct {
	NetShort [2]float64 // net shortwave absorbed by each layer (W/m²)
	LongIn   [2]float64 // incoming longwave per layer (W/m²)
	LongOut  [2]float64 // emitted longwave per layer (W/m²)

	PixelNetShort float64 // net shortwave over the whole cell (W/m²)
	PixelLongIn   float64 // downwelling longwave (W/m²)
	PixelLongOut  float64 // cell-average emitted longwave (W/m²)
	Beam, Diffuse float64 // incident beam and diffuse shortwave (W/m²)
}

// Canopy describes the vegetation radiative properties of a cell for the
// current month.
type Canopy struct {
	OverStory      bool
	UnderStory     bool
	Fract          float64    // overstory cover fraction
	ViewFract      float64    // sky-view blocked by the canopy (defaults to Fract)
	LAI            float64    // overstory leaf-area index
	Albedo         [2]float64 // layer albedos
	Atten          float64    // fixed extinction coefficient
	ClumpingFactor float64
	LeafAngleA     float64
	LeafAngleB     float64
	Scat           float64 // scattering adjustment exponent
	Taud           float64 // diffuse transmittance (precomputed per class)
}

// Surface describes the ground state below the canopy.
type Surface struct {
	HasSnow    bool
	SnowAlbedo float64
	SoilAlbedo float64
}

// Transmittance returns the shortwave transmittance of the overstory for
// the given attenuation scheme. sinAlt is the sine of the solar altitude;
// rs, rsb and rsd are total, beam and diffuse incident shortwave.
func Transmittance(scheme int, c Canopy, sinAlt, rs, rsb, rsd float64) float64 {
	if !c.OverStory {
		return 0
	}
	switch scheme {
	case AttenuationVariable:
		if rs <= 0 || sinAlt <= 0 {
			return 0
		}
		taub := math.Exp(-c.LAI / c.ClumpingFactor *
			(c.LeafAngleA/sinAlt + c.LeafAngleB))
		tau := taub*rsb/rs + c.Taud*rsd/rs
		tau = math.Pow(tau, c.Scat)
		return tau / (1 - c.Albedo[0]*c.Albedo[1])
	default:
		return math.Exp(-c.Atten * c.LAI)
	}
}

// Albedos fills in the effective albedo of each layer, substituting the
// snow albedo for the ground when snow is present.
func Albedos(c Canopy, s Surface) [2]float64 {
	var albedo [2]float64
	if c.OverStory {
		albedo[0] = c.Albedo[0]
		switch {
		case s.HasSnow:
			albedo[1] = s.SnowAlbedo
		case c.UnderStory:
			albedo[1] = c.Albedo[1]
		default:
			albedo[1] = s.SoilAlbedo
		}
	} else {
		switch {
		case s.HasSnow:
			albedo[0] = s.SnowAlbedo
		case c.UnderStory:
			albedo[0] = c.Albedo[0]
		default:
			albedo[0] = s.SoilAlbedo
		}
	}
	return albedo
}

// Shortwave computes the net shortwave absorbed by each layer and the
// whole cell. rs is the total incident shortwave after any topographic
// corrections.
func (b *Balance) Shortwave(c Canopy, albedo [2]float64, rs, rsb, rsd, tau float64) {
	b.Beam, b.Diffuse = rsb, rsd
	f := c.Fract
	if c.OverStory {
		b.NetShort[0] = rs * f * ((1 - albedo[0]) - tau*(1-albedo[1]))
		b.NetShort[1] = rs * (1 - albedo[1]) * ((1 - f) + tau*f)
		b.PixelNetShort = rs * (1 - albedo[0]*f - albedo[1]*(1-f))
	} else {
		b.NetShort[0] = rs * (1 - albedo[0])
		b.NetShort[1] = 0
		b.PixelNetShort = b.NetShort[0]
	}
}

// Longwave computes the longwave exchange between the sky, the overstory,
// and the surface. tCanopy and tSurf are in °C. It may be called again
// after the canopy or surface temperature has been updated.
func (b *Balance) Longwave(c Canopy, ld, tCanopy, tSurf float64) {
	f := c.Fract
	b.PixelLongIn = ld
	if c.OverStory {
		tmp := tCanopy + 273.15
		b.LongOut[0] = Stefan * tmp * tmp * tmp * tmp
		tmp = tSurf + 273.15
		b.LongOut[1] = Stefan * tmp * tmp * tmp * tmp

		b.LongIn[0] = (ld + b.LongOut[1]) * f
		b.LongIn[1] = ld*(1-f) + b.LongOut[0]*f

		b.PixelLongOut = b.LongOut[0]*f + b.LongOut[1]*(1-f)
	} else {
		tmp := tSurf + 273.15
		b.LongOut[0] = Stefan * tmp * tmp * tmp * tmp
		b.LongOut[1] = 0
		b.LongIn[0] = ld
		b.LongIn[1] = 0
		b.PixelLongOut = b.LongOut[0]
	}
}

// Separate splits total incident shortwave into beam and diffuse
// components based on the clearness index with respect to top-of-
// atmosphere radiation (Chen and Black relationships for the Pacific
// Northwest).
func Separate(totalSolar, clearIndex float64) (beam, diffuse float64) {
	if clearIndex > 0.8 {
		diffuse = totalSolar * 0.13
	} else {
		diffuse = totalSolar * (0.943 + 0.734*clearIndex -
			4.9*clearIndex*clearIndex +
			1.796*clearIndex*clearIndex*clearIndex +
			2.058*clearIndex*clearIndex*clearIndex*clearIndex)
	}
	if diffuse > totalSolar {
		diffuse = totalSolar
	}
	beam = totalSolar - diffuse
	return beam, diffuse
}
