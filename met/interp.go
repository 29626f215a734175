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
	"log"
	"math"

	"github.com/spatialmodel/hydromap/science/radiation"
)

// MaxShortwave is the cap on incoming shortwave radiation (W/m²).
const MaxShortwave = 1380.0

// PixelMet is the fully-derived meteorology for one cell and step.
type PixelMet struct {
	Tair float64 // air temperature (°C)
	RH   float64 // relative humidity (%)
	Wind float64 // wind speed (m/s)

	Sin        float64 // incoming shortwave (W/m²)
	SinBeam    float64 // direct beam component (W/m²)
	SinDiffuse float64 // diffuse component (W/m²)
	Lin        float64 // incoming longwave (W/m²)

	Press   float64 // air pressure (Pa)
	Lv      float64 // latent heat of vaporization (J/kg)
	Gamma   float64 // psychrometric constant (Pa/°C)
	Es      float64 // saturation vapor pressure (Pa)
	Eact    float64 // actual vapor pressure (Pa)
	Slope   float64 // slope of the saturation vapor pressure curve (Pa/°C)
	Vpd     float64 // vapor pressure deficit (Pa)
	AirDens float64 // air density (kg/m³)
}

// Precip is the phase-partitioned precipitation for one cell and step.
type Precip struct {
	Total float64 // m/step
	Rain  float64
	Snow  float64
}

// Params are the configurable interpolation constants.
type Params struct {
	MaxSnowTemp      float64 // warmest temperature with snowfall (°C)
	MinRainTemp      float64 // coldest temperature with rain (°C)
	TempLapse        float64 // default temperature lapse rate (°C/m)
	PrecipLapse      float64 // default precipitation lapse rate (1/m)
	PrecipMultiplier float64 // elevation-dependent multiplier (1/m)
	MinElev          float64 // reference elevation for the multiplier (m)
	RhOverride       bool    // force RH to 100% when precipitating
	Shading          bool    // a topographic shading table is in use
}

// SatVaporPressure returns the saturation vapor pressure (Pa) at the
// given temperature (°C) (eq. 4.2.2, Shuttleworth 1993).
func SatVaporPressure(temp float64) float64 {
	return 610.78 * math.Exp(17.269*temp/(237.3+temp))
}

// LapseTemp adjusts a station temperature to a cell elevation.
func LapseTemp(temp, fromElev, toElev, lapseRate float64) float64 {
	return temp + (toElev-fromElev)*lapseRate
}

// LapsePrecip adjusts station precipitation to a cell elevation and
// applies the basin-wide elevation multiplier; the result never goes
// negative.
func LapsePrecip(precip, fromElev, toElev, precipLapse, multiplier, minElev float64) float64 {
	lapsed := precip * (1 + precipLapse*(toElev-fromElev)) *
		(1 + multiplier*(toElev-minElev))
	if lapsed < 0 {
		lapsed = 0
	}
	return lapsed
}

// Interpolate produces the meteorology and precipitation for the cell at
// (x, y) with the given elevation, from the stations' current records and
// the precomputed weights. shadow is the topographic direct-beam
// multiplier for this cell and time of day (ignored unless
// params.Shading), skyview the diffuse attenuation factor, and sunMax the
// top-of-atmosphere flux used for the clearness index.
func Interpolate(stations []*Station, weights []uint8, x, y int, elev float64,
	params Params, shadow uint8, skyview, sunMax float64) (PixelMet, Precip) {

	var m PixelMet
	var weightSum, tempLapse float64
	for _, w := range weights {
		weightSum += float64(w)
	}

	for i, s := range stations {
		cw := float64(weights[i]) / weightSum
		lapse := params.TempLapse
		if s.Format.HasTempLapse {
			lapse = s.Data.TempLapse
		}
		m.Tair += cw * LapseTemp(s.Data.Tair, s.Elev, elev, lapse)
		m.RH += cw * s.Data.RH
		m.Wind += cw * s.Data.Wind
		m.Lin += cw * s.Data.Lin
		m.Sin += cw * s.Data.Sin
		tempLapse += cw * lapse
	}

	if m.RH > 100 {
		log.Printf("met: relative humidity %.1f%% at cell (%d, %d) clamped to 100", m.RH, x, y)
		m.RH = 100
	}
	if m.RH < 0 {
		log.Printf("met: relative humidity %.1f%% at cell (%d, %d) clamped to 0", m.RH, x, y)
		m.RH = 0
	}
	if m.Sin < 0 {
		m.Sin = 0
	}
	if m.Sin > MaxShortwave {
		log.Printf("met: shortwave %.0f W/m² at cell (%d, %d) clamped to %.0f", m.Sin, x, y, MaxShortwave)
		m.Sin = MaxShortwave
	}

	// Barometric pressure from the interpolated lapse rate; with a zero
	// net lapse rate fall back to a standard atmosphere.
	if tempLapse != 0 {
		exp := 9.8067 / (-tempLapse * 287.0)
		m.Press = 101300 * math.Pow((288.0+tempLapse*elev)/288.0, exp)
		if math.IsNaN(m.Press) || m.Press <= 0 {
			m.Press = 101300
		}
	} else {
		m.Press = 101300
	}

	// Split shortwave into beam and diffuse, and apply topographic
	// corrections when shading is enabled.
	if params.Shading && sunMax > 0 {
		beam, diffuse := radiation.Separate(m.Sin, m.Sin/sunMax)
		beam *= float64(shadow) / 255
		diffuse *= skyview
		if beam+diffuse > MaxShortwave {
			beam = MaxShortwave - diffuse
		}
		m.SinBeam, m.SinDiffuse = beam, diffuse
		m.Sin = beam + diffuse
	} else if params.Shading {
		// Sun below the horizon.
		m.Sin, m.SinBeam, m.SinDiffuse = 0, 0, 0
	} else {
		m.SinBeam = m.Sin
		m.SinDiffuse = 0
	}

	// Precipitation, lapse-adjusted per station.
	var p Precip
	for i, s := range stations {
		if !s.Format.HasPrecip {
			continue
		}
		cw := float64(weights[i]) / weightSum
		lapse := params.PrecipLapse
		if s.Format.HasPrecipLapse {
			lapse = s.Data.PrecipLapse
		}
		p.Total += cw * LapsePrecip(s.Data.Precip, s.Elev, elev, lapse,
			params.PrecipMultiplier, params.MinElev)
	}

	if params.RhOverride && p.Total > 0 {
		m.RH = 100
	}

	// Phase partition over the rain/snow temperature window.
	if p.Total > 0 && m.Tair < params.MaxSnowTemp {
		if m.Tair > params.MinRainTemp {
			p.Snow = p.Total * (params.MaxSnowTemp - m.Tair) /
				(params.MaxSnowTemp - params.MinRainTemp)
		} else {
			p.Snow = p.Total
		}
	}
	p.Rain = p.Total - p.Snow

	// Derived quantities (Shuttleworth 1993).
	m.Lv = 2501000 - 2361*m.Tair
	m.Gamma = 1013.0 * m.Press / (0.622 * m.Lv)
	m.Es = SatVaporPressure(m.Tair)
	m.Slope = 4098 * m.Es / ((237.3 + m.Tair) * (237.3 + m.Tair))
	m.Eact = m.Es * m.RH / 100
	m.Vpd = m.Es - m.Eact
	m.AirDens = 0.003486 * m.Press / (275 + m.Tair)
	return m, p
}
