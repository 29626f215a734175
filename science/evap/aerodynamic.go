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

// Package evap computes evapotranspiration: aerodynamic resistances from
// canopy wind profiles, Penman–Monteith potential evaporation split into
// wet-canopy evaporation and transpiration, and desorption-limited soil
// evaporation. The formulation follows Wigmosta, Vail and Lettenmaier
// (1994).
package evap

import (
	"fmt"
	"math"
)

// Physical constants shared by the flux calculations.
const (
	// CP is the specific heat of moist air at constant pressure (J/(kg·°C)).
	CP = 1013.0

	// EPS is the ratio of the molecular weights of water vapor and dry air.
	EPS = 0.622

	// WaterDensity is the density of liquid water (kg/m³).
	WaterDensity = 1000.0

	vonKarman = 0.4

	// d0Multiplier converts vegetation height to displacement height.
	d0Multiplier = 0.63

	// z0Multiplier converts vegetation height to roughness length.
	z0Multiplier = 0.13

	// Huge is the aerodynamic resistance used when turbulent exchange is
	// shut off (zero wind or frozen soil): effectively infinite, while
	// keeping divisions finite.
	Huge = 1e20
)

// Profile holds the wind and aerodynamic-resistance factors for a
// vegetation class. The entries are normalized by the reference-level wind
// speed: multiply Wind by the measured wind and divide Ra by it to get the
// actual values.
type Profile struct {
	// Wind and Ra describe up to two canopy levels; index 0 is the upper
	// level (overstory if present, otherwise the only level).
	Wind [2]float64
	Ra   [2]float64

	// WindSnow and RaSnow describe the 2-m level above a snow surface.
	WindSnow float64
	RaSnow   float64
}

// ProfileParams describes the vegetation geometry needed to compute a
// Profile.
type ProfileParams struct {
	OverStory   bool
	NLayers     int        // number of vegetation layers (0–2)
	Height      [2]float64 // layer heights (m), overstory first
	Trunk       float64    // trunk-space height as a fraction of overstory height
	Attenuation float64    // exponential wind attenuation coefficient through the overstory
	ZRef        float64    // reference height for the wind measurement (m)
	Z0Ground    float64    // roughness of bare soil (m)
	Z0Snow      float64    // roughness of snow (m)
}

// NewProfile computes the aerodynamic properties of a vegetation class
// from its geometry, assuming a logarithmic profile above the canopy and
// an exponential profile within it.
func NewProfile(p ProfileParams) (Profile, error) {
	var out Profile
	k2 := vonKarman * vonKarman

	// The 2-m level above snow always follows a bare logarithmic profile.
	out.WindSnow = math.Log((2+p.Z0Snow)/p.Z0Snow) / math.Log(p.ZRef/p.Z0Snow)
	out.RaSnow = math.Log((2+p.Z0Snow)/p.Z0Snow) * math.Log(p.ZRef/p.Z0Snow) / k2

	if !p.OverStory {
		z0, d := p.Z0Ground, 0.0
		if p.NLayers > 0 {
			z0 = z0Multiplier * p.Height[0]
			d = d0Multiplier * p.Height[0]
		}
		out.Wind[0] = math.Log((2+z0)/z0) / math.Log((p.ZRef-d)/z0)
		out.Ra[0] = math.Log((2+z0)/z0) * math.Log((p.ZRef-d)/z0) / k2
		out.Wind[1] = out.Wind[0]
		out.Ra[1] = out.Ra[0]
		return out, nil
	}

	z0Upper := z0Multiplier * p.Height[0]
	dUpper := d0Multiplier * p.Height[0]
	z0Lower, dLower := p.Z0Ground, 0.0
	if p.NLayers > 1 {
		z0Lower = z0Multiplier * p.Height[1]
		dLower = d0Multiplier * p.Height[1]
	}

	zw := 1.5*p.Height[0] - 0.5*dUpper
	zt := p.Trunk * p.Height[0]
	if zt < z0Lower+dLower {
		return out, fmt.Errorf("evap: trunk space height %g below center of lower boundary", zt)
	}
	n, h := p.Attenuation, p.Height[0]

	// Overstory resistance: log profile above the roughness sublayer,
	// exponential through the canopy.
	out.Ra[0] = math.Log((p.ZRef-dUpper)/z0Upper) / k2 *
		(h/(n*(zw-dUpper))*(math.Exp(n*(1-(dUpper+z0Upper)/h))-1) +
			(zw-h)/(zw-dUpper) + math.Log((p.ZRef-dUpper)/(zw-dUpper)))

	uw := math.Log((zw-dUpper)/z0Upper) / math.Log((p.ZRef-dUpper)/z0Upper)
	uh := uw - (1-(h-dUpper)/(zw-dUpper))/math.Log((p.ZRef-dUpper)/z0Upper)
	out.Wind[0] = uh * math.Exp(n*((z0Upper+dUpper)/h-1))
	ut := uh * math.Exp(n*(zt/h-1))

	switch {
	case zt > 2+z0Lower+dLower:
		// Fully logarithmic profile over the 2 m above the lower boundary.
		out.Wind[1] = ut * math.Log((2+z0Lower)/z0Lower) / math.Log((zt-dLower)/z0Lower)
		out.Ra[1] = math.Log((2+z0Lower)/z0Lower) * math.Log((zt-dLower)/z0Lower) / (k2 * ut)
	case h > 2+z0Lower+dLower:
		// Log up to the trunk space, exponential through the rest of the
		// canopy down to 2 m above the lower boundary.
		out.Wind[1] = uh * math.Exp(n*((2+z0Lower+dLower)/h-1))
		out.Ra[1] = math.Log((zt-dLower)/z0Lower)*math.Log((zt-dLower)/z0Lower)/(k2*ut) +
			h*math.Log((p.ZRef-dUpper)/z0Upper)/(n*k2*(zw-dUpper))*
				(math.Exp(n*(1-zt/h))-math.Exp(n*(1-(z0Lower+dLower+2)/h)))
	default:
		// The overstory top is itself below 2 m above the lower boundary.
		out.Wind[1] = uh
		out.Ra[1] = math.Log((zt-dLower)/z0Lower)*math.Log((zt-dLower)/z0Lower)/(k2*ut) +
			h*math.Log((p.ZRef-dUpper)/z0Upper)/(n*k2*(zw-dUpper))*
				(math.Exp(n*(1-zt/h))-1)
	}
	return out, nil
}

// StabilityCorrection returns the multiplicative correction of aerodynamic
// conductance for atmospheric stability using a Richardson-number
// approach. z is the measurement height, d the displacement height.
func StabilityCorrection(z, d, tSurf, tAir, wind, z0 float64) float64 {
	const riCritical = 0.2

	if tSurf == tAir || wind <= 0 {
		return 1
	}

	ri := 9.81 * (tAir - tSurf) * (z - d) /
		(((tAir + 273.15) + (tSurf + 273.15)) / 2 * wind * wind)
	riLimit := (tAir + 273.15) /
		(((tAir + 273.15) + (tSurf + 273.15)) / 2 * (math.Log((z-d)/z0) + 5))
	if ri > riLimit {
		ri = riLimit
	}
	if ri > 0 {
		c := 1 - ri/riCritical
		return c * c
	}
	if ri < -0.5 {
		ri = -0.5
	}
	return math.Sqrt(1 - 16*ri)
}
