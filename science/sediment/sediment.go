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

// Package sediment provides the transport physics used by the optional
// sediment routing: Rubey settling velocities, Manning flow geometry, and
// total-load transport capacity after Bagnold (1966), with the
// coefficient approximations of Graf (1971).
package sediment

import "math"

const (
	// ParticleDensity is the sediment particle density (kg/m³).
	ParticleDensity = 2685.0

	// WaterDensity is the density of water (kg/m³).
	WaterDensity = 1000.0

	g = 9.81

	// depthThreshold is the flow depth below which transport shuts off (m).
	depthThreshold = 0.001

	// WashLoadDiameter: particles finer than this (mm) travel as wash
	// load and do not interact with the bed store.
	WashLoadDiameter = 0.062
)

// KinematicViscosity returns the kinematic viscosity of water (mm²/s) as
// a function of temperature (°C).
func KinematicViscosity(temp float64) float64 {
	return 1.79 / (1 + 0.03368*temp + 0.000221*temp*temp)
}

// SettlingVelocity returns the settling velocity (m/s) of a particle of
// diameter ds (m) using Rubey's formula. visc is the kinematic viscosity
// in m²/s.
func SettlingVelocity(ds, visc float64) float64 {
	return math.Sqrt(36*visc*visc/(ds*ds)+0.667*(ParticleDensity-WaterDensity)*g*ds/WaterDensity) -
		6*visc/ds
}

// FlowDepth returns the Manning flow depth (m) for discharge q (m³/s) in
// a rectangular section of the given width, friction coefficient n, and
// slope.
func FlowDepth(q, width, n, slope float64) float64 {
	if q <= 0 || slope <= 0 {
		return 0
	}
	return math.Pow(q*n/(width*math.Sqrt(slope)), 0.6)
}

// Bagnold returns the total-load transport capacity (kg/s of dry mass)
// for particles of diameter ds (m) at discharge q (m³/s) through a
// channel of the given width, Manning friction n, and slope. visc is the
// kinematic viscosity (m²/s).
func Bagnold(ds, q, width, n, slope, visc float64) float64 {
	settling := SettlingVelocity(ds, visc)

	flowDepth := FlowDepth(q, width, n, slope)
	if flowDepth < depthThreshold {
		return 0
	}
	v := q / (flowDepth * width)

	// Stream power per unit bed area (eq. 9.10, Graf 1971).
	streamPower := WaterDensity * g * flowDepth * v * slope

	tau0 := WaterDensity * g * flowDepth * slope
	tauStar := tau0 / (ds * (ParticleDensity - WaterDensity) * g)

	dsmm := ds * 1000

	// Bedload efficiency and friction-angle approximations of Graf's
	// figures 9.3 and 9.4; the original charts have velocity in ft/s.
	a := -0.00125 - 0.0132*dsmm
	b := 0.147 - 0.0132*dsmm
	eb := a*math.Log10(v*3.28) + b

	var tanAlpha float64
	switch {
	case dsmm <= 0.6:
		a = 0.142 - 0.71*dsmm
		b = 0.808 + 0.11*dsmm
		tanAlpha = math.Min(a*math.Log10(tauStar)+b, 0.75)
	case dsmm <= 2.0:
		a = -0.46 + 0.23*dsmm
		b = 1.12 - 0.44*dsmm
		tanAlphaMax := math.Min(0.85-0.29*dsmm, 0.75)
		tanAlpha = math.Min(a*math.Log10(tauStar)+b, tanAlphaMax)
	default:
		tanAlpha = 0.375
	}
	if tanAlpha < 0.375 {
		tanAlpha = 0.375
	}

	// Immersed-weight transport rate per unit width, converted to dry
	// mass per second over the full width.
	totalLoad := streamPower * (eb/tanAlpha + 0.01*v/settling)
	totalLoad /= (1 - WaterDensity/ParticleDensity) * g
	totalLoad *= width
	if totalLoad < 0 {
		totalLoad = 0
	}
	return totalLoad
}
