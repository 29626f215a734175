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

package evap

import "math"

// Met is the subset of interpolated meteorology needed by the flux
// calculations.
type Met struct {
	Slope   float64 // slope of the saturation vapor pressure curve (Pa/°C)
	Gamma   float64 // psychrometric constant (Pa/°C)
	Lv      float64 // latent heat of vaporization (J/kg)
	AirDens float64 // air density (kg/m³)
	Vpd     float64 // vapor pressure deficit (Pa)
}

// LayerDemand holds the evaporative fluxes computed for one vegetation
// layer.
type LayerDemand struct {
	EPot  float64   // potential evaporation rate (m/s)
	EInt  float64   // evaporation of intercepted water (m/step)
	EAct  float64   // transpiration drawn from the soil (m/step)
	ESoil []float64 // transpiration per soil layer (m/step)
}

// CanopyParams describes the vegetation layer being evaporated from.
type CanopyParams struct {
	Fract      float64   // fractional cover
	LAI        float64   // leaf-area index
	MaxInt     float64   // maximum interception storage (m)
	RsMin      float64   // minimum stomatal resistance (s/m)
	RsMax      float64   // maximum (cuticular) stomatal resistance (s/m)
	Rpc        float64   // light level where stomatal resistance is twice its minimum (W/m²)
	VpdThres   float64   // VPD above which stomata close (Pa)
	MoistThres float64   // soil moisture above which transpiration is unrestricted
	RootFract  []float64 // fraction of roots in each soil layer
	RootDepth  []float64 // soil layer thicknesses (m)
}

// SoilState is the per-layer soil state read and written by
// Transpiration.
type SoilState struct {
	WiltingPoint []float64 // per soil layer
	Temp         []float64 // soil temperature per layer (°C)
	Moist        []float64 // volumetric moisture per layer
	Adjust       []float64 // cut-bank storage adjustment per layer
}

// Penman returns the potential evaporation rate (m/s) from Penman's
// combination equation, reduced by the moisture flux already claimed by
// higher layers (moistureFlux, m over the step).
func Penman(met Met, netRad, ra, moistureFlux float64, dt float64) float64 {
	ePot := (met.Slope*netRad + met.AirDens*CP*met.Vpd/ra) /
		(WaterDensity * met.Lv * (met.Slope + met.Gamma))
	ePot -= moistureFlux / dt
	if ePot < 0 {
		ePot = 0
	}
	return ePot
}

// CanopyResistance returns the canopy resistance (s/m) for transpiration
// limited by soil temperature, vapor pressure deficit, light level, and a
// soil-moisture factor that rises linearly from the wilting point to
// moistThres (eqs. 14–16, Wigmosta et al. 1994). rp is the visible-band
// radiation flux.
func CanopyResistance(c CanopyParams, wiltingPoint, tSoil, soilMoisture, vpd, rp float64) float64 {
	if tSoil <= 0 {
		return Huge
	}
	tFactor := 1 / (0.176 + 0.0770*tSoil - 0.0018*tSoil*tSoil)
	if tFactor <= 0 {
		return Huge
	}
	if vpd >= c.VpdThres {
		return Huge
	}
	vpdFactor := 1 / (1 - vpd/c.VpdThres)
	rpFactor := 1 / ((c.RsMin/c.RsMax + rp/c.Rpc) / (1 + rp/c.Rpc))

	var moistFactor float64
	switch {
	case soilMoisture <= wiltingPoint:
		return Huge
	case soilMoisture < c.MoistThres:
		moistFactor = (c.MoistThres - wiltingPoint) / (soilMoisture - wiltingPoint)
	default:
		moistFactor = 1
	}
	return tFactor * vpdFactor * rpFactor * moistFactor * c.RsMin / c.LAI
}

// Transpiration evaporates intercepted water and transpires soil water for
// one vegetation layer. It updates the interception storage (intStorage)
// and the soil moisture profile, and returns the layer fluxes.
//
// The wet (previously intercepted) leaf fraction is
// (storage/capacity)^(2/3); transpiration acts on the dry fraction while
// interception storage lasts, and on all leaves afterward. All water
// amounts are pixel depths; partial-cover conversion happens internally
// using c.Fract.
func Transpiration(c CanopyParams, met Met, soil *SoilState, netRad, rp, ra,
	moistureFlux float64, intStorage *float64, dt float64) LayerDemand {

	d := LayerDemand{ESoil: make([]float64, len(soil.Moist))}

	f := c.Fract
	storage := *intStorage / f
	maxInt := c.MaxInt / f
	netRad /= f
	moistureFlux /= f

	d.EPot = Penman(met, netRad, ra, moistureFlux, dt)

	// Wet-leaf fraction (storage/capacity)^(2/3); the dry remainder
	// transpires while interception water lasts.
	var wetArea float64
	if maxInt > 0 {
		wetArea = math.Cbrt(storage / maxInt)
		wetArea *= wetArea
	}

	// Time split between evaporating the stored interception and
	// transpiring from dry leaves.
	var wetEvapTime, dryEvapTime float64
	wetEvapRate := wetArea * d.EPot
	if wetEvapRate > 0 {
		wetEvapTime = storage / wetEvapRate
		if wetEvapTime > dt {
			wetEvapTime = dt
		}
		if wetEvapTime < dt {
			d.EInt = storage
			storage = 0
			dryEvapTime = dt - wetEvapTime
		} else {
			d.EInt = dt * wetEvapRate
			storage -= d.EInt
			dryEvapTime = 0
		}
	} else if storage > 0 {
		wetEvapTime = dt
	} else {
		dryEvapTime = dt
	}

	d.EInt *= f
	*intStorage = storage * f

	for i := range soil.Moist {
		rc := CanopyResistance(c, soil.WiltingPoint[i], soil.Temp[i], soil.Moist[i], met.Vpd, rp)
		rate := (met.Slope + met.Gamma) / (met.Slope + met.Gamma*(1+rc/ra)) *
			c.RootFract[i] * d.EPot * soil.Adjust[i]
		amount := rate * (wetEvapTime*(1-wetArea) + dryEvapTime)

		soilMoisture := soil.Moist[i] * c.RootDepth[i] * soil.Adjust[i]
		if soilMoisture < amount {
			amount = soilMoisture
		}
		amount *= f
		soilMoisture -= amount
		soil.Moist[i] = soilMoisture / (c.RootDepth[i] * soil.Adjust[i])

		d.ESoil[i] = amount
		d.EAct += amount
	}
	return d
}

// Desorption returns the volume of water (m) the top soil layer can
// deliver to the atmosphere during a step of dt seconds, from the
// Brooks–Corey sorptivity (eq. 46, Wigmosta et al. 1994). press is the
// soil bubbling pressure (m) and m the pore-size distribution index.
func Desorption(dt, moist, porosity, ks, press, m float64) float64 {
	if moist > porosity {
		moist = porosity
	}
	sorptivity := math.Sqrt((8*porosity*ks*press)/(3*(1+3*m)*(1+4*m))) *
		math.Pow(moist/porosity, 1/(2*m)+2)
	return sorptivity * math.Sqrt(dt)
}

// SoilEvaporation evaporates water directly from the top soil layer when
// it is exposed (no snow and no understory). It truncates the demand at
// the desorption volume and the available moisture, updates moist, and
// returns the evaporated depth (m). transpiration is the moisture flux
// already claimed by the canopy above.
func SoilEvaporation(dt float64, met Met, netRad, raSoil, transpiration,
	porosity, ks, press, m, rootDepth float64, moist *float64, adjust float64) float64 {

	desorption := Desorption(dt, *moist, porosity, ks, press, m)

	ePot := (met.Slope*netRad + met.AirDens*CP*met.Vpd/raSoil) /
		(WaterDensity * met.Lv * (met.Slope + met.Gamma)) * dt
	ePot -= transpiration
	if ePot < 0 {
		ePot = 0
	}

	soilEvap := math.Min(ePot, desorption) * adjust
	soilMoisture := *moist * rootDepth * adjust
	if soilEvap > soilMoisture {
		soilEvap = soilMoisture
		*moist = 0
	} else {
		soilMoisture -= soilEvap
		*moist = soilMoisture / (rootDepth * adjust)
	}
	return soilEvap
}
