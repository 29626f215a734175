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

package snow

import (
	"math"

	"github.com/spatialmodel/hydromap/science/evap"
)

// Canopy is the intercepted-snow state of the overstory in one cell.
type Canopy struct {
	IntRain        float64 // intercepted liquid water (m)
	IntSnow        float64 // intercepted snow water equivalent (m)
	TempIntStorage float64 // melt/rain buffer used by mass release (m)
	Tcanopy        float64 // canopy temperature (°C)
}

// InterceptParams describes the intercepting overstory.
type InterceptParams struct {
	Fract         float64 // overstory cover fraction
	MaxInt        float64 // maximum rain interception (m)
	MaxSnowIntCap float64 // maximum snow interception capacity (m)
	MassDripRatio float64 // mass released per unit of drip
	SnowIntEff    float64 // fraction of snowfall intercepted
	Ra            float64 // overstory aerodynamic resistance (s/m)
	Height        float64 // overstory height (m)
}

// Intercept runs canopy snow interception for one step: snowfall loads
// the canopy up to a temperature-dependent capacity, the canopy energy
// balance melts or refreezes the load, and excess mass unloads
// structurally or through melt-driven mass release. rainFall and snowFall
// are updated in place to the throughfall amounts reaching the ground.
// netShort and longIn are the radiation components at the canopy;
// the updated canopy temperature is stored in c.Tcanopy.
func (c *Canopy) Intercept(params Params, p InterceptParams, f Forcing,
	rainFall, snowFall *float64, vaporMassFlux *float64, meltEnergy *float64,
	netShort, longIn, dt float64) {

	initialSnowInt := c.IntSnow
	drip := 0.0
	releasedMass := 0.0

	// Kobayashi (1986): cold canopies hold far less snow.
	maxSnowInt := p.MaxSnowIntCap
	if f.Tair <= -5 {
		maxSnowInt *= 0.25
	}
	maxIntercept := p.MaxSnowIntCap

	deltaSnowInt := p.SnowIntEff * *snowFall
	if deltaSnowInt+c.IntSnow > maxSnowInt {
		deltaSnowInt = maxSnowInt - c.IntSnow
	}
	if deltaSnowInt < 0 {
		deltaSnowInt = 0
	}

	fract := p.Fract
	snowThroughFall := (*snowFall-deltaSnowInt)*fract + *snowFall*(1-fract)
	c.IntSnow += deltaSnowInt

	// Interception storages are depths over the covered area; throughfall
	// depths are over the whole pixel.
	maxWaterInt := params.LiquidCapacity*c.IntSnow + p.MaxInt
	var rainThroughFall float64
	if c.IntRain+*rainFall <= maxWaterInt {
		rainThroughFall = *rainFall * (1 - fract)
		c.IntRain += *rainFall
	} else {
		rainThroughFall = (c.IntRain+*rainFall-maxWaterInt)*fract + *rainFall*(1-fract)
		c.IntRain = maxWaterInt
	}

	// Structural unloading when the branches are overloaded; chunks come
	// off in their current ice/liquid proportions.
	if c.IntRain+c.IntSnow > maxIntercept {
		overload := c.IntRain + c.IntSnow - maxIntercept
		snowFrac := c.IntSnow / (c.IntSnow + c.IntRain)
		rainFrac := c.IntRain / (c.IntSnow + c.IntRain)
		snowThroughFall += overload * snowFrac * fract
		rainThroughFall += overload * rainFrac * fract
		c.IntSnow -= overload * snowFrac
		c.IntRain -= overload * rainFrac
	}

	// Canopy temperature: air temperature, capped at freezing while snow
	// is held.
	if f.Tair > 0 {
		c.Tcanopy = 0
	} else {
		c.Tcanopy = f.Tair
	}

	tmp := c.Tcanopy + 273.15
	longOut := stefan * tmp * tmp * tmp * tmp
	netRadiation := (netShort + longIn - 2*fract*longOut) / fract

	// Vapor exchange with the intercepted snow; the snow-covered canopy
	// resistance is an order of magnitude higher (Lundberg et al. 1998).
	esSnow := SatVaporPressure(c.Tcanopy)
	*vaporMassFlux = f.AirDens * (evap.EPS / f.Press) * (f.EactAir - esSnow) / (p.Ra * 10)
	*vaporMassFlux /= evap.WaterDensity
	if f.Vpd == 0 && *vaporMassFlux < 0 {
		*vaporMassFlux = 0
	}

	ls := (677. - 0.07*c.Tcanopy) * joulesPerCal * gramsPerKg
	latentHeat := ls * *vaporMassFlux * evap.WaterDensity
	sensibleHeat := f.AirDens * evap.CP * (f.Tair - c.Tcanopy) / (p.Ra * 10)
	advectedEnergy := CHWater * f.Tair * *rainFall / dt

	refreezeEnergy := (sensibleHeat + latentHeat + netRadiation + advectedEnergy) * dt

	maxWaterInt = params.LiquidCapacity*c.IntSnow + p.MaxInt

	if refreezeEnergy > 0 {
		// Energy available to melt intercepted snow.
		*vaporMassFlux *= dt
		if -*vaporMassFlux > c.IntRain {
			*vaporMassFlux = -c.IntRain
			c.IntRain = 0
		} else {
			c.IntRain += *vaporMassFlux
		}

		potSnowMelt := math.Min(refreezeEnergy/(LF*evap.WaterDensity), c.IntSnow)
		*meltEnergy -= fract * potSnowMelt * LF * evap.WaterDensity / dt

		if c.IntRain+potSnowMelt <= maxWaterInt {
			// Melt is absorbed by the liquid holding capacity.
			c.IntSnow -= potSnowMelt
			c.IntRain += potSnowMelt
		} else {
			excessSnowMelt := potSnowMelt + c.IntRain - maxWaterInt
			// Only the absorbed part converts to liquid here; the excess
			// stays on the branches until it drips or releases below.
			c.IntSnow -= maxWaterInt - c.IntRain
			c.IntRain = maxWaterInt
			if c.IntSnow < 0 {
				c.IntSnow = 0
			}

			if snowThroughFall > 0 && initialSnowInt <= params.MinIntStorage {
				// Little load at the start of the step: melt drips off as
				// it is intercepted, no mass release.
				drip += excessSnowMelt
				c.IntSnow -= excessSnowMelt
				if c.IntSnow < 0 {
					c.IntSnow = 0
				}
			} else {
				c.TempIntStorage += excessSnowMelt
				c.MassRelease(params, &releasedMass, &drip, p.MassDripRatio)
			}
			maxWaterInt = params.LiquidCapacity*c.IntSnow + p.MaxInt
			if c.IntRain > maxWaterInt {
				drip += c.IntRain - maxWaterInt
				c.IntRain = maxWaterInt
			}
		}
	} else {
		// Refreeze intercepted liquid with the available cold.
		c.TempIntStorage = 0
		*vaporMassFlux *= dt
		if -*vaporMassFlux > c.IntSnow {
			*vaporMassFlux = -c.IntSnow
			c.IntSnow = 0
		} else {
			c.IntSnow += *vaporMassFlux
		}
		potRefreeze := math.Min(-refreezeEnergy/(LF*evap.WaterDensity), c.IntRain)
		c.IntSnow += potRefreeze
		c.IntRain -= potRefreeze
		*meltEnergy += fract * potRefreeze * LF * evap.WaterDensity / dt
	}

	*rainFall = rainThroughFall + drip*fract
	*snowFall = snowThroughFall + releasedMass*fract
	if *rainFall < 0 {
		*rainFall = 0
	}
	if *snowFall < 0 {
		*snowFall = 0
	}
	// Convert the vapor exchange to a pixel depth.
	*vaporMassFlux *= fract
}

// MassRelease converts melt buffered in TempIntStorage into drip and,
// when enough snow remains on the branches, a proportional mass release
// of intercepted snow.
func (c *Canopy) MassRelease(params Params, releasedMass, drip *float64, mdRatio float64) {
	if c.IntSnow > params.MinIntStorage {
		if c.TempIntStorage >= 0 {
			*drip += c.TempIntStorage
			c.IntSnow -= c.TempIntStorage
			var release float64
			if c.IntSnow >= params.MinIntStorage {
				release = math.Min(c.IntSnow-params.MinIntStorage,
					c.TempIntStorage*mdRatio)
			}
			*releasedMass += release
			c.IntSnow -= release
			c.TempIntStorage = 0
		} else {
			d := math.Min(c.TempIntStorage, c.IntSnow)
			*drip += d
			c.IntSnow -= d
		}
	} else {
		// Below the minimum load only melt-off is possible.
		d := math.Min(c.TempIntStorage, c.IntSnow)
		*drip += d
		c.IntSnow -= d
		c.TempIntStorage = 0
	}
}
