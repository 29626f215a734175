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

// Package snow simulates a two-layer snowpack (a thin surface layer
// exchanging energy with the atmosphere over a deeper pack layer), canopy
// snow interception, and snow albedo decay. The energy-balance approach
// follows Wigmosta, Vail and Lettenmaier (1994) and Storck (2000).
package snow

import (
	"math"

	"github.com/spatialmodel/hydromap/internal/rootfind"
	"github.com/spatialmodel/hydromap/science/evap"
)

// Physical constants.
const (
	// CHIce is the volumetric heat capacity of ice (J/(m³·°C)).
	CHIce = 2100.0e3

	// CHWater is the volumetric heat capacity of water (J/(m³·°C)).
	CHWater = 4186.8e3

	// LF is the latent heat of fusion (J/kg).
	LF = 333.7e3

	joulesPerCal = 4.1868
	gramsPerKg   = 1000.0

	// deltaT brackets the surface temperature search (°C).
	deltaT = 25.0
)

// Params holds the configurable snow physics constants.
type Params struct {
	MaxSurfaceSWE  float64 // maximum surface-layer water equivalent (m)
	LiquidCapacity float64 // liquid holding capacity as a fraction of ice content
	MinIntStorage  float64 // canopy snow below this can only melt off (m)
	MaxSnowTemp    float64 // warmest temperature at which snow can fall (°C)
	MinRainTemp    float64 // coldest temperature at which rain can fall (°C)
}

// Pack is the snow state of one cell.
type Pack struct {
	HasSnow   bool
	SWE       float64 // total snow water equivalent (m)
	PackWater float64 // liquid water in the pack layer (m)
	SurfWater float64 // liquid water in the surface layer (m)
	TPack     float64 // pack layer temperature (°C)
	TSurf     float64 // surface layer temperature (°C)
	LastSnow  int     // days since last snowfall
	Albedo    float64

	// Step outputs.
	Outflow             float64 // water leaving the bottom of the pack (m/step)
	VaporMassFlux       float64 // vapor exchange with the pack (m/step, negative = sublimation)
	CanopyVaporMassFlux float64 // vapor exchange with intercepted snow (m/step)
	MeltEnergy          float64 // energy used for melt and cold-content change (W/m²)
	Melted              float64 // melt outflow bookkeeping for the ledger (m/step)
}

// Forcing collects the meteorological drivers of a snow step.
type Forcing struct {
	Tair    float64 // air temperature (°C)
	Wind    float64 // wind at 2 m above the snow (m/s)
	AirDens float64 // air density (kg/m³)
	EactAir float64 // actual vapor pressure (Pa)
	Lv      float64 // latent heat of vaporization (J/kg)
	Press   float64 // air pressure (Pa)
	Vpd     float64 // vapor pressure deficit (Pa)

	ShortRad  float64 // net shortwave at the snow surface (W/m²)
	LongRadIn float64 // incoming longwave at the snow surface (W/m²)

	Ra float64 // aerodynamic resistance over snow, uncorrected for stability (s/m)
	Z0 float64 // snow roughness length (m)
}

// SatVaporPressure returns the saturation vapor pressure (Pa) over the
// given temperature (°C) (eq. 4.2.2, Shuttleworth 1993).
func SatVaporPressure(temp float64) float64 {
	return 610.78 * math.Exp(17.269*temp/(237.3+temp))
}

// energyBalance evaluates the surface-layer energy balance residual
// (W/m²) at the candidate surface temperature tSurf, storing the refreeze
// energy and vapor mass flux as side results.
type energyBalance struct {
	dt        float64
	f         Forcing
	rain      float64 // rainfall this step (m)
	surfSWE   float64 // surface layer ice content (m)
	surfWater float64
	oldTSurf  float64

	refreezeEnergy float64
	vaporMassFlux  float64 // m/s here; converted to m/step by the caller
}

func (e *energyBalance) residual(tSurf float64) float64 {
	f := e.f
	tMean := 0.5 * (e.oldTSurf + tSurf)

	ra := f.Ra
	if f.Wind > 0 {
		ra /= evap.StabilityCorrection(2, 0, tMean, f.Tair, f.Wind, f.Z0)
	} else {
		ra = evap.Huge
	}

	tmp := tMean + 273.15
	longRadOut := stefan * tmp * tmp * tmp * tmp
	netRad := f.ShortRad + f.LongRadIn - longRadOut

	sensibleHeat := f.AirDens * evap.CP * (f.Tair - tMean) / ra

	esSnow := SatVaporPressure(tMean)
	e.vaporMassFlux = f.AirDens * (evap.EPS / f.Press) * (f.EactAir - esSnow) / ra
	e.vaporMassFlux /= evap.WaterDensity
	if f.Vpd == 0 && e.vaporMassFlux < 0 {
		e.vaporMassFlux = 0
	}

	var latentHeat float64
	if tMean >= 0 {
		latentHeat = f.Lv * e.vaporMassFlux * evap.WaterDensity
	} else {
		ls := (677. - 0.07*tMean) * joulesPerCal * gramsPerKg
		latentHeat = ls * e.vaporMassFlux * evap.WaterDensity
	}

	advectedEnergy := CHWater * f.Tair * e.rain / e.dt
	deltaColdContent := CHIce * e.surfSWE * (tSurf - e.oldTSurf) / e.dt

	restTerm := netRad + sensibleHeat + latentHeat + advectedEnergy - deltaColdContent

	e.refreezeEnergy = (e.surfWater * LF * evap.WaterDensity) / e.dt
	if tSurf == 0 && restTerm > -e.refreezeEnergy {
		// Available energy beyond the refreeze demand melts ice.
		e.refreezeEnergy = -restTerm
		restTerm = 0
	} else {
		restTerm += e.refreezeEnergy
	}
	return restTerm
}

const stefan = 5.6696e-8

// Melt runs one time step of the two-layer snowpack for a cell: it adds
// snowfall and rain, closes the surface energy balance (root-finding the
// surface temperature when the pack stays cold), refreezes or melts,
// cascades liquid water through the holding capacities, and returns the
// outflow at the base of the pack (m). dt is the step length in seconds.
func (p *Pack) Melt(params Params, f Forcing, rainFall, snowFall, dt float64) (float64, error) {
	initialSWE := p.SWE
	oldTSurf := p.TSurf
	p.MeltEnergy = 0

	ice := p.SWE - p.PackWater - p.SurfWater

	// Reconstruct the layer split.
	surfaceSWE := ice
	if ice > params.MaxSurfaceSWE {
		surfaceSWE = params.MaxSurfaceSWE
	}
	packSWE := ice - surfaceSWE

	surfaceCC := CHIce * surfaceSWE * p.TSurf
	packCC := CHIce * packSWE * p.TPack
	var snowFallCC float64
	if f.Tair <= 0 {
		snowFallCC = CHIce * snowFall * f.Tair
	}

	// Distribute fresh snowfall; spill beyond the surface capacity into
	// the pack along with a proportional share of cold content.
	if snowFall > params.MaxSurfaceSWE-surfaceSWE {
		deltaPackSWE := surfaceSWE + snowFall - params.MaxSurfaceSWE
		var deltaPackCC float64
		if deltaPackSWE > surfaceSWE {
			deltaPackCC = surfaceCC + (snowFall-params.MaxSurfaceSWE)/snowFall*snowFallCC
		} else {
			deltaPackCC = deltaPackSWE / surfaceSWE * surfaceCC
		}
		surfaceSWE = params.MaxSurfaceSWE
		surfaceCC += snowFallCC - deltaPackCC
		packSWE += deltaPackSWE
		packCC += deltaPackCC
	} else {
		surfaceSWE += snowFall
		surfaceCC += snowFallCC
	}
	if surfaceSWE > 0 {
		p.TSurf = surfaceCC / (CHIce * surfaceSWE)
	} else {
		p.TSurf = 0
	}
	if packSWE > 0 {
		p.TPack = packCC / (CHIce * packSWE)
	} else {
		p.TPack = 0
	}

	ice += snowFall
	p.SurfWater += rainFall

	eb := &energyBalance{
		dt: dt, f: f, rain: rainFall,
		surfSWE: surfaceSWE, surfWater: p.SurfWater, oldTSurf: oldTSurf,
	}

	var snowMelt float64
	qnet := eb.residual(0)
	if qnet == 0 {
		// The pack is ripe at the surface; apply refreeze or melt.
		p.TSurf = 0
		if eb.refreezeEnergy >= 0 {
			refrozen := eb.refreezeEnergy / (LF * evap.WaterDensity) * dt
			if refrozen > p.SurfWater {
				refrozen = p.SurfWater
				eb.refreezeEnergy = refrozen * LF * evap.WaterDensity / dt
			}
			p.MeltEnergy += eb.refreezeEnergy
			surfaceSWE += refrozen
			ice += refrozen
			p.SurfWater -= refrozen
		} else {
			snowMelt = math.Abs(eb.refreezeEnergy) / (LF * evap.WaterDensity) * dt
			p.MeltEnergy += eb.refreezeEnergy
		}

		p.VaporMassFlux = eb.vaporMassFlux * dt
		if p.SurfWater < -p.VaporMassFlux {
			p.VaporMassFlux = -p.SurfWater
			p.SurfWater = 0
		} else {
			p.SurfWater += p.VaporMassFlux
		}

		if snowMelt < ice {
			if snowMelt <= packSWE {
				p.SurfWater += snowMelt
				packSWE -= snowMelt
				ice -= snowMelt
			} else {
				p.SurfWater += snowMelt + p.PackWater
				p.PackWater = 0
				packSWE = 0
				ice -= snowMelt
				surfaceSWE = ice
			}
		} else {
			// Complete melt of the pack.
			snowMelt = ice
			p.SurfWater += ice
			surfaceSWE = 0
			p.TSurf = 0
			packSWE = 0
			p.TPack = 0
			ice = 0
		}
	} else {
		// Still-cold pack: find the surface temperature that closes the
		// balance. No melt occurs and surface liquid refreezes.
		tSurf, err := rootfind.Brent(p.TSurf-deltaT, 0, eb.residual)
		if err != nil {
			return 0, err
		}
		p.TSurf = tSurf

		surfaceSWE += p.SurfWater
		ice += p.SurfWater
		p.MeltEnergy += (p.SurfWater * LF * evap.WaterDensity) / dt
		p.SurfWater = 0

		p.VaporMassFlux = eb.vaporMassFlux * dt
		if surfaceSWE < -p.VaporMassFlux {
			p.VaporMassFlux = -surfaceSWE
			surfaceSWE = 0
			ice = packSWE
		} else {
			surfaceSWE += p.VaporMassFlux
			ice += p.VaporMassFlux
		}
	}

	// Cascade excess liquid from the surface layer into the pack.
	var outflow float64
	maxLiquid := params.LiquidCapacity * surfaceSWE
	if p.SurfWater > maxLiquid {
		outflow = p.SurfWater - maxLiquid
		p.SurfWater = maxLiquid
	}
	p.PackWater += outflow

	// Refreeze pack liquid against the pack cold content.
	refreeze := p.PackWater * LF * evap.WaterDensity
	if packCC < -refreeze {
		packSWE += p.PackWater
		ice += p.PackWater
		p.PackWater = 0
		if packSWE > 0 {
			p.TPack = (packCC + refreeze) / (CHIce * packSWE)
		} else {
			p.TPack = 0
		}
	} else {
		p.TPack = 0
		deltaPackSWE := -packCC / (LF * evap.WaterDensity)
		p.PackWater -= deltaPackSWE
		packSWE += deltaPackSWE
		ice += deltaPackSWE
	}

	outflow = 0
	maxLiquid = params.LiquidCapacity * packSWE
	if p.PackWater > maxLiquid {
		outflow = p.PackWater - maxLiquid
		p.PackWater = maxLiquid
	}

	// Rebalance the layer split against the surface cap.
	ice = packSWE + surfaceSWE
	if ice > params.MaxSurfaceSWE {
		surfaceCC = CHIce * p.TSurf * surfaceSWE
		packCC = CHIce * p.TPack * packSWE
		if surfaceSWE > params.MaxSurfaceSWE {
			shift := surfaceSWE - params.MaxSurfaceSWE
			packCC += surfaceCC * shift / surfaceSWE
			surfaceCC -= surfaceCC * shift / surfaceSWE
			packSWE += shift
			surfaceSWE -= shift
		} else if surfaceSWE < params.MaxSurfaceSWE {
			shift := params.MaxSurfaceSWE - surfaceSWE
			deltaCC := packCC * shift / packSWE
			packCC -= deltaCC
			surfaceCC += deltaCC
			packSWE -= shift
			surfaceSWE += shift
		}
		p.TPack = packCC / (CHIce * packSWE)
		p.TSurf = surfaceCC / (CHIce * surfaceSWE)
	} else {
		packSWE = 0
		p.TPack = 0
	}

	p.SWE = ice + p.PackWater + p.SurfWater
	if p.SWE == 0 {
		p.TSurf = 0
		p.TPack = 0
	}
	p.HasSnow = p.SWE > 0
	p.Outflow = outflow
	p.Melted = initialSWE - p.SWE + rainFall + snowFall + p.VaporMassFlux
	return outflow, nil
}
