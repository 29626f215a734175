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
	"errors"
	"sync"

	"github.com/spatialmodel/hydromap/internal/rootfind"
	"github.com/spatialmodel/hydromap/met"
	"github.com/spatialmodel/hydromap/science/evap"
	"github.com/spatialmodel/hydromap/science/radiation"
	"github.com/spatialmodel/hydromap/science/snow"
)

// visFract is the part of shortwave in the visible spectrum.
const visFract = 0.5

// stepContext holds the per-step scalars shared by all cells.
type stepContext struct {
	sinAlt float64
	sunMax float64
	month  int

	mu  sync.Mutex
	err error
}

func (s *stepContext) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// InterpolateForcing returns the manipulator that advances the station
// records to the current step and populates every active cell's
// meteorology, snow age and albedo.
func (m *Model) InterpolateForcing() DomainManipulator {
	return func(m *Model) error {
		m.step.err = nil
		for _, s := range m.Stations {
			if err := s.Advance(m.Clock.Current); err != nil {
				if errors.Is(err, met.ErrDateMismatch) {
					return cellError(CodeMetDateMismatch, -1, -1, m.Clock.Step, err, "forcing record missing")
				}
				return newError(CodeIO, "reading station %s: %v", s.Name, err)
			}
		}

		hour := float64(m.Clock.Current.Hour) + float64(m.Clock.Current.Min)/60
		m.step.sinAlt, m.step.sunMax = radiation.SolarPosition(m.Clock.Current.JDay, hour, m.Params.Latitude)
		m.step.month = m.Clock.Current.Month

		albedo := m.Params.AlbedoParams()
		for _, c := range m.Cells {
			shadow := uint8(255)
			skyview := 1.0
			if m.Options.Shading {
				if m.ShadowFactor != nil {
					shadow = m.ShadowFactor(m.Clock.DayStep, c.X, c.Y)
				}
				if m.SkyView != nil {
					skyview = m.SkyView[c.Index]
				}
			}
			c.Shadow, c.SkyView = shadow, skyview
			c.Met, c.Precip = met.Interpolate(m.Stations, m.Weights.At(c.X, c.Y), c.X, c.Y,
				c.Elev, m.MetParams, shadow, skyview, m.step.sunMax)

			if c.Snow.HasSnow {
				if c.Precip.Snow > 0 {
					c.Snow.LastSnow = 0
				} else {
					c.Snow.LastSnow++
				}
				age := c.Snow.LastSnow / m.Clock.NDaySteps
				c.Snow.Albedo = albedo.Decay(c.Snow.TSurf, age)
			} else {
				c.Snow.LastSnow = 0
				c.Snow.Albedo = albedo.Fresh
			}
		}
		return nil
	}
}

// CellStep returns the cell manipulator implementing the per-cell
// mass-and-energy balance: radiation, interception, snow, ET, surface
// water and unsaturated soil water. It must run behind InterpolateForcing
// and before the lateral sweeps.
func (m *Model) CellStep() CellManipulator {
	return func(c *Cell, Δt float64) {
		if m.step.err != nil {
			return
		}
		c.resetStepFluxes()
		c.TableSnapshot = c.SoilState.TableDepth

		rainFall := c.Precip.Rain
		snowFall := c.Precip.Snow
		moistureFlux := 0.0

		// 1. Radiation balance with last step's surface temperatures.
		m.radiationBalance(c)

		// 2. Canopy interception.
		upperWind := c.Veg.Profile.Wind[0] * c.Met.Wind
		upperRa, lowerRa := m.aerodynamicResistances(c)

		if c.Veg.OverStory && (c.SnowCan.IntSnow > 0 || snowFall > 0) {
			c.SnowCan.IntRain = c.IntRain[0] / c.Veg.Fract[0]
			f := snow.Forcing{
				Tair: c.Met.Tair, Wind: upperWind, AirDens: c.Met.AirDens,
				EactAir: c.Met.Eact, Lv: c.Met.Lv, Press: c.Met.Press, Vpd: c.Met.Vpd,
				Ra: upperRa,
			}
			ip := snow.InterceptParams{
				Fract:         c.Veg.Fract[0],
				MaxInt:        c.Veg.MaxInt(0, m.step.month, m.Params.LAIWaterMult) / c.Veg.Fract[0],
				MaxSnowIntCap: m.Params.LAISnowMult * c.Veg.LAI(0, m.step.month),
				MassDripRatio: c.Veg.MassDripRatio,
				SnowIntEff:    c.Veg.SnowIntEff,
				Ra:            upperRa,
				Height:        c.Veg.Height[0],
			}
			c.SnowCan.Intercept(m.Params.SnowParams(), ip, f, &rainFall, &snowFall,
				&c.Snow.CanopyVaporMassFlux, &c.MeltEnergy,
				c.Rad.NetShort[0], c.Rad.LongIn[0], Δt)
			c.IntRain[0] = c.SnowCan.IntRain * c.Veg.Fract[0]
			moistureFlux -= c.Snow.CanopyVaporMassFlux

			// The canopy temperature changed; refresh the longwave terms.
			c.Rad.Longwave(m.radCanopy(c), c.Met.Lin, c.SnowCan.Tcanopy, m.surfaceTemp(c))
		} else if c.Veg.NVegLayers() > 0 {
			c.SnowCan.Tcanopy = c.Met.Tair
			c.Snow.CanopyVaporMassFlux = 0
			c.SnowCan.TempIntStorage = 0
			m.interceptRain(c, &rainFall)
		}

		// 3. Snowpack.
		if c.Snow.HasSnow || snowFall > 0 {
			snowNetShort, snowLongIn := c.Rad.NetShort[0], c.Rad.LongIn[0]
			if c.Veg.OverStory {
				snowNetShort, snowLongIn = c.Rad.NetShort[1], c.Rad.LongIn[1]
			}
			f := snow.Forcing{
				Tair: c.Met.Tair, Wind: c.Veg.Profile.WindSnow * c.Met.Wind,
				AirDens: c.Met.AirDens, EactAir: c.Met.Eact, Lv: c.Met.Lv,
				Press: c.Met.Press, Vpd: c.Met.Vpd,
				ShortRad: snowNetShort, LongRadIn: snowLongIn,
				Ra: c.Veg.Profile.RaSnow / c.Met.Wind, Z0: m.Params.Z0Snow,
			}
			if c.Met.Wind <= 0 {
				f.Ra = evap.Huge
			}
			outflow, err := c.Snow.Melt(m.Params.SnowParams(), f, rainFall, snowFall, Δt)
			if err != nil {
				m.step.setErr(rootErr(err, c, m.Clock.Step))
				return
			}
			c.Snow.Outflow = outflow
			c.MeltEnergy += c.Snow.MeltEnergy
			rainFall = 0 // absorbed into the pack's liquid storage
			moistureFlux -= c.Snow.VaporMassFlux

			c.Rad.Longwave(m.radCanopy(c), c.Met.Lin, c.SnowCan.Tcanopy, c.Snow.TSurf)
		}

		// 4. Evapotranspiration from each layer above the surface.
		m.evapotranspiration(c, lowerRa, upperRa, &moistureFlux, Δt)

		// 5. Surface water accounting and infiltration.
		m.surfaceWater(c, rainFall, Δt)

		// Segment-level radiation for the stream-temperature consumer.
		if m.Options.StreamTemp && m.Streams.HasChannel(c.Index) {
			m.Streams.IncRadiation(c.Index, c.Rad.PixelNetShort, c.Met.Lin)
		}

		// 6. Soil surface energy balance.
		if m.Options.HeatFlux {
			if err := m.sensibleHeatFlux(c, lowerRa, moistureFlux, Δt); err != nil {
				m.step.setErr(rootErr(err, c, m.Clock.Step))
				return
			}
			c.Rad.Longwave(m.radCanopy(c), c.Met.Lin, c.SnowCan.Tcanopy, c.TSurfSoil)
		} else {
			c.TSurfSoil = c.Met.Tair
			c.Qe = -(c.Met.Lv * c.Evap.ETot) / Δt * evap.WaterDensity
			c.Qnet, c.Qs, c.Qg = 0, 0, 0
		}
	}
}

// rootErr maps root-finder failures to their fatal error codes.
func rootErr(err error, c *Cell, step int) error {
	switch {
	case errors.Is(err, rootfind.ErrNotBracketed):
		return cellError(CodeRootNotBracketed, c.X, c.Y, step, err, "root not bracketed")
	case errors.Is(err, rootfind.ErrMaxIter):
		return cellError(CodeRootMaxIter, c.X, c.Y, step, err, "root-finder iterations exceeded")
	}
	return err
}

// CheckStepError surfaces any fatal error recorded during the parallel
// cell sweep.
func CheckStepError() DomainManipulator {
	return func(m *Model) error {
		return m.step.err
	}
}

// radCanopy assembles the radiation canopy descriptor for the current
// month.
func (m *Model) radCanopy(c *Cell) radiation.Canopy {
	v := c.Veg
	rc := radiation.Canopy{
		OverStory:      v.OverStory,
		UnderStory:     v.UnderStory,
		Fract:          v.Fract[0],
		LAI:            v.LAI(0, m.step.month),
		Atten:          v.RadAtten,
		ClumpingFactor: v.ClumpingFactor,
		LeafAngleA:     v.LeafAngleA,
		LeafAngleB:     v.LeafAngleB,
		Scat:           v.Scattering,
		Taud:           v.Taud,
	}
	rc.Albedo[0] = v.Albedo(0, m.step.month)
	if v.NVegLayers() > 1 {
		rc.Albedo[1] = v.Albedo(1, m.step.month)
	}
	return rc
}

// surfaceTemp is the temperature of the surface below the canopy used in
// the longwave balance.
func (m *Model) surfaceTemp(c *Cell) float64 {
	switch {
	case c.Snow.HasSnow:
		return c.Snow.TSurf
	case m.Options.HeatFlux:
		return c.TSurfSoil
	}
	return c.Met.Tair
}

// radiationBalance computes the cell shortwave and longwave budgets,
// including the optional canopy-gap adjustment.
func (m *Model) radiationBalance(c *Cell) {
	rc := m.radCanopy(c)
	surf := radiation.Surface{
		HasSnow:    c.Snow.HasSnow,
		SnowAlbedo: c.Snow.Albedo,
		SoilAlbedo: c.Soil.Albedo,
	}
	albedo := radiation.Albedos(rc, surf)

	scheme := radiation.AttenuationFixed
	if m.Options.CanopyRadAtt == CanopyRadAttVariable {
		scheme = radiation.AttenuationVariable
	}
	tau := radiation.Transmittance(scheme, rc, m.step.sinAlt, c.Met.Sin, c.Met.SinBeam, c.Met.SinDiffuse)

	c.Rad.Shortwave(rc, albedo, c.Met.Sin, c.Met.SinBeam, c.Met.SinDiffuse, tau)
	c.Rad.Longwave(rc, c.Met.Lin, c.SnowCan.Tcanopy, m.surfaceTemp(c))

	// Canopy-gap option: the gap floor sees a different sky; area-weight
	// its budget against the forested remainder.
	if m.Options.CanopyGapping && c.Gap != nil && c.GapFract > 0 {
		floorAlbedo := albedo[1]
		if !rc.OverStory {
			floorAlbedo = albedo[0]
		}
		gapShort := c.Gap.Shortwave(m.step.sinAlt, c.Met.SinBeam, c.Met.SinDiffuse,
			c.Veg.RadAtten, c.Veg.Taud, floorAlbedo)
		gapLong := c.Gap.Longwave(c.Met.Lin, c.SnowCan.Tcanopy, c.Veg.Fract[0])
		c.Rad.NetShort[1] = c.Rad.NetShort[1]*(1-c.GapFract) + gapShort*c.GapFract
		c.Rad.LongIn[1] = c.Rad.LongIn[1]*(1-c.GapFract) + gapLong*c.GapFract
	}
}

// aerodynamicResistances converts the per-class resistance factors to
// actual resistances using the current wind speed.
func (m *Model) aerodynamicResistances(c *Cell) (upperRa, lowerRa float64) {
	if c.Met.Wind <= 0 {
		return evap.Huge, evap.Huge
	}
	upperRa = c.Veg.Profile.Ra[0] / c.Met.Wind
	lowerRa = upperRa
	if c.Veg.OverStory {
		lowerRa = c.Veg.Profile.Ra[1] / c.Met.Wind
	}
	return upperRa, lowerRa
}

// interceptRain stores throughfall in the vegetation layers above snow,
// limited by each layer's storage capacity.
func (m *Model) interceptRain(c *Cell, rainFall *float64) {
	nAct := c.nVegLayersAboveSnow()
	for l := 0; l < nAct; l++ {
		maxInt := c.Veg.MaxInt(l, m.step.month, m.Params.LAIWaterMult)
		available := maxInt - c.IntRain[l]
		intercepted := *rainFall * c.Veg.Fract[l]
		if intercepted > available {
			intercepted = available
		}
		if intercepted < 0 {
			intercepted = 0
		}
		*rainFall -= intercepted
		c.IntRain[l] += intercepted
	}
}

// evapotranspiration runs the layered Penman–Monteith demand cascade and
// soil evaporation.
func (m *Model) evapotranspiration(c *Cell, lowerRa, upperRa float64, moistureFlux *float64, Δt float64) {
	month := m.step.month
	em := evap.Met{
		Slope: c.Met.Slope, Gamma: c.Met.Gamma, Lv: c.Met.Lv,
		AirDens: c.Met.AirDens, Vpd: c.Met.Vpd,
	}
	soilSt := &evap.SoilState{
		WiltingPoint: c.Soil.WiltingPoint,
		Temp:         c.SoilTemp,
		Moist:        c.SoilState.Moist,
		Adjust:       c.Column.Adjust,
	}

	layer := func(l int, ra, netRad float64) {
		cp := evap.CanopyParams{
			Fract:      c.Veg.Fract[l],
			LAI:        c.Veg.LAI(l, month),
			MaxInt:     c.Veg.MaxInt(l, month, m.Params.LAIWaterMult),
			RsMin:      c.Veg.RsMin[l],
			RsMax:      c.Veg.RsMax[l],
			Rpc:        c.Veg.Rpc[l],
			VpdThres:   c.Veg.VpdThres[l],
			MoistThres: c.Veg.MoistThres[l],
			RootFract:  c.Veg.RootFract[l],
			RootDepth:  c.Veg.RootDepth,
		}
		rp := visFract * c.Rad.NetShort[l]
		d := evap.Transpiration(cp, em, soilSt, netRad, rp, ra, *moistureFlux, &c.IntRain[l], Δt)
		c.Evap.EPot[l] = d.EPot
		c.Evap.EInt[l] = d.EInt
		c.Evap.EAct[l] = d.EAct
		c.Evap.ETot += d.EInt + d.EAct
		*moistureFlux += d.EAct + d.EInt
	}

	if c.Veg.OverStory {
		netRad := c.Rad.NetShort[0] + c.Rad.LongIn[0] - 2*c.Veg.Fract[0]*c.Rad.LongOut[0]
		layer(0, upperRa, netRad)
		if !c.Snow.HasSnow && c.Veg.UnderStory {
			netRad = c.Rad.NetShort[1] + c.Rad.LongIn[1] - c.Veg.Fract[1]*c.Rad.LongOut[1]
			layer(1, lowerRa, netRad)
		}
	} else if !c.Snow.HasSnow && c.Veg.UnderStory {
		netRad := c.Rad.NetShort[0] + c.Rad.LongIn[0] - c.Veg.Fract[0]*c.Rad.LongOut[0]
		layer(0, lowerRa, netRad)
	}

	// Bare soil evaporation only when the top layer is exposed.
	if !c.Snow.HasSnow && !c.Veg.UnderStory {
		var netRad float64
		if c.Veg.OverStory {
			netRad = c.Rad.NetShort[1] + c.Rad.LongIn[1] - c.Rad.LongOut[1]
		} else {
			netRad = c.Rad.NetShort[0] + c.Rad.LongIn[0] - c.Rad.LongOut[0]
		}
		c.Evap.EvapSoil = evap.SoilEvaporation(Δt, em, netRad, lowerRa, *moistureFlux,
			c.Soil.Porosity[0], c.Soil.Ks[0], c.Soil.BubblePress[0], c.Soil.PoreDist[0],
			c.Veg.RootDepth[0], &c.SoilState.Moist[0], c.Column.Adjust[0])
		*moistureFlux += c.Evap.EvapSoil
		c.Evap.ETot += c.Evap.EvapSoil
	}
}

// surfaceWater partitions surface input between the channel, the road,
// and infiltration, then runs the vertical soil water update.
func (m *Model) surfaceWater(c *Cell, rainFall float64, Δt float64) {
	cellArea := m.Meta.CellArea()
	chanArea, roadArea := m.channelAreas(c)

	percArea := 1.0
	channelWater := 0.0
	var maxRoadbedInfiltration float64

	hasStream := m.Streams.HasChannel(c.Index)
	hasRoad := m.Roads.HasChannel(c.Index)

	switch {
	case hasStream:
		percArea = 1 - (chanArea+roadArea)/cellArea
		channelWater = chanArea / cellArea * rainFall
	case hasRoad:
		percArea = 1 - roadArea/cellArea
		maxRoadbedInfiltration = (1 - percArea) * m.roadInfiltrationRate(c) * Δt
	}

	surfaceWater := percArea*rainFall +
		(1-roadArea/cellArea)*c.Snow.Outflow +
		c.SoilState.IExcess
	c.SoilState.IExcess = 0

	roadWater := roadArea/cellArea*(rainFall+c.Snow.Outflow) + c.RoadIExcess
	c.RoadIExcess = 0

	var maxInfiltration float64
	if m.Options.Infiltration == InfiltrationStatic {
		maxInfiltration = (1 - c.Veg.ImpervFrac) * percArea * c.Soil.MaxInfiltrationRate * Δt
	} else {
		capacity := c.Infilt.DynamicCapacity(c.Soil.Ks[0], c.Soil.Porosity[0],
			c.Soil.GInfilt, surfaceWater, c.SoilState.Moist[0], Δt)
		maxInfiltration = capacity * percArea * (1 - c.Veg.ImpervFrac) * Δt
	}

	infiltration := (1 - c.Veg.ImpervFrac) * surfaceWater
	if infiltration > maxInfiltration {
		infiltration = maxInfiltration
	}
	roadbedInfiltration := roadWater
	if roadbedInfiltration > maxRoadbedInfiltration {
		roadbedInfiltration = maxRoadbedInfiltration
	}

	if m.Options.RoadRouting {
		c.SoilState.IExcess = surfaceWater - infiltration
		c.RoadIExcess = roadWater - roadbedInfiltration
		if c.RoadIExcess < 0 {
			c.RoadIExcess = 0
		}
	} else {
		c.SoilState.IExcess = surfaceWater - infiltration + roadWater - roadbedInfiltration
	}
	if c.SoilState.IExcess < 0 {
		c.SoilState.IExcess = 0
	}

	// Precipitation falling on the channel goes straight to the network.
	if channelWater > 0 {
		m.Streams.IncInflow(c.Index, channelWater*cellArea)
		c.ChannelInt += channelWater
	}

	var roadExcess *float64
	if m.Options.RoadRouting {
		roadExcess = &c.RoadIExcess
	}
	c.Column.UnsaturatedFlow(&c.SoilState, Δt, infiltration, roadbedInfiltration, roadExcess)

	if m.Options.Infiltration == InfiltrationDynamic && surfaceWater > 0 {
		c.Infilt.Accum += infiltration
	}
}

// channelAreas returns the stream and road plan areas within the cell.
func (m *Model) channelAreas(c *Cell) (chanArea, roadArea float64) {
	if m.Streams != nil {
		for _, cr := range m.Streams.CellMap[c.Index] {
			chanArea += cr.Length * cr.Seg.Class.Width
		}
	}
	if m.Roads != nil {
		for _, cr := range m.Roads.CellMap[c.Index] {
			roadArea += cr.Length * cr.Seg.Class.Width
		}
	}
	if max := m.Meta.CellArea(); chanArea+roadArea > max {
		scale := max / (chanArea + roadArea)
		chanArea *= scale
		roadArea *= scale
	}
	return chanArea, roadArea
}

// roadInfiltrationRate is the infiltration capacity of the road bed in
// the cell (the minimum across crossings).
func (m *Model) roadInfiltrationRate(c *Cell) float64 {
	rate := -1.0
	for _, cr := range m.Roads.CellMap[c.Index] {
		if rate < 0 || cr.Seg.Class.MaxInfiltrationRate < rate {
			rate = cr.Seg.Class.MaxInfiltrationRate
		}
	}
	if rate < 0 {
		rate = 0
	}
	return rate
}
