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
	"github.com/spatialmodel/hydromap/science/snow"
)

// Params is the immutable physics-parameter record, loaded once at
// initialization and passed by reference. Defaults suit maritime
// Pacific-Northwest basins.
type Params struct {
	// Precipitation phase and lapse.
	MaxSnowTemp      float64 // warmest temperature with snowfall (°C)
	MinRainTemp      float64 // coldest temperature with rain (°C)
	TempLapse        float64 // temperature lapse rate (°C/m)
	PrecipLapse      float64 // precipitation lapse rate (1/m)
	PrecipMultiplier float64 // elevation multiplier (1/m)
	MinElev          float64 // reference elevation for the multiplier (m)

	// Snow.
	MaxSurfaceSWE  float64 // surface-layer cap (m water equivalent)
	LiquidWaterCap float64 // liquid capacity fraction of ice content
	MinIntStorage  float64 // canopy snow that can only melt off (m)
	LAISnowMult    float64 // snow interception capacity per unit LAI (m)
	LAIWaterMult   float64 // rain interception capacity per unit LAI (m)
	AlbFresh       float64 // fresh snow albedo
	AlbAccLambda   float64
	AlbMeltLambda  float64
	AlbAccMin      float64
	AlbMeltMin     float64

	// Roughness and reference heights.
	Z0Ground float64 // bare soil roughness (m)
	Z0Snow   float64 // snow roughness (m)
	ZRef     float64 // reference measurement height (m)

	GapViewIterations int // integration intervals for the gap view factor

	// Snow sliding: holding capacity SnowSlide1·exp(−SnowSlide2·slope).
	SnowSlide1 float64
	SnowSlide2 float64

	Latitude  float64 // basin latitude (degrees)
	Longitude float64 // basin longitude (degrees)
}

// DefaultParams returns the default physics parameters.
func DefaultParams() Params {
	return Params{
		MaxSnowTemp:      0.5,
		MinRainTemp:      -1.0,
		TempLapse:        -0.0065,
		PrecipLapse:      0.0,
		PrecipMultiplier: 0.0,
		MinElev:          0.0,

		MaxSurfaceSWE:  0.125,
		LiquidWaterCap: 0.035,
		MinIntStorage:  0.005,
		LAISnowMult:    0.0005,
		LAIWaterMult:   0.0001,
		AlbFresh:       0.85,
		AlbAccLambda:   0.92,
		AlbMeltLambda:  0.70,
		AlbAccMin:      0.50,
		AlbMeltMin:     0.40,

		Z0Ground: 0.02,
		Z0Snow:   0.003,
		ZRef:     40.0,

		GapViewIterations: 256,
	}
}

// SnowParams derives the snow package parameter record.
func (p Params) SnowParams() snow.Params {
	return snow.Params{
		MaxSurfaceSWE:  p.MaxSurfaceSWE,
		LiquidCapacity: p.LiquidWaterCap,
		MinIntStorage:  p.MinIntStorage,
		MaxSnowTemp:    p.MaxSnowTemp,
		MinRainTemp:    p.MinRainTemp,
	}
}

// AlbedoParams derives the snow albedo decay configuration.
func (p Params) AlbedoParams() snow.AlbedoParams {
	return snow.AlbedoParams{
		Fresh:      p.AlbFresh,
		AccLambda:  p.AlbAccLambda,
		MeltLambda: p.AlbMeltLambda,
		AccMin:     p.AlbAccMin,
		MeltMin:    p.AlbMeltMin,
	}
}

// Option enumerations mirroring the configuration file fields.

// GradientOption selects the driving gradient of the subsurface router.
type GradientOption int

const (
	GradientTopography GradientOption = iota
	GradientWaterTable
)

// FlowRoutingOption selects the surface/channel routing mode.
type FlowRoutingOption int

const (
	RoutingNetwork FlowRoutingOption = iota
	RoutingUnitHydrograph
)

// InfiltrationOption selects the infiltration capacity model.
type InfiltrationOption int

const (
	InfiltrationStatic InfiltrationOption = iota
	InfiltrationDynamic
)

// CanopyRadAttOption selects the canopy attenuation scheme.
type CanopyRadAttOption int

const (
	CanopyRadAttFixed CanopyRadAttOption = iota
	CanopyRadAttVariable
)

// ExtentOption selects between a single-cell and a basin run.
type ExtentOption int

const (
	ExtentBasin ExtentOption = iota
	ExtentPoint
)

// Options is the populated model options record; the configuration
// parser (a collaborator) fills it from the sectioned config file.
type Options struct {
	Extent       ExtentOption
	PointX       int
	PointY       int
	Gradient     GradientOption
	FlowRouting  FlowRoutingOption
	Infiltration InfiltrationOption
	CanopyRadAtt CanopyRadAttOption

	HeatFlux      bool // solve the soil surface energy balance
	Shading       bool // use the topographic shading table
	StreamTemp    bool // accumulate segment-level radiation
	CanopyGapping bool // run the canopy-gap submodel
	SnowSliding   bool // redistribute snow down-gradient
	Sediment      bool // route sediment
	RoadRouting   bool // route road-surface water through the road network

	NDirs int // 4- or 8-neighbor routing
}

// DefaultOptions returns the default option set.
func DefaultOptions() Options {
	return Options{
		Extent:       ExtentBasin,
		Gradient:     GradientTopography,
		FlowRouting:  RoutingNetwork,
		Infiltration: InfiltrationStatic,
		CanopyRadAtt: CanopyRadAttFixed,
		NDirs:        8,
	}
}
