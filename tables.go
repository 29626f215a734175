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
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/hydromap/science/evap"
)

// SoilType holds the hydraulic and thermal properties of one soil class.
// Slices are per root-zone layer.
type SoilType struct {
	ID   int
	Name string

	NLayers             int
	LateralKs           float64 `toml:"lateral_ks"`            // lateral saturated conductivity (m/s)
	KsExponent          float64 `toml:"ks_exponent"`           // transmissivity decay exponent (1/m)
	DepthThresh         float64 `toml:"depth_threshold"`       // exponential/linear regime boundary (m)
	MaxInfiltrationRate float64 `toml:"max_infiltration_rate"` // static capacity (m/s)
	GInfilt             float64 `toml:"capillary_drive"`       // Parlange–Smith capillary drive (m)
	Albedo              float64

	Ks           []float64 // vertical saturated conductivity (m/s)
	Porosity     []float64
	FieldCap     []float64 `toml:"field_capacity"`
	WiltingPoint []float64 `toml:"wilting_point"`
	PoreDist     []float64 `toml:"pore_size_distribution"`
	BubblePress  []float64 `toml:"bubbling_pressure"` // (m)

	KhDry []float64 `toml:"kh_dry"` // dry thermal conductivity (W/(m·K))
	KhSol []float64 `toml:"kh_solid"`
	Ch    []float64 // solids volumetric heat capacity (J/(m³·°C))
}

// Validate checks the per-layer table shapes and the moisture-constant
// ordering porosity > field capacity > wilting point.
func (s *SoilType) Validate() error {
	if s.NLayers <= 0 {
		return newError(CodeConfiguration, "soil class %d: no layers", s.ID)
	}
	for _, slice := range [][]float64{s.Ks, s.Porosity, s.FieldCap, s.WiltingPoint, s.PoreDist, s.BubblePress} {
		if len(slice) != s.NLayers {
			return newError(CodeConfiguration, "soil class %d: property arrays must have %d entries", s.ID, s.NLayers)
		}
	}
	for i := 0; i < s.NLayers; i++ {
		if !(s.Porosity[i] > s.FieldCap[i] && s.FieldCap[i] > s.WiltingPoint[i]) {
			return newError(CodeConfiguration,
				"soil class %d layer %d: porosity %g, field capacity %g, wilting point %g out of order",
				s.ID, i, s.Porosity[i], s.FieldCap[i], s.WiltingPoint[i])
		}
	}
	return nil
}

// VegType holds the properties of one vegetation class. Two-layer arrays
// put the overstory first.
type VegType struct {
	ID   int
	Name string

	OverStory  bool    `toml:"overstory"`
	UnderStory bool    `toml:"understory"`
	ImpervFrac float64 `toml:"impervious_fraction"`

	Height    [2]float64
	Fract     [2]float64 // fractional cover
	Trunk     float64    // trunk-space fraction of overstory height
	WindAtten float64    `toml:"wind_attenuation"` // canopy wind attenuation
	RadAtten  float64    `toml:"radiation_attenuation"`

	// Variable-attenuation scheme constants.
	ClumpingFactor float64 `toml:"clumping_factor"`
	LeafAngleA     float64 `toml:"leaf_angle_a"`
	LeafAngleB     float64 `toml:"leaf_angle_b"`
	Scattering     float64
	Taud           float64 // diffuse transmittance

	// Monthly schedules, January first.
	LAIMonthly    [2][12]float64 `toml:"lai_monthly"`
	AlbedoMonthly [2][12]float64 `toml:"albedo_monthly"`

	// Snow interception.
	MassDripRatio float64 `toml:"mass_drip_ratio"`
	SnowIntEff    float64 `toml:"snow_interception_efficiency"`

	// Stomatal control, per layer.
	RsMin      [2]float64 `toml:"rs_min"`
	RsMax      [2]float64 `toml:"rs_max"`
	Rpc        [2]float64 // light level for doubled resistance (W/m²)
	VpdThres   [2]float64 `toml:"vpd_threshold"`
	MoistThres [2]float64 `toml:"moisture_threshold"`

	RootDepth []float64    `toml:"root_depth"` // soil layer thicknesses (m)
	RootFract [2][]float64 `toml:"root_fraction"`

	// Profile is derived at initialization from the geometry above.
	Profile evap.Profile `toml:"-"`
}

// NVegLayers returns the number of vegetation layers.
func (v *VegType) NVegLayers() int {
	n := 0
	if v.OverStory {
		n++
	}
	if v.UnderStory {
		n++
	}
	return n
}

// LAI returns the leaf-area index of the given layer for a month (1-12).
func (v *VegType) LAI(layer, month int) float64 { return v.LAIMonthly[layer][month-1] }

// Albedo returns the layer albedo for a month (1-12).
func (v *VegType) Albedo(layer, month int) float64 { return v.AlbedoMonthly[layer][month-1] }

// MaxInt returns the maximum rain interception storage (m) of a layer
// for a month.
func (v *VegType) MaxInt(layer, month int, laiWaterMult float64) float64 {
	return laiWaterMult * v.LAI(layer, month) * v.Fract[layer]
}

// Validate checks layer consistency and root shapes against the soil
// layering.
func (v *VegType) Validate(nSoilLayers int) error {
	if v.NVegLayers() > 2 {
		return newError(CodeConfiguration, "vegetation class %d: more than two layers", v.ID)
	}
	if len(v.RootDepth) != nSoilLayers {
		return newError(CodeConfiguration, "vegetation class %d: %d root depths for %d soil layers",
			v.ID, len(v.RootDepth), nSoilLayers)
	}
	for l := 0; l < v.NVegLayers(); l++ {
		if len(v.RootFract[l]) != nSoilLayers {
			return newError(CodeConfiguration, "vegetation class %d layer %d: %d root fractions for %d soil layers",
				v.ID, l, len(v.RootFract[l]), nSoilLayers)
		}
	}
	return nil
}

// InitProfile computes the aerodynamic profile for the class.
func (v *VegType) InitProfile(p Params) error {
	prof, err := evap.NewProfile(evap.ProfileParams{
		OverStory:   v.OverStory,
		NLayers:     v.NVegLayers(),
		Height:      v.Height,
		Trunk:       v.Trunk,
		Attenuation: v.WindAtten,
		ZRef:        p.ZRef,
		Z0Ground:    p.Z0Ground,
		Z0Snow:      p.Z0Snow,
	})
	if err != nil {
		return newError(CodeConfiguration, "vegetation class %d: %v", v.ID, err)
	}
	v.Profile = prof
	return nil
}

// tableFile is the TOML shape of the class-table files.
type tableFile struct {
	Soil []SoilType `toml:"soil"`
	Veg  []VegType  `toml:"vegetation"`
}

// ReadSoilTable decodes a TOML soil-class table.
func ReadSoilTable(r io.Reader) (map[int]*SoilType, error) {
	var f tableFile
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, newError(CodeConfiguration, "decoding soil table: %v", err)
	}
	if len(f.Soil) == 0 {
		return nil, newError(CodeConfiguration, "no soil classes defined")
	}
	out := make(map[int]*SoilType, len(f.Soil))
	for i := range f.Soil {
		s := &f.Soil[i]
		if s.NLayers == 0 {
			s.NLayers = len(s.Ks)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, ok := out[s.ID]; ok {
			return nil, newError(CodeConfiguration, "duplicate soil class ID %d", s.ID)
		}
		out[s.ID] = s
	}
	return out, nil
}

// ReadVegTable decodes a TOML vegetation-class table and derives the
// per-class aerodynamic profiles.
func ReadVegTable(r io.Reader, nSoilLayers int, params Params) (map[int]*VegType, error) {
	var f tableFile
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, newError(CodeConfiguration, "decoding vegetation table: %v", err)
	}
	if len(f.Veg) == 0 {
		return nil, newError(CodeConfiguration, "no vegetation classes defined")
	}
	out := make(map[int]*VegType, len(f.Veg))
	for i := range f.Veg {
		v := &f.Veg[i]
		if err := v.Validate(nSoilLayers); err != nil {
			return nil, err
		}
		if err := v.InitProfile(params); err != nil {
			return nil, err
		}
		if _, ok := out[v.ID]; ok {
			return nil, newError(CodeConfiguration, "duplicate vegetation class ID %d", v.ID)
		}
		out[v.ID] = v
	}
	return out, nil
}

// String implements fmt.Stringer for diagnostics.
func (s *SoilType) String() string { return fmt.Sprintf("soil %d (%s)", s.ID, s.Name) }

func (v *VegType) String() string { return fmt.Sprintf("vegetation %d (%s)", v.ID, v.Name) }
