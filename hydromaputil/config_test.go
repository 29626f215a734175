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

package hydromaputil

import (
	"testing"

	"github.com/spatialmodel/hydromap"
)

func TestOptionNamesUnique(t *testing.T) {
	names := sortedOptionNames()
	for i := 1; i < len(names); i++ {
		if names[i] == names[i-1] {
			t.Errorf("duplicate option name %q", names[i])
		}
	}
}

func TestBuildOptions(t *testing.T) {
	cfg := InitializeConfig()
	opts, err := buildOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Extent != hydromap.ExtentBasin {
		t.Errorf("default extent = %v, want basin", opts.Extent)
	}
	if opts.NDirs != 8 {
		t.Errorf("default flow directions = %d, want 8", opts.NDirs)
	}

	if opts.HeatFlux {
		t.Error("sensible heat flux should default to off")
	}

	cfg.Set("gradient", "watertable")
	cfg.Set("flow_routing", "unit")
	cfg.Set("infiltration", "dynamic")
	cfg.Set("sensible_heat_flux", true)
	opts, err = buildOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.HeatFlux {
		t.Error("sensible_heat_flux not parsed")
	}
	if opts.Gradient != hydromap.GradientWaterTable {
		t.Error("watertable gradient not parsed")
	}
	if opts.FlowRouting != hydromap.RoutingUnitHydrograph {
		t.Error("unit routing not parsed")
	}
	if opts.Infiltration != hydromap.InfiltrationDynamic {
		t.Error("dynamic infiltration not parsed")
	}

	cfg.Set("gradient", "sideways")
	if _, err := buildOptions(cfg); err == nil {
		t.Error("invalid gradient accepted")
	}
}

func TestFileFormat(t *testing.T) {
	for s, want := range map[string]hydromap.FileFormat{
		"bin": hydromap.FormatBin, "byteswap": hydromap.FormatByteSwap,
		"netcdf": hydromap.FormatNetCDF,
	} {
		got, err := fileFormat(s)
		if err != nil {
			t.Errorf("%s: %v", s, err)
		}
		if got != want {
			t.Errorf("fileFormat(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := fileFormat("hdf5"); err == nil {
		t.Error("invalid format accepted")
	}
}

func TestGetStringMapFromSlice(t *testing.T) {
	m, err := GetStringMapFromSlice([]string{"swe=SWE", "storage=SWE + SoilMoist1", "Tair"})
	if err != nil {
		t.Fatal(err)
	}
	if m["swe"] != "SWE" {
		t.Errorf("swe = %q", m["swe"])
	}
	if m["storage"] != "SWE + SoilMoist1" {
		t.Errorf("storage = %q", m["storage"])
	}
	if m["Tair"] != "Tair" {
		t.Errorf("bare name = %q", m["Tair"])
	}
}
