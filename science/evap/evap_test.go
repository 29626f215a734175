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

import (
	"math"
	"testing"
)

func testMet() Met {
	return Met{
		Slope:   145.0,
		Gamma:   66.0,
		Lv:      2.5e6,
		AirDens: 1.2,
		Vpd:     500,
	}
}

func TestPenmanPositive(t *testing.T) {
	met := testMet()
	ePot := Penman(met, 400, 50, 0, 3600)
	if ePot <= 0 {
		t.Fatalf("ePot = %g, want > 0", ePot)
	}
	// Subtracting an upstream moisture flux reduces the demand.
	less := Penman(met, 400, 50, 0.001, 3600)
	if less >= ePot {
		t.Errorf("moisture flux did not reduce demand: %g >= %g", less, ePot)
	}
	// Demand never goes negative.
	if got := Penman(met, 400, 50, 100, 3600); got != 0 {
		t.Errorf("ePot = %g, want 0", got)
	}
}

// With the vapor pressure deficit exactly zero and no radiation there is
// no evaporative demand.
func TestPenmanZeroVpd(t *testing.T) {
	met := testMet()
	met.Vpd = 0
	if got := Penman(met, 0, 50, 0, 3600); got != 0 {
		t.Errorf("ePot = %g, want 0", got)
	}
}

func TestCanopyResistanceGates(t *testing.T) {
	c := CanopyParams{
		LAI: 4, RsMin: 200, RsMax: 5000, Rpc: 30,
		VpdThres: 4000, MoistThres: 0.25,
	}
	// Frozen soil shuts transpiration off.
	if rc := CanopyResistance(c, 0.1, -1, 0.3, 500, 100); rc != Huge {
		t.Errorf("frozen soil: rc = %g, want Huge", rc)
	}
	// Soil at or below wilting point shuts transpiration off.
	if rc := CanopyResistance(c, 0.1, 10, 0.1, 500, 100); rc != Huge {
		t.Errorf("wilting point: rc = %g, want Huge", rc)
	}
	// VPD above threshold closes stomata.
	if rc := CanopyResistance(c, 0.1, 10, 0.3, 4500, 100); rc != Huge {
		t.Errorf("high vpd: rc = %g, want Huge", rc)
	}
	// Moist, warm, well-lit canopy transpires freely.
	rc := CanopyResistance(c, 0.1, 10, 0.3, 500, 100)
	if rc <= 0 || rc >= Huge {
		t.Errorf("open stomata: rc = %g", rc)
	}
	// Drier soil increases the resistance.
	rcDry := CanopyResistance(c, 0.1, 10, 0.15, 500, 100)
	if rcDry <= rc {
		t.Errorf("drier soil should raise resistance: %g <= %g", rcDry, rc)
	}
}

func TestTranspirationDepletesInterception(t *testing.T) {
	c := CanopyParams{
		Fract: 1.0, LAI: 4, MaxInt: 0.001,
		RsMin: 200, RsMax: 5000, Rpc: 30,
		VpdThres: 4000, MoistThres: 0.25,
		RootFract: []float64{0.5, 0.5},
		RootDepth: []float64{0.3, 0.5},
	}
	soil := &SoilState{
		WiltingPoint: []float64{0.09, 0.09},
		Temp:         []float64{12, 10},
		Moist:        []float64{0.3, 0.3},
		Adjust:       []float64{1, 1},
	}
	storage := 0.0005
	before := storage
	moistBefore := soil.Moist[0]

	d := Transpiration(c, testMet(), soil, 400, 150, 40, 0, &storage, 3600)

	if storage >= before {
		t.Errorf("interception storage not depleted: %g >= %g", storage, before)
	}
	if math.Abs(before-storage-d.EInt) > 1e-12 {
		t.Errorf("EInt %g does not equal storage change %g", d.EInt, before-storage)
	}
	if d.EAct <= 0 {
		t.Error("no transpiration from moist soil")
	}
	if soil.Moist[0] >= moistBefore {
		t.Error("soil moisture not reduced by transpiration")
	}
	var sum float64
	for _, e := range d.ESoil {
		sum += e
	}
	if math.Abs(sum-d.EAct) > 1e-12 {
		t.Errorf("ESoil sum %g != EAct %g", sum, d.EAct)
	}
}

func TestTranspirationTruncatesAtStorage(t *testing.T) {
	c := CanopyParams{
		Fract: 1.0, LAI: 4, MaxInt: 0.001,
		RsMin: 200, RsMax: 5000, Rpc: 30,
		VpdThres: 4000, MoistThres: 0.25,
		RootFract: []float64{1},
		RootDepth: []float64{0.2},
	}
	soil := &SoilState{
		WiltingPoint: []float64{0.09},
		Temp:         []float64{12},
		Moist:        []float64{0.0901}, // nearly dry
		Adjust:       []float64{1},
	}
	storage := 0.0
	d := Transpiration(c, testMet(), soil, 800, 300, 20, 0, &storage, 3600)
	if soil.Moist[0] < 0 {
		t.Errorf("soil moisture went negative: %g", soil.Moist[0])
	}
	if d.EAct < 0 {
		t.Errorf("negative transpiration: %g", d.EAct)
	}
}

func TestSoilEvaporationLimits(t *testing.T) {
	met := testMet()
	moist := 0.3
	e := SoilEvaporation(3600, met, 300, 80, 0, 0.4, 1e-5, 0.3, 0.4, 0.5, &moist, 1)
	if e <= 0 {
		t.Fatalf("soil evaporation = %g, want > 0", e)
	}
	if moist >= 0.3 {
		t.Error("soil moisture not reduced")
	}
	// A desiccated layer cannot evaporate below zero.
	moist = 0
	e = SoilEvaporation(3600, met, 300, 80, 0, 0.4, 1e-5, 0.3, 0.4, 0.5, &moist, 1)
	if e != 0 || moist != 0 {
		t.Errorf("evaporation from dry soil: e = %g, moist = %g", e, moist)
	}
}

func TestStabilityCorrection(t *testing.T) {
	// Neutral conditions leave the conductance unchanged.
	if c := StabilityCorrection(2, 0, 5, 5, 3, 0.01); c != 1 {
		t.Errorf("neutral: c = %g, want 1", c)
	}
	// Stable conditions (air warmer than surface) reduce conductance.
	if c := StabilityCorrection(2, 0, -5, 5, 3, 0.01); c >= 1 || c < 0 {
		t.Errorf("stable: c = %g, want in [0, 1)", c)
	}
	// Unstable conditions enhance conductance.
	if c := StabilityCorrection(2, 0, 5, -5, 3, 0.01); c <= 1 {
		t.Errorf("unstable: c = %g, want > 1", c)
	}
}

func TestProfileNoOverstory(t *testing.T) {
	p, err := NewProfile(ProfileParams{
		OverStory: false, NLayers: 0,
		ZRef: 40, Z0Ground: 0.02, Z0Snow: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Ra[0] <= 0 || p.RaSnow <= 0 {
		t.Errorf("nonpositive resistance factors: %+v", p)
	}
	if p.Wind[0] <= 0 || p.Wind[0] > 1 {
		t.Errorf("2-m wind factor = %g, want in (0, 1]", p.Wind[0])
	}
}

func TestProfileTwoLayers(t *testing.T) {
	p, err := NewProfile(ProfileParams{
		OverStory: true, NLayers: 2,
		Height: [2]float64{25, 2}, Trunk: 0.5, Attenuation: 2.5,
		ZRef: 40, Z0Ground: 0.02, Z0Snow: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Ra[0] <= 0 || p.Ra[1] <= 0 {
		t.Errorf("nonpositive resistances: %+v", p)
	}
	if p.Wind[1] >= p.Wind[0] {
		t.Errorf("understory wind %g should be below overstory wind %g", p.Wind[1], p.Wind[0])
	}
}
