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

package radiation

import (
	"math"
	"testing"
)

// With no canopy and no snow, the surface absorbs (1 − albedo)·incoming.
func TestBareGroundShortwave(t *testing.T) {
	c := Canopy{OverStory: false, UnderStory: false}
	s := Surface{HasSnow: false, SoilAlbedo: 0.2}
	albedo := Albedos(c, s)
	tau := Transmittance(AttenuationFixed, c, 0.5, 500, 400, 100)
	if tau != 0 {
		t.Errorf("tau = %g for no overstory, want 0", tau)
	}
	var b Balance
	b.Shortwave(c, albedo, 500, 400, 100, tau)
	want := (1 - 0.2) * 500
	if math.Abs(b.NetShort[0]-want) > 1e-9 {
		t.Errorf("NetShort[0] = %g, want %g", b.NetShort[0], want)
	}
	if b.PixelNetShort != b.NetShort[0] {
		t.Errorf("PixelNetShort = %g, want %g", b.PixelNetShort, b.NetShort[0])
	}
}

// Beam plus diffuse must always sum to the incoming total.
func TestSeparateSumsToTotal(t *testing.T) {
	for _, ci := range []float64{0, 0.1, 0.3, 0.5, 0.79, 0.81, 1} {
		beam, diffuse := Separate(800, ci)
		if math.Abs(beam+diffuse-800) > 1e-9 {
			t.Errorf("clearness %g: beam %g + diffuse %g != 800", ci, beam, diffuse)
		}
		if beam < 0 || diffuse < 0 {
			t.Errorf("clearness %g: negative component (beam %g, diffuse %g)", ci, beam, diffuse)
		}
	}
}

// A zero-LAI overstory transmits everything.
func TestTransmittanceZeroLAI(t *testing.T) {
	c := Canopy{OverStory: true, LAI: 0, Atten: 0.5, Fract: 1}
	tau := Transmittance(AttenuationFixed, c, 0.5, 500, 400, 100)
	if math.Abs(tau-1) > 1e-9 {
		t.Errorf("tau = %g, want 1", tau)
	}
}

func TestSnowSubstitutesGroundAlbedo(t *testing.T) {
	c := Canopy{OverStory: true, UnderStory: false, Albedo: [2]float64{0.15, 0.1}}
	s := Surface{HasSnow: true, SnowAlbedo: 0.8, SoilAlbedo: 0.2}
	albedo := Albedos(c, s)
	if albedo[1] != 0.8 {
		t.Errorf("albedo[1] = %g, want snow albedo 0.8", albedo[1])
	}
	s.HasSnow = false
	albedo = Albedos(c, s)
	if albedo[1] != 0.2 {
		t.Errorf("albedo[1] = %g, want soil albedo 0.2", albedo[1])
	}
}

func TestLongwaveBareSurface(t *testing.T) {
	c := Canopy{OverStory: false}
	var b Balance
	b.Longwave(c, 300, 0, -5)
	tmp := -5 + 273.15
	want := Stefan * tmp * tmp * tmp * tmp
	if math.Abs(b.LongOut[0]-want) > 1e-9 {
		t.Errorf("LongOut[0] = %g, want %g", b.LongOut[0], want)
	}
	if b.LongIn[0] != 300 {
		t.Errorf("LongIn[0] = %g, want 300", b.LongIn[0])
	}
}

// Under an overstory the surface receives sky longwave through the gaps
// plus canopy emission below the cover fraction.
func TestLongwaveTwoLayer(t *testing.T) {
	c := Canopy{OverStory: true, Fract: 0.6}
	var b Balance
	b.Longwave(c, 300, 2, -1)
	wantSurf := 300*(1-0.6) + b.LongOut[0]*0.6
	if math.Abs(b.LongIn[1]-wantSurf) > 1e-9 {
		t.Errorf("LongIn[1] = %g, want %g", b.LongIn[1], wantSurf)
	}
	wantCanopy := (300 + b.LongOut[1]) * 0.6
	if math.Abs(b.LongIn[0]-wantCanopy) > 1e-9 {
		t.Errorf("LongIn[0] = %g, want %g", b.LongIn[0], wantCanopy)
	}
}

// Energy absorbed by both layers can never exceed the incident flux.
func TestShortwaveBounded(t *testing.T) {
	c := Canopy{OverStory: true, Fract: 0.7, LAI: 3, Atten: 0.4,
		Albedo: [2]float64{0.15, 0.1}}
	s := Surface{SoilAlbedo: 0.2}
	albedo := Albedos(c, s)
	tau := Transmittance(AttenuationFixed, c, 0.5, 600, 450, 150)
	var b Balance
	b.Shortwave(c, albedo, 600, 450, 150, tau)
	if b.NetShort[0]+b.NetShort[1] > 600 {
		t.Errorf("absorbed %g exceeds incident 600", b.NetShort[0]+b.NetShort[1])
	}
	if b.NetShort[0] < 0 || b.NetShort[1] < 0 {
		t.Errorf("negative absorption: %v", b.NetShort)
	}
}

func TestGapViewFactor(t *testing.T) {
	// A very wide, shallow gap sees nearly the whole sky.
	g, err := NewGap(1000, 1, 256)
	if err != nil {
		t.Fatal(err)
	}
	if g.View < 0.99 {
		t.Errorf("wide gap view = %g, want ≈ 1", g.View)
	}
	// A narrow, deep gap sees almost none of it.
	g, err = NewGap(1, 100, 256)
	if err != nil {
		t.Fatal(err)
	}
	if g.View > 0.01 {
		t.Errorf("deep gap view = %g, want ≈ 0", g.View)
	}
	if _, err := NewGap(20, 25, 4); err == nil {
		t.Error("iteration count below minimum accepted")
	}
}

func TestGapShortwaveNight(t *testing.T) {
	g, err := NewGap(20, 25, 256)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Shortwave(0, 0, 0, 0.5, 0.2, 0.2); got != 0 {
		t.Errorf("night shortwave = %g, want 0", got)
	}
	day := g.Shortwave(0.7, 500, 100, 0.5, 0.2, 0.2)
	if day <= 0 || day > 600 {
		t.Errorf("day shortwave = %g, want in (0, 600]", day)
	}
}
