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

package soil

import (
	"math"
	"testing"
)

// testColumn is a 3-root-layer column over a deep layer, 2 m to bedrock,
// with no road or channel cut.
func testColumn() *Column {
	c := &Column{
		NLayers:     3,
		TotalDepth:  2.0,
		RootDepth:   []float64{0.25, 0.35, 0.4},
		Ks:          []float64{1e-5, 1e-5, 1e-5},
		PoreDist:    []float64{0.4, 0.4, 0.4},
		Porosity:    []float64{0.45, 0.45, 0.45},
		FCap:        []float64{0.2, 0.2, 0.2},
		CutBankZone: -1,
	}
	c.PercArea = []float64{1, 1, 1, 1}
	c.Adjust = []float64{1, 1, 1, 1}
	return c
}

func newState(c *Column, moist float64) *State {
	s := &State{
		Moist: make([]float64, c.NLayers+1),
		Perc:  make([]float64, c.NLayers),
	}
	for i := range s.Moist {
		s.Moist[i] = moist
	}
	s.TableDepth = c.WaterTableDepth(s.Moist)
	return s
}

func totalWater(c *Column, s *State) float64 { return c.TotalWater(s) }

func TestUnsaturatedFlowConservesMass(t *testing.T) {
	c := testColumn()
	s := newState(c, 0.3)
	before := totalWater(c, s)
	infiltration := 0.004

	c.UnsaturatedFlow(s, 3600, infiltration, 0, nil)

	after := totalWater(c, s)
	if math.Abs(after-(before+infiltration)) > 1e-10 {
		t.Errorf("mass balance: before %g + in %g != after %g", before, infiltration, after)
	}
	for i, m := range s.Moist {
		p := c.layerPorosity(i)
		if m < 0 || m > p+1e-12 {
			t.Errorf("layer %d moisture %g outside [0, %g]", i, m, p)
		}
	}
	if s.TableDepth < 0 || s.TableDepth > c.TotalDepth {
		t.Errorf("water table depth %g outside [0, %g]", s.TableDepth, c.TotalDepth)
	}
}

// A fully saturated column routes all infiltration to surface excess.
func TestSaturatedColumnPonds(t *testing.T) {
	c := testColumn()
	s := newState(c, 0.45)
	if s.TableDepth != 0 {
		t.Fatalf("saturated column table depth = %g, want 0", s.TableDepth)
	}
	in := 0.01
	c.UnsaturatedFlow(s, 3600, in, 0, nil)
	if math.Abs(s.IExcess-in) > 1e-9 {
		t.Errorf("IExcess = %g, want all input %g", s.IExcess, in)
	}
	if s.TableDepth != 0 {
		t.Errorf("table depth = %g, want 0", s.TableDepth)
	}
}

// No drainage below field capacity.
func TestNoDrainageBelowFieldCapacity(t *testing.T) {
	c := testColumn()
	s := newState(c, 0.15)
	before := make([]float64, len(s.Moist))
	copy(before, s.Moist)
	c.UnsaturatedFlow(s, 3600, 0, 0, nil)
	for i := 0; i < c.NLayers; i++ {
		if s.Perc[i] != 0 {
			t.Errorf("layer %d drained %g below field capacity", i, s.Perc[i])
		}
		if s.Moist[i] != before[i] {
			t.Errorf("layer %d moisture moved from %g to %g", i, before[i], s.Moist[i])
		}
	}
}

func TestWaterTableDepthBounds(t *testing.T) {
	c := testColumn()
	// At field capacity everywhere the table sits at bedrock.
	m := []float64{0.2, 0.2, 0.2, 0.2}
	if got := c.WaterTableDepth(m); math.Abs(got-c.TotalDepth) > 1e-9 {
		t.Errorf("table at field capacity = %g, want %g", got, c.TotalDepth)
	}
	// Fully saturated: the table is at the surface.
	m = []float64{0.45, 0.45, 0.45, 0.45}
	if got := c.WaterTableDepth(m); math.Abs(got) > 1e-9 {
		t.Errorf("table at saturation = %g, want 0", got)
	}
	// Supersaturation above the top layer becomes ponding (negative).
	m = []float64{0.50, 0.45, 0.45, 0.45}
	got := c.WaterTableDepth(m)
	if got >= 0 {
		t.Errorf("supersaturated table = %g, want negative (ponding)", got)
	}
	want := -(0.50 - 0.45) * 0.25
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ponded depth = %g, want %g", got, want)
	}
	if m[0] != 0.45 {
		t.Errorf("top layer not capped at porosity: %g", m[0])
	}
}

// Supersaturation deep in the profile is resolved upward.
func TestSupersaturationResolvedUpward(t *testing.T) {
	c := testColumn()
	m := []float64{0.3, 0.3, 0.3, 0.50}
	c.WaterTableDepth(m)
	if m[3] > 0.45+1e-12 {
		t.Errorf("deep layer still supersaturated: %g", m[3])
	}
	if m[2] <= 0.3 {
		t.Errorf("excess not transferred upward: layer 2 = %g", m[2])
	}
}

func TestDistributeSatFlowOutflow(t *testing.T) {
	c := testColumn()
	s := newState(c, 0.45) // saturated: table at surface
	before := totalWater(c, s)
	s.SatFlow = -0.01
	c.distributeSatFlow(s)
	after := totalWater(c, s)
	if math.Abs(before-after-0.01) > 1e-9 {
		t.Errorf("outflow not extracted: before %g, after %g", before, after)
	}
	// Extraction starts at the top (water-table layer).
	if s.Moist[0] >= 0.45 {
		t.Errorf("top layer not drawn down: %g", s.Moist[0])
	}
}

func TestDistributeSatFlowInflowFillsUpward(t *testing.T) {
	c := testColumn()
	s := newState(c, 0.25)
	s.SatFlow = 0.02
	before := totalWater(c, s)
	c.distributeSatFlow(s)
	after := totalWater(c, s)
	if math.Abs(after-before-0.02) > 1e-9 {
		t.Errorf("inflow not stored: Δ = %g, want 0.02", after-before)
	}
	// The deep layer fills first.
	if s.Moist[3] <= 0.25 {
		t.Errorf("deep layer not filled first: %g", s.Moist[3])
	}
	if s.IExcess != 0 {
		t.Errorf("unsaturated column produced surface excess %g", s.IExcess)
	}
}

// Inflow beyond total pore space becomes surface excess.
func TestDistributeSatFlowOverfill(t *testing.T) {
	c := testColumn()
	s := newState(c, 0.449)
	s.SatFlow = 0.05
	c.distributeSatFlow(s)
	if s.IExcess <= 0 {
		t.Error("overfill produced no surface excess")
	}
	for i, m := range s.Moist {
		if m > c.layerPorosity(i)+1e-12 {
			t.Errorf("layer %d left supersaturated: %g", i, m)
		}
	}
}

func TestTransmissivity(t *testing.T) {
	// Uniform conductivity: T = Ks·(D − z).
	if got := Transmissivity(2, 0.5, 1e-4, 0, 100); math.Abs(got-1.5e-4) > 1e-12 {
		t.Errorf("uniform T = %g, want 1.5e-4", got)
	}
	// Water table at bedrock: no saturated thickness.
	if got := Transmissivity(2, 2, 1e-4, 0, 100); got != 0 {
		t.Errorf("T at bedrock = %g, want 0", got)
	}
	// Exponential decay gives less transmissivity for deeper tables.
	shallow := Transmissivity(2, 0.2, 1e-4, 2, 1.5)
	deep := Transmissivity(2, 1.0, 1e-4, 2, 1.5)
	if deep >= shallow {
		t.Errorf("deep table T %g should be below shallow table T %g", deep, shallow)
	}
	// Below the threshold the linear taper reaches zero at bedrock.
	if got := Transmissivity(2, 1.9999999, 1e-4, 2, 1.5); got > 1e-9 {
		t.Errorf("T near bedrock = %g, want ≈ 0", got)
	}
}

func TestCutBankGeometry(t *testing.T) {
	// Bed in the second layer of a 100×100 m cell, 300 m² of cut.
	pa, adj, cut := CutBankGeometry(0, 0.25, 0, 0.4, 300, 10000)
	if cut {
		t.Error("bed reported in layer 0")
	}
	if pa != 1-300.0/10000 || adj != pa {
		t.Errorf("above-cut layer: percArea %g adjust %g", pa, adj)
	}
	pa, adj, cut = CutBankGeometry(1, 0.35, 0.25, 0.4, 300, 10000)
	if !cut {
		t.Error("bed not reported in layer 1")
	}
	if pa != 1 {
		t.Errorf("cut layer percArea = %g, want 1", pa)
	}
	want := 1 - 300*(0.4-0.25)/(0.35*10000)
	if math.Abs(adj-want) > 1e-12 {
		t.Errorf("cut layer adjust = %g, want %g", adj, want)
	}
	pa, adj, cut = CutBankGeometry(2, 0.4, 0.6, 0.4, 300, 10000)
	if cut || pa != 1 || adj != 1 {
		t.Errorf("below-cut layer: %g %g %v", pa, adj, cut)
	}
}

func TestDynamicInfiltration(t *testing.T) {
	st := &InfiltrationState{StormStart: true}
	// First wet step of a storm: capacity passes everything through.
	cap1 := st.DynamicCapacity(1e-5, 0.45, 0.05, 0.002, 0.2, 3600)
	if math.Abs(cap1-0.002/3600) > 1e-12 {
		t.Errorf("storm-start capacity = %g, want %g", cap1, 0.002/3600)
	}
	// With accumulated infiltration the capacity declines toward Ks.
	st.Accum = 0.01
	cap2 := st.DynamicCapacity(1e-5, 0.45, 0.05, 0.002, 0.2, 3600)
	st.Accum = 0.1
	cap3 := st.DynamicCapacity(1e-5, 0.45, 0.05, 0.002, 0.2, 3600)
	if cap3 >= cap2 {
		t.Errorf("capacity should decline with accumulation: %g >= %g", cap3, cap2)
	}
	if cap3 < 1e-5 {
		t.Errorf("capacity %g fell below Ks", cap3)
	}
	// A dry step re-arms the storm boundary.
	st.DynamicCapacity(1e-5, 0.45, 0.05, 0, 0.2, 3600)
	if !st.StormStart {
		t.Error("dry step did not re-arm the storm start")
	}
}

func TestAvailableWater(t *testing.T) {
	c := testColumn()
	// Saturated column: everything above field capacity is available.
	avail := c.AvailableWater(c.TotalDepth, 0)
	want := (0.45 - 0.2) * 2.0
	if math.Abs(avail-want) > 1e-9 {
		t.Errorf("available = %g, want %g", avail, want)
	}
	// Table at bedrock: nothing to move.
	if got := c.AvailableWater(c.TotalDepth, c.TotalDepth); got != 0 {
		t.Errorf("available at bedrock table = %g, want 0", got)
	}
}
