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
	"math"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/hydromap/met"
	"github.com/spatialmodel/hydromap/simtime"
)

// testSoil is a single-layer soil column used by the scenario tests.
func testSoil() *SoilType {
	return &SoilType{
		ID: 1, Name: "loam",
		NLayers:             1,
		LateralKs:           1e-4,
		KsExponent:          0,
		DepthThresh:         100,
		MaxInfiltrationRate: 3e-6,
		GInfilt:             0.05,
		Albedo:              0.2,
		Ks:                  []float64{1e-5},
		Porosity:            []float64{0.40},
		FieldCap:            []float64{0.30},
		WiltingPoint:        []float64{0.10},
		PoreDist:            []float64{0.4},
		BubblePress:         []float64{0.3},
		KhDry:               []float64{0.2},
		KhSol:               []float64{1.0},
		Ch:                  []float64{2.3e6},
	}
}

// bareVeg has no vegetation layers.
func bareVeg() *VegType {
	return &VegType{
		ID: 1, Name: "bare",
		RootDepth: []float64{1.0},
	}
}

// testTerrain builds an nx×ny fully-active terrain with the given
// surface elevations.
func testTerrain(nx, ny int, dx float64, elev func(x, y int) float64, soilDepth float64) Terrain {
	meta := GridMeta{NX: nx, NY: ny, DX: dx, DY: dx}
	mask := make([]bool, nx*ny)
	dem := sparse.ZerosDense(ny, nx)
	depth := sparse.ZerosDense(ny, nx)
	ksLat := sparse.ZerosDense(ny, nx)
	soilClass := sparse.ZerosDense(ny, nx)
	vegClass := sparse.ZerosDense(ny, nx)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			mask[y*nx+x] = true
			dem.Set(elev(x, y), y, x)
			depth.Set(soilDepth, y, x)
			ksLat.Set(1e-4, y, x)
			soilClass.Set(1, y, x)
			vegClass.Set(1, y, x)
		}
	}
	return Terrain{Meta: meta, Mask: mask, DEM: dem, SoilDepth: depth,
		KsLat: ksLat, SoilClass: soilClass, VegClass: vegClass}
}

// forcingStation scripts a station producing the same record every step.
func forcingStation(start simtime.Date, dt, steps int, row string) *met.Station {
	var b strings.Builder
	d := start
	for i := 0; i < steps; i++ {
		fmt.Fprintf(&b, "%v %s\n", d, row)
		d = d.Add(dt)
	}
	return met.NewStation("test", geom.Point{X: 0, Y: 0}, 100,
		met.Format{HasPrecip: true}, strings.NewReader(b.String()))
}

func newTestModel(t *testing.T, terrain Terrain, start simtime.Date, dt, steps int, row string) *Model {
	t.Helper()
	end := start.Add(dt * (steps - 1))
	clock, err := simtime.NewClock(start, end, dt)
	if err != nil {
		t.Fatal(err)
	}
	m := &Model{
		Options:   DefaultOptions(),
		Params:    DefaultParams(),
		Clock:     clock,
		SoilTypes: map[int]*SoilType{1: testSoil()},
		VegTypes:  map[int]*VegType{1: bareVeg()},
		Stations:  []*met.Station{forcingStation(start, dt, steps+1, row)},
	}
	m.MetParams = met.Params{
		MaxSnowTemp: m.Params.MaxSnowTemp,
		MinRainTemp: m.Params.MinRainTemp,
		TempLapse:   0, // keep station values unlapsed for the scenarios
	}
	m.Balance.StepTolerance = 1e-4
	m.Balance.FinalTolerance = 1e-3

	for _, v := range m.VegTypes {
		if err := v.InitProfile(m.Params); err != nil {
			t.Fatal(err)
		}
	}
	m.InitFuncs = []DomainManipulator{
		BuildCells(terrain),
		InitNetworks(),
		InitStations(met.InvDist, 10, 2, true),
	}
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	return m
}

// Scenario: dry, cold, clear night over a single bare cell. No
// precipitation, negligible ET, unchanged moisture, surface temperature
// pinned to the air temperature.
func TestDryColdClearNight(t *testing.T) {
	terrain := testTerrain(1, 1, 100, func(x, y int) float64 { return 100 }, 1.0)
	start := simtime.NewDate(1999, 1, 15, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 4,
		"-5.0 1.0 60 0 250 0.0")
	m.RunFuncs = m.StandardRunFuncs(nil, nil)

	c := m.Cells[0]
	moistBefore := c.SoilState.Moist[0]
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}

	if c.Precip.Total != 0 {
		t.Errorf("precipitation = %g, want 0", c.Precip.Total)
	}
	if c.Evap.ETot > 1e-6 {
		t.Errorf("ET = %g m/step, want ≤ 1e-6", c.Evap.ETot)
	}
	if math.Abs(c.SoilState.Moist[0]-moistBefore) > 1e-9 {
		t.Errorf("moisture changed from %g to %g", moistBefore, c.SoilState.Moist[0])
	}
	if c.TSurfSoil != -5 {
		t.Errorf("surface temperature = %g, want air temperature -5", c.TSurfSoil)
	}
	if c.Snow.HasSnow {
		t.Error("snow appeared out of nothing")
	}
}

// Scenario: sunny day over bare soil with the surface energy balance on.
// The effective surface temperature comes from the bracketed root search
// instead of being pinned to the air temperature, and the balance terms
// are recorded.
func TestSensibleHeatFlux(t *testing.T) {
	terrain := testTerrain(1, 1, 100, func(x, y int) float64 { return 100 }, 1.0)
	start := simtime.NewDate(1999, 7, 15, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 6,
		"10.0 2.0 50 400 300 0.0")
	m.Options.HeatFlux = true
	m.RunFuncs = m.StandardRunFuncs(nil, nil)

	c := m.Cells[0]

	// The effective conductivity interpolates dry to saturated by the
	// relative saturation (0.30/0.40 here).
	kh := m.effectiveKh(c)
	want := c.Soil.KhDry[0] + 0.75*(c.Soil.KhSol[0]-c.Soil.KhDry[0])
	if math.Abs(kh-want) > 1e-9 {
		t.Errorf("effective conductivity = %g, want %g", kh, want)
	}

	if err := m.Run(); err != nil {
		t.Fatal(err)
	}

	if math.IsNaN(c.TSurfSoil) {
		t.Fatal("surface temperature is NaN")
	}
	if c.TSurfSoil == c.Met.Tair {
		t.Error("surface temperature pinned to the air temperature with the energy balance on")
	}
	if math.Abs(c.TSurfSoil) > 60 {
		t.Errorf("surface temperature %g outside the search bracket", c.TSurfSoil)
	}
	if c.Qnet == 0 && c.Qs == 0 && c.Qg == 0 {
		t.Error("energy balance terms not recorded")
	}
	// The top soil layer relaxes toward the effective surface temperature.
	if c.SoilTemp[0] == 0 {
		t.Error("top soil layer temperature never updated")
	}
}

// Scenario: snowfall onto bare ground through the full pipeline.
func TestSnowfallAccumulates(t *testing.T) {
	terrain := testTerrain(1, 1, 100, func(x, y int) float64 { return 100 }, 1.0)
	start := simtime.NewDate(1999, 1, 15, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 2,
		"-2.0 0.0 90 0 250 0.010")
	m.RunFuncs = m.StandardRunFuncs(nil, nil)

	// One step only.
	for _, f := range m.RunFuncs {
		if err := f(m); err != nil {
			t.Fatal(err)
		}
	}
	c := m.Cells[0]
	if !c.Snow.HasSnow {
		t.Fatal("no snowpack after snowfall")
	}
	if math.Abs(c.Snow.SWE-0.010) > 1e-6 {
		t.Errorf("SWE = %g, want 0.010", c.Snow.SWE)
	}
	if c.Snow.Outflow != 0 {
		t.Errorf("snow outflow = %g, want 0", c.Snow.Outflow)
	}
	if c.Snow.TSurf > 0 {
		t.Errorf("snow surface temperature %g above freezing", c.Snow.TSurf)
	}
}

// Scenario: saturated subsurface flow from an upslope to a downslope
// cell matches transmissivity × gradient, capped by available water.
func TestSaturatedSubsurfaceFlow(t *testing.T) {
	// Two cells, A at x=0 upslope of B at x=1, 10 m of drop over 100 m.
	terrain := testTerrain(2, 1, 100, func(x, y int) float64 { return 110 - 10*float64(x) }, 2.0)
	start := simtime.NewDate(1999, 6, 15, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 2,
		"10.0 0.0 60 0 300 0.0")

	a := m.Cell(0, 0)
	b := m.Cell(1, 0)
	// Saturate A: the water table reaches the surface.
	a.SoilState.Moist[0] = a.Soil.Porosity[0]
	a.SoilState.Moist[1] = a.Soil.Porosity[0]
	a.SoilState.TableDepth = 0
	a.TableSnapshot = 0

	if err := RouteSubsurface()(m); err != nil {
		t.Fatal(err)
	}

	// T = Ks·depth = 1e-4·2; gradient = slope·dx = 0.1·100;
	// transfer = T·grad·Δt/area.
	want := 1e-4 * 2 * 0.1 * 100 * 3600 / (100 * 100)
	if math.Abs(-a.SoilState.SatFlow-want) > want*1e-6 {
		t.Errorf("outflow from A = %g, want %g", -a.SoilState.SatFlow, want)
	}
	if math.Abs(b.SoilState.SatFlow-want) > want*1e-6 {
		t.Errorf("inflow to B = %g, want %g", b.SoilState.SatFlow, want)
	}

	// The cap: available water above field capacity bounds the transfer.
	avail := a.Column.AvailableWater(a.Column.TotalDepth, 0)
	if -a.SoilState.SatFlow > avail {
		t.Errorf("outflow %g exceeds available water %g", -a.SoilState.SatFlow, avail)
	}
}

// A multi-step rain-pulse run over a small sloped basin must close its
// step and cumulative mass balances.
func TestBasinMassBalance(t *testing.T) {
	terrain := testTerrain(3, 3, 100, func(x, y int) float64 {
		return 100 + 5*float64(x+y)
	}, 1.5)
	start := simtime.NewDate(1999, 10, 1, 0, 0, 0)
	const steps = 24
	// Rain for the first steps, then dry.
	var rows strings.Builder
	d := start
	for i := 0; i < steps+1; i++ {
		precip := 0.0
		if i < 6 {
			precip = 0.004
		}
		fmt.Fprintf(&rows, "%v 8.0 2.0 85 100 320 %g\n", d, precip)
		d = d.Add(3600)
	}
	end := start.Add(3600 * (steps - 1))
	clock, err := simtime.NewClock(start, end, 3600)
	if err != nil {
		t.Fatal(err)
	}
	m := &Model{
		Options:   DefaultOptions(),
		Params:    DefaultParams(),
		Clock:     clock,
		SoilTypes: map[int]*SoilType{1: testSoil()},
		VegTypes:  map[int]*VegType{1: bareVeg()},
		Stations: []*met.Station{met.NewStation("s", geom.Point{X: 1, Y: 1}, 100,
			met.Format{HasPrecip: true}, strings.NewReader(rows.String()))},
	}
	m.MetParams = met.Params{MaxSnowTemp: 0.5, MinRainTemp: -1}
	m.Balance.StepTolerance = 1e-4
	m.Balance.FinalTolerance = 1e-3
	m.InitFuncs = []DomainManipulator{
		BuildCells(terrain),
		InitNetworks(),
		InitStations(met.InvDist, 10, 2, true),
	}
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	var ledger strings.Builder
	m.RunFuncs = m.StandardRunFuncs(&ledger, nil)
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}

	var report strings.Builder
	if err := m.FinalMassBalance(&report); err != nil {
		t.Errorf("final mass balance: %v\n%s", err, report.String())
	}
	if !strings.Contains(ledger.String(), "Date") {
		t.Error("ledger header missing")
	}

	// Invariants over the final state.
	for _, c := range m.Cells {
		for i, moist := range c.SoilState.Moist {
			p := c.Soil.Porosity[0]
			if moist < 0 || moist > p+1e-9 {
				t.Errorf("cell (%d,%d) layer %d moisture %g outside [0, %g]", c.X, c.Y, i, moist, p)
			}
		}
		if c.SoilState.TableDepth < 0 || c.SoilState.TableDepth > c.Column.TotalDepth {
			t.Errorf("cell (%d,%d) water table %g outside [0, %g]",
				c.X, c.Y, c.SoilState.TableDepth, c.Column.TotalDepth)
		}
	}
}

// A NaN anywhere in the cell state must abort the run at the next
// balance audit instead of propagating silently.
func TestAggregateRejectsNaN(t *testing.T) {
	terrain := testTerrain(1, 1, 100, func(x, y int) float64 { return 100 }, 1.0)
	start := simtime.NewDate(1999, 1, 15, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 2, "5.0 1.0 60 0 300 0.0")

	m.Cells[0].SoilState.Moist[0] = math.NaN()
	err := Aggregate(nil)(m)
	if err == nil {
		t.Fatal("NaN state passed the mass-balance audit")
	}
	if got := ExitCode(err); got != CodeMassBalance {
		t.Errorf("exit code = %d, want %d", got, CodeMassBalance)
	}
}

// Flow directions must give every active cell a path to an outlet; an
// interior pit has no outgoing weights and so counts as an outlet.
func TestFlowDirectionValidation(t *testing.T) {
	terrain := testTerrain(3, 3, 100, func(x, y int) float64 {
		if x == 1 && y == 1 {
			return 50 // pit
		}
		return 100
	}, 1.5)
	start := simtime.NewDate(1999, 1, 1, 0, 0, 0)
	end := start.Add(3600)
	clock, _ := simtime.NewClock(start, end, 3600)
	m := &Model{
		Options:   DefaultOptions(),
		Params:    DefaultParams(),
		Clock:     clock,
		SoilTypes: map[int]*SoilType{1: testSoil()},
		VegTypes:  map[int]*VegType{1: bareVeg()},
	}
	err := BuildCells(terrain)(m)
	// The pit itself has no outgoing weights, making it an outlet, so
	// this terrain is legal; verify the reachability sweep accepts it.
	if err != nil {
		t.Errorf("pit-as-outlet rejected: %v", err)
	}
}

func TestOutputVarExpressions(t *testing.T) {
	terrain := testTerrain(1, 1, 100, func(x, y int) float64 { return 100 }, 1.0)
	start := simtime.NewDate(1999, 1, 15, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 2, "5.0 1.0 60 0 300 0.0")
	c := m.Cells[0]
	c.Snow.SWE = 0.1
	c.SoilState.Moist[0] = 0.33

	v, err := NewOutputVar("storage", "SWE + SoilMoist1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Eval(c)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.43) > 1e-12 {
		t.Errorf("expression = %g, want 0.43", got)
	}
	if _, err := NewOutputVar("bad", "SWE +* 2"); err == nil {
		t.Error("malformed expression accepted")
	}
}

func TestExitCodes(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("nil error code = %d", got)
	}
	err := newError(CodeSupersaturated, "supersaturated")
	if got := ExitCode(err); got != CodeSupersaturated {
		t.Errorf("code = %d, want %d", got, CodeSupersaturated)
	}
	if got := ExitCode(fmt.Errorf("wrapped: %w", err)); got != CodeSupersaturated {
		t.Errorf("wrapped code = %d, want %d", got, CodeSupersaturated)
	}
}
