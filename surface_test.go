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
	"math"
	"testing"

	"github.com/spatialmodel/hydromap/simtime"
)

// The unit hydrograph must deliver exactly the injected volume to the
// outlet, lagged by the travel time.
func TestUnitHydrographConservation(t *testing.T) {
	terrain := testTerrain(2, 1, 100, func(x, y int) float64 { return 110 - 10*float64(x) }, 2.0)
	start := simtime.NewDate(1999, 4, 1, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 10, "5.0 1.0 60 0 300 0.0")
	m.Options.FlowRouting = RoutingUnitHydrograph
	m.TravelTime = []int{2, 1}

	// Inject surface excess at both cells on step 0.
	m.Cells[0].SoilState.IExcess = 0.01
	m.Cells[1].SoilState.IExcess = 0.02

	var total float64
	for step := 0; step < 8; step++ {
		if err := RouteSurface()(m); err != nil {
			t.Fatal(err)
		}
		total += m.Total.SurfaceOutflow
		m.Total.SurfaceOutflow = 0
		if step == 0 && total != 0 {
			t.Errorf("water arrived before its travel time: %g", total)
		}
		m.Clock.Advance()
	}
	if math.Abs(total-0.03) > 1e-12 {
		t.Errorf("outlet volume = %g, want 0.03", total)
	}
	if m.HydrographRemainder() != 0 {
		t.Errorf("water left in transit: %g", m.HydrographRemainder())
	}
}

// Explicit routing moves overland water one flow-direction hop per step,
// and the outlet cell discharges it out of the basin.
func TestExplicitRoutingOneHop(t *testing.T) {
	terrain := testTerrain(3, 1, 100, func(x, y int) float64 { return 120 - 10*float64(x) }, 2.0)
	start := simtime.NewDate(1999, 4, 1, 0, 0, 0)
	m := newTestModel(t, terrain, start, 3600, 4, "5.0 1.0 60 0 300 0.0")

	m.Cells[0].SoilState.IExcess = 0.01
	if err := RouteSurface()(m); err != nil {
		t.Fatal(err)
	}
	// One hop: the middle cell now holds the water.
	if got := m.Cell(1, 0).SoilState.IExcess; math.Abs(got-0.01) > 1e-12 {
		t.Errorf("middle cell excess = %g, want 0.01", got)
	}
	if err := RouteSurface()(m); err != nil {
		t.Fatal(err)
	}
	if err := RouteSurface()(m); err != nil {
		t.Fatal(err)
	}
	// The outlet cell discharged it out of the basin.
	if m.Total.SurfaceOutflow <= 0 {
		t.Error("no surface outflow after draining to the outlet")
	}
}
