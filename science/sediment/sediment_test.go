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

package sediment

import (
	"math"
	"testing"
)

func TestKinematicViscosity(t *testing.T) {
	v0 := KinematicViscosity(0)
	v20 := KinematicViscosity(20)
	if math.Abs(v0-1.79) > 1e-9 {
		t.Errorf("viscosity at 0 °C = %g, want 1.79", v0)
	}
	if v20 >= v0 {
		t.Errorf("viscosity should drop with temperature: %g >= %g", v20, v0)
	}
}

func TestSettlingVelocity(t *testing.T) {
	visc := KinematicViscosity(10) / 1e6 // m²/s
	fine := SettlingVelocity(0.0001, visc)
	coarse := SettlingVelocity(0.002, visc)
	if fine <= 0 || coarse <= 0 {
		t.Fatalf("nonpositive settling velocities: %g, %g", fine, coarse)
	}
	if coarse <= fine {
		t.Errorf("coarse particles should settle faster: %g <= %g", coarse, fine)
	}
}

func TestFlowDepth(t *testing.T) {
	if d := FlowDepth(0, 5, 0.03, 0.01); d != 0 {
		t.Errorf("depth at zero flow = %g, want 0", d)
	}
	d1 := FlowDepth(1, 5, 0.03, 0.01)
	d2 := FlowDepth(10, 5, 0.03, 0.01)
	if d1 <= 0 || d2 <= d1 {
		t.Errorf("depths not increasing with discharge: %g, %g", d1, d2)
	}
}

func TestBagnoldCapacity(t *testing.T) {
	visc := KinematicViscosity(10) / 1e6
	// Trickle below the depth threshold transports nothing.
	if c := Bagnold(0.0005, 1e-7, 5, 0.05, 0.02, visc); c != 0 {
		t.Errorf("capacity at negligible flow = %g, want 0", c)
	}
	small := Bagnold(0.0005, 0.5, 5, 0.05, 0.02, visc)
	large := Bagnold(0.0005, 5, 5, 0.05, 0.02, visc)
	if small < 0 || large < 0 {
		t.Fatalf("negative capacities: %g, %g", small, large)
	}
	if large <= small {
		t.Errorf("capacity should grow with discharge: %g <= %g", large, small)
	}
}
