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

import "io"

// StandardRunFuncs assembles the per-step phase sequence: forcing →
// parallel cell sweep → serialized lateral, overland and channel sweeps
// → aggregation → outputs → clock. extra manipulators (snapshots, pixel
// dumps) run after aggregation and before the clock advances.
func (m *Model) StandardRunFuncs(ledger, logW io.Writer, extra ...DomainManipulator) []DomainManipulator {
	funcs := []DomainManipulator{
		m.InterpolateForcing(),
		UpdateSoilTemps(),
		Calculations(m.CellStep()),
		CheckStepError(),
		SnowSlide(),
		RouteSubsurface(),
		RouteSurface(),
		RouteChannels(),
		Aggregate(ledger),
	}
	funcs = append(funcs, extra...)
	if logW != nil {
		funcs = append(funcs, Log(logW))
	}
	funcs = append(funcs, AdvanceTime())
	return funcs
}
