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
	"gonum.org/v1/gonum/floats"
)

// RouteSurface returns the overland-flow manipulator. In explicit mode,
// infiltration excess moves cell-to-cell along the flow-direction
// weights, with channel-crossing cells donating their surface water to
// the network; road-surface water enters the road network. In unit-
// hydrograph mode the basin surface excess is convolved with the
// travel-time histogram instead.
func RouteSurface() DomainManipulator {
	return func(m *Model) error {
		if m.Options.FlowRouting == RoutingUnitHydrograph {
			return m.routeUnitHydrograph()
		}
		return m.routeSurfaceExplicit()
	}
}

func (m *Model) routeSurfaceExplicit() error {
	xOff, yOff, err := NeighborOffsets(m.Options.NDirs)
	if err != nil {
		return err
	}
	area := m.Meta.CellArea()

	// Move each cell's excess in one flow-direction-weighted hop per
	// step; the outgoing amounts are computed from a snapshot so sweep
	// order does not matter.
	outgoing := make([]float64, len(m.Cells))
	for ci, c := range m.Cells {
		outgoing[ci] = c.SoilState.IExcess
		c.SoilState.IExcess = 0
	}

	for ci, c := range m.Cells {
		excess := outgoing[ci]
		if excess <= 0 {
			continue
		}

		// Channel-hit cells donate their overland water directly to the
		// channel at the cell.
		if m.Streams.HasChannel(c.Index) {
			m.Streams.IncInflow(c.Index, excess*area)
			c.ChannelInt += excess
			continue
		}

		if c.TotalDir == 0 {
			// A basin outlet cell discharges directly.
			m.Total.SurfaceOutflow += excess
			continue
		}
		perWeight := excess / float64(c.TotalDir)
		distributed := 0.0
		for k := range c.Dir {
			if c.Dir[k] == 0 {
				continue
			}
			amount := perWeight * float64(c.Dir[k])
			if n := m.Cell(c.X+xOff[k], c.Y+yOff[k]); n != nil {
				n.SoilState.IExcess += amount
			} else {
				m.Total.SurfaceOutflow += amount
			}
			distributed += amount
		}
		// The outlet share of the flow-direction weights leaves the
		// basin here.
		if rest := excess - distributed; rest > 0 {
			m.Total.SurfaceOutflow += rest
		}
	}

	// Road-surface water becomes lateral inflow to the road network.
	if m.Options.RoadRouting && m.Roads != nil {
		for _, c := range m.Cells {
			if c.RoadIExcess > 0 && m.Roads.HasChannel(c.Index) {
				m.Roads.IncInflow(c.Index, c.RoadIExcess*area)
				c.RoadInt += c.RoadIExcess
				c.RoadIExcess = 0
			}
		}
	}
	return nil
}

// routeUnitHydrograph lags each cell's surface excess by its travel time
// to the outlet and accumulates the basin hydrograph.
func (m *Model) routeUnitHydrograph() error {
	if m.TravelTime == nil {
		return newError(CodeConfiguration, "unit-hydrograph routing requires a travel-time grid")
	}
	for ci, c := range m.Cells {
		excess := c.SoilState.IExcess
		if excess <= 0 {
			continue
		}
		c.SoilState.IExcess = 0
		lag := m.TravelTime[ci]
		if lag < 0 {
			lag = 0
		}
		slot := m.Clock.Step + lag
		for len(m.hydrograph) <= slot {
			m.hydrograph = append(m.hydrograph, 0)
		}
		m.hydrograph[slot] += excess
	}
	if m.Clock.Step < len(m.hydrograph) {
		m.Total.SurfaceOutflow += m.hydrograph[m.Clock.Step]
		m.hydrograph[m.Clock.Step] = 0
	}
	return nil
}

// HydrographRemainder returns the surface-excess volume still in transit
// in the unit-hydrograph buffer (m over the basin).
func (m *Model) HydrographRemainder() float64 {
	if m.hydrograph == nil {
		return 0
	}
	return floats.Sum(m.hydrograph)
}
