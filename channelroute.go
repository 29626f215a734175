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
	"github.com/spatialmodel/hydromap/channel"
	"github.com/spatialmodel/hydromap/science/sediment"
)

// RouteChannels returns the manipulator for the network sweeps: the road
// network first (culverts may return water to cells or feed streams),
// then the stream network down to the basin outlet, then the optional
// sediment routing.
func RouteChannels() DomainManipulator {
	return func(m *Model) error {
		dt := m.Dt()
		area := m.Meta.CellArea()

		if m.Roads != nil {
			m.Roads.Route(dt, func(cellIndex int, volume float64) {
				c := m.CellAt(cellIndex)
				if c == nil {
					// A culvert pointed outside the basin discards.
					m.Total.CulvertLost += volume / area
					return
				}
				depth := volume / area
				c.SoilState.IExcess += depth
				c.CulvertReturn += depth
			}, m.Streams)
			// Water dropped at discard-type culverts leaves the basin.
			m.Total.CulvertLost += m.Roads.DiscardFlow / area
		}

		if m.Streams != nil {
			m.Streams.Route(dt, nil, nil)
			m.Total.StreamOutflow += m.Streams.OutletFlow
		}

		if m.Options.Sediment {
			cfg := channel.SedimentConfig{
				Diams:          m.SedimentDiams,
				Viscosity:      sediment.KinematicViscosity(10) / 1e6,
				MassBalanceTol: 0.1,
				MaxRetries:     3,
			}
			if m.Roads != nil {
				if err := m.Roads.RouteSediment(cfg, dt); err != nil {
					return newError(CodeMassBalance, "road sediment routing: %v", err)
				}
			}
			if m.Streams != nil {
				if err := m.Streams.RouteSediment(cfg, dt); err != nil {
					return newError(CodeMassBalance, "stream sediment routing: %v", err)
				}
			}
		}

		if m.Roads != nil {
			m.Roads.EndStep()
		}
		if m.Streams != nil {
			m.Streams.EndStep()
		}
		return nil
	}
}
