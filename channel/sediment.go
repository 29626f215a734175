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

package channel

import (
	"fmt"
	"math"

	"github.com/spatialmodel/hydromap/science/sediment"
)

// SegmentSediment is the per-size-class sediment state of a segment. All
// masses are dry kg; rates are kg/s.
type SegmentSediment struct {
	Mass []float64 // bed store per size class

	Inflow          []float64 // lateral + upstream mass this step
	Outflow         []float64
	InflowRate      []float64
	OutflowRate     []float64
	LastInflowRate  []float64
	LastOutflowRate []float64

	DebrisInflow   []float64 // mass-wasting input this step
	OverlandInflow []float64 // hillslope erosion input this step
}

// NewSegmentSediment allocates sediment state for nSizes size classes.
func NewSegmentSediment(nSizes int) *SegmentSediment {
	return &SegmentSediment{
		Mass:            make([]float64, nSizes),
		Inflow:          make([]float64, nSizes),
		Outflow:         make([]float64, nSizes),
		InflowRate:      make([]float64, nSizes),
		OutflowRate:     make([]float64, nSizes),
		LastInflowRate:  make([]float64, nSizes),
		LastOutflowRate: make([]float64, nSizes),
		DebrisInflow:    make([]float64, nSizes),
		OverlandInflow:  make([]float64, nSizes),
	}
}

// SedimentConfig configures the sediment router.
type SedimentConfig struct {
	Diams     []float64 // particle diameters per size class (mm)
	Viscosity float64   // kinematic viscosity (m²/s)

	// MassBalanceTol is the per-sub-step mass error (kg) beyond which the
	// time weighting is raised to fully implicit and the step retried.
	MassBalanceTol float64
	// MaxRetries bounds the θ=1 retries.
	MaxRetries int
}

// RouteSediment routes sediment through the network for one step,
// sub-stepping each reach at its traversal time, transporting at Bagnold
// capacity, and passing wash-load sizes through without interacting with
// the bed store. It must run after Route and before EndStep, so both the
// current and prior flow states are available.
func (n *Network) RouteSediment(cfg SedimentConfig, dt float64) error {
	for _, s := range n.Segments {
		if s.Sediment == nil {
			continue
		}
		if err := s.routeSediment(cfg, dt); err != nil {
			return err
		}
		// Hand this reach's outflow to the downstream reach.
		if s.Downstream != nil && s.Downstream.Sediment != nil {
			for i, m := range s.Sediment.Outflow {
				s.Downstream.Sediment.Inflow[i] += m
			}
		}
	}
	return nil
}

func (s *Segment) routeSediment(cfg SedimentConfig, dt float64) error {
	sed := s.Sediment
	nSizes := len(cfg.Diams)

	dIdt := (s.Inflow - s.LastInflow) / dt
	dOdt := (s.Outflow - s.LastOutflow) / dt

	// Sub-step length bounded by the reach traversal time.
	qAvg := (s.Inflow + s.Outflow) / (2 * dt)
	if qAvg <= 0 {
		// No flow (true for dry roads): sediment stays in the bed store.
		for i := 0; i < nSizes; i++ {
			sed.Mass[i] += sed.Inflow[i] + sed.DebrisInflow[i] + sed.OverlandInflow[i]
			sed.Outflow[i] = 0
			sed.OutflowRate[i] = 0
		}
		s.endSedimentStep(dt)
		return nil
	}
	v := 0.01
	if s.Slope > 0 {
		depth := sediment.FlowDepth(qAvg, s.Class.Width, s.Class.Friction, s.Slope)
		if depth > 0 {
			v = qAvg / (depth * s.Class.Width)
		}
	}
	minDT := math.Min(3600, s.Length/v)
	nInc := math.Ceil(dt / minDT)
	if nInc < 1 {
		nInc = 1
	}
	dtSed := dt / nInc

	const phi = 0.55
	for i := 0; i < nSizes; i++ {
		sed.Outflow[i] = 0
		sed.InflowRate[i] = sed.Inflow[i] / dt
	}

	for step := 0; step < int(nInc); step++ {
		capacityUsed := 0.0
		qUp := s.LastInflow/dt + dIdt*float64(step)*dtSed
		qDown := s.LastOutflow/dt + dOdt*float64(step)*dtSed

		for i := 0; i < nSizes; i++ {
			ds := cfg.Diams[i] / 1000 // mm to m
			lateralRate := (sed.DebrisInflow[i] + sed.OverlandInflow[i]) / dt

			// Space-time weighting; θ goes fully implicit when the inflow
			// is changing abruptly or debris is arriving.
			theta := 0.55
			if sed.DebrisInflow[i] > 0 {
				theta = 1
			}
			if sed.InflowRate[i] > 0 || sed.LastInflowRate[i] > 0 {
				if relDiff(sed.LastInflowRate[i], sed.InflowRate[i]) > 0.75 ||
					relDiff(sed.OutflowRate[i], sed.InflowRate[i]) > 0.7 {
					theta = 1
				}
			} else {
				theta = 1
			}

			var massErr float64
			for try := 0; ; try++ {
				if try > 0 {
					theta = 1
				}

				var capacity float64
				if cfg.Diams[i] < sediment.WashLoadDiameter {
					// Wash load passes through without bed interaction.
					capacity = sed.InflowRate[i] + sed.Mass[i]/dtSed
				} else {
					up := sediment.Bagnold(ds, qUp, s.Class.Width, s.Class.Friction, s.Slope, cfg.Viscosity)
					down := sediment.Bagnold(ds, qDown, s.Class.Width, s.Class.Friction, s.Slope, cfg.Viscosity)
					capacity = phi*down + (1-phi)*up - capacityUsed
				}
				if capacity < 0 {
					capacity = 0
				}

				var dMdt float64
				massBefore := sed.Mass[i]
				if capacity*dtSed > massBefore {
					dMdt = -massBefore / dtSed
				} else {
					dMdt = -capacity
				}

				term3 := (1 - theta) * (sed.LastOutflowRate[i] - sed.LastInflowRate[i])
				term4 := theta * sed.InflowRate[i]
				outRate := (1 / theta) * (lateralRate - dMdt - term3 + term4)
				if outRate < 0 {
					outRate = 0
				}

				newMass := massBefore + dMdt*dtSed
				if outRate >= capacity && cfg.Diams[i] >= sediment.WashLoadDiameter {
					// Transport is capacity-limited; the excess deposits.
					newMass += (outRate - capacity) * dtSed
					outRate = capacity
				}

				massErr = (lateralRate+sed.InflowRate[i]-outRate)*dtSed - (newMass - massBefore)
				if math.Abs(massErr) <= cfg.MassBalanceTol || try >= cfg.MaxRetries {
					if math.Abs(massErr) > cfg.MassBalanceTol {
						return fmt.Errorf("channel: segment %d size class %d: sediment mass error %g kg after %d retries",
							s.ID, i, massErr, try)
					}
					sed.Mass[i] = newMass
					sed.OutflowRate[i] = outRate
					sed.Outflow[i] += outRate * dtSed
					if cfg.Diams[i] >= sediment.WashLoadDiameter {
						capacityUsed += math.Min(outRate, capacity)
					}
					break
				}
			}
		}
	}
	s.endSedimentStep(dt)
	return nil
}

func (s *Segment) endSedimentStep(dt float64) {
	sed := s.Sediment
	for i := range sed.Mass {
		sed.LastInflowRate[i] = sed.Inflow[i] / dt
		sed.LastOutflowRate[i] = sed.OutflowRate[i]
		sed.Inflow[i] = 0
		sed.DebrisInflow[i] = 0
		sed.OverlandInflow[i] = 0
	}
}

func relDiff(a, b float64) float64 {
	if b == 0 {
		return math.Inf(1)
	}
	return math.Abs(1 - a/b)
}
