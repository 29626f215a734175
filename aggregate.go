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
	"io"
	"math"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/unit"
)

// Dimensions for the unit-checked volume-to-depth conversions.
var (
	meter2 = unit.Dimensions{unit.LengthDim: 2}
	meter3 = unit.Dimensions{unit.LengthDim: 3}
)

// Totals holds the basin-averaged accumulators for the current step (and
// running sums for the cumulative ledger). All water depths are meters
// averaged over the active basin area unless noted.
type Totals struct {
	Precip   float64
	Rain     float64
	Snowfall float64

	ET        float64
	EvapSoil  float64
	SWE       float64
	OldSWE    float64
	Melt      float64
	SnowVapor float64
	CanVapor  float64

	CanopyWater float64
	SoilWater   float64
	IExcess     float64
	RoadIExcess float64
	SatFlow     float64

	ChannelInt    float64
	RoadInt       float64
	CulvertReturn float64
	CulvertLost   float64

	SurfaceOutflow float64 // overland water leaving the basin edge (m)
	StreamOutflow  float64 // channel outlet volume this step (m³)

	SatExtent float64 // fraction of cells with near-surface saturation

	NetShort float64
	NetRad   float64
}

// basinStorage sums the current basin water storage (m averaged over the
// active cells), including channel-network storage and surface water in
// transit.
func (m *Model) basinStorage() float64 {
	var total float64
	for _, c := range m.Cells {
		total += c.TotalSoilWater() + c.RoadIExcess + c.CanopyWater() +
			c.Snow.SWE + c.SoilState.SatFlow
	}
	total /= float64(len(m.Cells))
	basinArea := float64(len(m.Cells)) * m.Meta.CellArea()
	if m.Streams != nil {
		total += m.Streams.TotalStorage() / basinArea
	}
	if m.Roads != nil {
		total += m.Roads.TotalStorage() / basinArea
	}
	return total + m.HydrographRemainder()
}

// InitBalance records the initial basin storage as the mass-balance
// baseline; Model.Init calls it automatically after the other
// initializers.
func InitBalance() DomainManipulator {
	return func(m *Model) error {
		s := m.basinStorage()
		m.Balance.StartStorage = s
		m.Balance.OldStorage = s
		m.Balance.started = true
		return nil
	}
}

// BalanceState carries the running mass-balance ledger between steps.
type BalanceState struct {
	StartStorage float64
	OldStorage   float64
	started      bool

	CumPrecip        float64
	CumET            float64
	CumChannelInt    float64
	CumRoadInt       float64
	CumSnowVapor     float64
	CumCulvertReturn float64
	CumOutflow       float64

	// Residual statistics over the run.
	ErrStats stats.Stats

	// Threshold for the per-step relative residual; exceeding it is
	// fatal.
	StepTolerance  float64
	FinalTolerance float64
}

// storage returns the basin water storage for the balance equation.
func (t *Totals) storage() float64 {
	return t.IExcess + t.RoadIExcess + t.CanopyWater + t.SoilWater + t.SWE + t.SatFlow
}

// Aggregate returns the manipulator that sums the per-cell state into
// basin totals, audits the step mass balance, and appends a row to the
// ledger written to w (which may be nil).
func Aggregate(w io.Writer) DomainManipulator {
	return func(m *Model) error {
		t := &m.Total
		nCells := float64(len(m.Cells))
		area := m.Meta.CellArea()
		basinArea := nCells * area

		prevSWE := t.OldSWE
		streamOut := t.StreamOutflow
		surfaceOut := t.SurfaceOutflow
		culvertLost := t.CulvertLost

		*t = Totals{OldSWE: prevSWE, StreamOutflow: streamOut,
			SurfaceOutflow: surfaceOut, CulvertLost: culvertLost}

		satCount := 0.0
		for _, c := range m.Cells {
			t.Precip += c.Precip.Total
			t.Rain += c.Precip.Rain
			t.Snowfall += c.Precip.Snow

			t.ET += c.Evap.ETot
			t.EvapSoil += c.Evap.EvapSoil
			t.SWE += c.Snow.SWE + c.SnowCan.IntSnow*overstoryFract(c)
			t.Melt += c.Snow.Melted
			t.SnowVapor += c.Snow.VaporMassFlux
			t.CanVapor += c.Snow.CanopyVaporMassFlux

			t.CanopyWater += c.CanopyWater() - c.SnowCan.IntSnow*overstoryFract(c)
			t.SoilWater += c.TotalSoilWater() - c.SoilState.IExcess
			t.IExcess += c.SoilState.IExcess
			t.RoadIExcess += c.RoadIExcess
			t.SatFlow += c.SoilState.SatFlow

			t.ChannelInt += c.ChannelInt
			t.RoadInt += c.RoadInt
			t.CulvertReturn += c.CulvertReturn

			t.NetShort += c.Rad.PixelNetShort
			t.NetRad += c.Rad.PixelNetShort + c.Rad.PixelLongIn - c.Rad.PixelLongOut

			if sat := 1 - c.SoilState.TableDepth/c.Column.TotalDepth; sat > 0.85 {
				satCount++
			}
		}
		for _, f := range []*float64{
			&t.Precip, &t.Rain, &t.Snowfall, &t.ET, &t.EvapSoil, &t.SWE, &t.Melt,
			&t.SnowVapor, &t.CanVapor, &t.CanopyWater, &t.SoilWater, &t.IExcess,
			&t.RoadIExcess, &t.SatFlow, &t.ChannelInt, &t.RoadInt, &t.CulvertReturn,
			&t.NetShort, &t.NetRad,
		} {
			*f /= nCells
		}
		t.SatExtent = satCount / nCells

		// The channel network stores water after interception; treat
		// network storage as basin storage so routing lag is not booked
		// as an error.
		networkStorage := 0.0
		if m.Streams != nil {
			networkStorage += m.Streams.TotalStorage() / basinArea
		}
		if m.Roads != nil {
			networkStorage += m.Roads.TotalStorage() / basinArea
		}

		b := &m.Balance
		newStorage := t.storage() + networkStorage + m.HydrographRemainder()

		// Convert the channel outlet volume to a basin-average depth; the
		// dimensioned arithmetic guards the m³ / m² bookkeeping.
		outletDepth := unit.Div(unit.New(t.StreamOutflow, meter3),
			unit.New(basinArea, meter2)).Value()
		outflowDepth := outletDepth + t.SurfaceOutflow/nCells + t.CulvertLost/nCells
		t.StreamOutflow, t.SurfaceOutflow, t.CulvertLost = 0, 0, 0

		output := outflowDepth + t.ET
		input := t.Precip + t.SnowVapor + t.CanVapor

		massError := (newStorage - b.OldStorage) + output - input
		// NaN compares false against any threshold; catch it before the
		// tolerance test so a poisoned state aborts instead of carrying
		// the NaN forward through OldStorage.
		if math.IsNaN(massError) || math.IsInf(massError, 0) {
			return newError(CodeMassBalance,
				"step %d basin state is not finite: storage %g, outflow %g, inflow %g",
				m.Clock.Step, newStorage, output, input)
		}
		if input > 0 && b.StepTolerance > 0 &&
			math.Abs(massError)/input > b.StepTolerance {
			return newError(CodeMassBalance,
				"step %d mass balance residual %g m exceeds %g of inflow %g m",
				m.Clock.Step, massError, b.StepTolerance, input)
		}
		b.OldStorage = newStorage
		b.CumPrecip += t.Precip
		b.CumET += t.ET
		b.CumChannelInt += t.ChannelInt
		b.CumRoadInt += t.RoadInt
		b.CumSnowVapor += t.SnowVapor + t.CanVapor
		b.CumCulvertReturn += t.CulvertReturn
		b.CumOutflow += outflowDepth
		b.ErrStats.Update(massError)

		if w != nil {
			if m.Clock.Step == 0 {
				fmt.Fprintln(w, "Date Precip(m) Rain Snowfall SWE Melt ET CanopyWater "+
					"SoilWater IExcess SatFlow ChannelInt RoadInt CulvertReturn "+
					"Outflow SatExtent NetShort Error")
			}
			fmt.Fprintf(w, "%v %g %g %g %g %g %g %g %g %g %g %g %g %g %g %g %g %g\n",
				m.Clock.Current, t.Precip, t.Rain, t.Snowfall, t.SWE, t.Melt, t.ET,
				t.CanopyWater, t.SoilWater, t.IExcess, t.SatFlow, t.ChannelInt,
				t.RoadInt, t.CulvertReturn, outflowDepth, t.SatExtent, t.NetShort, massError)
		}

		t.OldSWE = t.SWE
		return nil
	}
}

func overstoryFract(c *Cell) float64 {
	if c.Veg.OverStory {
		return c.Veg.Fract[0]
	}
	return 0
}

// FinalMassBalance writes the cumulative mass-balance report and flags a
// residual beyond the configured tolerance.
func (m *Model) FinalMassBalance(w io.Writer) error {
	b := &m.Balance
	t := &m.Total

	newStorage := b.OldStorage
	output := b.CumOutflow + b.CumET
	input := b.CumPrecip + b.CumSnowVapor
	massError := (newStorage - b.StartStorage) + output - input

	mm := func(v float64) float64 { return v * 1000 }

	fmt.Fprintf(w, "\n  ********************************               Depth")
	fmt.Fprintf(w, "\n  Runoff Final Mass Balance                        mm")
	fmt.Fprintf(w, "\n  ********************************        ------------")
	fmt.Fprintf(w, "\n  Total Inflow ...................        %.3f", mm(input))
	fmt.Fprintf(w, "\n      Precipitation ..............        %.3f", mm(b.CumPrecip))
	fmt.Fprintf(w, "\n      Snow Vapor Flux ............        %.3f", mm(b.CumSnowVapor))
	fmt.Fprintf(w, "\n  Total Outflow ..................        %.3f", mm(output))
	fmt.Fprintf(w, "\n      Evapotranspiration .........        %.3f", mm(b.CumET))
	fmt.Fprintf(w, "\n      Channel/Basin Outflow ......        %.3f", mm(b.CumOutflow))
	fmt.Fprintf(w, "\n  Storage Change .................        %.3f", mm(newStorage-b.StartStorage))
	fmt.Fprintf(w, "\n      Initial Storage ............        %.3f", mm(b.StartStorage))
	fmt.Fprintf(w, "\n      Final Storage ..............        %.3f", mm(newStorage))
	fmt.Fprintf(w, "\n          Final SWE ..............        %.3f", mm(t.SWE))
	fmt.Fprintf(w, "\n          Final Soil Moisture ....        %.3f", mm(t.SoilWater+t.SatFlow))
	fmt.Fprintf(w, "\n          Final Surface ..........        %.3f", mm(t.IExcess+t.CanopyWater))
	fmt.Fprintf(w, "\n  ******************************************************")
	fmt.Fprintf(w, "\n  Mass Error (mm).................        %.3f", mm(massError))
	fmt.Fprintf(w, "\n  Step Error mean/max (mm)........        %.4f / %.4f\n",
		mm(b.ErrStats.Mean()), mm(math.Max(math.Abs(b.ErrStats.Max()), math.Abs(b.ErrStats.Min()))))

	if t.SoilWater+t.SatFlow < 0 {
		fmt.Fprintf(w, "FINAL MASS BALANCE ERROR: negative soil moisture %.3f mm\n",
			mm(t.SoilWater+t.SatFlow))
	}
	if math.IsNaN(massError) || math.IsInf(massError, 0) {
		return newError(CodeMassBalance,
			"cumulative basin state is not finite: storage %g, outflow %g, inflow %g",
			newStorage, output, input)
	}
	if input > 0 && b.FinalTolerance > 0 && math.Abs(massError)/input > b.FinalTolerance {
		return newError(CodeMassBalance,
			"cumulative mass balance residual %g m exceeds %g of inflow %g m",
			massError, b.FinalTolerance, input)
	}
	return nil
}
