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

// Package hydromap implements a spatially-distributed, physically-based
// hydrology model: a per-cell mass-and-energy balance (canopy
// interception, two-layer snowpack, evapotranspiration, unsaturated soil
// water) coupled with saturated subsurface lateral transport, overland
// routing, and a 1-D channel/road network, at sub-daily time steps over
// a rectangular raster. The formulation follows Wigmosta, Vail and
// Lettenmaier (1994).
package hydromap

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/spatialmodel/hydromap/channel"
	"github.com/spatialmodel/hydromap/met"
	"github.com/spatialmodel/hydromap/simtime"
)

// Model holds the current state of the simulation.
type Model struct {
	Meta    GridMeta
	Options Options
	Params  Params

	Clock *simtime.Clock

	// Cells are the active cells; CellIndex maps a flattened raster
	// index to its position in Cells (-1 for inactive cells).
	Cells     []*Cell
	CellIndex []int

	SoilTypes map[int]*SoilType
	VegTypes  map[int]*VegType

	Stations  []*met.Station
	Weights   *met.WeightGrid
	MetParams met.Params

	Streams *channel.Network
	Roads   *channel.Network

	// SedimentDiams are the particle diameters (mm) routed when the
	// sediment option is on.
	SedimentDiams []float64

	// Shading tables, optional: ShadowFactor returns the direct-beam
	// multiplier for a cell at the current day step, SkyView the diffuse
	// attenuation.
	ShadowFactor func(dayStep, x, y int) uint8
	SkyView      []float64

	// UnitHydrograph travel-time data for the lumped routing option.
	TravelTime []int // travel time to the outlet, in steps, per cell

	// hydrograph buffers surface excess in transit to the outlet, one
	// slot per future step.
	hydrograph []float64

	Total   Totals
	Balance BalanceState

	// InitFuncs run once before the simulation; RunFuncs run in order
	// for every time step until Done is set.
	InitFuncs []DomainManipulator
	RunFuncs  []DomainManipulator

	Done bool

	// step holds the per-step scalars (solar position, month) and the
	// first fatal error recorded during the parallel cell sweep.
	step stepContext

	// blocks partitions Cells once at initialization; each worker owns
	// its block for the life of the run.
	blocks [][]*Cell
}

// DomainManipulator is a function that operates on the entire model
// domain for one phase of a time step (or of initialization).
type DomainManipulator func(m *Model) error

// CellManipulator is a function that operates on a single cell. Within
// the parallel cell sweep it may touch only the cell it is given.
type CellManipulator func(c *Cell, Δt float64)

// Init runs the model initialization functions in order, then records
// the mass-balance baseline.
func (m *Model) Init() error {
	for _, f := range m.InitFuncs {
		if err := f(m); err != nil {
			return err
		}
	}
	if !m.Balance.started {
		return InitBalance()(m)
	}
	return nil
}

// Run runs the simulation to completion of the configured time window,
// or until a fatal error.
func (m *Model) Run() error {
	for !m.Done {
		for _, f := range m.RunFuncs {
			if err := f(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cell returns the active cell at raster coordinates (x, y), or nil.
func (m *Model) Cell(x, y int) *Cell {
	if x < 0 || x >= m.Meta.NX || y < 0 || y >= m.Meta.NY {
		return nil
	}
	i := m.CellIndex[y*m.Meta.NX+x]
	if i < 0 {
		return nil
	}
	return m.Cells[i]
}

// CellAt returns the active cell for a flattened raster index, or nil.
func (m *Model) CellAt(index int) *Cell {
	if index < 0 || index >= len(m.CellIndex) {
		return nil
	}
	i := m.CellIndex[index]
	if i < 0 {
		return nil
	}
	return m.Cells[i]
}

// Dt returns the step length in seconds.
func (m *Model) Dt() float64 { return float64(m.Clock.Dt) }

// partition splits the active cells into contiguous blocks, one per
// worker, to maximize cache locality.
func (m *Model) partition() {
	nprocs := runtime.GOMAXPROCS(0)
	if nprocs > len(m.Cells) {
		nprocs = len(m.Cells)
	}
	if nprocs < 1 {
		nprocs = 1
	}
	m.blocks = make([][]*Cell, 0, nprocs)
	blockSize := (len(m.Cells) + nprocs - 1) / nprocs
	for start := 0; start < len(m.Cells); start += blockSize {
		end := start + blockSize
		if end > len(m.Cells) {
			end = len(m.Cells)
		}
		m.blocks = append(m.blocks, m.Cells[start:end])
	}
}

// Calculations returns a manipulator that runs the given cell
// manipulators over all active cells. The sweep is embarrassingly
// parallel because each manipulator touches only its own cell; a barrier
// at the end separates it from the serialized lateral sweeps.
func Calculations(calculators ...CellManipulator) DomainManipulator {
	return func(m *Model) error {
		if m.blocks == nil {
			m.partition()
		}
		var wg sync.WaitGroup
		wg.Add(len(m.blocks))
		for _, block := range m.blocks {
			go func(block []*Cell) {
				defer wg.Done()
				for _, c := range block {
					for _, f := range calculators {
						f(c, m.Dt())
					}
				}
			}(block)
		}
		wg.Wait()
		return nil
	}
}

// AdvanceTime moves the clock to the next step and sets Done past the
// end of the simulation window.
func AdvanceTime() DomainManipulator {
	return func(m *Model) error {
		m.Clock.Advance()
		if m.Clock.Done() {
			m.Done = true
		}
		return nil
	}
}

// Log returns a manipulator writing one status row per step.
func Log(w io.Writer) DomainManipulator {
	startTime := time.Now()
	stepTime := time.Now()
	return func(m *Model) error {
		// Aggregate has already reset Total.StreamOutflow; the network
		// still holds this step's outlet volume.
		var outflow float64
		if m.Streams != nil {
			outflow = m.Streams.OutletFlow
		}
		fmt.Fprintf(w, "%v  step %-6d walltime=%6.3gh  Δwalltime=%4.2gs  ponded=%.4g m  outflow=%.4g m³\n",
			m.Clock.Current, m.Clock.Step,
			time.Since(startTime).Hours(), time.Since(stepTime).Seconds(),
			m.Total.IExcess, outflow)
		stepTime = time.Now()
		return nil
	}
}
