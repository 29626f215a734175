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

// Package channel routes water (and optionally sediment) through directed
// trees of stream and road segments that exchange mass with the raster:
// cells contribute lateral inflow to the segments crossing them, and road
// culverts may return water to designated cells.
package channel

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// SinkKind describes what a road network does with water reaching a road
// sink (a segment with no downstream segment).
type SinkKind int

const (
	// SinkDiscard drops the water from the basin (counted in totals).
	SinkDiscard SinkKind = iota
	// SinkReturn deposits the water at a designated raster cell downhill
	// of the culvert.
	SinkReturn
	// SinkToStream adds the water to a stream segment as lateral inflow.
	SinkToStream
)

// Class holds the hydraulic properties shared by segments of one class.
type Class struct {
	ID                  int
	Width               float64 // m
	Friction            float64 // Manning roughness coefficient
	MaxInfiltrationRate float64 // bed infiltration capacity (m/s)
}

// Segment is one reach of a channel or road network.
type Segment struct {
	ID         int
	ClassID    int
	Class      *Class
	Slope      float64
	Length     float64 // m
	DownID     int     // -1 at the basin outlet
	Downstream *Segment
	Order      int  // topological order (headwaters = 1)
	Record     bool // emit a time series for this segment

	// State volumes (m³). Inflow accumulates during the current step;
	// Last* hold the prior step's values for sub-stepped consumers.
	Inflow      float64
	LastInflow  float64
	Outflow     float64
	LastOutflow float64
	Storage     float64

	// Road sink behavior; meaningful only for road networks.
	Sink       SinkKind
	ReturnCell int // raster cell index for SinkReturn
	StreamID   int // stream segment ID for SinkToStream

	// Stream-temperature accumulators: crossing-length-weighted means of
	// the radiation reaching the water surface this step (W/m²).
	NetShortAccum float64
	LongInAccum   float64
	radWeight     float64

	Sediment *SegmentSediment
}

// Crossing records the part of a segment lying inside one raster cell.
type Crossing struct {
	Seg     *Segment
	Length  float64 // subsegment length within the cell (m)
	Elev    float64 // bed elevation (m)
	Azimuth float64 // degrees
}

// Network is a directed tree (or forest) of segments plus its mapping to
// the raster.
type Network struct {
	Segments []*Segment // sorted by nondecreasing Order
	byID     map[int]*Segment

	// Road marks a road network, whose terminal segments are sinks
	// rather than basin outlets.
	Road bool

	// CellMap indexes the crossings by raster cell index; SegCells is the
	// reverse map.
	CellMap  map[int][]*Crossing
	SegCells map[int][]int

	// OutletFlow is the volume leaving the basin outlet(s) during the
	// current step (m³); SinkFlow the volume leaving through road sinks
	// of any kind, and DiscardFlow the part of it dropped from the basin.
	OutletFlow  float64
	SinkFlow    float64
	DiscardFlow float64

	// mu guards the inflow and radiation accumulators, which are
	// incremented from the parallel cell sweep.
	mu sync.Mutex
}

// NewNetwork links the segments into a tree, computes topological order,
// and sorts by it.
func NewNetwork(segments []*Segment) (*Network, error) {
	n := &Network{
		Segments: segments,
		byID:     make(map[int]*Segment, len(segments)),
		CellMap:  make(map[int][]*Crossing),
		SegCells: make(map[int][]int),
	}
	for _, s := range segments {
		if _, ok := n.byID[s.ID]; ok {
			return nil, fmt.Errorf("channel: duplicate segment ID %d", s.ID)
		}
		n.byID[s.ID] = s
	}
	for _, s := range segments {
		if s.DownID >= 0 {
			down, ok := n.byID[s.DownID]
			if !ok {
				return nil, fmt.Errorf("channel: segment %d references unknown downstream segment %d", s.ID, s.DownID)
			}
			if down == s {
				return nil, fmt.Errorf("channel: segment %d is its own downstream segment", s.ID)
			}
			s.Downstream = down
		}
	}
	if err := n.computeOrder(); err != nil {
		return nil, err
	}
	sort.SliceStable(n.Segments, func(i, j int) bool {
		return n.Segments[i].Order < n.Segments[j].Order
	})
	return n, nil
}

// computeOrder assigns every segment an order one greater than the
// maximum of its upstream segments, detecting cycles.
func (n *Network) computeOrder() error {
	upstream := make(map[int][]*Segment)
	for _, s := range n.Segments {
		if s.Downstream != nil {
			upstream[s.Downstream.ID] = append(upstream[s.Downstream.ID], s)
		}
	}
	var visit func(s *Segment, depth int) error
	visit = func(s *Segment, depth int) error {
		if depth > len(n.Segments) {
			return fmt.Errorf("channel: cycle detected at segment %d", s.ID)
		}
		order := 1
		for _, up := range upstream[s.ID] {
			if up.Order == 0 {
				if err := visit(up, depth+1); err != nil {
					return err
				}
			}
			if up.Order >= order {
				order = up.Order + 1
			}
		}
		s.Order = order
		return nil
	}
	for _, s := range n.Segments {
		if s.Order == 0 {
			if err := visit(s, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// Segment returns the segment with the given ID, or nil.
func (n *Network) Segment(id int) *Segment { return n.byID[id] }

// AddCrossing registers the part of segment id crossing raster cell
// cellIndex.
func (n *Network) AddCrossing(cellIndex, id int, length, elev, azimuth float64) error {
	s := n.byID[id]
	if s == nil {
		return fmt.Errorf("channel: crossing references unknown segment ID %d", id)
	}
	n.CellMap[cellIndex] = append(n.CellMap[cellIndex], &Crossing{
		Seg: s, Length: length, Elev: elev, Azimuth: azimuth,
	})
	n.SegCells[s.ID] = append(n.SegCells[s.ID], cellIndex)
	return nil
}

// HasChannel reports whether any segment crosses the cell.
func (n *Network) HasChannel(cellIndex int) bool {
	return n != nil && len(n.CellMap[cellIndex]) > 0
}

// IncInflow adds volume (m³) as lateral inflow at the cell, split over
// the crossings in proportion to their subsegment lengths. It is safe to
// call from concurrent cell workers.
func (n *Network) IncInflow(cellIndex int, volume float64) {
	crossings := n.CellMap[cellIndex]
	if len(crossings) == 0 {
		return
	}
	var total float64
	for _, c := range crossings {
		total += c.Length
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if total <= 0 {
		crossings[0].Seg.Inflow += volume
		return
	}
	for _, c := range crossings {
		c.Seg.Inflow += volume * c.Length / total
	}
}

// IncRadiation accumulates the radiation reaching the water surface in
// the cell onto the crossing segments, weighted by crossing length, for
// a downstream stream-temperature consumer. Safe for concurrent cell
// workers.
func (n *Network) IncRadiation(cellIndex int, netShort, longIn float64) {
	crossings := n.CellMap[cellIndex]
	if len(crossings) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range crossings {
		s := c.Seg
		w := c.Length
		s.NetShortAccum = (s.NetShortAccum*s.radWeight + netShort*w) / (s.radWeight + w)
		s.LongInAccum = (s.LongInAccum*s.radWeight + longIn*w) / (s.radWeight + w)
		s.radWeight += w
	}
}

// CellBankHeight returns the minimum bank height (surface minus bed
// elevation) of the crossings in the cell, given the cell surface
// elevation.
func (n *Network) CellBankHeight(cellIndex int, surfaceElev float64) float64 {
	crossings := n.CellMap[cellIndex]
	if len(crossings) == 0 {
		return 0
	}
	bank := math.Inf(1)
	for _, c := range crossings {
		if h := surfaceElev - c.Elev; h < bank {
			bank = h
		}
	}
	if bank < 0 {
		bank = 0
	}
	return bank
}

// travelTime estimates the reach travel time (s) from Manning's equation
// at the mean step discharge, floored to keep the reservoir well behaved
// at low flows.
func (s *Segment) travelTime(dt float64) float64 {
	q := (s.Inflow + s.Outflow) / (2 * dt)
	if q <= 0 || s.Slope <= 0 {
		return dt
	}
	depth := math.Pow(q*s.Class.Friction/(s.Class.Width*math.Sqrt(s.Slope)), 0.6)
	if depth <= 0 {
		return dt
	}
	v := q / (depth * s.Class.Width)
	if v <= 0 {
		return dt
	}
	tt := s.Length / v
	if tt < 1 {
		tt = 1
	}
	return tt
}

// Route runs one step of the network sweep in topological order using a
// mass-conserving linear reservoir per segment:
//
//	outflow = (storage + inflow)·(1 − exp(−Δt/k)),  k = reach travel time
//
// which keeps the outflow rate bounded by inflow + storage/Δt. The
// returned value is the outlet volume for the step. deposit receives
// culvert-returned water (cell index, m³) and may be nil; toStream
// resolves SinkToStream targets and may be nil for stream networks.
func (n *Network) Route(dt float64, deposit func(cellIndex int, volume float64),
	toStream *Network) float64 {

	n.OutletFlow = 0
	n.SinkFlow = 0
	n.DiscardFlow = 0
	for _, s := range n.Segments {
		k := s.travelTime(dt)
		frac := 1 - math.Exp(-dt/k)

		available := s.Storage + s.Inflow
		s.Outflow = available * frac
		if s.Outflow > available {
			s.Outflow = available
		}
		s.Storage = available - s.Outflow

		switch {
		case s.Downstream != nil:
			s.Downstream.Inflow += s.Outflow
		case n.Road && s.Sink == SinkReturn && deposit != nil:
			deposit(s.ReturnCell, s.Outflow)
			n.SinkFlow += s.Outflow
		case n.Road && s.Sink == SinkToStream && toStream != nil:
			if target := toStream.Segment(s.StreamID); target != nil {
				target.Inflow += s.Outflow
			}
			n.SinkFlow += s.Outflow
		case n.Road:
			n.SinkFlow += s.Outflow
			n.DiscardFlow += s.Outflow
		default:
			n.OutletFlow += s.Outflow
		}
	}
	return n.OutletFlow
}

// EndStep rolls the per-step state buffers over and clears the inflow
// and radiation accumulators for the next step.
func (n *Network) EndStep() {
	for _, s := range n.Segments {
		s.LastInflow = s.Inflow
		s.LastOutflow = s.Outflow
		s.Inflow = 0
		s.NetShortAccum = 0
		s.LongInAccum = 0
		s.radWeight = 0
	}
}

// TotalStorage returns the total water volume stored in the network (m³).
func (n *Network) TotalStorage() float64 {
	var total float64
	for _, s := range n.Segments {
		total += s.Storage
	}
	return total
}
