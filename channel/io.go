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
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ReadNetwork parses a channel network file with one segment per row:
//
//	id  class_id  slope  length  downstream_id [save_flag]
//
// where downstream_id is -1 at the basin outlet. classes maps class IDs
// to their hydraulic properties.
func ReadNetwork(r io.Reader, classes map[int]*Class) (*Network, error) {
	scanner := bufio.NewScanner(r)
	var segments []*Segment
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("channel: network line %d: %d fields, want at least 5", lineNo, len(fields))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("channel: network line %d: segment ID: %v", lineNo, err)
		}
		classID, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("channel: network line %d: class ID: %v", lineNo, err)
		}
		slope, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("channel: network line %d: slope: %v", lineNo, err)
		}
		length, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("channel: network line %d: length: %v", lineNo, err)
		}
		downID, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("channel: network line %d: downstream ID: %v", lineNo, err)
		}
		class, ok := classes[classID]
		if !ok {
			return nil, fmt.Errorf("channel: network line %d: unknown hydraulic class %d", lineNo, classID)
		}
		seg := &Segment{
			ID: id, ClassID: classID, Class: class,
			Slope: slope, Length: length, DownID: downID,
		}
		if len(fields) > 5 {
			seg.Record = strings.EqualFold(fields[5], "save") || fields[5] == "1"
		}
		segments = append(segments, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("channel: reading network: %v", err)
	}
	return NewNetwork(segments)
}

// ReadMap parses a stream (or road) map file associating segments with
// the raster cells they traverse. Rows are
//
//	x  y  id  subsegment_length  elevation  aspect  azimuth
//
// after headerLines of header. nx is the raster width used to flatten
// cell coordinates.
func (n *Network) ReadMap(r io.Reader, nx, headerLines int) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= headerLines {
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return fmt.Errorf("channel: map line %d: %d fields, want 7", lineNo, len(fields))
		}
		x, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("channel: map line %d: x: %v", lineNo, err)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("channel: map line %d: y: %v", lineNo, err)
		}
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("channel: map line %d: id: %v", lineNo, err)
		}
		length, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return fmt.Errorf("channel: map line %d: length: %v", lineNo, err)
		}
		elev, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return fmt.Errorf("channel: map line %d: elevation: %v", lineNo, err)
		}
		azimuth, err := strconv.ParseFloat(fields[6], 64)
		if err != nil {
			return fmt.Errorf("channel: map line %d: azimuth: %v", lineNo, err)
		}
		if err := n.AddCrossing(y*nx+x, id, length, elev, azimuth); err != nil {
			return fmt.Errorf("channel: map line %d: %v", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("channel: reading map: %v", err)
	}
	return nil
}

// WriteConnectivity emits the derived connectivity table, one row per
// segment:
//
//	id next_id length elevation azimuth [upstream_ids...]
//
// Elevation and azimuth are those of the segment's first crossing, when
// known.
func (n *Network) WriteConnectivity(w io.Writer) error {
	upstream := make(map[int][]int)
	for _, s := range n.Segments {
		if s.Downstream != nil {
			upstream[s.Downstream.ID] = append(upstream[s.Downstream.ID], s.ID)
		}
	}
	ordered := make([]*Segment, len(n.Segments))
	copy(ordered, n.Segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, s := range ordered {
		var elev, azimuth float64
		if cells := n.SegCells[s.ID]; len(cells) > 0 {
			c := n.CellMap[cells[0]]
			for _, cr := range c {
				if cr.Seg == s {
					elev, azimuth = cr.Elev, cr.Azimuth
					break
				}
			}
		}
		if _, err := fmt.Fprintf(w, "%d %d %g %g %g", s.ID, s.DownID, s.Length, elev, azimuth); err != nil {
			return err
		}
		ups := upstream[s.ID]
		sort.Ints(ups)
		for _, id := range ups {
			if _, err := fmt.Fprintf(w, " %d", id); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
