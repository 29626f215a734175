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

// Package met turns station forcing records into per-cell meteorology:
// it reads timestamp-ordered station files, precomputes quantized
// interpolation weight grids, lapse-adjusts temperature and precipitation
// to cell elevations, and derives the humidity and energy quantities the
// physics kernels need.
package met

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/hydromap/simtime"
)

// ErrDateMismatch indicates that a station file does not contain a record
// for the current simulation step.
var ErrDateMismatch = errors.New("met: station record date does not match the current model time")

// Record is one timestamped forcing observation.
type Record struct {
	Date simtime.Date

	Tair float64 // air temperature (°C)
	Wind float64 // wind speed (m/s)
	RH   float64 // relative humidity (%)
	Sin  float64 // incoming shortwave (W/m²)
	Lin  float64 // incoming longwave (W/m²)

	TSoil []float64 // optional soil layer temperatures (°C)

	Precip        float64 // precipitation (m/step)
	PrecipLapse   float64 // precipitation lapse rate (1/m)
	TempLapse     float64 // temperature lapse rate (°C/m)
	WindDirection int     // wind-model direction index
}

// Format describes which optional columns a station file carries, in
// their fixed order after the five required fields.
type Format struct {
	NSoilLayers      int
	HasPrecip        bool
	HasPrecipLapse   bool
	HasTempLapse     bool
	HasWindDirection bool
}

// Station is one meteorological station and its open record stream.
type Station struct {
	Name string
	Loc  geom.Point // location in grid coordinates (X = column, Y = row)
	Elev float64    // station elevation (m)

	Format Format
	Data   Record // record for the current step

	IsWindModelLocation bool

	scanner *bufio.Scanner
	peeked  *Record
}

// NewStation wraps an open, timestamp-ordered record stream.
func NewStation(name string, loc geom.Point, elev float64, format Format, r io.Reader) *Station {
	return &Station{
		Name:    name,
		Loc:     loc,
		Elev:    elev,
		Format:  format,
		scanner: bufio.NewScanner(r),
	}
}

// parseRecord parses one whitespace-separated station row:
//
//	MM/DD/YYYY-HH:MM:SS Tair Wind RH Sin Lin [Tsoil...] [Precip] [PrecipLapse] [TempLapse] [WindDir]
func (s *Station) parseRecord(line string) (*Record, error) {
	fields := strings.Fields(line)
	want := 6 + s.Format.NSoilLayers
	if s.Format.HasPrecip {
		want++
	}
	if s.Format.HasPrecipLapse {
		want++
	}
	if s.Format.HasTempLapse {
		want++
	}
	if s.Format.HasWindDirection {
		want++
	}
	if len(fields) < want {
		return nil, fmt.Errorf("met: station %s: %d fields in record, want %d: %q",
			s.Name, len(fields), want, line)
	}

	date, err := simtime.ParseDate(fields[0])
	if err != nil {
		return nil, fmt.Errorf("met: station %s: %v", s.Name, err)
	}
	rec := &Record{Date: date}

	vals := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("met: station %s at %v: parsing %q: %v", s.Name, date, f, err)
		}
		vals[i] = v
	}

	rec.Tair, rec.Wind, rec.RH, rec.Sin, rec.Lin = vals[0], vals[1], vals[2], vals[3], vals[4]
	i := 5
	if n := s.Format.NSoilLayers; n > 0 {
		rec.TSoil = vals[i : i+n]
		i += n
	}
	if s.Format.HasPrecip {
		rec.Precip = vals[i]
		i++
	}
	if s.Format.HasPrecipLapse {
		rec.PrecipLapse = vals[i]
		i++
	}
	if s.Format.HasTempLapse {
		rec.TempLapse = vals[i]
		i++
	}
	if s.Format.HasWindDirection {
		rec.WindDirection = int(vals[i])
	}
	return rec, nil
}

// next returns the next record in the stream without consuming it.
func (s *Station) next() (*Record, error) {
	if s.peeked != nil {
		return s.peeked, nil
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := s.parseRecord(line)
		if err != nil {
			return nil, err
		}
		s.peeked = rec
		return rec, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("met: station %s: %v", s.Name, err)
	}
	return nil, io.EOF
}

// Advance positions the station on the record for the given step,
// fast-forwarding over earlier records. It fails with ErrDateMismatch
// when the stream skips or has run past the requested time.
func (s *Station) Advance(current simtime.Date) error {
	for {
		rec, err := s.next()
		if err == io.EOF {
			return fmt.Errorf("%w: station %s at %v: end of records", ErrDateMismatch, s.Name, current)
		}
		if err != nil {
			return err
		}
		if rec.Date.Equal(current) {
			s.Data = *rec
			s.peeked = nil
			return nil
		}
		if rec.Date.After(current) {
			return fmt.Errorf("%w: station %s: have %v, want %v", ErrDateMismatch, s.Name, rec.Date, current)
		}
		s.peeked = nil // fast-forward
	}
}

// InBounds reports whether the station lies inside the grid bounding box.
func (s *Station) InBounds(nx, ny int) bool {
	return s.Loc.X >= 0 && s.Loc.X < float64(nx) && s.Loc.Y >= 0 && s.Loc.Y < float64(ny)
}
