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
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/hydromap/simtime"
)

// cellVars exposes the cell state to output-variable expressions.
func (c *Cell) cellVars() map[string]interface{} {
	vars := map[string]interface{}{
		"Tair":          c.Met.Tair,
		"RH":            c.Met.RH,
		"Wind":          c.Met.Wind,
		"ShortIn":       c.Met.Sin,
		"LongIn":        c.Met.Lin,
		"Precip":        c.Precip.Total,
		"Rain":          c.Precip.Rain,
		"Snowfall":      c.Precip.Snow,
		"SWE":           c.Snow.SWE,
		"SnowTSurf":     c.Snow.TSurf,
		"SnowTPack":     c.Snow.TPack,
		"SnowAlbedo":    c.Snow.Albedo,
		"SnowOutflow":   c.Snow.Outflow,
		"IntSnow":       c.SnowCan.IntSnow,
		"CanopyWater":   c.CanopyWater(),
		"ETot":          c.Evap.ETot,
		"EvapSoil":      c.Evap.EvapSoil,
		"WaterTable":    c.SoilState.TableDepth,
		"IExcess":       c.SoilState.IExcess,
		"SatFlow":       c.SoilState.SatFlow,
		"ChannelInt":    c.ChannelInt,
		"RoadInt":       c.RoadInt,
		"CulvertReturn": c.CulvertReturn,
		"NetShort":      c.Rad.PixelNetShort,
		"TSurfSoil":     c.TSurfSoil,
		"Qnet":          c.Qnet,
		"Qs":            c.Qs,
		"Qe":            c.Qe,
		"Qg":            c.Qg,
	}
	for i, moist := range c.SoilState.Moist {
		vars[fmt.Sprintf("SoilMoist%d", i+1)] = moist
	}
	return vars
}

// OutputVar is a named, user-configurable expression over cell state,
// e.g. "SWE + CanopyWater" or "SoilMoist1 * 0.25".
type OutputVar struct {
	Name string
	expr *govaluate.EvaluableExpression
}

// NewOutputVar compiles an output-variable expression.
func NewOutputVar(name, expression string) (*OutputVar, error) {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, newError(CodeConfiguration, "output variable %s: parsing %q: %v", name, expression, err)
	}
	return &OutputVar{Name: name, expr: expr}, nil
}

// Eval evaluates the expression for one cell.
func (v *OutputVar) Eval(c *Cell) (float64, error) {
	out, err := v.expr.Evaluate(c.cellVars())
	if err != nil {
		return 0, newError(CodeConfiguration, "output variable %s at cell (%d, %d): %v", v.Name, c.X, c.Y, err)
	}
	f, ok := out.(float64)
	if !ok {
		return 0, newError(CodeConfiguration, "output variable %s is not numeric (got %T)", v.Name, out)
	}
	return f, nil
}

// MapDump configures per-cell state snapshots of one variable at fixed
// dates.
type MapDump struct {
	Var    *OutputVar
	Dates  []simtime.Date
	Format FileFormat
	// PathTemplate must contain a %s verb receiving the date stamp.
	PathTemplate string
}

// WriteSnapshots returns a manipulator writing the configured state
// snapshots when the clock reaches their dates. Inactive cells carry
// zeros.
func WriteSnapshots(dumps []MapDump) DomainManipulator {
	return func(m *Model) error {
		for _, d := range dumps {
			due := false
			for _, date := range d.Dates {
				if m.Clock.Current.Equal(date) {
					due = true
					break
				}
			}
			if !due {
				continue
			}
			data := sparse.ZerosDense(m.Meta.NY, m.Meta.NX)
			for _, c := range m.Cells {
				v, err := d.Var.Eval(c)
				if err != nil {
					return err
				}
				data.Set(v, c.Y, c.X)
			}
			stamp := strings.Replace(m.Clock.Current.String(), "/", ".", -1)
			stamp = strings.Replace(stamp, ":", ".", -1)
			path := fmt.Sprintf(d.PathTemplate, stamp)
			if err := WriteFloatGrid(path, d.Format, data, d.Var.Name, ""); err != nil {
				return err
			}
		}
		return nil
	}
}

// PixelDump emits a tab-separated time series of the configured
// variables at one cell, header first.
type PixelDump struct {
	X, Y int
	Vars []*OutputVar
	W    io.Writer

	wroteHeader bool
}

// WritePixelSeries returns the manipulator feeding the pixel dumps, one
// row per step.
func WritePixelSeries(dumps []*PixelDump) DomainManipulator {
	return func(m *Model) error {
		for _, d := range dumps {
			c := m.Cell(d.X, d.Y)
			if c == nil {
				return newError(CodeConfiguration, "pixel dump cell (%d, %d) is not an active cell", d.X, d.Y)
			}
			if !d.wroteHeader {
				fmt.Fprint(d.W, "Date")
				for _, v := range d.Vars {
					fmt.Fprintf(d.W, "\t%s", v.Name)
				}
				fmt.Fprintln(d.W)
				d.wroteHeader = true
			}
			fmt.Fprint(d.W, m.Clock.Current)
			for _, v := range d.Vars {
				val, err := v.Eval(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(d.W, "\t%g", val)
			}
			fmt.Fprintln(d.W)
		}
		return nil
	}
}

// WriteSegmentFlows returns a manipulator emitting discharge rows for
// every stream segment marked with the save flag.
func WriteSegmentFlows(w io.Writer) DomainManipulator {
	wroteHeader := false
	return func(m *Model) error {
		if m.Streams == nil || w == nil {
			return nil
		}
		if !wroteHeader {
			fmt.Fprint(w, "Date")
			for _, s := range m.Streams.Segments {
				if s.Record {
					fmt.Fprintf(w, "\tQ%d(m3/s)", s.ID)
				}
			}
			fmt.Fprintln(w)
			wroteHeader = true
		}
		fmt.Fprint(w, m.Clock.Current)
		for _, s := range m.Streams.Segments {
			if s.Record {
				fmt.Fprintf(w, "\t%g", s.Outflow/m.Dt())
			}
		}
		fmt.Fprintln(w)
		return nil
	}
}
