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

package simtime

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTimeStep indicates a step that does not evenly divide a day,
// or a start date at or after the end date.
var ErrInvalidTimeStep = errors.New("simtime: invalid time step")

// Clock produces the deterministic sequence of step timestamps between a
// start and end date with a fixed step in seconds.
type Clock struct {
	Start, End Date
	Current    Date
	Dt         int // step length (s)

	Step       int // number of steps taken since Start
	DayStep    int // index of the current step within its day
	NDaySteps  int // steps per day
	TotalSteps int
}

// NewClock validates the simulation window and returns a clock positioned
// at start. The first timestamp equals start; subsequent timestamps are
// start + k·Dt/SecondsPerDay in Julian units.
func NewClock(start, end Date, dt int) (*Clock, error) {
	if dt <= 0 || SecondsPerDay%dt != 0 {
		return nil, fmt.Errorf("%w: %d s does not divide %d s", ErrInvalidTimeStep, dt, SecondsPerDay)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %v is not before end %v", ErrInvalidTimeStep, start, end)
	}
	c := &Clock{
		Start:     start,
		End:       end,
		Current:   start,
		Dt:        dt,
		NDaySteps: SecondsPerDay / dt,
	}
	// Offset of the start within its day; the step sequence must align
	// with midnight.
	secSinceMidnight := int(math.Round(((start.Julian - 0.5) - math.Floor(start.Julian-0.5)) * SecondsPerDay))
	if secSinceMidnight%dt != 0 {
		return nil, fmt.Errorf("%w: start %v does not align a step with midnight", ErrInvalidTimeStep, start)
	}
	c.DayStep = secSinceMidnight / dt
	c.TotalSteps = int(math.Round((end.Julian-start.Julian)*float64(SecondsPerDay)/float64(dt))) + 1
	return c, nil
}

// Advance moves the clock forward one step.
func (c *Clock) Advance() {
	c.Step++
	c.DayStep = (c.DayStep + 1) % c.NDaySteps
	c.Current = FromJulian(c.Start.Julian + float64(c.Step)*float64(c.Dt)/SecondsPerDay)
}

// Done reports whether the clock has passed the end of the simulation
// window.
func (c *Clock) Done() bool { return c.Current.After(c.End) }

// IsNewDay reports whether the current step is the first of its day.
func (c *Clock) IsNewDay() bool { return c.DayStep == 0 }

// IsNewMonth reports whether the current step is the first of its month.
func (c *Clock) IsNewMonth() bool {
	prev := FromJulian(c.Current.Julian - float64(c.Dt)/SecondsPerDay)
	return prev.Month != c.Current.Month
}
