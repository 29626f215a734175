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
	"testing"
)

func TestJulianRoundTrip(t *testing.T) {
	dates := []Date{
		NewDate(1999, 1, 1, 0, 0, 0),
		NewDate(1999, 12, 31, 23, 0, 0),
		NewDate(2000, 2, 29, 12, 30, 0),
		NewDate(1996, 7, 4, 6, 0, 0),
		NewDate(2003, 10, 15, 21, 0, 0),
	}
	for _, d := range dates {
		got := FromJulian(d.Julian)
		if got.Year != d.Year || got.Month != d.Month || got.Day != d.Day ||
			got.Hour != d.Hour || got.Min != d.Min || got.Sec != d.Sec {
			t.Errorf("round trip of %v gave %v", d, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("02/27/1999-23:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if d.Year != 1999 || d.Month != 2 || d.Day != 27 || d.Hour != 23 {
		t.Errorf("parsed %+v", d)
	}
	if d.String() != "02/27/1999-23:00:00" {
		t.Errorf("String() = %q", d.String())
	}
	if _, err := ParseDate("13/01/1999-00:00:00"); err == nil {
		t.Error("month 13 accepted")
	}
	if _, err := ParseDate("02/30/1999-00:00:00"); err == nil {
		t.Error("Feb 30 accepted")
	}
}

func TestIsLeapYear(t *testing.T) {
	cases := map[int]bool{1900: false, 1996: true, 1999: false, 2000: true, 2100: false}
	for year, want := range cases {
		if got := IsLeapYear(year); got != want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", year, got, want)
		}
	}
}

func TestDayOfYear(t *testing.T) {
	if got := DayOfYear(1999, 3, 1); got != 60 {
		t.Errorf("DayOfYear(1999, 3, 1) = %d, want 60", got)
	}
	if got := DayOfYear(2000, 3, 1); got != 61 {
		t.Errorf("DayOfYear(2000, 3, 1) = %d, want 61", got)
	}
	if got := DayOfYear(2000, 12, 31); got != 366 {
		t.Errorf("DayOfYear(2000, 12, 31) = %d, want 366", got)
	}
}

// Stepping hourly across the leap day of February 2000 must produce the
// correct Gregorian timestamps.
func TestClockLeapYear(t *testing.T) {
	start := NewDate(1999, 2, 27, 23, 0, 0)
	end := NewDate(2001, 1, 1, 0, 0, 0)
	c, err := NewClock(start, end, 3600)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Current.Equal(start) {
		t.Errorf("first timestamp %v != start %v", c.Current, start)
	}
	for i := 0; i < 48; i++ {
		c.Advance()
	}
	want := NewDate(1999, 3, 1, 23, 0, 0)
	if !c.Current.Equal(want) {
		t.Errorf("1999 step 48 = %v, want %v", c.Current, want)
	}

	start = NewDate(2000, 2, 27, 23, 0, 0)
	c, err = NewClock(start, end, 3600)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 48; i++ {
		c.Advance()
	}
	want = NewDate(2000, 2, 29, 23, 0, 0)
	if !c.Current.Equal(want) {
		t.Errorf("2000 step 48 = %v, want %v (Feb 2000 has 29 days)", c.Current, want)
	}
}

func TestClockInvalid(t *testing.T) {
	start := NewDate(1999, 1, 1, 0, 0, 0)
	end := NewDate(1999, 1, 2, 0, 0, 0)
	if _, err := NewClock(start, end, 7000); !errors.Is(err, ErrInvalidTimeStep) {
		t.Errorf("7000 s step: err = %v, want ErrInvalidTimeStep", err)
	}
	if _, err := NewClock(end, start, 3600); !errors.Is(err, ErrInvalidTimeStep) {
		t.Errorf("start after end: err = %v, want ErrInvalidTimeStep", err)
	}
	if _, err := NewClock(start, start, 3600); !errors.Is(err, ErrInvalidTimeStep) {
		t.Errorf("start equals end: err = %v, want ErrInvalidTimeStep", err)
	}
}

func TestClockNewDayNewMonth(t *testing.T) {
	start := NewDate(1999, 1, 31, 0, 0, 0)
	end := NewDate(1999, 2, 3, 0, 0, 0)
	c, err := NewClock(start, end, 21600) // 4 steps per day
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsNewDay() {
		t.Error("start at midnight should be a new day")
	}
	newMonths := 0
	for !c.Done() {
		if c.IsNewMonth() && c.Current.Day == 1 && c.Current.Hour == 0 {
			newMonths++
		}
		c.Advance()
	}
	if newMonths != 1 {
		t.Errorf("saw %d month boundaries, want 1", newMonths)
	}
}
