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

package snow

import "math"

// AlbedoParams configures the snow albedo decay curves.
type AlbedoParams struct {
	Fresh      float64 // albedo of new snow
	AccLambda  float64 // decay base during accumulation (surface below freezing)
	MeltLambda float64 // decay base during melt
	AccMin     float64 // floor during accumulation
	MeltMin    float64 // floor during melt
}

// Decay returns the snow albedo after age days without fresh snowfall.
// A freezing surface follows the accumulation curve fresh·λa^(age^0.58);
// a melting surface the steeper fresh·λm^(age^0.46). Both are floored at
// their configured minimums.
func (a AlbedoParams) Decay(tSurf float64, age int) float64 {
	d := float64(age)
	if tSurf < 0 {
		alb := a.Fresh * math.Pow(a.AccLambda, math.Pow(d, 0.58))
		if alb < a.AccMin {
			alb = a.AccMin
		}
		return alb
	}
	alb := a.Fresh * math.Pow(a.MeltLambda, math.Pow(d, 0.46))
	if alb < a.MeltMin {
		alb = a.MeltMin
	}
	return alb
}
