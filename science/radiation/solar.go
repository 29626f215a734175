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

package radiation

import "math"

// SolarConstant is the top-of-atmosphere solar flux (W/m²).
const SolarConstant = 1360.0

// SolarPosition returns the sine of the solar altitude and the
// corresponding top-of-atmosphere flux on a horizontal plane for the
// given day of year and local solar time (fractional hours), at latitude
// lat (degrees).
func SolarPosition(jday int, hour, lat float64) (sinAlt, toaFlux float64) {
	latRad := lat * math.Pi / 180
	decl := 23.45 * math.Pi / 180 *
		math.Sin(2*math.Pi*(284+float64(jday))/365)
	hourAngle := (hour - 12) * 15 * math.Pi / 180

	sinAlt = math.Sin(latRad)*math.Sin(decl) +
		math.Cos(latRad)*math.Cos(decl)*math.Cos(hourAngle)
	if sinAlt < 0 {
		sinAlt = 0
	}

	// Eccentricity correction to the solar constant.
	e0 := 1 + 0.033*math.Cos(2*math.Pi*float64(jday)/365)
	toaFlux = SolarConstant * e0 * sinAlt
	return sinAlt, toaFlux
}
