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

import (
	"fmt"
	"math"
)

// Gap models the radiation regime of an idealized cylindrical canopy
// opening of the given diameter centered on a cell (Seyednasrollah and
// Kumar, 2014 geometry; sky view per Ellis et al., 2013).
type Gap struct {
	Diameter float64 // gap diameter (m)
	Height   float64 // surrounding canopy height (m)
	View     float64 // sky-view factor at the gap base

	iterations int
}

// NewGap computes the gap sky-view factor with the configured number of
// integration intervals. It returns an error if the integral has not
// converged, judged by comparing against a doubled interval count.
func NewGap(diameter, height float64, iterations int) (*Gap, error) {
	if iterations < 8 {
		return nil, fmt.Errorf("radiation: gap view iterations %d too few", iterations)
	}
	g := &Gap{Diameter: diameter, Height: height, iterations: iterations}
	v1 := gapViewFactor(diameter, height, iterations)
	v2 := gapViewFactor(diameter, height, 2*iterations)
	if math.Abs(v2-v1) > 1e-4 {
		return nil, fmt.Errorf("radiation: gap view factor integral has not converged with %d intervals (Δ=%g)", iterations, math.Abs(v2-v1))
	}
	g.View = v2
	return g, nil
}

// gapViewFactor integrates the fraction of the overlying hemisphere open
// to the center of the gap base over the azimuthally-symmetric opening.
func gapViewFactor(diameter, height float64, n int) float64 {
	// The cylinder subtends zenith angles out to atan(R/h); integrate
	// cosθ·sinθ over the open cone.
	r := 0.5 * diameter
	thetaMax := math.Atan2(r, height)
	dθ := thetaMax / float64(n)
	sum := 0.0
	for i := 0; i < n; i++ {
		θ := (float64(i) + 0.5) * dθ
		sum += math.Cos(θ) * math.Sin(θ) * dθ
	}
	return 2 * sum // normalized so an unobstructed hemisphere gives 1
}

// Shortwave returns the net shortwave absorbed at the gap floor. sinAlt
// is the sine of the solar altitude, extn the canopy extinction
// coefficient, taud the diffuse canopy transmittance, and albedo the
// floor albedo (snow, understory or soil).
func (g *Gap) Shortwave(sinAlt, rsb, rsd, extn, taud, albedo float64) float64 {
	// Diffuse: the open cone sees the sky, the rest is attenuated canopy.
	rdg := rsd * (g.View + taud*(1-g.View))

	var rbg float64
	if sinAlt > 0 {
		dm := g.Diameter
		r := 0.5 * dm
		area := math.Pi * r * r
		dmax := g.Height / math.Tan(math.Asin(sinAlt)) // cast shadow length
		lmax := g.Height / sinAlt                      // slant attenuation length

		if dmax >= dm {
			// The whole floor receives only canopy-attenuated beam.
			i2 := g.areaIntegral(extn, lmax, sinAlt, r, 0)
			rbg = (2 * rsb) / area * i2
		} else {
			// Part of the floor is directly sunlit.
			ls := math.Sqrt(dm*dm - dmax*dmax)
			i1 := area - 0.5*(dm*dm*math.Asin(dmax/dm)+dmax*ls)
			i2 := 2 * (g.areaIntegral(extn, lmax, sinAlt, r, 0.5*ls) +
				math.Exp(-0.5*lmax/extnLength(extn))*dmax*ls*0.5)
			rbg = rsb / area * (i1 + i2)
		}
	}
	return (rdg + rbg) * (1 - albedo)
}

// extnLength guards the exponential against a zero extinction coefficient.
func extnLength(extn float64) float64 {
	if extn <= 0 {
		return 1e20
	}
	return 1 / extn
}

// areaIntegral integrates the attenuated beam over the shaded part of the
// gap floor, marching across chords of the circular opening.
func (g *Gap) areaIntegral(extn, lmax, sinAlt, r, offset float64) float64 {
	n := g.iterations
	dx := (r - offset) / float64(n)
	sum := 0.0
	for i := 0; i < n; i++ {
		x := offset + (float64(i)+0.5)*dx
		chord := 2 * math.Sqrt(r*r-x*x)
		// Path length through canopy decreases linearly across the shadow.
		path := lmax * (x + r) / (2 * r)
		sum += math.Exp(-extn*path*sinAlt) * chord * dx
	}
	return sum
}

// Longwave returns the incoming longwave at the gap floor: sky through
// the opening plus canopy emission from the blocked fraction.
func (g *Gap) Longwave(ld, tCanopy, coverFract float64) float64 {
	view := g.View / coverFract
	if view <= 1-coverFract {
		view = 1 - coverFract
	}
	if view >= 1 {
		view = 0.99
	}
	tmp := tCanopy + 273.15
	canopyEmission := Stefan * tmp * tmp * tmp * tmp
	return ld*view + canopyEmission*(1-view)
}
