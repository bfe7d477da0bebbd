// Package solar computes sun position and solar incidence on sloping terrain.
package solar

import (
	"fmt"
	"math"
	"time"

	"github.com/nci/senet/utils"
)

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Declination returns the earth declination angle in radians for a
// (possibly fractional) day of year. Leap years are not special-cased.
func Declination(doy float64) float64 {
	return rad(23.45) * math.Sin(2*math.Pi*doy/365-1.39)
}

// HourAngle returns the hour angle in radians. ftime is the time of day in
// decimal hours at the standard meridian stdlon (degrees).
func HourAngle(ftime, declination, lon, stdlon float64) float64 {
	eot := 0.258*math.Cos(declination) - 7.416*math.Sin(declination) -
		3.648*math.Cos(2*declination) - 9.228*math.Sin(2*declination)
	lc := (stdlon - lon) / 15
	solarTime := ftime - (-eot/60 + lc)
	return rad((12 - solarTime) * 15)
}

// IncidenceAngleTilted returns the cosine of the solar incidence angle on a
// surface with the given aspect (clockwise from north) and slope, both in
// degrees, as are lat and lon.
func IncidenceAngleTilted(lat, lon, doy, ftime, stdlon, aspect, slope float64) float64 {
	delta := Declination(doy)
	omega := HourAngle(ftime, delta, lon, stdlon)

	phi, az, beta := rad(lat), rad(aspect), rad(slope)
	sd, cd := math.Sin(delta), math.Cos(delta)
	sp, cp := math.Sin(phi), math.Cos(phi)
	sb, cb := math.Sin(beta), math.Cos(beta)

	return sd*sp*cb +
		sd*cp*sb*math.Cos(az) +
		cd*cp*cb*math.Cos(omega) -
		cd*sp*sb*math.Cos(az)*math.Cos(omega) -
		cd*sb*math.Sin(az)*math.Sin(omega)
}

// DayTime splits an acquisition time into day of year and decimal hours.
func DayTime(t time.Time) (float64, float64) {
	return float64(t.YearDay()), float64(t.Hour()) + float64(t.Minute())/60
}

// IncidenceAngleTiltedGrid evaluates IncidenceAngleTilted per pixel.
// NaN in any input yields NaN.
func IncidenceAngleTiltedGrid(lat, lon, aspect, slope *utils.Grid, acquired time.Time, stdlon float64) (*utils.Grid, error) {
	err := utils.CheckGeometry(map[string]*utils.Grid{"latitude": lat, "longitude": lon, "aspect": aspect, "slope": slope})
	if err != nil {
		return nil, fmt.Errorf("solar incidence: %w", err)
	}

	doy, ftime := DayTime(acquired)
	out := utils.NewGridLike(lat)
	for i := range out.Data {
		out.Data[i] = float32(IncidenceAngleTilted(float64(lat.Data[i]), float64(lon.Data[i]), doy, ftime, stdlon,
			float64(aspect.Data[i]), float64(slope.Data[i])))
	}
	return out, nil
}
