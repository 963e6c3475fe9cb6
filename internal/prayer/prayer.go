// Package prayer computes the astronomical day boundaries of the ritual day:
// Fajr (dawn twilight, sun at a configurable depression angle below the
// horizon) and Maghrib (sunset). The solar position equations follow the
// NOAA/Meeus formulation, which is accurate to well under a minute for the
// years this calendar covers.
package prayer

import (
	"errors"
	"math"
	"time"
)

// ErrNoBoundary is returned when the sun never reaches the requested
// depression at the given latitude and date (polar summer/winter).
var ErrNoBoundary = errors.New("prayer: sun does not reach the requested depression on this date")

const (
	// DefaultFajrAngle is the solar depression marking true dawn. 18 degrees
	// is the astronomical-twilight convention used by several calculation
	// authorities; others use 15 or 19.5.
	DefaultFajrAngle = 18.0

	// sunsetZenith includes the standard 0.833 degree correction for
	// atmospheric refraction and the solar disc radius.
	sunsetZenith = 90.833
)

// Calculator is a deterministic, pure day-boundary provider.
// The zero value uses DefaultFajrAngle.
type Calculator struct {
	// FajrAngle is the depression angle (degrees below the horizon) for dawn.
	FajrAngle float64
}

// DayBounds returns the Fajr and Maghrib instants of the civil date. date is
// midnight in the display timezone; the results carry the same location.
func (c Calculator) DayBounds(date time.Time, lat, lon float64) (time.Time, time.Time, error) {
	angle := c.FajrAngle
	if angle <= 0 {
		angle = DefaultFajrAngle
	}

	y, m, d := date.Date()
	noonMin, decl := solarNoonUTC(y, int(m), d, lon)

	dawnHA, err := hourAngle(lat, decl, 90+angle)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	duskHA, err := hourAngle(lat, decl, sunsetZenith)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	// 4 minutes of time per degree of hour angle.
	dawnMin := noonMin - 4*dawnHA
	duskMin := noonMin + 4*duskHA

	utcMidnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	loc := date.Location()
	dawn := utcMidnight.Add(time.Duration(dawnMin * float64(time.Minute))).In(loc)
	dusk := utcMidnight.Add(time.Duration(duskMin * float64(time.Minute))).In(loc)
	return dawn, dusk, nil
}

// solarNoonUTC returns the minutes after UTC midnight of local solar noon at
// the given longitude, plus the solar declination (degrees) for the date.
func solarNoonUTC(year, month, day int, lon float64) (noonMinutes, declination float64) {
	jd := julianDay(year, month, day)
	t := (jd - 2451545.0) / 36525.0 // Julian centuries from J2000.0

	// Geometric mean longitude and anomaly of the sun (degrees).
	l0 := math.Mod(280.46646+t*(36000.76983+0.0003032*t), 360)
	if l0 < 0 {
		l0 += 360
	}
	ma := 357.52911 + t*(35999.05029-0.0001537*t)

	// Eccentricity of Earth's orbit.
	ecc := 0.016708634 - t*(0.000042037+0.0000001267*t)

	// Equation of center.
	center := math.Sin(rad(ma))*(1.914602-t*(0.004817+0.000014*t)) +
		math.Sin(rad(2*ma))*(0.019993-0.000101*t) +
		math.Sin(rad(3*ma))*0.000289

	trueLong := l0 + center

	// Apparent longitude, corrected for nutation and aberration.
	omega := 125.04 - 1934.136*t
	lambda := trueLong - 0.00569 - 0.00478*math.Sin(rad(omega))

	// Obliquity of the ecliptic.
	seconds := 21.448 - t*(46.8150+t*(0.00059-t*0.001813))
	eps0 := 23 + (26+seconds/60)/60
	eps := eps0 + 0.00256*math.Cos(rad(omega))

	declination = deg(math.Asin(math.Sin(rad(eps)) * math.Sin(rad(lambda))))

	// Equation of time (minutes).
	yy := math.Tan(rad(eps / 2))
	yy *= yy
	eqTime := 4 * deg(yy*math.Sin(2*rad(l0))-
		2*ecc*math.Sin(rad(ma))+
		4*ecc*yy*math.Sin(rad(ma))*math.Cos(2*rad(l0))-
		0.5*yy*yy*math.Sin(4*rad(l0))-
		1.25*ecc*ecc*math.Sin(2*rad(ma)))

	noonMinutes = 720 - 4*lon - eqTime
	return noonMinutes, declination
}

// hourAngle returns the hour angle (degrees) at which the sun reaches the
// given zenith for an observer at the given latitude.
func hourAngle(lat, decl, zenith float64) (float64, error) {
	cosH := (math.Cos(rad(zenith)) - math.Sin(rad(lat))*math.Sin(rad(decl))) /
		(math.Cos(rad(lat)) * math.Cos(rad(decl)))
	if cosH < -1 || cosH > 1 {
		return 0, ErrNoBoundary
	}
	return deg(math.Acos(cosH)), nil
}

// julianDay converts a civil date to the Julian day number at 0h UT.
func julianDay(year, month, day int) float64 {
	if month <= 2 {
		year--
		month += 12
	}
	a := year / 100
	b := 2 - a + a/4
	return math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		float64(day) + float64(b) - 1524.5
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
