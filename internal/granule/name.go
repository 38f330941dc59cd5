// Package granule provides ocean-color granule references, filename
// parsing, and netCDF dataset access.
package granule

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// Ref identifies a granule before its file is opened: the producer
// filename, the nominal time span, and the download location.
type Ref struct {
	// Name is the producer granule name, e.g.
	// "A2016245188500.L2_LAC_OC.nc".
	Name string

	// Start and End bound the granule's nominal time coverage.
	Start time.Time
	End   time.Time

	// URL is the direct download location, when known.
	URL string
}

// Attrs holds the fields encoded in an ocean-color filename.
type Attrs struct {
	Platform   string // S, A, T or V
	Year       string
	DayOfYear  string
	Time       string // HHMMSS, empty for composites
	Level      string // L2 or L3m
	Instrument string // SNPP or JPSS1, VIIRS only
}

// Filename shapes handled here:
//
//	S2002006003729.L2_GAC_OC.nc
//	A2019109.L3m_DAY_CHL_chlor_a_4km.nc
//	V2018007000000.L2_SNPP_OC.nc
//	V2015009.L3m_DAY_SNPP_CHL_chlor_a_4km.nc
var nameRule = regexp.MustCompile(
	`^(?P<platform>[SATV])(?P<year>\d{4})(?P<doy>\d{3})(?P<time>\d+)?` +
		`\.(?P<level>L2|L3m)(?:_DAY)?_?(?P<instrument>SNPP|JPSS1)?.*?\.nc$`)

// ParseName extracts the attributes encoded in an ocean-color granule
// filename.
func ParseName(name string) (Attrs, error) {
	m := nameRule.FindStringSubmatch(name)
	if m == nil {
		return Attrs{}, fmt.Errorf("unrecognized granule name %q", name)
	}

	attrs := Attrs{}
	for i, group := range nameRule.SubexpNames() {
		switch group {
		case "platform":
			attrs.Platform = m[i]
		case "year":
			attrs.Year = m[i]
		case "doy":
			attrs.DayOfYear = m[i]
		case "time":
			attrs.Time = m[i]
		case "level":
			attrs.Level = m[i]
		case "instrument":
			attrs.Instrument = m[i]
		}
	}
	return attrs, nil
}

// Mission returns the mission name for the platform letter, following
// the OB.DAAC directory naming.
func (a Attrs) Mission() string {
	switch a.Platform {
	case "S":
		return "SeaWiFS"
	case "A":
		return "MODIS-Aqua"
	case "T":
		return "MODIS-Terra"
	case "V":
		switch a.Instrument {
		case "JPSS1":
			return "VIIRS-JPSS1"
		default:
			return "VIIRS-SNPP"
		}
	}
	return ""
}

// Path returns the storage path for a granule with these attributes.
// Files are distributed mission/level/year/doy to keep any single
// directory from accumulating the whole archive.
func (a Attrs) Path(name string) string {
	return path.Join(a.Mission(), a.Level, a.Year, a.DayOfYear, name)
}

// StoragePath resolves a granule name to its storage path.
func StoragePath(name string) (string, error) {
	attrs, err := ParseName(name)
	if err != nil {
		return "", err
	}
	return attrs.Path(name), nil
}
