package granule

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rkm/oceancolor-matchup/internal/sensor"
)

var (
	// ErrDataUnavailable is returned when a requested variable is not
	// present in a granule, usually a sign of the wrong product level.
	ErrDataUnavailable = errors.New("requested variable not available in granule")

	// ErrMalformed is returned when a granule's internal arrays are
	// inconsistent or of an unexpected shape.
	ErrMalformed = errors.New("malformed granule")
)

// Dataset is an opened ocean-color granule. Coordinate and time arrays
// are loaded eagerly; science variables are read on demand.
type Dataset struct {
	name  string
	level sensor.Level
	start time.Time
	end   time.Time

	lines  int
	pixels int
	lats   []float64
	lons   []float64
	times  []time.Time
	flags  []uint32

	root api.Group
	data api.Group // group holding the science variables
}

// Open reads a granule file and prepares its coordinate arrays.
// L2 swath files keep per-pixel navigation and per-line scan times in
// subgroups; L3m composites are plain lat/lon grids.
func Open(path string) (*Dataset, error) {
	root, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open granule %s: %w", path, err)
	}

	ds := &Dataset{root: root}
	if err := ds.load(); err != nil {
		root.Close()
		return nil, err
	}
	return ds, nil
}

func (d *Dataset) load() error {
	attrs := d.root.Attributes()

	d.name = attrString(attrs, "product_name")

	levelAttr := attrString(attrs, "processing_level")
	switch levelAttr {
	case "L2":
		d.level = sensor.LevelL2
	case "L3 Mapped":
		d.level = sensor.LevelL3m
	default:
		return fmt.Errorf("%w: unsupported processing level %q", ErrMalformed, levelAttr)
	}

	start, err := parseCoverageTime(attrString(attrs, "time_coverage_start"))
	if err != nil {
		return fmt.Errorf("%w: bad time_coverage_start: %v", ErrMalformed, err)
	}
	end, err := parseCoverageTime(attrString(attrs, "time_coverage_end"))
	if err != nil {
		return fmt.Errorf("%w: bad time_coverage_end: %v", ErrMalformed, err)
	}
	d.start, d.end = start, end

	if d.level == sensor.LevelL2 {
		return d.loadL2()
	}
	return d.loadL3m()
}

// loadL2 reads navigation, scan time, and flag arrays from the swath
// subgroups and flattens them row-major.
func (d *Dataset) loadL2() error {
	nav, err := d.root.GetGroup("navigation_data")
	if err != nil {
		return fmt.Errorf("%w: missing navigation_data group", ErrMalformed)
	}
	defer nav.Close()

	lat, err := readMatrix(nav, "latitude")
	if err != nil {
		return err
	}
	lon, err := readMatrix(nav, "longitude")
	if err != nil {
		return err
	}
	if len(lat) == 0 || len(lat) != len(lon) {
		return fmt.Errorf("%w: latitude/longitude shape mismatch", ErrMalformed)
	}

	d.lines = len(lat)
	d.pixels = len(lat[0])
	for i := range lat {
		if len(lat[i]) != d.pixels || len(lon[i]) != d.pixels {
			return fmt.Errorf("%w: ragged navigation arrays", ErrMalformed)
		}
		d.lats = append(d.lats, lat[i]...)
		d.lons = append(d.lons, lon[i]...)
	}

	lineTimes, err := d.scanLineTimes()
	if err != nil {
		return err
	}
	if len(lineTimes) != d.lines {
		return fmt.Errorf("%w: %d scan line times for %d lines", ErrMalformed, len(lineTimes), d.lines)
	}
	d.times = make([]time.Time, 0, d.lines*d.pixels)
	for _, t := range lineTimes {
		for p := 0; p < d.pixels; p++ {
			d.times = append(d.times, t)
		}
	}

	geo, err := d.root.GetGroup("geophysical_data")
	if err != nil {
		return fmt.Errorf("%w: missing geophysical_data group", ErrMalformed)
	}
	d.data = geo

	// Flags are optional; some products ship without them.
	if v, err := geo.GetVariable("l2_flags"); err == nil {
		rows, err := asUint32Matrix(v.Values)
		if err != nil {
			return err
		}
		for _, row := range rows {
			d.flags = append(d.flags, row...)
		}
		if len(d.flags) != d.lines*d.pixels {
			return fmt.Errorf("%w: l2_flags shape mismatch", ErrMalformed)
		}
	}

	return nil
}

// scanLineTimes converts the scan_line_attributes year/day/msec
// triplet into one timestamp per swath line.
func (d *Dataset) scanLineTimes() ([]time.Time, error) {
	sline, err := d.root.GetGroup("scan_line_attributes")
	if err != nil {
		return nil, fmt.Errorf("%w: missing scan_line_attributes group", ErrMalformed)
	}
	defer sline.Close()

	years, err := readVector(sline, "year")
	if err != nil {
		return nil, err
	}
	days, err := readVector(sline, "day")
	if err != nil {
		return nil, err
	}
	msecs, err := readVector(sline, "msec")
	if err != nil {
		return nil, err
	}
	if len(years) != len(days) || len(years) != len(msecs) {
		return nil, fmt.Errorf("%w: scan line attribute length mismatch", ErrMalformed)
	}

	times := make([]time.Time, len(years))
	for i := range years {
		times[i] = time.Date(int(years[i]), 1, 1, 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, int(days[i])-1).
			Add(time.Duration(msecs[i]) * time.Millisecond)
	}
	return times, nil
}

// loadL3m reads the lat/lon grid vectors and expands them to one
// coordinate pair per cell. The whole composite shares one nominal
// time, the midpoint of the coverage window.
func (d *Dataset) loadL3m() error {
	lats, err := readVector(d.root, "lat")
	if err != nil {
		return err
	}
	lons, err := readVector(d.root, "lon")
	if err != nil {
		return err
	}
	if len(lats) == 0 || len(lons) == 0 {
		return fmt.Errorf("%w: empty lat/lon grid", ErrMalformed)
	}

	d.lines = len(lats)
	d.pixels = len(lons)
	d.lats = make([]float64, 0, d.lines*d.pixels)
	d.lons = make([]float64, 0, d.lines*d.pixels)
	for _, lat := range lats {
		for _, lon := range lons {
			d.lats = append(d.lats, lat)
			d.lons = append(d.lons, lon)
		}
	}

	mid := d.start.Add(d.end.Sub(d.start) / 2)
	d.times = make([]time.Time, d.lines*d.pixels)
	for i := range d.times {
		d.times[i] = mid
	}

	d.data = d.root
	return nil
}

// Name returns the product name recorded in the granule.
func (d *Dataset) Name() string { return d.name }

// Level returns the granule's processing level.
func (d *Dataset) Level() sensor.Level { return d.level }

// Coverage returns the granule's nominal time span.
func (d *Dataset) Coverage() (time.Time, time.Time) { return d.start, d.end }

// Shape returns the swath or grid dimensions (lines, pixels per line).
func (d *Dataset) Shape() (int, int) { return d.lines, d.pixels }

// Coords returns the flattened candidate coordinate arrays. Index i
// corresponds to line i/pixels, pixel i%pixels.
func (d *Dataset) Coords() (lats, lons []float64, times []time.Time, err error) {
	return d.lats, d.lons, d.times, nil
}

// Values reads a science variable and returns it flattened, with fill
// values decoded to NaN and packing applied.
func (d *Dataset) Values(variable string) ([]float64, error) {
	v, err := d.data.GetVariable(variable)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, variable)
	}

	rows, err := asFloat64Matrix(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", variable, err)
	}

	params := decodeParamsFrom(v.Attributes)
	out := make([]float64, 0, d.lines*d.pixels)
	for _, row := range rows {
		for _, x := range row {
			out = append(out, params.decode(x))
		}
	}
	if len(out) != d.lines*d.pixels {
		return nil, fmt.Errorf("%w: variable %s shape mismatch", ErrMalformed, variable)
	}
	return out, nil
}

// Flags returns the flattened quality flag masks, or nil when the
// product carries none (L3m composites).
func (d *Dataset) Flags() ([]uint32, error) {
	return d.flags, nil
}

// Close releases the underlying file handles.
func (d *Dataset) Close() error {
	if d.data != nil && d.data != d.root {
		d.data.Close()
	}
	if d.root != nil {
		d.root.Close()
	}
	return nil
}

func readMatrix(g api.Group, name string) ([][]float64, error) {
	v, err := g.GetVariable(name)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, name)
	}
	return asFloat64Matrix(v.Values)
}

func readVector(g api.Group, name string) ([]float64, error) {
	v, err := g.GetVariable(name)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, name)
	}
	vec, err := asFloat64Vector(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	for i, x := range vec {
		if math.IsNaN(x) {
			return nil, fmt.Errorf("%w: NaN in coordinate variable %s[%d]", ErrMalformed, name, i)
		}
	}
	return vec, nil
}

// Coverage timestamps come with and without fractional seconds
// depending on the producing software.
var coverageFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

func parseCoverageTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty coverage time")
	}
	for _, format := range coverageFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse coverage time %q", s)
}
