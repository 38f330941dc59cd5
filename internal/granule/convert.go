package granule

import (
	"fmt"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// asFloat64Matrix converts the value slab of a 2D netCDF variable into
// float64 rows. Integer-typed variables are accepted because some
// products store scaled integers.
func asFloat64Matrix(values any) ([][]float64, error) {
	switch v := values.(type) {
	case [][]float64:
		return v, nil
	case [][]float32:
		out := make([][]float64, len(v))
		for i, row := range v {
			out[i] = make([]float64, len(row))
			for j, x := range row {
				out[i][j] = float64(x)
			}
		}
		return out, nil
	case [][]int32:
		out := make([][]float64, len(v))
		for i, row := range v {
			out[i] = make([]float64, len(row))
			for j, x := range row {
				out[i][j] = float64(x)
			}
		}
		return out, nil
	case [][]int16:
		out := make([][]float64, len(v))
		for i, row := range v {
			out[i] = make([]float64, len(row))
			for j, x := range row {
				out[i][j] = float64(x)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported 2D value type %T", ErrMalformed, values)
	}
}

// asFloat64Vector converts the value slab of a 1D netCDF variable.
func asFloat64Vector(values any) ([]float64, error) {
	switch v := values.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported 1D value type %T", ErrMalformed, values)
	}
}

// asUint32Matrix converts a 2D flag variable into uint32 rows.
func asUint32Matrix(values any) ([][]uint32, error) {
	switch v := values.(type) {
	case [][]uint32:
		return v, nil
	case [][]int32:
		out := make([][]uint32, len(v))
		for i, row := range v {
			out[i] = make([]uint32, len(row))
			for j, x := range row {
				out[i][j] = uint32(x)
			}
		}
		return out, nil
	case [][]int64:
		out := make([][]uint32, len(v))
		for i, row := range v {
			out[i] = make([]uint32, len(row))
			for j, x := range row {
				out[i][j] = uint32(x)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported flag value type %T", ErrMalformed, values)
	}
}

// decodeParams holds the CF decoding attributes of a variable.
type decodeParams struct {
	fill      float64
	hasFill   bool
	scale     float64
	offset    float64
}

func decodeParamsFrom(attrs api.AttributeMap) decodeParams {
	p := decodeParams{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := attrs.Get("_FillValue"); ok {
		if f, ok := attrNumber(v); ok {
			p.fill = f
			p.hasFill = true
		}
	}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := attrNumber(v); ok && f != 0 {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := attrNumber(v); ok {
			p.offset = f
		}
	}
	return p
}

// decode applies fill-value masking then packing attributes. Fill
// values become NaN so "no data" is never confused with zero.
func (p decodeParams) decode(x float64) float64 {
	if p.hasFill && x == p.fill {
		return math.NaN()
	}
	if math.IsNaN(x) {
		return x
	}
	return x*p.scale + p.offset
}

// attrNumber unwraps the scalar numeric forms attributes come in.
// Attribute values may be scalars or length-1 slices depending on how
// the file was written.
func attrNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case uint8:
		return float64(x), true
	case []float64:
		if len(x) == 1 {
			return x[0], true
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

func attrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []string:
		if len(x) == 1 {
			return x[0]
		}
	}
	return ""
}
