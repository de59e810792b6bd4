package device

import "fmt"

// FlattenValue converts a read value into its inline row columns, applying
// the engine's row-flattening rule:
//
//	nil        -> the iteration index
//	bool       -> 0 or 1
//	complex128 -> two columns (real, imaginary)
//	float64    -> itself
//	[]float64  -> extended in place (only valid for a named multi list;
//	              unbounded vectors are redirected to side files before
//	              flattening and never reach here)
func FlattenValue(v Value, iteration int) ([]float64, error) {
	switch val := v.(type) {
	case nil:
		return []float64{float64(iteration)}, nil
	case bool:
		if val {
			return []float64{1}, nil
		}
		return []float64{0}, nil
	case complex128:
		return []float64{real(val), imag(val)}, nil
	case float64:
		return []float64{val}, nil
	case int:
		return []float64{float64(val)}, nil
	case []float64:
		out := make([]float64, len(val))
		copy(out, val)
		return out, nil
	}
	return nil, fmt.Errorf("unsupported device value type %T", v)
}

// FlattenRow flattens a list of read values into one row vector.
func FlattenRow(vals []Value, iteration int) ([]float64, error) {
	row := make([]float64, 0, len(vals))
	for _, v := range vals {
		cols, err := FlattenValue(v, iteration)
		if err != nil {
			return nil, err
		}
		row = append(row, cols...)
	}
	return row, nil
}
