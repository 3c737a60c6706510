package memstore

import "reflect"

// deepEqual compares two JSON-compatible values for the purposes of
// canonical-delta checks. It treats all numeric kinds as equal if their
// float64 value matches, since observations may arrive either freshly
// constructed in Go (ints) or round-tripped through JSON (float64).
func deepEqual(a, b any) bool {
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	if aIsNum != bIsNum {
		return false
	}

	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Kind() != bv.Kind() {
		return reflect.DeepEqual(a, b)
	}

	switch av.Kind() {
	case reflect.Map:
		if av.Len() != bv.Len() {
			return false
		}
		for _, key := range av.MapKeys() {
			bval := bv.MapIndex(key)
			if !bval.IsValid() {
				return false
			}
			if !deepEqual(av.MapIndex(key).Interface(), bval.Interface()) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		if av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			if !deepEqual(av.Index(i).Interface(), bv.Index(i).Interface()) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
