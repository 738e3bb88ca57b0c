package query

import (
	"cmp"
	"fmt"
	"strings"
)

// Type order used when values of different kinds share a sort field.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankArray
	rankObject
)

// compareOptional sorts missing fields before present ones.
func compareOptional(a interface{}, aok bool, b interface{}, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return compareValues(a, b)
}

func compareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch ra {
	case rankNull:
		return 0
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return cmp.Compare(toFloat(a), toFloat(b))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankArray:
		as, bs := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(as) && i < len(bs); i++ {
			if c := compareValues(as[i], bs[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(as), len(bs))
	default:
		// fmt prints maps with sorted keys, which is enough for a stable order.
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return rankNumber
	case string:
		return rankString
	case []interface{}:
		return rankArray
	default:
		return rankObject
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
