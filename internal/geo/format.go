package geo

import "strconv"

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
