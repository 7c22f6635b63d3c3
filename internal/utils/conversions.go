package utils

import "strconv"

// PositiveInt parses s as a positive integer, returning def for anything else.
func PositiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
