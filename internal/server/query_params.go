package server

import (
	"strconv"
	"strings"
)

const (
	minYear = 2000
	maxYear = 9999
)

func parseYear(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	year, err := strconv.Atoi(trimmed)
	if err != nil || year < minYear || year > maxYear {
		return 0, newValidationError("year", "invalid_year", "year must be a four digit number")
	}
	return year, nil
}
