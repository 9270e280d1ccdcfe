package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mrlokans/biblioteca/internal/metadata"
)

var (
	errInvalidISBN     = errors.New("isbn must have 10 or 13 digits")
	errInvalidDate     = errors.New("date must be YYYY, YYYY-MM or YYYY-MM-DD")
	errTooManyDecimals = errors.New("ensure there are no more than 2 decimal places")
)

const (
	maxPrice  = 99999999.99
	maxRating = 5.0
)

var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// normalizeISBN strips hyphens and spaces and checks the digit count.
// ISBN-10 may end in X.
func normalizeISBN(raw string) (string, error) {
	isbn := strings.ToUpper(metadata.NormalizeIdentifier(raw))
	if len(isbn) != 10 && len(isbn) != 13 {
		return "", errInvalidISBN
	}
	for i, r := range isbn {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == 'X' && len(isbn) == 10 && i == 9 {
			continue
		}
		return "", errInvalidISBN
	}
	return isbn, nil
}

func validDate(s string) error {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return errInvalidDate
}

// formatDecimal renders a JSON number or numeric string with two decimal
// places, rejecting negatives, values above limit and extra precision.
func formatDecimal(n json.Number, limit float64) (string, error) {
	s := strings.TrimSpace(n.String())
	if _, frac, ok := strings.Cut(s, "."); ok && len(strings.TrimRight(frac, "0")) > 2 {
		return "", errTooManyDecimals
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("%q is not a number", s)
	}
	if v < 0 || v > limit {
		return "", fmt.Errorf("must be between 0 and %.2f", limit)
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}
