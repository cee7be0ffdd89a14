// Package dice parses dice notation and rolls the resulting dice.
//
// Notation is a whitespace-separated list of tokens. Each token is either a
// bare side count ("20", one twenty-sided die) or a quantity and side count
// joined by a literal "d" ("2d6", two six-sided dice). The quantity may be
// omitted ("d8"), in which case it defaults to one.
package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Divider separates the quantity from the side count in a token.
const Divider = "d"

// MaxQuantity is the largest quantity a single token may request.
const MaxQuantity = 200

// ErrInvalidNotation is returned when the notation cannot be parsed.
var ErrInvalidNotation = errors.New("invalid dice notation")

// Spec describes a single die to roll.
type Spec struct {
	Sides int
}

// Parse turns a notation string into a flat, ordered list of die specs.
// Dice produced by the same token are contiguous and tokens keep the order
// in which they were given.
func Parse(notation string) ([]Spec, error) {
	tokens := strings.Fields(notation)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no dice given", ErrInvalidNotation)
	}

	var specs []Spec
	for _, token := range tokens {
		quantity, sides, err := parseToken(token)
		if err != nil {
			return nil, err
		}
		for i := 0; i < quantity; i++ {
			specs = append(specs, Spec{Sides: sides})
		}
	}
	return specs, nil
}

// parseToken splits a single token into its quantity and side count.
func parseToken(token string) (quantity, sides int, err error) {
	parts := strings.Split(token, Divider)
	switch len(parts) {
	case 1:
		quantity = 1
		sides, err = positive(parts[0])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: token %q: sides %v", ErrInvalidNotation, token, err)
		}
		return quantity, sides, nil
	case 2:
		quantity = 1
		if parts[0] != "" {
			quantity, err = positive(parts[0])
			if err != nil {
				return 0, 0, fmt.Errorf("%w: token %q: quantity %v", ErrInvalidNotation, token, err)
			}
		}
		if quantity > MaxQuantity {
			return 0, 0, fmt.Errorf("%w: token %q: quantity %d exceeds %d", ErrInvalidNotation, token, quantity, MaxQuantity)
		}
		sides, err = positive(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: token %q: sides %v", ErrInvalidNotation, token, err)
		}
		return quantity, sides, nil
	default:
		return 0, 0, fmt.Errorf("%w: token %q has more than one %q", ErrInvalidNotation, token, Divider)
	}
}

// positive parses s as a strictly positive decimal integer. Signs are not
// accepted.
func positive(s string) (int, error) {
	if s == "" {
		return 0, errors.New("is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%q must be at least 1", s)
	}
	return n, nil
}
