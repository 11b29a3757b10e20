// Package asset handles settlement-asset identifier parsing and validation.
// The platform is bound to a single settlement asset at initialization; every
// transfer-carrying request must name the same asset.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// identRegex matches: {SYMBOL}-{decimals}
// Example: USDC-6
var identRegex = regexp.MustCompile(`^([A-Z][A-Z0-9]{1,11})-(\d{1,2})$`)

var (
	ErrInvalidIdentifier = errors.New("asset: invalid asset identifier")
	ErrDecimalsTooLarge  = errors.New("asset: decimals out of range")
)

// MaxDecimals bounds the decimals component; token mints beyond this are not
// representable in uint64 base-unit arithmetic at useful magnitudes.
const MaxDecimals = 18

// Asset is a parsed settlement-asset identifier.
type Asset struct {
	Identifier string `json:"identifier"`
	Symbol     string `json:"symbol"`
	Decimals   uint8  `json:"decimals"`
}

// Parse parses and validates an asset identifier string.
// Format: {SYMBOL}-{decimals}, e.g. USDC-6.
func Parse(identifier string) (*Asset, error) {
	matches := identRegex.FindStringSubmatch(identifier)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected SYMBOL-decimals, e.g. USDC-6)",
			ErrInvalidIdentifier, identifier)
	}

	decimals, err := strconv.ParseUint(matches[2], 10, 8)
	if err != nil || decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %s", ErrDecimalsTooLarge, matches[2])
	}

	return &Asset{
		Identifier: identifier,
		Symbol:     matches[1],
		Decimals:   uint8(decimals),
	}, nil
}
