package util

import (
	"fmt"
	"math/big"
)

// ParseBigInt parses a base-10 integer amount in a chain's smallest unit.
func ParseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse amount: %s", s)
	}
	return v, nil
}

// ParseOptionalBigInt returns nil for an empty string.
func ParseOptionalBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return ParseBigInt(s)
}
