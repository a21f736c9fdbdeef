package main

import (
	"math/big"

	"github.com/cockroachdb/apd"
	"github.com/pkg/errors"
)

// ParseAmount converts a human readable amount into base units, e.g: "12.5"
// with 2 decimals is 1250 base units
func ParseAmount(s string, decimals uint) (amount uint64, err error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid amount '%s'", s)
	}

	if d.Negative {
		return 0, errors.Errorf("amount '%s' is negative", s)
	}

	d.Exponent += int32(decimals)

	units := new(apd.Decimal)
	c := apd.BaseContext.WithPrecision(40)
	cond, err := c.Quantize(units, d, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to convert amount '%s'", s)
	}

	if cond.Inexact() {
		return 0, errors.Errorf("amount '%s' has more than %d decimals", s, decimals)
	}

	if !units.Coeff.IsUint64() {
		return 0, errors.Errorf("amount '%s' is too large", s)
	}

	return units.Coeff.Uint64(), nil
}

// FormatAmount renders base units with the number of decimals
func FormatAmount(amount uint64, decimals uint) string {
	d := apd.NewWithBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
	return d.Text('f')
}
