package main

import (
	"testing"

	"github.com/advanderveer/go-test"
)

func TestParseAmount(t *testing.T) {
	for _, c := range []struct {
		s        string
		decimals uint
		exp      uint64
		ok       bool
	}{
		{"100", 0, 100, true},
		{"12.5", 2, 1250, true},
		{"12.50", 2, 1250, true},
		{"0.01", 2, 1, true},
		{"18446744073709551615", 0, 18446744073709551615, true},
		{"18446744073709551616", 0, 0, false},
		{"1.005", 2, 0, false},
		{"-1", 0, 0, false},
		{"foo", 0, 0, false},
	} {
		t.Run(c.s, func(t *testing.T) {
			amount, err := ParseAmount(c.s, c.decimals)
			test.Equals(t, c.ok, err == nil)
			test.Equals(t, c.exp, amount)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	test.Equals(t, "12.50", FormatAmount(1250, 2))
	test.Equals(t, "100", FormatAmount(100, 0))
	test.Equals(t, "0.01", FormatAmount(1, 2))
}
