package main

import (
	"testing"
	"time"

	"tycoon/internal/market"
)

func TestParseCoins(t *testing.T) {
	tests := map[string]int64{
		"1":             1_000_000,
		"12.5":          12_500_000,
		" 0.000001":     1,
		"3.0000004":     3_000_000,
		"9223372036854": 9_223_372_036_854_000_000,
	}
	for in, want := range tests {
		got, err := parseCoins(in)
		if err != nil || got != want {
			t.Fatalf("parseCoins(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "abc", "0", "-2", "1e30", "9223372036855"} {
		if _, err := parseCoins(bad); err == nil {
			t.Fatalf("parseCoins(%q) should fail", bad)
		}
	}
}

func TestFormatMicros(t *testing.T) {
	tests := map[int64]string{
		0:                 "0.00",
		4_045_557_736:     "4,045.55",
		-1_234_567_890:    "-1,234.56",
		999_999:           "0.99",
		1_000_000_000_000: "1,000,000.00",
	}
	for in, want := range tests {
		if got := formatMicros(in); got != want {
			t.Fatalf("formatMicros(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestSparkline(t *testing.T) {
	now := time.Unix(0, 0)
	series := []market.Point{{At: now, Factor: 1}, {At: now, Factor: 2}, {At: now, Factor: 1.5}}
	if got := sparkline(series); got != "▁█▄" {
		t.Fatalf("sparkline %q", got)
	}
	flat := []market.Point{{At: now, Factor: 1}, {At: now, Factor: 1}}
	if got := sparkline(flat); got != "▁▁" {
		t.Fatalf("flat sparkline %q", got)
	}
}

func TestParseQty(t *testing.T) {
	if n, err := parseQty([]string{"asset"}, 1); err != nil || n != 1 {
		t.Fatalf("default qty %d %v", n, err)
	}
	if n, err := parseQty([]string{"asset", "7"}, 1); err != nil || n != 7 {
		t.Fatalf("qty %d %v", n, err)
	}
	if _, err := parseQty([]string{"asset", "0"}, 1); err == nil {
		t.Fatalf("zero qty should fail")
	}
}
