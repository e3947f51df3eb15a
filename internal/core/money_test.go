package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"12.345", "12.35", true}, // half-up rounding
		{"12.344", "12.34", true},
		{",5", "0.50", true},
		{" 2.50 ", "2.50", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.004", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.StringFixed(2) != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got.StringFixed(2), err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseBalanceAcceptsZero(t *testing.T) {
	d, err := ParseBalance("0")
	if err != nil || !d.IsZero() {
		t.Fatalf("expected zero balance, got %s (err=%v)", d, err)
	}
	if _, err := ParseBalance("-5"); err == nil {
		t.Fatalf("expected error for negative balance")
	}
}

func TestFormatBRL(t *testing.T) {
	cases := map[string]string{
		"0":        "R$ 0,00",
		"12.3":     "R$ 12,30",
		"1234.56":  "R$ 1.234,56",
		"1000000":  "R$ 1.000.000,00",
		"-45.5":    "-R$ 45,50",
		"999.999":  "R$ 1.000,00",
	}
	for in, want := range cases {
		d := mustDecimal(t, in)
		if got := FormatBRL(d); got != want {
			t.Fatalf("FormatBRL(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "0.01", "12.34", "12.345", "1000000.5"} {
		d := mustDecimal(t, s)
		got := FromCents(ToCents(d))
		if !got.Equal(RoundAmount(d)) {
			t.Fatalf("%s: round trip gave %s", s, got)
		}
	}
	if c := ToCents(mustDecimal(t, "-2.5")); c != -250 {
		t.Fatalf("negative cents = %d", c)
	}
}
