package core

import "testing"

func TestParseRupiah(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 1, true},
		{"1.100.000", 1100000, true},
		{"Rp 250.000", 250000, true},
		{" 15000 ", 15000, true},
		{"10.000,00", 10000, true},
		{"10.000,75", 0, false},
		{"9.223.372.036.854.775.808", 0, false},
		{"999", 999, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.00", 0, false},
		{"1..000", 0, false},
		{"", 0, false},
		{"Rp", 0, false},
		{"10.000,x", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseRupiah(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error, got %d", tc.in, got)
			}
		}
	}
}

func TestFormatRupiah(t *testing.T) {
	cases := map[int64]string{
		0:        "Rp 0",
		999:      "Rp 999",
		1000:     "Rp 1.000",
		1100000:  "Rp 1.100.000",
		-250000:  "-Rp 250.000",
		12345678: "Rp 12.345.678",
	}
	for in, want := range cases {
		if got := FormatRupiah(in); got != want {
			t.Fatalf("FormatRupiah(%d) expected %q, got %q", in, want, got)
		}
	}
}

func TestFormatThenParseRoundTrip(t *testing.T) {
	for _, n := range []int64{1, 12, 123, 1234, 1100000, 987654321} {
		got, err := ParseRupiah(FormatRupiah(n))
		if err != nil || got != n {
			t.Fatalf("round trip %d got %d (err=%v)", n, got, err)
		}
	}
}
