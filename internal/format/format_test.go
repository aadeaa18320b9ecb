package format

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00"},
		{999, "00:00:00"},
		{1000, "00:00:01"},
		{60_000, "00:01:00"},
		{125_000, "00:02:05"},
		{3_600_000, "01:00:00"},
		{3_661_000, "01:01:01"},
		{86_400_000, "24:00:00"},
		{90_061_000, "25:01:01"},
		{-5000, "00:00:00"},
	}
	for _, tt := range tests {
		if got := Duration(tt.ms); got != tt.want {
			t.Errorf("Duration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestHours(t *testing.T) {
	if got := Hours(5_400_000); got != "1.5h" {
		t.Fatalf("Hours = %q, want 1.5h", got)
	}
	if got := Hours(0); got != "0.0h" {
		t.Fatalf("Hours(0) = %q", got)
	}
}

func TestDateAndDateTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	if got := Date(ts, time.UTC); got != "2026-03-01" {
		t.Fatalf("Date = %q", got)
	}
	plus2 := time.FixedZone("UTC+2", 2*3600)
	if got := Date(ts, plus2); got != "2026-03-02" {
		t.Fatalf("Date in UTC+2 = %q", got)
	}
	if got := DateTime(&ts, time.UTC); got != "2026-03-01 23:30:00" {
		t.Fatalf("DateTime = %q", got)
	}
	if got := DateTime(nil, time.UTC); got != "" {
		t.Fatalf("DateTime(nil) = %q", got)
	}
}

func TestCSVField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"PROJ-1", `"PROJ-1"`},
		{"=1+1", `"'=1+1"`},
		{"@SUM(A1)", `"'@SUM(A1)"`},
		{"+cmd", `"'+cmd"`},
		{"-2", `"'-2"`},
		{"\tx", "\"'\tx\""},
		{"\rx", "\"'\rx\""},
		{`say "hi"`, `"say ""hi"""`},
		{"a,b", `"a,b"`},
		{"", `""`},
		{"x=1", `"x=1"`},
	}
	for _, tt := range tests {
		if got := CSVField(tt.in); got != tt.want {
			t.Errorf("CSVField(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCSVRow(t *testing.T) {
	got := CSVRow("a", "=b", `c"d`)
	want := `"a","'=b","c""d"`
	if got != want {
		t.Fatalf("CSVRow = %s, want %s", got, want)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"00:02:05", 125_000, true},
		{"1:00:00", 3_600_000, true},
		{"25:30", 1_530_000, true},
		{" 100:00:01 ", 360_001_000, true},
		{"00:60:00", 0, false},
		{"abc", 0, false},
		{"1:2:3:4", 0, false},
		{"-1:00:00", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseDuration(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
