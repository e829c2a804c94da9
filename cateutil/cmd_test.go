package cateutil

import (
	"testing"
	"time"
)

func TestParseTimeRange(t *testing.T) {
	start, end, err := parseTimeRange("2010-01-01", "2010-12-31")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start: want %v but have %v", want, start)
	}
	// The end day itself is included.
	lastStep := time.Date(2010, time.December, 31, 23, 0, 0, 0, time.UTC)
	if end.Before(lastStep) {
		t.Errorf("end %v should cover the whole end day", end)
	}
	if end.After(time.Date(2011, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end %v should not spill into the next day", end)
	}

	if _, _, err := parseTimeRange("not a date", ""); err == nil {
		t.Error("want error but have nil")
	}

	// Open-ended ranges cover everything on the open side.
	start, end, err = parseTimeRange("", "2010-12-31")
	if err != nil {
		t.Fatal(err)
	}
	if !start.Before(time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("open start should predate any dataset: %v", start)
	}
	if end.Year() != 2010 {
		t.Errorf("end: have %v", end)
	}
}

func TestOptionDefaults(t *testing.T) {
	if !Cfg.GetBool("mask") {
		t.Error("mask should default to true")
	}
	if Cfg.GetBool("quiet") {
		t.Error("quiet should default to false")
	}
	if Cfg.GetString("catalog") != "catalog.toml" {
		t.Errorf("catalog default: have %q", Cfg.GetString("catalog"))
	}
}
