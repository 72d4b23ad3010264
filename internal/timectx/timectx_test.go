package timectx

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}
	// Tuesday 2025-11-18 01:08:55 EST.
	now := time.Date(2025, 11, 18, 1, 8, 55, 0, loc)
	ctx := New(now, loc)

	if ctx.NowISO != "2025-11-18T01:08:55-05:00" {
		t.Errorf("NowISO = %q", ctx.NowISO)
	}
	if ctx.TodayHuman != "Tuesday, November 18, 2025" {
		t.Errorf("TodayHuman = %q", ctx.TodayHuman)
	}
	if ctx.TodayDOW != 1 { // Monday=0
		t.Errorf("TodayDOW = %d, want 1", ctx.TodayDOW)
	}
	if ctx.IsDST {
		t.Error("November 18 should not be DST in New York")
	}
	if ctx.EndOfToday != "November 18, 2025 11:59 pm" {
		t.Errorf("EndOfToday = %q", ctx.EndOfToday)
	}
	if ctx.EndOfWeek != "November 23, 2025 11:59 pm" {
		t.Errorf("EndOfWeek = %q", ctx.EndOfWeek)
	}
	if ctx.EndOfMonth != "November 30, 2025 11:59 pm" {
		t.Errorf("EndOfMonth = %q", ctx.EndOfMonth)
	}
	if ctx.NextMonday != "November 24, 2025 09:00 am" {
		t.Errorf("NextMonday = %q", ctx.NextMonday)
	}
	if got := ctx.Occurrences["Wednesday"]; got != "November 19, 2025" {
		t.Errorf("next Wednesday = %q", got)
	}
	// Same weekday as today rolls a week forward.
	if got := ctx.Occurrences["Tuesday"]; got != "November 25, 2025" {
		t.Errorf("next Tuesday = %q", got)
	}
}

func TestPromptBlock(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	ctx := New(time.Date(2025, 11, 18, 1, 8, 55, 0, loc), loc)
	block := ctx.PromptBlock()

	for _, want := range []string{
		"NOW_ISO: 2025-11-18T01:08:55-05:00",
		"TODAY_DOW_INDEX: 1",
		"IS_DST: false",
		"NEXT_MONDAY: November 24, 2025 09:00 am",
		"  Friday: November 21, 2025",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("PromptBlock missing %q:\n%s", want, block)
		}
	}
}
