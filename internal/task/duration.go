package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is a task duration with minute resolution, serialized as an
// ISO-8601 duration ("PT1H30M").
type Duration struct {
	minutes int
}

// DurationFromMinutes builds a Duration from whole minutes.
func DurationFromMinutes(m int) Duration {
	return Duration{minutes: m}
}

// Minutes returns the duration in whole minutes.
func (d Duration) Minutes() int {
	return d.minutes
}

// AsTimeDuration converts to a time.Duration.
func (d Duration) AsTimeDuration() time.Duration {
	return time.Duration(d.minutes) * time.Minute
}

// String renders the ISO-8601 form: PT2H, PT45M, PT1H30M.
func (d Duration) String() string {
	h, m := d.minutes/60, d.minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("PT%dH%dM", h, m)
	case h > 0:
		return fmt.Sprintf("PT%dH", h)
	default:
		return fmt.Sprintf("PT%dM", m)
	}
}

var (
	isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
	minutesRe     = regexp.MustCompile(`^(\d+)\s*(?:m|min|mins|minute|minutes)$`)
	hoursRe       = regexp.MustCompile(`^(\d+)\s*(?:h|hr|hrs|hour|hours)$`)
	compoundRe    = regexp.MustCompile(`^(\d+)\s*(?:h|hr|hrs|hour|hours)\s*(\d+)\s*(?:m|min|mins|minute|minutes)$`)
	decimalRe     = regexp.MustCompile(`^(\d+\.\d+)\s*(?:h|hr|hrs|hour|hours)$`)
	clockRe       = regexp.MustCompile(`^(\d+):([0-5]\d)$`)
)

// ParseISODuration parses a strict ISO-8601 time duration (PT#H#M#S).
// Seconds are rounded up to the next whole minute.
func ParseISODuration(s string) (Duration, error) {
	m := isoDurationRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	total := 0
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
	}
	if m[2] != "" {
		mm, _ := strconv.Atoi(m[2])
		total += mm
	}
	if m[3] != "" {
		sec, _ := strconv.Atoi(m[3])
		total += (sec + 59) / 60
	}
	if total <= 0 {
		return Duration{}, fmt.Errorf("%w: %q", ErrNegativeDuration, s)
	}
	return Duration{minutes: total}, nil
}

// ParseDuration normalizes the duration phrasings the extractor passes
// through: "30 minutes", "2h", "2h30m", "1.5h", "1:30", "half an hour" and
// ISO-8601 "PT…". Anything else is rejected rather than guessed at.
func ParseDuration(s string) (Duration, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.TrimPrefix(raw, "for ")
	raw = strings.ReplaceAll(raw, "-", " ")

	if strings.HasPrefix(raw, "pt") {
		return ParseISODuration(raw)
	}
	if m := minutesRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return positive(n, s)
	}
	if m := hoursRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return positive(n*60, s)
	}
	if m := compoundRe.FindStringSubmatch(raw); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		return positive(h*60+mm, s)
	}
	if m := decimalRe.FindStringSubmatch(raw); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		return positive(int(f*60 + 0.5), s)
	}
	if m := clockRe.FindStringSubmatch(raw); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		return positive(h*60+mm, s)
	}
	switch raw {
	case "half an hour", "half hour":
		return Duration{minutes: 30}, nil
	case "an hour", "one hour":
		return Duration{minutes: 60}, nil
	}
	return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
}

func positive(minutes int, orig string) (Duration, error) {
	if minutes <= 0 {
		return Duration{}, fmt.Errorf("%w: %q", ErrNegativeDuration, orig)
	}
	return Duration{minutes: minutes}, nil
}
