package schedule

import (
	"testing"
	"time"
)

func TestParseIntervalVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		source   string
		duration time.Duration
	}{
		{name: "duration", raw: "20m", source: "duration", duration: 20 * time.Minute},
		{name: "compound duration", raw: "2h30m", source: "duration", duration: 150 * time.Minute},
		{name: "hhmm", raw: "00:20", source: "hhmm", duration: 20 * time.Minute},
		{name: "seconds", raw: "2", source: "seconds", duration: 2 * time.Second},
		{name: "fractional seconds", raw: "0.4", source: "seconds", duration: 400 * time.Millisecond},
		{name: "prefixed interval", raw: "interval:45s", source: "duration", duration: 45 * time.Second},
		{name: "prefixed every hhmm", raw: "every: 04:00", source: "hhmm", duration: 4 * time.Hour},
		{name: "cron every", raw: "@every 20m", source: "cron-every", duration: 20 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseInterval(tt.raw)
			if err != nil {
				t.Fatalf("ParseInterval(%q) error: %v", tt.raw, err)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseIntervalRejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"not-an-interval",
		"*/5 * * * *",
		"@hourly",
		"cron:0 0 * * *",
		"0",
		"-5m",
		"00:00",
		"01:75",
		"NaN",
		"Inf",
		"+Inf",
		"1e300",
		"9223372037",
	} {
		if _, err := ParseInterval(raw); err == nil {
			t.Fatalf("ParseInterval(%q) expected error", raw)
		}
	}
}
