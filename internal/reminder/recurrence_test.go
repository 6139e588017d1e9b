package reminder

import (
	"errors"
	"testing"
	"time"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRecurrenceNext(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  Recurrence
		now  string
		want string
	}{
		{"hourly", Hourly(), "2025-01-01T10:37:00", "2025-01-01T11:00:00"},
		{"hourly on the hour", Hourly(), "2025-01-01T10:00:00", "2025-01-01T11:00:00"},
		{"hourly rolls day", Hourly(), "2025-01-01T23:59:59", "2025-01-02T00:00:00"},
		{"daily before trigger", DailyAt(9, 0), "2025-01-01T07:00:00", "2025-01-01T09:00:00"},
		{"daily after trigger", DailyAt(9, 0), "2025-01-01T09:30:00", "2025-01-02T09:00:00"},
		{"daily exactly at trigger", DailyAt(9, 0), "2025-01-01T09:00:00", "2025-01-02T09:00:00"},
		{"daily rolls month", DailyAt(8, 15), "2025-01-31T20:00:00", "2025-02-01T08:15:00"},
		// 2025-01-06 is a Monday.
		{"weekly same day past time", WeeklyAt(time.Monday, 9, 0), "2025-01-06T10:00:00", "2025-01-13T09:00:00"},
		{"weekly same day before time", WeeklyAt(time.Monday, 9, 0), "2025-01-06T08:00:00", "2025-01-06T09:00:00"},
		{"weekly same day at time", WeeklyAt(time.Monday, 9, 0), "2025-01-06T09:00:00", "2025-01-13T09:00:00"},
		{"weekly later in week", WeeklyAt(time.Friday, 18, 30), "2025-01-06T10:00:00", "2025-01-10T18:30:00"},
		{"weekly earlier in week", WeeklyAt(time.Sunday, 7, 0), "2025-01-08T10:00:00", "2025-01-12T07:00:00"},
		{"unknown kind", Recurrence{Kind: "fortnightly"}, "2025-01-01T10:37:12", "2025-01-02T10:37:12"},
		{"once falls back", Once(), "2025-03-01T06:00:00", "2025-03-02T06:00:00"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.rec.Next(at(tc.now))
			if want := at(tc.want); !got.Equal(want) {
				t.Fatalf("Next(%s) = %s, want %s", tc.now, got.Format(time.RFC3339), want.Format(time.RFC3339))
			}
		})
	}
}

func TestRecurrenceNextStrictlyAfterNow(t *testing.T) {
	t.Parallel()

	recs := []Recurrence{
		Hourly(),
		DailyAt(0, 0),
		DailyAt(23, 59),
		WeeklyAt(time.Sunday, 0, 0),
		WeeklyAt(time.Wednesday, 12, 30),
		{Kind: "bogus"},
	}
	start := at("2025-01-01T00:00:00")
	for i := 0; i < 14*24*4; i++ {
		now := start.Add(time.Duration(i) * 15 * time.Minute)
		for _, r := range recs {
			if next := r.Next(now); !next.After(now) {
				t.Fatalf("%s.Next(%s) = %s, not after now", r, now, next)
			}
		}
	}
}

func TestRecurrenceNextHonoursLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2025, 1, 1, 10, 37, 0, 0, loc)
	got := Hourly().Next(now)
	want := time.Date(2025, 1, 1, 11, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Next = %s, want %s", got, want)
	}

	got = DailyAt(9, 0).Next(now)
	want = time.Date(2025, 1, 2, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("daily Next = %s, want %s", got, want)
	}
}

func TestRecurrenceValidate(t *testing.T) {
	t.Parallel()

	bad := []Recurrence{
		{Kind: ""},
		{Kind: "monthly"},
		DailyAt(24, 0),
		DailyAt(9, 60),
		WeeklyAt(time.Weekday(7), 9, 0),
		WeeklyAt(time.Monday, -1, 0),
	}
	for _, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalid", r, err)
		}
	}
	for _, r := range []Recurrence{Once(), Hourly(), DailyAt(23, 59), WeeklyAt(time.Saturday, 0, 0)} {
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate(%s) = %v", r, err)
		}
	}
}

func TestParseRecurrenceRoundTrip(t *testing.T) {
	t.Parallel()

	for _, r := range []Recurrence{Once(), Hourly(), DailyAt(9, 5), WeeklyAt(time.Thursday, 18, 0)} {
		got, err := ParseRecurrence(r.String())
		if err != nil {
			t.Fatalf("ParseRecurrence(%q): %v", r.String(), err)
		}
		if got != r {
			t.Fatalf("ParseRecurrence(%q) = %+v, want %+v", r.String(), got, r)
		}
	}

	got, err := ParseRecurrence("Weekly@Monday 7:30")
	if err != nil {
		t.Fatalf("ParseRecurrence: %v", err)
	}
	if want := WeeklyAt(time.Monday, 7, 30); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	for _, s := range []string{"", "daily", "daily@9", "daily@25:00", "weekly@09:00", "weekly@xyz 09:00", "weekly@monsoon 09:00", "weekly@fri-day 09:00", "hourly@10:00", "yearly"} {
		if _, err := ParseRecurrence(s); !errors.Is(err, ErrInvalid) {
			t.Fatalf("ParseRecurrence(%q) = %v, want ErrInvalid", s, err)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Weekday
		ok   bool
	}{
		{"mon", time.Monday, true},
		{"Monday", time.Monday, true},
		{" SAT ", time.Saturday, true},
		{"wednesday", time.Wednesday, true},
		{"monsoon", 0, false},
		{"sunny", 0, false},
		{"tues", 0, false},
		{"mo", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if !tt.ok {
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("ParseWeekday(%q) = %v, %v; want ErrInvalid", tt.in, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseWeekday(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
