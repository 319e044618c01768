package gcs

import (
	"testing"
	"time"
)

func TestTimeKey(t *testing.T) {
	times := []time.Time{
		time.Unix(0, 0),
		time.Unix(0, 1),
		time.Date(2021, 8, 7, 15, 13, 35, 123456789, time.UTC),
		time.Date(1066, 10, 14, 9, 0, 0, 0, time.UTC),
		time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}

	for i, tm := range times {
		key := timeKey(tm)
		if len(key) != timeKeyWidth {
			t.Errorf("time key %q has length %d", key, len(key))
		}
		got, err := parseTimeKey(key)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(tm) {
			t.Errorf("got %s, want %s", got, tm)
		}

		for _, other := range times[:i] {
			if tm.After(other) != (key < timeKey(other)) {
				t.Errorf("keys for %s and %s sort in the wrong order", tm, other)
			}
		}
	}
}

func TestParseTimeKey(t *testing.T) {
	for _, s := range []string{"", "12", "x00000000000000000000000000000"} {
		if _, err := parseTimeKey(s); err == nil {
			t.Errorf("no error for %q", s)
		}
	}
}
