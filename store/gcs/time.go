package gcs

import (
	"fmt"
	"math/big"
	"time"
)

// Anchor object names end in a fixed-width decimal count
// of the nanoseconds remaining until the latest representable time.Time.
// Later anchors therefore sort first.
const timeKeyWidth = 30

var (
	nanosPerSecond = big.NewInt(int64(time.Second))

	// From https://stackoverflow.com/a/32620397
	latestNanos = unixNanos(time.Unix(1<<63-1-int64((1969*365+1969/4-1969/100+1969/400)*24*60*60), 999999999))
)

func unixNanos(t time.Time) *big.Int {
	n := big.NewInt(t.Unix())
	n.Mul(n, nanosPerSecond)
	return n.Add(n, big.NewInt(int64(t.Nanosecond())))
}

func timeKey(t time.Time) string {
	n := unixNanos(t)
	return fmt.Sprintf("%0*d", timeKeyWidth, n.Sub(latestNanos, n))
}

func parseTimeKey(s string) (time.Time, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || len(s) != timeKeyWidth {
		return time.Time{}, fmt.Errorf("malformed time key %q", s)
	}
	n.Sub(latestNanos, n)

	var secs, nanos big.Int
	secs.DivMod(n, nanosPerSecond, &nanos)
	return time.Unix(secs.Int64(), nanos.Int64()), nil
}
