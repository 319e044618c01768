// Package anchor gives names to blob refs.
// An anchor maps a name to a sequence of refs over time,
// so a changing structure (such as a drive's root)
// can be found by a stable name.
package anchor

import (
	"context"
	"time"

	"github.com/bobg/bsdrive"
)

type Getter interface {
	bsdrive.Getter

	// GetAnchor returns the latest ref associated with the given anchor
	// at or before the given time.
	// It returns bsdrive.ErrNotFound if there is none.
	GetAnchor(context.Context, string, time.Time) (bsdrive.Ref, error)
}

type Store interface {
	bsdrive.Store
	Getter

	// PutAnchor associates ref with the given anchor as of the given time.
	PutAnchor(ctx context.Context, name string, ref bsdrive.Ref, at time.Time) error
}

// Latest is GetAnchor as of now.
func Latest(ctx context.Context, g Getter, name string) (bsdrive.Ref, error) {
	return g.GetAnchor(ctx, name, time.Now())
}
