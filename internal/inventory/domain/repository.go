package domain

import (
	"context"
	"time"
)

// SnapshotRepository reads device snapshot rows. The bool result of
// LatestDateInWindow distinguishes "no snapshot in the window" from an
// actual query failure.
type SnapshotRepository interface {
	LatestDateInWindow(ctx context.Context, vendor string, start, end time.Time) (time.Time, bool, error)
	RowsOn(ctx context.Context, vendor string, date time.Time) ([]DeviceSnapshot, error)
}
