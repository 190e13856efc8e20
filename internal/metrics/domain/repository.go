package domain

import "context"

// Store persists metric values idempotently. Re-running collection for the
// same key overwrites the previous value; uniqueness is enforced by the
// database so concurrent backfills and scheduled runs stay safe.
type Store interface {
	Upsert(ctx context.Context, period string, orgID int64, vendor *string, values []MetricValue) error
}
