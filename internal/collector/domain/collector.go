// Package domain defines the vendor collector contract.
package domain

import (
	"context"

	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
)

// Collector computes one vendor's QBR metrics for a period. Implementations
// must be safe to call repeatedly for the same period: the only durable side
// effect happens later in the store's write path. On unrecoverable failure
// the error propagates; a collector never records misleading zeros.
type Collector interface {
	Vendor() string
	CollectMetrics(ctx context.Context, period string) ([]metricsdomain.MetricValue, error)
}
