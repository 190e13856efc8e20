// Package inventory derives billing metrics from daily device snapshots.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	collectordomain "github.com/smallbiznis/qbr/internal/collector/domain"
	"github.com/smallbiznis/qbr/internal/config"
	inventorydomain "github.com/smallbiznis/qbr/internal/inventory/domain"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	"github.com/smallbiznis/qbr/internal/period"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	MetricBillableEndpoints = "billable_endpoints"
	MetricSeatCount         = "seat_count"
)

const spareMarker = "spare"

type Params struct {
	fx.In

	Config    config.Config
	Snapshots inventorydomain.SnapshotRepository
	Log       *zap.Logger
}

type Result struct {
	fx.Out

	Collector collectordomain.Collector `group:"collectors"`
}

// Collector aggregates the most recent snapshot date inside the period.
// Periods may be historical, so it never looks at the current date.
type Collector struct {
	cfg       config.InventoryConfig
	snapshots inventorydomain.SnapshotRepository
	log       *zap.Logger
}

func New(p Params) Result {
	return Result{Collector: &Collector{
		cfg:       p.Config.Inventory,
		snapshots: p.Snapshots,
		log:       p.Log.Named("collector.inventory"),
	}}
}

func (c *Collector) Vendor() string { return c.cfg.Vendor }

func (c *Collector) CollectMetrics(ctx context.Context, p string) ([]metricsdomain.MetricValue, error) {
	year, month, err := period.Parse(p)
	if err != nil {
		return nil, err
	}

	// Snapshot rows are keyed by civil date, so the window is the period's
	// calendar days rather than its UTC-converted instants.
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, 0).AddDate(0, 0, -1)

	date, found, err := c.snapshots.LatestDateInWindow(ctx, c.cfg.Vendor, first, last)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot date: %w", err)
	}
	if !found {
		c.log.Info("no snapshot for period, skipping",
			zap.String("vendor", c.cfg.Vendor),
			zap.String("period", p),
		)
		return nil, nil
	}

	rows, err := c.snapshots.RowsOn(ctx, c.cfg.Vendor, date)
	if err != nil {
		return nil, fmt.Errorf("snapshot rows: %w", err)
	}

	excludedOrgs := make(map[string]struct{}, len(c.cfg.ExcludedOrgs))
	for _, org := range c.cfg.ExcludedOrgs {
		excludedOrgs[strings.ToLower(org)] = struct{}{}
	}

	var billable, total, excluded int
	for _, row := range rows {
		_, orgExcluded := excludedOrgs[strings.ToLower(row.OrgName)]

		if row.BillingStatus == inventorydomain.BillingStatusBillable && !orgExcluded {
			billable++
		}

		// Seat exclusions are a set union: a device matching several
		// rules is removed once.
		total++
		if orgExcluded ||
			strings.EqualFold(row.DeviceType, inventorydomain.DeviceTypeServer) ||
			containsFold(row.DisplayName, spareMarker) ||
			containsFold(row.LocationName, spareMarker) {
			excluded++
		}
	}

	note := fmt.Sprintf("snapshot date %s", date.Format("2006-01-02"))
	metadata := map[string]any{
		"snapshot_date": date.Format("2006-01-02"),
		"device_count":  total,
	}

	return []metricsdomain.MetricValue{
		{
			Name:       MetricBillableEndpoints,
			Value:      decimal.NewFromInt(int64(billable)),
			DataSource: metricsdomain.DataSourceCollected,
			Note:       note,
			Metadata:   metadata,
		},
		{
			Name:       MetricSeatCount,
			Value:      decimal.NewFromInt(int64(total - excluded)),
			DataSource: metricsdomain.DataSourceCollected,
			Note:       note,
			Metadata:   metadata,
		},
	}, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
