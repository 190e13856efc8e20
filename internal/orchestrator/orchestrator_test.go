package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qbr/internal/clock"
	collectordomain "github.com/smallbiznis/qbr/internal/collector/domain"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCollector struct {
	vendor  string
	collect func(ctx context.Context, period string) ([]metricsdomain.MetricValue, error)
}

func (f *fakeCollector) Vendor() string { return f.vendor }

func (f *fakeCollector) CollectMetrics(ctx context.Context, period string) ([]metricsdomain.MetricValue, error) {
	return f.collect(ctx, period)
}

type upsertCall struct {
	Period string
	OrgID  int64
	Vendor *string
	Count  int
}

type fakeStore struct {
	calls []upsertCall
	err   error
}

func (f *fakeStore) Upsert(_ context.Context, period string, orgID int64, vendor *string, values []metricsdomain.MetricValue) error {
	f.calls = append(f.calls, upsertCall{Period: period, OrgID: orgID, Vendor: vendor, Count: len(values)})
	return f.err
}

func okCollector(vendor string) collectordomain.Collector {
	return &fakeCollector{
		vendor: vendor,
		collect: func(context.Context, string) ([]metricsdomain.MetricValue, error) {
			return []metricsdomain.MetricValue{{
				Name:       "tickets_created",
				Value:      decimal.NewFromInt(12),
				DataSource: metricsdomain.DataSourceCollected,
			}}, nil
		},
	}
}

func failingCollector(vendor string) collectordomain.Collector {
	return &fakeCollector{
		vendor: vendor,
		collect: func(context.Context, string) ([]metricsdomain.MetricValue, error) {
			return nil, errors.New("vendor outage")
		},
	}
}

func newTestOrchestrator(store metricsdomain.Store, collectors ...collectordomain.Collector) *Orchestrator {
	return New(Params{
		Log:        zap.NewNop(),
		Store:      store,
		Clock:      clock.NewFakeClock(time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)),
		Collectors: collectors,
	})
}

func TestRunAllSucceed(t *testing.T) {
	store := &fakeStore{}
	orch := newTestOrchestrator(store, okCollector("connectwise"), okCollector("ncentral"))

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1})

	assert.Equal(t, ExitOK, result.ExitCode())
	assert.Equal(t, 2, result.Succeeded)
	require.Len(t, store.calls, 2)
	require.NotNil(t, store.calls[0].Vendor)
	assert.Equal(t, "connectwise", *store.calls[0].Vendor)
	assert.Equal(t, int64(1), store.calls[0].OrgID)
}

func TestRunPartialFailure(t *testing.T) {
	store := &fakeStore{}
	orch := newTestOrchestrator(store, failingCollector("connectwise"), okCollector("ncentral"))

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1})

	assert.Equal(t, ExitPartialFailure, result.ExitCode())
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	// the healthy vendor still persisted
	require.Len(t, store.calls, 1)
	assert.Equal(t, "ncentral", *store.calls[0].Vendor)
}

func TestRunTotalFailure(t *testing.T) {
	store := &fakeStore{}
	orch := newTestOrchestrator(store, failingCollector("connectwise"), failingCollector("ncentral"))

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1})

	assert.Equal(t, ExitTotalFailure, result.ExitCode())
	assert.Empty(t, store.calls)
}

func TestRunIsolatesPanics(t *testing.T) {
	store := &fakeStore{}
	panicking := &fakeCollector{
		vendor: "connectwise",
		collect: func(context.Context, string) ([]metricsdomain.MetricValue, error) {
			panic("boom")
		},
	}
	orch := newTestOrchestrator(store, panicking, okCollector("ncentral"))

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1})

	assert.Equal(t, ExitPartialFailure, result.ExitCode())
	require.Len(t, result.Outcomes, 2)
	assert.ErrorContains(t, result.Outcomes[0].Err, "panicked")
}

func TestRunDryRunSkipsStore(t *testing.T) {
	store := &fakeStore{}
	orch := newTestOrchestrator(store, okCollector("connectwise"))

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1, DryRun: true})

	assert.Equal(t, ExitOK, result.ExitCode())
	assert.Empty(t, store.calls)
}

func TestRunVendorFilter(t *testing.T) {
	store := &fakeStore{}
	orch := newTestOrchestrator(store, okCollector("connectwise"), okCollector("ncentral"))

	result := orch.Run(context.Background(), RunRequest{
		Periods: []string{"2024-02", "2024-03"},
		OrgID:   1,
		Vendor:  "ncentral",
	})

	assert.Equal(t, ExitOK, result.ExitCode())
	require.Len(t, store.calls, 2)
	for _, call := range store.calls {
		assert.Equal(t, "ncentral", *call.Vendor)
	}
	assert.Equal(t, []string{"2024-02", "2024-03"}, []string{store.calls[0].Period, store.calls[1].Period})
}

func TestRunEmptyMetricsIsSuccess(t *testing.T) {
	store := &fakeStore{}
	empty := &fakeCollector{
		vendor: "ncentral",
		collect: func(context.Context, string) ([]metricsdomain.MetricValue, error) {
			return nil, nil
		},
	}
	orch := newTestOrchestrator(store, empty)

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1})

	assert.Equal(t, ExitOK, result.ExitCode())
	assert.Empty(t, store.calls)
}

func TestStoreFailureCountsAgainstVendor(t *testing.T) {
	store := &fakeStore{err: errors.New("db unavailable")}
	orch := newTestOrchestrator(store, okCollector("connectwise"))

	result := orch.Run(context.Background(), RunRequest{Periods: []string{"2024-03"}, OrgID: 1})

	assert.Equal(t, ExitTotalFailure, result.ExitCode())
	assert.Equal(t, 1, result.Failed)
}
