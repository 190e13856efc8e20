package connectwise

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qbr/internal/config"
	"github.com/smallbiznis/qbr/internal/connectwise"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	"github.com/smallbiznis/qbr/internal/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type stubAPI struct {
	tickets     string
	closed      string
	timeEntries string
	byIDs       string

	listConditions []string
	closedCalls    int
}

func (s *stubAPI) List(_ context.Context, resource, conditions, fields string, _ int) ([]gjson.Result, error) {
	s.listConditions = append(s.listConditions, conditions)
	switch {
	case resource == "time/entries":
		return parseRecords(s.timeEntries), nil
	case strings.Contains(conditions, "closedDate"):
		s.closedCalls++
		return parseRecords(s.closed), nil
	default:
		return parseRecords(s.tickets), nil
	}
}

func (s *stubAPI) ListByIDs(_ context.Context, _ string, _ []int64, _ string, _ int) ([]gjson.Result, error) {
	return parseRecords(s.byIDs), nil
}

func (s *stubAPI) Close() {}

func parseRecords(raw string) []gjson.Result {
	if raw == "" {
		return nil
	}
	return gjson.Parse(raw).Array()
}

func newTestCollector(t *testing.T, stub *stubAPI) *Collector {
	t.Helper()
	calc, err := period.NewInZone("America/New_York")
	require.NoError(t, err)

	c := &Collector{
		cfg: config.ConnectWiseConfig{
			ServerURL:    "https://cw.example.com",
			CompanyID:    "acme",
			ClientID:     "client",
			PublicKey:    "pub",
			PrivateKey:   "priv",
			ServiceBoard: "Help Desk",
			MaxAttempts:  3,
		},
		calc: calc,
		log:  zap.NewNop(),
	}
	c.dial = func() (api, error) { return stub, nil }
	return c
}

func metricByName(t *testing.T, values []metricsdomain.MetricValue, name string) metricsdomain.MetricValue {
	t.Helper()
	for _, v := range values {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricsdomain.MetricValue{}
}

func TestCollectMetrics(t *testing.T) {
	stub := &stubAPI{
		tickets:     `[{"id":1},{"id":2},{"id":2},{"id":3}]`,
		closed:      `[{"id":9}]`,
		timeEntries: `[{"chargeToId":101,"actualHours":1.25},{"chargeToId":101,"actualHours":0.75},{"chargeToId":202,"actualHours":3}]`,
		byIDs:       `[{"id":101,"board":{"name":"Help Desk"}},{"id":202,"board":{"name":"Projects"}}]`,
	}
	c := newTestCollector(t, stub)

	values, err := c.CollectMetrics(context.Background(), "2024-03")
	require.NoError(t, err)
	require.Len(t, values, 3)

	created := metricByName(t, values, MetricTicketsCreated)
	assert.True(t, created.Value.Equal(decimal.NewFromInt(3)), "distinct ids: %s", created.Value)

	closed := metricByName(t, values, MetricTicketsClosed)
	assert.True(t, closed.Value.Equal(decimal.NewFromInt(1)), closed.Value.String())

	// ticket 202 has hours but sits on another board, so only 101 counts
	reactive := metricByName(t, values, MetricReactiveHours)
	assert.True(t, reactive.Value.Equal(decimal.RequireFromString("2.00")), reactive.Value.String())
}

func TestCollectMetricsQueryWindows(t *testing.T) {
	stub := &stubAPI{}
	c := newTestCollector(t, stub)

	_, err := c.CollectMetrics(context.Background(), "2024-03")
	require.NoError(t, err)

	require.NotEmpty(t, stub.listConditions)
	createdCond := stub.listConditions[0]
	assert.Contains(t, createdCond, `board/name="Help Desk"`)
	assert.Contains(t, createdCond, "parentTicketId = null")
	assert.Contains(t, createdCond, "[2024-03-01T05:00:00Z]")
	assert.Contains(t, createdCond, "[2024-04-01T03:59:59Z]")
	assert.Equal(t, 1, stub.closedCalls)
}

func TestCollectMetricsZeroTimeEntries(t *testing.T) {
	stub := &stubAPI{}
	c := newTestCollector(t, stub)

	values, err := c.CollectMetrics(context.Background(), "2024-06")
	require.NoError(t, err)
	require.Len(t, values, 3)

	reactive := metricByName(t, values, MetricReactiveHours)
	assert.True(t, reactive.Value.Equal(decimal.Zero), "zero entries must yield exactly 0")
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	calc, err := period.NewInZone("America/New_York")
	require.NoError(t, err)

	_, err = New(Params{
		Config: config.Config{ConnectWise: config.ConnectWiseConfig{ServiceBoard: "Help Desk"}},
		Calc:   calc,
		Log:    zap.NewNop(),
	})
	require.ErrorIs(t, err, connectwise.ErrMissingCredentials)

	// a complete bundle constructs without dialing anything
	res, err := New(Params{
		Config: config.Config{ConnectWise: config.ConnectWiseConfig{
			ServerURL:    "https://cw.example.com",
			CompanyID:    "acme",
			ClientID:     "client",
			PublicKey:    "pub",
			PrivateKey:   "priv",
			ServiceBoard: "Help Desk",
		}},
		Calc: calc,
		Log:  zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, VendorName, res.Collector.Vendor())
}

func TestCollectMetricsInvalidPeriod(t *testing.T) {
	c := newTestCollector(t, &stubAPI{})

	_, err := c.CollectMetrics(context.Background(), "2024-13")
	assert.ErrorIs(t, err, period.ErrInvalidPeriod)
}
