// Package connectwise computes ticket and time metrics from the ConnectWise
// Manage API for a QBR period.
package connectwise

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	collectordomain "github.com/smallbiznis/qbr/internal/collector/domain"
	"github.com/smallbiznis/qbr/internal/config"
	"github.com/smallbiznis/qbr/internal/connectwise"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	"github.com/smallbiznis/qbr/internal/period"
	"github.com/tidwall/gjson"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// VendorName identifies this collector's metrics in the store.
const VendorName = "connectwise"

const (
	MetricTicketsCreated = "tickets_created"
	MetricTicketsClosed  = "tickets_closed"
	MetricReactiveHours  = "reactive_hours"
)

// closedStatuses are the terminal ConnectWise board statuses counted as closed.
var closedStatuses = []string{">Closed", "Closed", "Completed"}

// api is the slice of the ConnectWise client the collector drives.
type api interface {
	List(ctx context.Context, resource, conditions, fields string, pageSize int) ([]gjson.Result, error)
	ListByIDs(ctx context.Context, resource string, ids []int64, fields string, batchSize int) ([]gjson.Result, error)
	Close()
}

type Params struct {
	fx.In

	Config config.Config
	Calc   *period.Calculator
	Log    *zap.Logger
}

type Result struct {
	fx.Out

	Collector collectordomain.Collector `group:"collectors"`
}

// Collector derives ticket metrics for the configured service board.
type Collector struct {
	cfg  config.ConnectWiseConfig
	calc *period.Calculator
	log  *zap.Logger

	// dial opens a fresh API session per collection run; tests swap it out.
	dial func() (api, error)
}

// New validates the credential bundle up front: a deployment with missing
// ConnectWise credentials must fail at startup, not on the first collection.
func New(p Params) (Result, error) {
	creds := connectwise.Credentials{
		ServerURL:  p.Config.ConnectWise.ServerURL,
		CompanyID:  p.Config.ConnectWise.CompanyID,
		ClientID:   p.Config.ConnectWise.ClientID,
		PublicKey:  p.Config.ConnectWise.PublicKey,
		PrivateKey: p.Config.ConnectWise.PrivateKey,
	}
	if err := creds.Validate(); err != nil {
		return Result{}, err
	}

	c := &Collector{
		cfg:  p.Config.ConnectWise,
		calc: p.Calc,
		log:  p.Log.Named("collector.connectwise"),
	}
	c.dial = func() (api, error) {
		return connectwise.NewClient(creds, c.cfg.MaxAttempts, c.log)
	}
	return Result{Collector: c}, nil
}

func (c *Collector) Vendor() string { return VendorName }

func (c *Collector) CollectMetrics(ctx context.Context, p string) ([]metricsdomain.MetricValue, error) {
	start, end, err := c.calc.Boundaries(p)
	if err != nil {
		return nil, err
	}

	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	created, err := c.countCreated(ctx, client, start, end)
	if err != nil {
		return nil, fmt.Errorf("tickets created: %w", err)
	}
	closed, err := c.countClosed(ctx, client, start, end)
	if err != nil {
		return nil, fmt.Errorf("tickets closed: %w", err)
	}
	reactive, err := c.sumReactiveHours(ctx, client, start, end)
	if err != nil {
		return nil, fmt.Errorf("reactive hours: %w", err)
	}

	note := fmt.Sprintf("collected from board %q", c.cfg.ServiceBoard)
	metadata := map[string]any{
		"board":        c.cfg.ServiceBoard,
		"period_start": start.Format(time.RFC3339),
		"period_end":   end.Format(time.RFC3339),
	}

	return []metricsdomain.MetricValue{
		{
			Name:       MetricTicketsCreated,
			Value:      decimal.NewFromInt(int64(created)),
			DataSource: metricsdomain.DataSourceCollected,
			Note:       note,
			Metadata:   metadata,
		},
		{
			Name:       MetricTicketsClosed,
			Value:      decimal.NewFromInt(int64(closed)),
			DataSource: metricsdomain.DataSourceCollected,
			Note:       note,
			Metadata:   metadata,
		},
		{
			Name:       MetricReactiveHours,
			Value:      reactive,
			DataSource: metricsdomain.DataSourceCollected,
			Note:       note,
			Metadata:   metadata,
		},
	}, nil
}

// countCreated counts top-level board tickets entered inside the period.
// Only the id field is fetched; counting goes by distinct identifier.
func (c *Collector) countCreated(ctx context.Context, client api, start, end time.Time) (int, error) {
	conditions := fmt.Sprintf(
		`board/name=%q AND parentTicketId = null AND dateEntered >= %s AND dateEntered <= %s`,
		c.cfg.ServiceBoard,
		period.FormatQuery(start),
		period.FormatQuery(end),
	)
	records, err := client.List(ctx, "service/tickets", conditions, "id", connectwise.DefaultPageSize)
	if err != nil {
		return 0, err
	}
	return countDistinctIDs(records), nil
}

// countClosed adds the closed-date window and terminal status filter.
func (c *Collector) countClosed(ctx context.Context, client api, start, end time.Time) (int, error) {
	conditions := fmt.Sprintf(
		`board/name=%q AND parentTicketId = null AND closedDate >= %s AND closedDate <= %s AND status/name in (%s)`,
		c.cfg.ServiceBoard,
		period.FormatQuery(start),
		period.FormatQuery(end),
		quoteList(closedStatuses),
	)
	records, err := client.List(ctx, "service/tickets", conditions, "id", connectwise.DefaultPageSize)
	if err != nil {
		return 0, err
	}
	return countDistinctIDs(records), nil
}

// sumReactiveHours joins time entries to their tickets client-side: the API
// cannot filter time entries by board membership directly. Hours accumulate
// per ticket as exact decimals and only the final total is rounded, so
// intermediate sums never drift.
func (c *Collector) sumReactiveHours(ctx context.Context, client api, start, end time.Time) (decimal.Decimal, error) {
	conditions := fmt.Sprintf(
		`chargeToType = "ServiceTicket" AND timeStart >= %s AND timeStart <= %s`,
		period.FormatQuery(start),
		period.FormatQuery(end),
	)
	entries, err := client.List(ctx, "time/entries", conditions, "chargeToId,actualHours", connectwise.DefaultPageSize)
	if err != nil {
		return decimal.Zero, err
	}
	if len(entries) == 0 {
		return decimal.Zero, nil
	}

	hoursByTicket := make(map[int64]decimal.Decimal)
	for _, entry := range entries {
		ticketID := entry.Get("chargeToId").Int()
		if ticketID == 0 {
			continue
		}
		hours := parseDecimal(entry.Get("actualHours"))
		hoursByTicket[ticketID] = hoursByTicket[ticketID].Add(hours)
	}

	ticketIDs := make([]int64, 0, len(hoursByTicket))
	for id := range hoursByTicket {
		ticketIDs = append(ticketIDs, id)
	}
	sort.Slice(ticketIDs, func(i, j int) bool { return ticketIDs[i] < ticketIDs[j] })

	tickets, err := client.ListByIDs(ctx, "service/tickets", ticketIDs, "id,board/name", connectwise.DefaultIDBatchSize)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, ticket := range tickets {
		if ticket.Get("board.name").String() != c.cfg.ServiceBoard {
			continue
		}
		total = total.Add(hoursByTicket[ticket.Get("id").Int()])
	}
	return total.Round(2), nil
}

// parseDecimal converts a gjson number from its literal text so binary
// float artifacts never enter the accumulation.
func parseDecimal(value gjson.Result) decimal.Decimal {
	if !value.Exists() {
		return decimal.Zero
	}
	if parsed, err := decimal.NewFromString(value.Raw); err == nil {
		return parsed
	}
	return decimal.NewFromFloat(value.Float())
}

func countDistinctIDs(records []gjson.Result) int {
	seen := make(map[int64]struct{}, len(records))
	for _, record := range records {
		id := record.Get("id").Int()
		if id == 0 {
			continue
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}

func quoteList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", v)
	}
	return out
}
