// Package orchestrator runs every registered vendor collector for one or
// more periods and folds the outcomes into an exit status.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/smallbiznis/qbr/internal/clock"
	collectordomain "github.com/smallbiznis/qbr/internal/collector/domain"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	obsmetrics "github.com/smallbiznis/qbr/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Exit codes reported to the scheduler.
const (
	ExitOK             = 0
	ExitPartialFailure = 1
	ExitTotalFailure   = 2
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      metricsdomain.Store
	Clock      clock.Clock
	Collectors []collectordomain.Collector `group:"collectors"`
	Telemetry  *obsmetrics.Metrics         `optional:"true"`
}

type Orchestrator struct {
	log        *zap.Logger
	store      metricsdomain.Store
	clock      clock.Clock
	collectors []collectordomain.Collector
	telemetry  *obsmetrics.Metrics
}

func New(p Params) *Orchestrator {
	return &Orchestrator{
		log:        p.Log.Named("orchestrator"),
		store:      p.Store,
		clock:      p.Clock,
		collectors: p.Collectors,
		telemetry:  p.Telemetry,
	}
}

// RunRequest describes one batch invocation.
type RunRequest struct {
	Periods []string
	OrgID   int64
	DryRun  bool
	// Vendor restricts the run to a single collector when non-empty.
	Vendor string
}

// Outcome is the result of one collector for one period.
type Outcome struct {
	Vendor  string
	Period  string
	Metrics int
	Err     error
}

// Result aggregates every outcome of a run.
type Result struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
}

// ExitCode maps the tally to the process exit status: 0 all succeeded,
// 1 partial failure, 2 total failure.
func (r Result) ExitCode() int {
	switch {
	case r.Failed == 0:
		return ExitOK
	case r.Succeeded > 0:
		return ExitPartialFailure
	default:
		return ExitTotalFailure
	}
}

// Run executes collectors sequentially per period. One vendor's outage never
// blocks the others: failures become outcome records, not aborts.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) Result {
	var result Result

	for _, p := range req.Periods {
		for _, c := range o.collectors {
			if req.Vendor != "" && c.Vendor() != req.Vendor {
				continue
			}
			outcome := o.runOne(ctx, c, p, req.OrgID, req.DryRun)
			result.Outcomes = append(result.Outcomes, outcome)
			if outcome.Err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
		}
	}

	o.log.Info("collection run finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("exit_code", result.ExitCode()),
	)
	return result
}

func (o *Orchestrator) runOne(ctx context.Context, c collectordomain.Collector, period string, orgID int64, dryRun bool) (outcome Outcome) {
	vendor := c.Vendor()
	outcome = Outcome{Vendor: vendor, Period: period}
	log := o.log.With(zap.String("vendor", vendor), zap.String("period", period))

	start := o.clock.Now()
	o.telemetry.IncCollectorRun(ctx, vendor)
	defer func() {
		o.telemetry.ObserveRunDuration(ctx, vendor, o.clock.Now().Sub(start))
		if r := recover(); r != nil {
			outcome.Err = fmt.Errorf("collector panicked: %v", r)
		}
		if outcome.Err != nil {
			o.telemetry.IncCollectorError(ctx, vendor)
			log.Error("collection failed", zap.Error(outcome.Err))
		}
	}()

	values, err := c.CollectMetrics(ctx, period)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Metrics = len(values)

	if len(values) == 0 {
		log.Info("no metrics produced for period")
		return outcome
	}

	for _, v := range values {
		log.Info("metric computed",
			zap.String("metric", v.Name),
			zap.String("value", v.Value.String()),
			zap.String("data_source", string(v.DataSource)),
			zap.Bool("dry_run", dryRun),
		)
	}
	if dryRun {
		return outcome
	}

	if err := o.store.Upsert(ctx, period, orgID, &vendor, values); err != nil {
		outcome.Err = err
		return outcome
	}
	o.telemetry.AddMetricsWritten(ctx, vendor, len(values))
	return outcome
}
