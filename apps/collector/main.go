package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qbr/internal/clock"
	"github.com/smallbiznis/qbr/internal/collector"
	"github.com/smallbiznis/qbr/internal/config"
	"github.com/smallbiznis/qbr/internal/inventory"
	"github.com/smallbiznis/qbr/internal/metrics"
	"github.com/smallbiznis/qbr/internal/migration"
	"github.com/smallbiznis/qbr/internal/observability"
	"github.com/smallbiznis/qbr/internal/orchestrator"
	"github.com/smallbiznis/qbr/internal/period"
	"github.com/smallbiznis/qbr/pkg/db"
	"github.com/urfave/cli"
	"go.uber.org/fx"
)

// appVersion should be populated at build time using ldflags.
var appVersion = "undefined"

var (
	periodFlag = cli.StringFlag{
		Name:  "period",
		Usage: "collection `YYYY-MM` period (default: current period)",
	}
	lastNMonthsFlag = cli.IntFlag{
		Name:  "last-n-months",
		Usage: "collect `N` consecutive months ending at the current period",
	}
	dryRunFlag = cli.BoolFlag{
		Name:  "dry-run",
		Usage: "compute and print metrics without persisting them",
	}
	organizationIDFlag = cli.Int64Flag{
		Name:  "organization-id",
		Usage: "organization the metrics are scoped to",
	}
	vendorFlag = cli.StringFlag{
		Name:  "vendor",
		Usage: "run a single vendor collector",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "qbr-collector"
	app.Version = appVersion
	app.Usage = "Collects QBR metrics from vendor APIs and device snapshots"
	app.Flags = []cli.Flag{
		periodFlag,
		lastNMonthsFlag,
		dryRunFlag,
		organizationIDFlag,
		vendorFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(orchestrator.ExitTotalFailure)
	}
}

func run(cliCtx *cli.Context) error {
	var (
		cfg  config.Config
		clk  clock.Clock
		calc *period.Calculator
		orch *orchestrator.Orchestrator
	)

	fxApp := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		period.Module,
		metrics.Module,
		inventory.Module,
		collector.Module,
		orchestrator.Module,
		fx.Populate(&cfg, &clk, &calc, &orch),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return cli.NewExitError(err.Error(), orchestrator.ExitTotalFailure)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		_ = fxApp.Stop(stopCtx)
	}()

	periods, err := resolvePeriods(cliCtx, calc, clk)
	if err != nil {
		return cli.NewExitError(err.Error(), orchestrator.ExitTotalFailure)
	}

	orgID := cliCtx.Int64(organizationIDFlag.Name)
	if orgID == 0 {
		orgID = cfg.DefaultOrgID
	}

	result := orch.Run(context.Background(), orchestrator.RunRequest{
		Periods: periods,
		OrgID:   orgID,
		DryRun:  cliCtx.Bool(dryRunFlag.Name),
		Vendor:  cliCtx.String(vendorFlag.Name),
	})
	printSummary(result)

	if code := result.ExitCode(); code != orchestrator.ExitOK {
		return cli.NewExitError(fmt.Sprintf("%d of %d collections failed", result.Failed, result.Failed+result.Succeeded), code)
	}
	return nil
}

func resolvePeriods(cliCtx *cli.Context, calc *period.Calculator, clk clock.Clock) ([]string, error) {
	if months := cliCtx.Int(lastNMonthsFlag.Name); months > 0 {
		end := calc.Current(clk)
		year, month, err := period.Parse(end)
		if err != nil {
			return nil, err
		}
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
		start := fmt.Sprintf("%04d-%02d", first.Year(), int(first.Month()))
		return period.Enumerate(start, end)
	}

	p := cliCtx.String(periodFlag.Name)
	if p == "" {
		p = calc.Current(clk)
	}
	if _, _, err := period.Parse(p); err != nil {
		return nil, err
	}
	return []string{p}, nil
}

func printSummary(result orchestrator.Result) {
	for _, outcome := range result.Outcomes {
		status := "ok"
		if outcome.Err != nil {
			status = "failed: " + outcome.Err.Error()
		}
		fmt.Printf("%s %s: %d metrics, %s\n", outcome.Period, outcome.Vendor, outcome.Metrics, status)
	}
	fmt.Printf("succeeded=%d failed=%d\n", result.Succeeded, result.Failed)
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
