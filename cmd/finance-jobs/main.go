package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/app"
	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/pkg/config"
	"github.com/noah-isme/sma-fee-ledger/pkg/logger"
)

const usage = `usage: finance-jobs <command> [flags]

commands:
  late-fees   charge late fees on overdue fees
  reminders   build, export or dispatch guardian reminders
  policies    list configured late fee policies`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg, "finance-jobs")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch os.Args[1] {
	case "late-fees":
		runErr = runLateFees(ctx, cfg, logr, os.Args[2:])
	case "reminders":
		runErr = runReminders(ctx, cfg, logr, os.Args[2:])
	case "policies":
		runErr = runPolicies(ctx, cfg, logr, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if runErr != nil {
		logr.Error("job failed", zap.String("command", os.Args[1]), zap.Error(runErr))
		_ = logr.Sync()
		os.Exit(1)
	}
}

func runLateFees(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("late-fees", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "compute charges without persisting")
	feeType := fs.String("fee-type", "", "only process fees of this type")
	asOfRaw := fs.String("as-of", "", "evaluation date YYYY-MM-DD (default today)")
	force := fs.Bool("force", false, "skip the confirmation prompt")
	_ = fs.Parse(args)

	asOf, err := parseDate(*asOfRaw)
	if err != nil {
		return err
	}
	if !*dryRun && !*force {
		prompt := fmt.Sprintf("Apply late fees as of %s", dateLabel(asOf))
		if strings.TrimSpace(*feeType) != "" {
			prompt += " for fee type " + *feeType
		}
		if !confirm(os.Stdin, os.Stdout, prompt) {
			logr.Info("late fee run cancelled")
			return nil
		}
	}

	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := container.LateFees.Run(ctx, models.LateFeeRunOptions{
		DryRun:  *dryRun,
		FeeType: strings.TrimSpace(*feeType),
		AsOf:    asOf,
	})
	if report != nil {
		if encodeErr := printJSON(os.Stdout, report); encodeErr != nil {
			return encodeErr
		}
	}
	return err
}

func runReminders(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("reminders", flag.ExitOnError)
	days := fs.Int("days", cfg.Finance.ReminderWindowDays, "include fees due within this many days")
	overdueOnly := fs.Bool("overdue-only", cfg.Finance.ReminderOverdueOnly, "only include overdue fees")
	daysAhead := fs.Int("days-ahead", 0, "evaluate as of today plus this many days")
	asOfRaw := fs.String("as-of", "", "evaluation date YYYY-MM-DD (default today)")
	dryRun := fs.Bool("dry-run", false, "print the digest without sending notifications")
	exportFormat := fs.String("export", "", "write the digest as csv, pdf or xlsx")
	out := fs.String("out", "", "export file name inside EXPORT_DIR")
	_ = fs.Parse(args)

	if *days < 0 || *daysAhead < 0 {
		return errors.New("days and days-ahead must not be negative")
	}
	asOf, err := parseDate(*asOfRaw)
	if err != nil {
		return err
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = finance.AddDays(finance.Date(asOf), *daysAhead)

	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer container.Close()

	opts := container.Reminders.Options(asOf, days, overdueOnly)
	digest, err := container.Reminders.Build(ctx, opts)
	if err != nil {
		return err
	}

	if *exportFormat != "" {
		result, err := container.Exports.Save(digest, *exportFormat, *out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "export written to %s\n", result.Path)
	}
	if *dryRun {
		return printJSON(os.Stdout, digest)
	}

	result, err := container.Reminders.Dispatch(ctx, digest)
	if err != nil {
		return err
	}
	if err := printJSON(os.Stdout, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d reminder(s) failed to send", result.Failed)
	}
	return nil
}

func runPolicies(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("policies", flag.ExitOnError)
	activeOnly := fs.Bool("active", false, "only list active policies")
	_ = fs.Parse(args)

	container, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer container.Close()

	var policies []models.LateFeePolicy
	if *activeOnly {
		policies, err = container.Policies.ListActive(ctx)
	} else {
		policies, err = container.Policies.List(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, policies)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return parsed, nil
}

func dateLabel(t time.Time) string {
	if t.IsZero() {
		return "today"
	}
	return t.Format("2006-01-02")
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s? [y/N]: ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
