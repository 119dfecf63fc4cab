// Command utils runs one-off operator tasks against the booking store:
//
//	utils sweep                        run one expiry sweep and print the report
//	utils correct -id 42 -note "..."   correct a paid booking cancelled by expiry to COMPLETED
//	utils token                        fetch a service token with the configured client credentials
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"booking-engine/internal/infrastructure/config"
	"booking-engine/internal/infrastructure/container"
	"booking-engine/internal/infrastructure/oauth"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLoggerWithOptions(logger.Options{Level: cfg.LogLevel, Development: true, Service: "booking-utils"})
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "sweep":
		err = runSweep(ctx, cfg, log)
	case "correct":
		err = runCorrect(ctx, cfg, log, os.Args[2:])
	case "token":
		err = runToken(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: utils sweep | correct -id <booking id> [-note <text>] [-actor <name>] | token")
}

func runSweep(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	app, err := container.New(ctx, cfg, log, metrics.NewNopMetrics())
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	report, err := app.Expiry.RunSweep(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runCorrect(ctx context.Context, cfg *config.Config, log logger.Logger, args []string) error {
	fs := flag.NewFlagSet("correct", flag.ContinueOnError)
	id := fs.Uint("id", 0, "booking id")
	note := fs.String("note", "", "operator note recorded in the audit trail")
	actor := fs.String("actor", "operator-cli", "actor recorded in the audit trail")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("-id is required")
	}

	app, err := container.New(ctx, cfg, log, metrics.NewNopMetrics())
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	b, err := app.Expiry.CorrectCancelledPaidBookingToCompleted(ctx, *id, *actor, *note)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"id":        b.ID,
		"number":    b.Number,
		"status":    b.Status(),
		"actualEnd": b.ActualEnd(),
		"version":   b.Version,
	})
}

func runToken(ctx context.Context, cfg *config.Config) error {
	ts := oauth.ServiceCredentials{
		StaticToken:  cfg.ServiceToken,
		ClientID:     cfg.ServiceClientID,
		ClientSecret: cfg.ServiceClientSecret,
		TokenURL:     cfg.ServiceTokenURL,
	}.TokenSource(ctx)
	if ts == nil {
		return fmt.Errorf("no service credentials configured")
	}
	token, err := ts.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	return printJSON(token)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
