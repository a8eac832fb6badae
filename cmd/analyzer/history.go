package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/usecase"
)

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", a.cfg.HistoryLimit, "number of analyses")
	local := fs.Bool("local-history", false, "merge locally stored results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	history := usecase.NewHistoryService(a.api, a.historyStore(ctx, *local), a.cfg.UserID, a.log).Recent(ctx, *limit)
	printHistory(os.Stdout, history)
	return nil
}

func runHealth(ctx context.Context, a *app, _ []string) error {
	report, err := a.api.Health(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, entity.UserMessage(err))
		return errUsage
	}
	fmt.Printf("status: %s\n", report.Status)
	if report.Version != "" {
		fmt.Printf("version: %s\n", report.Version)
	}
	return nil
}
