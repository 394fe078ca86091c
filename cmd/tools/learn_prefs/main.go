// learn_prefs recomputes a user's learned preferences from their action
// history and prints the mined pattern tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/learn"
	"github.com/david/grant-matcher/internal/logger"
	"github.com/david/grant-matcher/internal/models"
)

func main() {
	userIDFlag := flag.String("user", "", "User ID to recompute preferences for")
	dryRun := flag.Bool("dry-run", false, "Compute and print without persisting")
	flag.Parse()

	userID, err := uuid.Parse(*userIDFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: learn_prefs -user <uuid> [-dry-run]")
		os.Exit(2)
	}

	zlog, err := logger.New(os.Getenv("LOG_LEVEL"), "console")
	if err != nil {
		fatal("build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx)
	if err != nil {
		fatal("connect database: %v", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	if *dryRun {
		events, err := store.ListActionEvents(ctx, userID.String())
		if err != nil {
			fatal("load action history: %v", err)
		}
		printPrefs(learn.Learn(events, time.Now().UTC()), len(events))
		return
	}

	runner := learn.NewRunner(store, store, zlog)
	prefs, err := runner.Recompute(ctx, userID.String())
	if err != nil {
		fatal("recompute: %v", err)
	}
	events, _ := store.ListActionEvents(ctx, userID.String())
	printPrefs(prefs, len(events))
}

func printPrefs(prefs models.LearnedPreferences, eventCount int) {
	fmt.Printf("Analyzed %d events: %d saved, %d passed, %d applied\n\n",
		eventCount,
		len(prefs.SavedOpportunityIDs),
		len(prefs.PassedOpportunityIDs),
		len(prefs.AppliedOpportunityIDs))

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Pattern", "Save", "Pass"})
	t.AppendRow(table.Row{"Keywords", join(prefs.SavePatterns.Keywords), join(prefs.PassPatterns.Keywords)})
	t.AppendRow(table.Row{"Agencies", join(prefs.SavePatterns.Agencies), join(prefs.PassPatterns.Agencies)})
	t.AppendRow(table.Row{"Amounts", join(prefs.SavePatterns.Amounts), join(prefs.PassPatterns.Amounts)})
	t.Render()
}

func join(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
