// score_csv scores a grants/contracts CSV export against a profile file
// without touching the database or the cache. Useful for tuning weights
// and inspecting reasoning output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/david/grant-matcher/internal/ingest"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
)

func main() {
	csvPath := flag.String("csv", "", "Path to the opportunity CSV export")
	profilePath := flag.String("profile", "", "Path to the requester profile YAML")
	strategy := flag.String("strategy", string(match.StrategyBalanced), "Weight strategy: balanced or profile-heavy")
	minScore := flag.Int("min-score", match.DefaultMinScore, "Only print opportunities at or above this score")
	showReasons := flag.Bool("reasons", false, "Print the reasoning summary per opportunity")
	flag.Parse()

	if *csvPath == "" || *profilePath == "" {
		fmt.Fprintln(os.Stderr, "usage: score_csv -csv export.csv -profile profile.yaml")
		os.Exit(2)
	}

	profileRaw, err := os.ReadFile(*profilePath)
	if err != nil {
		fatal("read profile: %v", err)
	}
	var profile models.RequesterProfile
	if err := yaml.Unmarshal(profileRaw, &profile); err != nil {
		fatal("parse profile: %v", err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fatal("open csv: %v", err)
	}
	defer f.Close()

	opps, err := ingest.LoadCSV(f)
	if err != nil {
		fatal("load csv: %v", err)
	}

	engine := match.NewEngine(match.WithStrategy(match.Strategy(*strategy)))
	scored, err := engine.Match(context.Background(), opps, &profile)
	if err != nil {
		fatal("scoring: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Score", "Confidence", "Title", "Agency", "Deadline"})
	printed := 0
	for _, s := range scored {
		if s.MatchScore < *minScore {
			continue
		}
		deadline := "rolling"
		if !s.IsRolling {
			deadline = ""
			if s.CloseAt != nil {
				deadline = s.CloseAt.Format("2006-01-02")
			}
		}
		t.AppendRow(table.Row{
			s.MatchScore,
			s.Reasoning.ConfidenceScore,
			ingest.TruncateText(s.Title, 60),
			ingest.TruncateText(s.AgencyName, 30),
			deadline,
		})
		printed++
	}
	t.Render()
	fmt.Printf("\n%d of %d opportunities at or above %d\n", printed, len(scored), *minScore)

	if *showReasons {
		for _, s := range scored {
			if s.MatchScore < *minScore {
				continue
			}
			fmt.Printf("\n%s\n", s.Reasoning.Summary)
			for _, r := range s.Reasoning.SpecificReasons {
				fmt.Printf("  - %s\n", r)
			}
		}
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
