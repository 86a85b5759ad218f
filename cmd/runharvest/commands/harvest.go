package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"runharvest/internal/chrono"
	"runharvest/internal/config"
	"runharvest/internal/credential"
	"runharvest/internal/dataset"
	"runharvest/internal/extract"
	"runharvest/internal/harvest"
	"runharvest/internal/normalize"
	"runharvest/internal/pagedriver/chromedriver"
	"runharvest/internal/telemetry"
	"runharvest/lib/serviceutil"
	libtelemetry "runharvest/lib/telemetry"
	"runharvest/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	startMonth  int
	endMonth    int
	incremental bool
	only        []string
)

func init() {
	flags := rootCmd.Flags()
	flags.IntVar(&startMonth, "start-month", 1, "The first month to harvest (1-12).")
	flags.IntVar(&endMonth, "end-month", 0, "The last month to harvest (1-12), defaults to the current month.")
	flags.BoolVar(&incremental, "incremental", false, "Merge into the stored dataset, replacing only the harvested months.")
	flags.StringSliceVar(&only, "only", nil, "Harvest only these runners, by name. Implies --incremental.")
}

func monthFlag(cmd *cobra.Command, name string, value int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// selectRunners narrows the roster to the names given with --only.
func selectRunners(roster []extract.User, names []string) ([]extract.User, error) {
	if len(names) == 0 {
		return roster, nil
	}
	byName := make(map[string]extract.User, len(roster))
	candidates := make([]string, len(roster))
	for i, u := range roster {
		byName[u.Name] = u
		candidates[i] = u.Name
	}

	var selected []extract.User
	var errs []error
	for _, name := range names {
		match, ok := textutil.MatchName(name, candidates)
		if !ok {
			err := fmt.Errorf("unknown runner %q", name)
			if suggestions := textutil.Suggest(name, candidates, 0.75); len(suggestions) > 0 {
				err = fmt.Errorf("%w, did you mean %s?", err, strings.Join(suggestions, " or "))
			}
			errs = append(errs, err)
			continue
		}
		selected = append(selected, byName[match])
	}
	return selected, errors.Join(errs...)
}

func runHarvest(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig()
	tel := telemetry.SlogAPI{}
	now := time.Now()

	months, includedPrevious, err := chrono.Range(
		monthFlag(cmd, "start-month", startMonth),
		monthFlag(cmd, "end-month", endMonth),
		now,
	)
	if err != nil {
		serviceutil.Fatal("invalid month range", err)
	}
	if includedPrevious {
		slog.Info("including the previous month to pick up late entries", "month", normalize.MonthAbbrev(months[0]))
	}

	roster, err := selectRunners(cfg.Roster(), only)
	if err != nil {
		serviceutil.Fatal("invalid --only", err)
	}
	merging := incremental
	if len(only) > 0 && !merging {
		slog.Info("--only given, merging into the stored dataset")
		merging = true
	}

	year := cfg.Year
	if year == 0 {
		year = now.Year()
	}
	tokens := extract.Tokens(months, year)

	raw, source := fetchCookie(ctx, cfg, tel)
	slog.Info("using session cookie", "source", source, "value", raw.Redacted())
	cookie := credential.Adapt(raw, cfg.Credential.CookieName)

	cache, closeCache := openDetailCache(cfg, tel)
	defer closeCache()

	extractor, err := extract.New(cfg.Extractor(), cache, tel)
	if err != nil {
		serviceutil.Fatal("failed to create extractor", err)
	}
	browser := chromedriver.NewBrowser(chromedriver.Options{
		Headless:        *cfg.Headless,
		ExecPath:        cfg.ChromePath,
		UserAgent:       cfg.UserAgent,
		NavigateTimeout: cfg.NavigateTimeout(),
	})
	orchestrator := harvest.New(browser, extractor, harvest.Options{
		Concurrency: cfg.Concurrency,
		OnProgress:  printProgress,
	}, tel)

	libtelemetry.InstrumentPerfStats(ctx, 15*time.Second)

	names := make([]string, len(tokens))
	for i, t := range tokens {
		names[i] = t.Abbrev()
	}
	slog.Info(
		"harvesting",
		"runners", len(roster),
		"months", strings.Join(names, ","),
		"concurrency", cfg.Concurrency,
		"incremental", merging,
	)
	result := orchestrator.Harvest(ctx, roster, tokens, cookie)
	if err := ctx.Err(); err != nil || result.Interrupted() {
		serviceutil.Fatal("harvest interrupted, the stored dataset was not modified", err)
	}

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var prior *dataset.Dataset
	if merging {
		prior = dataset.LoadPrior(ctx, store, tel)
	}
	fresh := result.Fresh(merging && *cfg.PreserveFailedUsers)
	merged := dataset.Merge(prior, fresh, dataset.NewMonthSet(months...), merging, time.Now(), tel)

	err = store.Save(ctx, merged)
	if err != nil {
		serviceutil.Fatal("failed to save dataset", err)
	}

	printResult(result, merged)
	describeOutput(cfg)

	if !merging && chrono.IsPartial(months, now) {
		fmt.Println("Only part of the year was harvested and the stored dataset was overwritten, pass --incremental to keep the other months.")
	}
}

func printProgress(p harvest.Progress) {
	status := "ok"
	if p.Failed {
		status = "FAILED"
	}
	slog.Info(
		"runner done",
		"progress", fmt.Sprintf("%d/%d", p.Completed, p.Total),
		"runner", p.Name,
		"activities", p.Activities,
		"status", status,
		"elapsed", p.Elapsed.Round(time.Millisecond).String(),
	)
}

func printResult(result harvest.Result, merged dataset.Dataset) {
	t := newTable()
	t.AppendHeader(table.Row{"Runner", "Harvested", "Stored", "Miles", "Status", "Elapsed"})
	for _, u := range result.Users {
		status := "ok"
		if u.Failed {
			status = "failed"
			if u.Err != nil {
				status = "failed: " + u.Err.Error()
			}
		}
		runner := merged.Runners[u.User.Name]
		t.AppendRow(table.Row{
			u.User.Name,
			len(u.Activities),
			runner.Stats.TotalActivities,
			fmt.Sprintf("%.2f", runner.Stats.TotalDistance),
			status,
			u.Elapsed.Round(time.Second).String(),
		})
	}
	t.AppendFooter(table.Row{
		"Total",
		result.TotalActivities(),
		merged.Metadata.TotalActivities,
		"",
		fmt.Sprintf("%d failed", len(result.Failed())),
		result.Elapsed.Round(time.Second).String(),
	})
	t.SortBy([]table.SortBy{{Name: "Runner", Mode: table.Asc}})
	t.Render()
}

func describeOutput(cfg config.Config) {
	switch cfg.Output.Driver {
	case config.OutputJSON:
		fmt.Printf("Wrote %s\n", cfg.Output.Path)
	default:
		fmt.Printf("Saved to the %s store\n", cfg.Output.Driver)
	}
}
