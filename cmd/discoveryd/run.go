package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/appconfig"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/dedup"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/extract"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/orchestrator"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/planner"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/registry"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/report"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/store"
	"github.com/joho/godotenv"
)

// runCommand implements the `run <query>` subcommand and returns the
// process exit code, assembling the bootstrap sequence the way
// cmd/tarsy/main.go wires its services: registry, lens, planner,
// orchestrator, extractor, dedup/merge/finalize, store.
func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	mode := fs.String("mode", "discover-many", "resolve-one|discover-many")
	budget := fs.Float64("budget", -1, "budget in USD; omit for unlimited")
	lensFlag := fs.String("lens", "", "lens id override")
	persist := fs.Bool("persist", false, "write final entities to the store")
	configDir := fs.String("config-dir", envOr("CONFIG_DIR", "config"), "path to configuration directory")
	fixturesDir := fs.String("fixtures-dir", envOr("FIXTURES_DIR", "fixtures"), "path to connector fixture files")

	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "run requires exactly one <query> argument")
		return exitInvalidInput
	}
	query := fs.Arg(0)

	reqMode, ok := parseMode(*mode)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid --mode %q\n", *mode)
		return exitInvalidInput
	}

	initLogging()
	_ = godotenv.Load(*configDir + "/.env")

	app, err := appconfig.Load(*configDir + "/app.yaml")
	if err != nil {
		slog.Error("loading app config", "error", err)
		return exitInvalidInput
	}

	specs, err := app.ConnectorSpecs()
	if err != nil {
		slog.Error("building connector registry", "error", err)
		return exitInvalidInput
	}
	reg := registry.NewRegistry(specs)

	lensID := resolveLensID(*lensFlag, app.DefaultLens)
	loader := lens.NewLoader(app.LensDir, reg.Names())
	contract, err := loader.Load(lensID)
	if err != nil {
		slog.Error("loading lens", "lens_id", lensID, "error", err)
		return exitLensValidation
	}

	connectors, err := loadConnectors(*fixturesDir, app.ConnectorNames())
	if err != nil {
		slog.Error("loading connector fixtures", "error", err)
		return exitInvalidInput
	}
	adapter := registry.NewAdapter(reg, connectors)

	structuredExtract := buildStructuredExtract(app)
	pipeline := extract.New(structuredExtract, app.StrictFieldValidation)

	orch := orchestrator.New(adapter, reg, pipeline, orchestrator.DefaultConfig())

	var budgetUSD *float64
	if *budget >= 0 {
		budgetUSD = budget
	}
	req := model.Request{Query: query, Mode: reqMode, BudgetUSD: budgetUSD, LensID: lensID, Persist: *persist}

	execCtx := model.NewExecutionContext(req, contract.Hash, budgetOrUnlimited(budgetUSD))

	plan, err := planner.New(reg).Plan(req, contract)
	if err != nil {
		slog.Error("planning run", "error", err)
		return exitInvalidInput
	}

	ctx := context.Background()
	orchReport := orch.Run(ctx, execCtx, plan)

	if orchReport.Cancelled {
		fmt.Println("cancelled")
		return exitInvalidInput
	}

	candidates := orchReport.Candidates
	for i := range candidates {
		if err := pipeline.ApplyLens(ctx, contract, &candidates[i]); err != nil {
			slog.Warn("applying lens to candidate", "source", candidates[i].Source, "error", err)
		}
	}

	merger := dedup.New(reg)
	entities := merger.Run(candidates, time.Now())

	var persistenceOutcomes []report.PersistenceOutcome
	persistenceFailed := false
	if *persist {
		persistenceOutcomes, persistenceFailed = persistRun(ctx, app.RawDataDir, orchReport.RawIngestions, candidates, pipeline.Failures(), entities)
	}

	rep := report.Build(req, orchReport, entities, persistenceOutcomes)
	fmt.Print(rep.Format())

	if persistenceFailed {
		return exitPersistence
	}
	if len(plan.Invocations) > 0 && allConnectorsFailed(orchReport) {
		return exitAllConnectorsFailed
	}
	return exitSuccess
}

func parseMode(s string) (model.Mode, bool) {
	switch s {
	case "resolve-one":
		return model.ResolveOne, true
	case "discover-many":
		return model.DiscoverMany, true
	default:
		return "", false
	}
}

// resolveLensID applies the documented precedence: CLI flag > env LENS_ID
// > config/app.yaml:default_lens > hardcoded fallback.
func resolveLensID(flagValue, configDefault string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("LENS_ID"); env != "" {
		return env
	}
	if configDefault != "" {
		return configDefault
	}
	return "generic"
}

// budgetOrUnlimited maps an unspecified CLI budget to a practically
// unlimited runtime spend tracker: the planner already drops every paid
// connector when the user passes an explicit 0, so only the "no budget
// given" case needs a value large enough to never trip the orchestrator's
// early-stop-on-overspend check.
func budgetOrUnlimited(budget *float64) float64 {
	if budget == nil {
		return math.MaxFloat64
	}
	return *budget
}

func buildStructuredExtract(app *appconfig.App) extract.StructuredExtract {
	if app.StructuredExtract.BaseURL == "" {
		return &extract.MockStructuredExtract{Responses: map[string]map[string]any{}}
	}
	timeout := time.Duration(app.StructuredExtract.TimeoutSeconds) * time.Second
	return extract.NewHTTPStructuredExtract(extract.HTTPStructuredExtractConfig{
		BaseURL:   app.StructuredExtract.BaseURL,
		APIKeyEnv: app.StructuredExtract.APIKeyEnv,
		Model:     app.StructuredExtract.Model,
		Timeout:   timeout,
	})
}

func allConnectorsFailed(r orchestrator.Report) bool {
	if len(r.Metrics) == 0 {
		return false
	}
	for _, m := range r.Metrics {
		if m.Status == "ok" {
			return false
		}
	}
	return true
}

// persistRun opens the store once and writes the full audit trail for a
// run: raw ingestions (offloading oversized payloads via rawfile),
// post-Phase-B extracted entities, recorded extraction failures, and
// finally the merged entities themselves. DB connectivity failures are
// fatal to the run (exit code exitPersistence); a unique-slug conflict on
// an entity is not an error since Upsert handles it.
func persistRun(
	ctx context.Context,
	rawDataDir string,
	rawIngestions []model.RawIngestion,
	candidates []model.ExtractedEntity,
	failures []extract.FailedRule,
	entities []model.Entity,
) ([]report.PersistenceOutcome, bool) {
	cfg, err := store.LoadConfigFromEnv()
	if err != nil {
		slog.Error("loading store config", "error", err)
		return nil, true
	}
	client, err := store.NewClient(ctx, cfg)
	if err != nil {
		slog.Error("connecting to store", "error", err)
		return nil, true
	}
	defer client.Close()

	if err := persistAuditTrail(ctx, client, rawDataDir, rawIngestions, candidates, failures); err != nil {
		slog.Error("persisting audit trail", "error", err)
		return nil, true
	}

	outcomes := make([]report.PersistenceOutcome, 0, len(entities))
	failed := false
	for _, e := range entities {
		if err := client.Entities.Upsert(ctx, e); err != nil {
			outcomes = append(outcomes, report.PersistenceOutcome{Slug: e.Slug, Error: err.Error()})
			failed = true
			continue
		}
		outcomes = append(outcomes, report.PersistenceOutcome{Slug: e.Slug})
	}
	return outcomes, failed
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
