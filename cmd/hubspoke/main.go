package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hubspoke-planner/internal/config"
	"hubspoke-planner/internal/engine"
	"hubspoke-planner/internal/inventory"
	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/parser"
	"hubspoke-planner/internal/planner"
	"hubspoke-planner/internal/realize"
	"hubspoke-planner/internal/routing"
	"hubspoke-planner/internal/topology"
)

var (
	configFile  string
	logLevel    string
	logFile     string
	wanBase     string
	lanBase     string
	maxBranches int
	branches    int
	realizer    string
	outFile     string
	format      string
	verify      bool
	dbDSN       string
	runID       string
	nodeID      string
	routesFile  string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hubspoke",
		Short: "Hub-and-spoke addressing and static route planner",
		Long: `hubspoke allocates the WAN and LAN blocks of a hub-and-spoke network,
	derives the full static route mesh between branches and realizes the
	topology as a shell script or as Linux network namespaces.`,
		SilenceUsage: true,
		RunE:         run,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	pf.StringVar(&wanBase, "wan-base", planner.DefaultWANBase, "Network the /29 WAN blocks are carved from")
	pf.StringVar(&lanBase, "lan-base", planner.DefaultLANBase, "Network the /24 LAN blocks are carved from")
	pf.IntVar(&maxBranches, "max-branches", planner.DefaultMaxBranches, "Largest accepted branch count")
	pf.IntVarP(&branches, "branches", "n", planner.DefaultMaxBranches, "Number of branches")
	pf.StringVar(&dbDSN, "db", "", "MariaDB connection string for plan export")

	rootCmd.Flags().StringVar(&realizer, "realizer", config.RealizerScript, "Realizer: 'none', 'script' or 'netns'")
	rootCmd.Flags().StringVar(&outFile, "out", "", "Output file for the script or report (default: stdout)")
	rootCmd.Flags().StringVar(&format, "format", "text", "Report format: 'text', 'json' or 'csv'")
	rootCmd.Flags().BoolVar(&verify, "verify", true, "Prove reachability between all hosts before realization")
	rootCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier for plan export (default: derived from time)")

	rootCmd.AddCommand(newVerifyCmd(), newTeardownCmd())
	return rootCmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a node's installed routes with the plan",
		Long: `verify reads "ip route show" output captured on one router and reports
	routes the plan expects but are missing, and routes nobody planned.`,
		SilenceUsage: true,
		RunE:         runVerify,
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "Router the dump was taken on, e.g. rm or r0 (required)")
	cmd.Flags().StringVar(&routesFile, "routes", "", "File holding the route dump (required)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Compare against the routes exported under this run id (requires --db)")
	cmd.MarkFlagRequired("node")
	cmd.MarkFlagRequired("routes")
	return cmd
}

func newTeardownCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "teardown",
		Short:        "Delete the network namespaces of a realized topology",
		SilenceUsage: true,
		RunE:         runTeardown,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file with the flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("wan-base") {
		cfg.WANBase = wanBase
	}
	if flags.Changed("lan-base") {
		cfg.LANBase = lanBase
	}
	if flags.Changed("max-branches") {
		cfg.MaxBranches = maxBranches
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("realizer") {
		cfg.Realizer = realizer
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		// the logger is not configured yet
		slog.SetDefault(setupLogger(logLevel, logFile))
		slog.Error("Failed to load configuration", "path", configFile, "error", err)
		return config.Config{}, err
	}
	slog.SetDefault(setupLogger(cfg.LogLevel, logFile))
	return cfg, nil
}

type planned struct {
	plan   *model.Plan
	topo   *model.Topology
	routes *model.RouteSet
}

func buildPlan(cfg config.Config, n int) (*planned, error) {
	p, err := planner.New(cfg.Planner())
	if err != nil {
		return nil, fmt.Errorf("invalid address configuration: %w", err)
	}
	plan, err := p.Plan(n)
	if err != nil {
		return nil, err
	}
	topo, err := topology.Describe(plan)
	if err != nil {
		return nil, err
	}
	if err := topology.Validate(topo); err != nil {
		return nil, err
	}
	routes, err := routing.Generate(plan)
	if err != nil {
		return nil, err
	}
	return &planned{plan: plan, topo: topo, routes: routes}, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := checkFormat(format); err != nil {
		slog.Error("Invalid report format", "error", err)
		return err
	}
	ctx := cmd.Context()

	slog.Info("Planning hub-and-spoke network", "branches", branches, "max_branches", cfg.MaxBranches, "realizer", cfg.Realizer)
	startTime := time.Now()

	res, err := buildPlan(cfg, branches)
	if err != nil {
		var capErr *model.CapacityError
		if errors.As(err, &capErr) {
			slog.Error("Branch count rejected", "requested", capErr.Requested, "max", capErr.Max)
		} else {
			slog.Error("Planning failed", "error", err)
		}
		return err
	}
	slog.Info("Plan generated", "nodes", len(res.topo.Nodes), "links", len(res.topo.Links), "routes", len(res.routes.Entries))

	if verify {
		fwd, err := engine.NewForwarder(res.topo, res.routes)
		if err != nil {
			slog.Error("Failed to build forwarding tables", "error", err)
			return err
		}
		if err := fwd.VerifyReachability(); err != nil {
			slog.Error("Reachability check failed", "error", err)
			return err
		}
		slog.Info("Reachability verified")
	}

	out := cmd.OutOrStdout()
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			slog.Error("Failed to create output file", "path", outFile, "error", err)
			return err
		}
		defer f.Close()
		out = f
	}

	// a script on stdout must stay executable, so the report is only
	// printed next to it when the script goes to a file
	report := newPlanReport(res.plan, res.topo, res.routes)
	switch {
	case cfg.Realizer != config.RealizerScript:
		err = writeReport(out, format, report)
	case outFile != "":
		err = writeReport(cmd.OutOrStdout(), format, report)
	}
	if err != nil {
		slog.Error("Failed to write report", "format", format, "error", err)
		return err
	}

	if dbDSN != "" {
		if err := exportPlan(ctx, res); err != nil {
			slog.Error("Failed to export plan", "error", err)
			return err
		}
	}

	if err := realizeTopology(ctx, cfg.Realizer, out, res); err != nil {
		return err
	}

	slog.Info("Done", "duration", time.Since(startTime))
	return nil
}

func exportPlan(ctx context.Context, res *planned) error {
	id := runID
	if id == "" {
		id = fmt.Sprintf("n%d-%s", len(res.plan.Branches), time.Now().UTC().Format("20060102T150405"))
	}
	store, err := inventory.NewMariaDBStore(dbDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.SavePlan(ctx, id, res.plan, res.topo, res.routes); err != nil {
		return err
	}
	slog.Info("Plan exported", "run_id", id)
	return nil
}

func realizeTopology(ctx context.Context, kind string, out io.Writer, res *planned) error {
	var env realize.Environment
	switch kind {
	case config.RealizerNone:
		return nil
	case config.RealizerScript:
		env = realize.NewScriptEnvironment(out)
	case config.RealizerNetns:
		ns, err := realize.NewNetnsEnvironment(slog.Default())
		if err != nil {
			slog.Error("Failed to create namespace environment", "error", err)
			return err
		}
		env = ns
	default:
		return fmt.Errorf("unknown realizer: %s", kind)
	}
	return realize.NewRealizer(env, slog.Default()).Realize(ctx, res.topo, res.routes)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	res, err := buildPlan(cfg, branches)
	if err != nil {
		slog.Error("Planning failed", "error", err)
		return err
	}
	node, ok := res.topo.Node(nodeID)
	if !ok || !node.IsRouter() {
		err := fmt.Errorf("%q is not a router of a %d-branch plan", nodeID, branches)
		slog.Error("Invalid node", "error", err)
		return err
	}

	expected := res.routes.Owned(nodeID)
	if runID != "" {
		if dbDSN == "" {
			return fmt.Errorf("--run-id requires --db")
		}
		expected, err = loadExported(ctx, runID, nodeID)
		if err != nil {
			slog.Error("Failed to load exported routes", "run_id", runID, "error", err)
			return err
		}
	}

	f, err := os.Open(routesFile)
	if err != nil {
		slog.Error("Failed to open route dump", "path", routesFile, "error", err)
		return err
	}
	defer f.Close()
	actual, err := parser.ParseIPRoute(f, nodeID)
	if err != nil {
		slog.Error("Failed to parse route dump", "path", routesFile, "error", err)
		return err
	}

	missing, extra := parser.Diff(expected, actual)
	w := cmd.OutOrStdout()
	for _, r := range missing {
		fmt.Fprintf(w, "missing %s via %s\n", r.Destination, r.NextHop)
	}
	for _, r := range extra {
		fmt.Fprintf(w, "extra   %s via %s\n", r.Destination, r.NextHop)
	}
	if len(missing) > 0 || len(extra) > 0 {
		slog.Warn("Route table drift", "node", nodeID, "missing", len(missing), "extra", len(extra))
		return fmt.Errorf("%s: %d missing and %d unexpected routes", nodeID, len(missing), len(extra))
	}
	slog.Info("Route table matches plan", "node", nodeID, "routes", len(expected))
	return nil
}

func loadExported(ctx context.Context, id, owner string) ([]model.RouteEntry, error) {
	store, err := inventory.NewMariaDBStore(dbDSN)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadRoutes(ctx, id, owner)
}

func runTeardown(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	res, err := buildPlan(cfg, branches)
	if err != nil {
		slog.Error("Planning failed", "error", err)
		return err
	}
	env, err := realize.NewNetnsEnvironment(slog.Default())
	if err != nil {
		slog.Error("Failed to create namespace environment", "error", err)
		return err
	}
	if err := env.Remove(ctx, res.topo); err != nil {
		slog.Error("Teardown incomplete", "error", err)
		return err
	}
	slog.Info("Topology removed", "nodes", len(res.topo.Nodes))
	return nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// falls back to stderr, nothing to log to yet
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}
