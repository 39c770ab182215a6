// Package main is the CLI entry point for appkiller.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/appkiller/internal/daemon"
	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/infra"
	"github.com/eliteGoblin/appkiller/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appkiller",
	Short: "Task manager - lists running apps and stops them",
	Long: `appkiller lists installed applications, shows which ones are running,
and stops them on request. Every kill is recorded in a short kill log.

A background monitor samples memory and CPU usage into a bounded trace
that 'appkiller stats' summarizes.`,
	Version:      Version,
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed applications and whether they are running",
	RunE:  runList,
}

var killCmd = &cobra.Command{
	Use:   "kill <package>",
	Short: "Stop an application or open its settings",
	Long: `Records the kill in the kill log, then either requests termination (auto mode)
or opens the application's settings (manual mode). Termination is best effort:
the application may survive or restart on its own.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the kill log, newest first",
	RunE:  runLogs,
}

var logsCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Trim the kill log to its compaction cap",
	RunE:  runLogsCompact,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize sampled memory and CPU usage",
	RunE:  runStats,
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Take one resource sample now and append it to the trace",
	RunE:  runSample,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the resource sampler until interrupted",
	Long: `Compacts the kill log, then samples memory and CPU usage every interval.
Only one monitor runs per data directory. With --detach the monitor is
started in a new session and this command returns immediately.`,
	RunE: runMonitor,
}

var modeCmd = &cobra.Command{
	Use:       "mode [auto|manual]",
	Short:     "Show or set the kill mode",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"auto", "manual"},
	RunE:      runMode,
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Show which platform capabilities are granted",
	RunE:  runPermissions,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	liveOnly      bool
	killModeFlag  string
	statsWindow   time.Duration
	statsAll      bool
	metricsAddr   string
	detach        bool
	jsonOutput    bool
	logsJSON      bool
	statsJSON     bool
	monitorOnFile bool
)

func init() {
	listCmd.Flags().BoolVar(&liveOnly, "live", false, "Only show running applications")
	killCmd.Flags().StringVar(&killModeFlag, "mode", "", "Override the stored kill mode (auto/manual)")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output the kill log as JSON")
	statsCmd.Flags().DurationVar(&statsWindow, "window", 0, "Trailing window to summarize (default from config)")
	statsCmd.Flags().BoolVar(&statsAll, "all", false, "Summarize every stored sample")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output the summary as JSON")
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	monitorCmd.Flags().BoolVar(&detach, "detach", false, "Run the monitor in the background")
	monitorCmd.Flags().BoolVar(&monitorOnFile, "log-to-file", false, "Write logs to the data directory")
	_ = monitorCmd.Flags().MarkHidden("log-to-file")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	logsCmd.AddCommand(logsCompactCmd)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.lister.List(cmd.Context())
	if err != nil {
		return err
	}

	shown := 0
	for _, r := range records {
		if liveOnly && !r.IsLive {
			continue
		}
		state := " "
		if r.IsLive {
			state = "*"
		}
		fmt.Printf("%s %-32s %s\n", state, r.DisplayName, r.PackageID)
		shown++
	}

	if shown == 0 {
		fmt.Println("No applications found.")
		return nil
	}
	fmt.Printf("\n%d applications (* = running)\n", shown)
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := a.modes.KillMode()
	if killModeFlag != "" {
		parsed, ok := domain.ParseKillMode(killModeFlag)
		if !ok {
			return fmt.Errorf("unknown kill mode %q (want auto or manual)", killModeFlag)
		}
		mode = parsed
	}

	outcome, err := a.killer.KillWithMode(cmd.Context(), args[0], mode)
	if errors.Is(err, domain.ErrSelfTarget) {
		return fmt.Errorf("refusing to kill %q: %w", args[0], err)
	}
	if err != nil {
		return err
	}

	switch {
	case outcome.Mode == domain.KillModeAuto && outcome.Requested:
		fmt.Printf("Requested termination of %s. It may still restart.\n", outcome.AppName)
	case outcome.Mode == domain.KillModeAuto:
		fmt.Printf("Could not terminate %s (no strategy succeeded).\n", outcome.AppName)
	case outcome.Requested:
		fmt.Printf("Opened settings for %s.\n", outcome.AppName)
	default:
		fmt.Printf("Could not open settings for %s; set APPKILLER_MANUAL_OPEN_COMMAND.\n", outcome.AppName)
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := a.killLog.List()
	if logsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("Kill log is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %-7s %s\n", e.Date, e.Time, e.Mode, e.AppName)
	}
	return nil
}

func runLogsCompact(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	before := len(a.killLog.List())
	a.killLog.Compact()
	fmt.Printf("Kill log: %d -> %d entries\n", before, len(a.killLog.List()))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var samples []domain.MetricSample
	label := "all samples"
	if statsAll {
		samples = a.trace.ReadAll()
	} else {
		window := statsWindow
		if window <= 0 {
			window = a.config.Sampling.HistoryWindow
		}
		samples = a.trace.ReadSince(window)
		label = "last " + window.String()
	}

	summary := usecase.SummarizeHistory(domain.NewMetricsHistoryView(samples))
	if statsJSON {
		return json.NewEncoder(os.Stdout).Encode(summary)
	}

	fmt.Printf("\n=== Resource usage (%s) ===\n", label)
	if len(samples) == 0 {
		fmt.Println("No samples. Start 'appkiller monitor' to collect them.")
		return nil
	}
	fmt.Printf("Samples: %d\n\n", len(samples))
	fmt.Printf("%-8s %8s %8s %8s %8s %8s\n", "", "latest", "mean", "min", "max", "p95")
	printSeries("memory", summary.Memory)
	printSeries("cpu", summary.CPU)
	return nil
}

func printSeries(name string, s usecase.SeriesSummary) {
	fmt.Printf("%-8s %7.1f%% %7.1f%% %7.1f%% %7.1f%% %7.1f%%\n",
		name, s.Latest, s.Mean, s.Min, s.Max, s.P95)
}

func runSample(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	sample, err := a.sampler.SampleOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("memory %.1f%%  cpu %.1f%%  (stored in %s)\n",
		sample.MemoryUsedPercent, sample.CPUUsedPercent, a.trace.Path())
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if detach {
		childArgs := []string{"monitor", "--log-to-file"}
		if metricsAddr != "" {
			childArgs = append(childArgs, "--metrics-addr", metricsAddr)
		}
		pid, err := daemon.StartDetached(childArgs...)
		if err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}
		fmt.Printf("Monitor started (pid %d)\n", pid)
		return nil
	}

	a, err := newApp(monitorOnFile)
	if err != nil {
		return err
	}
	defer a.Close()

	if pid, running := daemon.RunningPID(a.lockPath()); running {
		fmt.Printf("Monitor already running (pid %d)\n", pid)
		return nil
	}

	addr := metricsAddr
	if addr == "" {
		addr = a.config.MetricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = a.newMonitor(addr).Run(ctx)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		fmt.Println("Monitor already running")
		return nil
	}
	return err
}

func runMode(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		fmt.Println(a.modes.KillMode())
		return nil
	}

	mode, ok := domain.ParseKillMode(args[0])
	if !ok {
		return fmt.Errorf("unknown kill mode %q (want auto or manual)", args[0])
	}
	if err := a.modes.SetKillMode(mode); err != nil {
		return err
	}
	fmt.Printf("Kill mode set to %s\n", mode)
	return nil
}

func runPermissions(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	execMode := infra.DetectExecMode()
	fmt.Println("\n=== appkiller Permissions ===")
	fmt.Printf("Execution mode: %s\n", execMode.Mode)
	fmt.Printf("Data directory: %s\n\n", a.dataDir)

	checks := []struct {
		capability domain.Capability
		granted    bool
	}{
		{domain.CapabilityUsageAccess, a.capabilities.HasUsageAccess()},
		{domain.CapabilityElevatedAdmin, a.capabilities.HasElevatedAdmin()},
	}
	for _, c := range checks {
		if c.granted {
			fmt.Printf("%-16s granted\n", c.capability)
			continue
		}
		r := a.capabilities.Remediation(c.capability)
		fmt.Printf("%-16s missing: %s\n", c.capability, r.Summary)
		if r.Action != "" {
			fmt.Printf("%-16s   -> %s\n", "", r.Action)
		}
	}
	fmt.Println("=============================")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("appkiller %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
