package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/minimario/symlaunch/internal/config"
	"github.com/minimario/symlaunch/internal/gpu"
	"github.com/minimario/symlaunch/internal/launch"
	"github.com/minimario/symlaunch/internal/metrics"
	"github.com/minimario/symlaunch/internal/status"
	"github.com/minimario/symlaunch/pkg/models"
)

var (
	planFile   string
	waitAll    bool
	stagger    time.Duration
	logDir     string
	statusAddr string
	dryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a launch plan",
	Long: `Run starts every launch in the plan as a detached background process,
pausing for the stagger interval between consecutive starts. Each launch
gets its own GPU binding and argument list; nothing is shared between them.

By default the launcher exits once all processes are started and the
training runs continue on their own. With --wait it stays attached and
reports each run's outcome.

Example:
  symlaunch run
  symlaunch run --plan experiments/cvrp20.yaml --wait
  symlaunch run --stagger 10s --status-addr :9611`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&planFile, "plan", "", "plan file (default: built-in CVRP-20 pair)")
	runCmd.Flags().BoolVar(&waitAll, "wait", false, "wait for all launches to finish and report outcomes")
	runCmd.Flags().DurationVar(&stagger, "stagger", 0, "override the pause between launches")
	runCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for per-run output logs (default from config)")
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve status API and metrics on this address (e.g. :9611)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print resolved launches without starting anything")
}

func runPlan(cmd *cobra.Command, args []string) error {
	plan, err := resolvePlan()
	if err != nil {
		return err
	}

	if dryRun {
		return printPlan(plan)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nsignal received, launcher exiting (training runs continue)")
		cancel()
	}()

	// Device check is advisory: the trainer is the final authority and the
	// launcher stays silent on hosts without nvidia-smi
	disco := gpu.NewDiscoverer(log)
	if err := disco.ValidatePlan(ctx, plan); err != nil {
		log.Warn("GPU validation failed", map[string]interface{}{"error": err.Error()})
	}

	m := metrics.NewLauncher()
	runner := launch.NewRunner(log, resolveLogDir())
	orch := launch.NewOrchestrator(runner, log, m)

	var (
		handlesMu sync.Mutex
		handles   []*launch.Handle
	)
	snapshot := func() []*launch.Handle {
		handlesMu.Lock()
		defer handlesMu.Unlock()
		return handles
	}

	// Publish each handle as it starts so the status API sees the first
	// launch during the stagger, not after the whole plan is issued
	orch.NotifyStart(func(h *launch.Handle) {
		handlesMu.Lock()
		handles = append(handles, h)
		handlesMu.Unlock()
	})

	if addr := resolveStatusAddr(); addr != "" {
		srv := status.New(addr, log, m, snapshot)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	started, err := orch.Run(ctx, plan)
	if err != nil {
		return err
	}

	if !waitAll {
		for _, h := range started {
			log.Info("detached", map[string]interface{}{"pid": h.PID(), "log_name": h.LogName()})
		}
		return nil
	}

	statuses, err := launch.WaitAll(ctx, started)
	if err != nil {
		return err
	}
	return printOutcomes(statuses)
}

func resolvePlan() (models.Plan, error) {
	var plan models.Plan
	if planFile != "" {
		loaded, err := config.LoadPlan(planFile, cfg)
		if err != nil {
			return models.Plan{}, err
		}
		plan = loaded
	} else {
		plan = config.DefaultPlan(cfg)
	}

	if stagger > 0 {
		plan.Stagger = stagger
	}
	return plan, nil
}

func resolveLogDir() string {
	if logDir != "" {
		return logDir
	}
	return cfg.LogDir
}

func resolveStatusAddr() string {
	if statusAddr != "" {
		return statusAddr
	}
	return cfg.StatusAddr
}

func printPlan(plan models.Plan) error {
	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	fmt.Printf("Script: %s %s\n", plan.Python, plan.Script)
	fmt.Printf("Stagger: %s\n\n", plan.Stagger)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "GPU", "Log Name", "Arguments")
	for i, l := range plan.Launches {
		table.Append(
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%d", l.GPU),
			launch.LogName(l.Train),
			fmt.Sprintf("%v", launch.BuildArgs(l.Train)),
		)
	}
	return table.Render()
}

func printOutcomes(statuses []models.LaunchStatus) error {
	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]interface{}{"launches": statuses}); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "GPU", "Log Name", "PID", "State", "Exit", "Reason")
		for _, st := range statuses {
			table.Append(
				fmt.Sprintf("%d", st.Index),
				fmt.Sprintf("%d", st.GPU),
				st.LogName,
				fmt.Sprintf("%d", st.PID),
				string(st.State),
				fmt.Sprintf("%d", st.ExitCode),
				string(st.ExitReason),
			)
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	for _, st := range statuses {
		if !st.ExitReason.IsSuccess() {
			return fmt.Errorf("launch %d (%s) did not succeed: %s", st.Index, st.LogName, st.ExitReason)
		}
	}
	return nil
}
