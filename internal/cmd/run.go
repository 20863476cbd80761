package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/config"
	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/healing"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/logger"
	"github.com/harrison/agentflow/internal/notify"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <requirements-file>",
		Short: "Run the agent workflow for a requirements document",
		Long: `Run every agent a requirements document needs, in dependency order.

Each agent is executed by the command given with --agent-cmd (or
agent_command in the config file). The command receives the agent name as
its last argument and a JSON request with the prompt and shared context on
stdin, and answers with a JSON result on stdout.

Progress is checkpointed under checkpoint_dir; pass the checkpoint file to
--resume to continue an interrupted run. Performance history and the error
knowledge base are updated after every run.

Configuration is loaded from .agentflow/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  agentflow run project.yaml --agent-cmd ./bin/agent
  agentflow run --resume .agentflow/checkpoints/<id>.json --agent-cmd ./bin/agent
  agentflow run project.yaml --max-parallel 5 --timeout 20m
  agentflow run project.yaml --nats-url nats://localhost:4222 --metrics-addr :9090`,
		Args: func(cmd *cobra.Command, args []string) error {
			if resume, _ := cmd.Flags().GetString("resume"); resume != "" {
				return cobra.MaximumNArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: runCommand,
	}

	cmd.Flags().String("agent-cmd", "", "Command that executes one agent")
	cmd.Flags().String("resume", "", "Resume from a checkpoint file")
	cmd.Flags().Int("max-parallel", 0, "Maximum number of agents running at once")
	cmd.Flags().Duration("timeout", 0, "Default per-agent timeout (e.g., 10m)")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("checkpoint-dir", "", "Directory for checkpoint files")
	cmd.Flags().String("nats-url", "", "Publish workflow events to this NATS server")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runFlags(cmd *cobra.Command) config.Flags {
	var f config.Flags
	if cmd.Flags().Changed("max-parallel") {
		v, _ := cmd.Flags().GetInt("max-parallel")
		f.MaxParallel = &v
	}
	if cmd.Flags().Changed("timeout") {
		v, _ := cmd.Flags().GetDuration("timeout")
		f.DefaultTimeout = &v
	}
	stringFlags := map[string]**string{
		"agent-cmd":      &f.AgentCommand,
		"log-dir":        &f.LogDir,
		"checkpoint-dir": &f.CheckpointDir,
		"nats-url":       &f.NATSURL,
		"metrics-addr":   &f.MetricsAddr,
	}
	for name, dst := range stringFlags {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			*dst = &v
		}
	}
	return f
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.MergeWithFlags(runFlags(cmd))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.AgentCommand == "" {
		return errors.New("no agent command configured: pass --agent-cmd or set agent_command")
	}
	runner, err := agent.NewCommandRunner(cfg.AgentCommand)
	if err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetString("resume")
	ctx := cmd.Context()

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.MultiLogger{consoleLog, fileLog}

	registry, names, err := discoverAgents(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	tracker, err := openTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracker.Close(context.Background()); err != nil {
			log.Warnf("Closing performance history failed: %v", err)
		}
	}()

	kb, err := healing.OpenKnowledgeBase(cfg.Knowledge.Path, cfg.Knowledge.SimilarityThreshold)
	if err != nil {
		return err
	}
	detector := healing.NewDetector(cfg.DetectorOptions(kb)...)

	notifier, closeNotifier, err := buildNotifier(cfg, fileLog, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	workflowID := uuid.NewString()
	checkpointPath := cfg.CheckpointPath(workflowID)
	if resume != "" {
		checkpointPath = resume
	}

	opts := []executor.Option{
		executor.WithConfig(cfg.ExecutorConfig(checkpointPath)),
		executor.WithDetector(detector),
		executor.WithTracker(tracker),
		executor.WithNotifier(notifier),
		executor.WithLogger(log),
		executor.WithWorkflowID(workflowID),
	}
	if names != nil {
		opts = append(opts, executor.WithRegistry(registry))
	}
	engine := executor.NewEngine(runner, opts...)

	if resume != "" {
		ok, err := engine.LoadCheckpoint(resume)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("checkpoint %s not found", resume)
		}
	} else {
		_, reqs, err := loadRequirements(args[0], names, learning.NewSelector(tracker, nil))
		if err != nil {
			return err
		}
		if err := engine.Initialize(reqs); err != nil {
			return err
		}
	}
	log.Infof("Checkpoints: %s", checkpointPath)
	log.Infof("Run log: %s", fileLog.Path())

	summary, err := executor.NewOrchestrator(engine, log, log).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("Run interrupted; resume with: agentflow run --resume %s", checkpointPath)
		}
		return err
	}
	if !summary.Success {
		return fmt.Errorf("workflow %s finished below the success threshold (%.0f%% complete)", summary.WorkflowID, summary.Progress)
	}
	return nil
}

// buildNotifier assembles the event sinks: the run log always, NATS and
// Prometheus when configured. Delivery is asynchronous so a slow sink never
// stalls the engine.
func buildNotifier(cfg *config.Config, runLog notify.Logger, log notify.Logger) (notify.Notifier, func(), error) {
	sinks := notify.Multi{notify.LogNotifier{Logger: runLog}}
	var closers []func()

	if cfg.Notify.NATSURL != "" {
		nn, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Notify.NATSSubject, log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, nn)
		closers = append(closers, func() {
			if err := nn.Close(); err != nil {
				log.Warnf("Closing NATS connection failed: %v", err)
			}
		})
	}

	if cfg.Notify.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := notify.NewMetricsNotifier(reg)
		if err != nil {
			return nil, nil, err
		}
		stop, err := serveMetrics(cfg.Notify.MetricsAddr, reg, log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, metrics)
		closers = append(closers, stop)
	}

	async := notify.NewAsync(sinks, cfg.Notify.Buffer)
	closeAll := func() {
		// Drain queued events before the sinks go away.
		async.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		if n := async.Dropped(); n > 0 {
			log.Warnf("%d workflow events were dropped", n)
		}
	}
	return async, closeAll, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log notify.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("Metrics server stopped: %v", err)
		}
	}()
	log.Infof("Serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
