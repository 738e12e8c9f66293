package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/muselab-d2x/releasegate/internal/config"
	"github.com/muselab-d2x/releasegate/internal/daemon"
	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
	"github.com/muselab-d2x/releasegate/internal/secrets"
	"github.com/muselab-d2x/releasegate/internal/services"
	"github.com/muselab-d2x/releasegate/internal/source"
	"github.com/muselab-d2x/releasegate/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"releasegate.yml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Run struct {
		Trigger string `short:"t" help:"What started this run" enum:"change,manual,schedule,upstream" default:"manual"`
	} `cmd:"" help:"Execute one validation run and exit with its verdict"`

	Serve struct {
	} `cmd:"" help:"Run as a daemon: scheduled and upstream-triggered validation runs"`

	Plan struct {
	} `cmd:"" help:"Print the compiled stages and required credentials without running anything"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write a starter configuration file"`
}

func main() {
	kctx := kong.Parse(&CLI, kong.Vars{"version": version.Version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, logger)

	var err error
	switch kctx.Command() {
	case "run":
		err = runOnce(pipeline.Trigger(CLI.Run.Trigger))
	case "serve":
		err = runServe()
	case "plan":
		err = runPlan()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	}

	if err != nil {
		adapter.Report(err)
		os.Exit(adapter.ExitCodeFor(err))
	}
}

func runOnce(trigger pipeline.Trigger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	gate, closer, err := services.BuildGate(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() {
			if err := closer(); err != nil {
				slog.Warn("closing gate", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := services.NewRunService(cfg, gate, nil)
	res, err := svc.Execute(ctx, trigger, nil)
	if err != nil {
		return err
	}

	printResult(res)

	switch res.Status {
	case runner.StatusSucceeded:
		return nil
	case runner.StatusCancelled:
		return errors.Cancelled(ctx.Err())
	default:
		if res.Flow.Err != nil {
			return res.Flow.Err
		}
		if res.Artifact.Err != nil {
			return res.Artifact.Err
		}
		return errors.InternalError("run failed without a recorded cause", nil)
	}
}

func runServe() error {
	d, err := daemon.New(CLI.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// runPlan prints the compiled pipeline: stages, steps, and the credential
// names each step requires. Values are never shown.
func runPlan() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	store, err := secrets.FromEnvironment(cfg.EnvSpecs(), nil)
	if err != nil {
		return err
	}

	spec := cfg.CompileSpec("plan", pipeline.TriggerManual, source.Info{})
	printStagePlan(spec.ArtifactStage, store)
	printStagePlan(spec.FlowChain.Stage(), store)
	fmt.Printf("gate token: %s\n", spec.GateToken)
	return nil
}

func printStagePlan(stage runner.Stage, store *secrets.Store) {
	fmt.Printf("stage %s:\n", stage.Name)
	for _, step := range stage.Steps {
		fmt.Printf("  %s: %s %s\n", step.Name, step.Command, strings.Join(step.Args, " "))
		for _, cred := range step.Credentials {
			fmt.Printf("    needs %s (%s)\n", cred, credentialState(store, stage.Name, cred))
		}
	}
}

func credentialState(store *secrets.Store, stage, name string) string {
	for _, n := range store.Names(stage) {
		if n == name {
			return "present"
		}
	}
	return "missing"
}

func printResult(res pipeline.Result) {
	fmt.Printf("run %s (%s): %s\n", res.RunID, res.Trigger, res.Status)
	for _, stage := range []runner.StageResult{res.Artifact, res.Flow} {
		fmt.Printf("  %s: %s (%s)\n", stage.Stage, stage.Status, stage.Duration.Round(time.Millisecond))
		if step, ok := stage.FailedStep(); ok {
			fmt.Printf("    failed step: %s\n", step.Name)
			if step.Output != "" {
				fmt.Print(indent(step.Output))
			}
		}
	}
	if res.Bundle != nil {
		fmt.Printf("  artifacts captured: bundle %s\n", res.Bundle.ID)
	}
	if res.CaptureErr != nil {
		fmt.Printf("  artifact capture failed: %v\n", res.CaptureErr)
	}
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString("    | ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
