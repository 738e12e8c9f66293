// Package config loads, defaults, and validates the release-validation
// pipeline definition.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/muselab-d2x/releasegate/internal/errors"
)

// Config is the full pipeline definition.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Build    BuildConfig    `yaml:"build"`
	Flows    FlowsConfig    `yaml:"flows"`
	Secrets  []SecretConfig `yaml:"secrets"`
	Gate     GateConfig     `yaml:"gate"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Capture  CaptureConfig  `yaml:"capture"`
	Daemon   DaemonConfig   `yaml:"daemon"`
}

// ProjectConfig identifies the project under validation.
type ProjectConfig struct {
	Name     string `yaml:"name"`
	RepoPath string `yaml:"repo_path"` // source checkout root
}

// StepConfig is one opaque external command in a stage.
type StepConfig struct {
	Name        string            `yaml:"name"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Credentials []string          `yaml:"credentials,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty"` // Go duration string
}

// BuildConfig describes the Artifact Verification stage.
type BuildConfig struct {
	OutputDir        string       `yaml:"output_dir"`
	Steps            []StepConfig `yaml:"steps,omitempty"` // empty = defaults
	CaptureOnFailure *bool        `yaml:"capture_on_failure,omitempty"`
}

// FlowsConfig describes the Release Flow Verification stage: sequential
// sub-flows run against a live target environment through the platform CLI.
type FlowsConfig struct {
	Command     string   `yaml:"command"`      // platform CLI executable
	TargetEnv   string   `yaml:"target_env"`   // environment identifier flows run against
	Names       []string `yaml:"names"`        // sub-flow order, e.g. feature, beta, master, release
	Teardown    bool     `yaml:"teardown"`     // delete the target environment after the final flow
	Credentials []string `yaml:"credentials"`  // credential names injected into every flow step
	AuthArgs    []string `yaml:"auth_args"`    // arguments of the non-interactive auth call
}

// SecretConfig maps one named credential to the environment variable it is
// sourced from and the stages it is scoped to.
type SecretConfig struct {
	Name   string   `yaml:"name"`
	Env    string   `yaml:"env"`
	Stages []string `yaml:"stages,omitempty"` // empty = all stages
}

// GateConfig controls the concurrency gate.
type GateConfig struct {
	Token          string `yaml:"token"`
	MaxHold        string `yaml:"max_hold,omitempty"`        // Go duration string; empty disables force-release
	AcquireTimeout string `yaml:"acquire_timeout,omitempty"` // how long a run waits for the gate; empty waits forever
	Database       string `yaml:"database,omitempty"`        // path to the shared lease database; empty = in-process gate
}

// TimeoutConfig bounds step execution.
type TimeoutConfig struct {
	Step string `yaml:"step,omitempty"` // default per-step bound, Go duration string
}

// CaptureConfig controls artifact bundles.
type CaptureConfig struct {
	Root string `yaml:"root"`
}

// DaemonConfig configures serve mode.
type DaemonConfig struct {
	AdminAddr        string `yaml:"admin_addr"`
	ScheduleInterval string `yaml:"schedule_interval,omitempty"` // empty disables scheduled runs
	NATSURL          string `yaml:"nats_url,omitempty"`          // empty disables upstream triggers
	NATSSubject      string `yaml:"nats_subject,omitempty"`
}

// Load reads, defaults, and validates the configuration at path. Environment
// files (.env, .env.local) are overlaid first without overriding the real
// process environment, so credential variables can live beside the checkout
// during local runs.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "reading configuration")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "parsing configuration")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles overlays .env then .env.local; first hit wins, real
// environment variables are never overridden.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
			return
		}
	}
}
