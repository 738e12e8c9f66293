package config

import (
	"time"

	"github.com/muselab-d2x/releasegate/internal/errors"
)

// Validate checks cross-field invariants after defaults were applied.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return errors.ValidationFailed("project.name", "must not be empty")
	}

	seen := map[string]bool{}
	for _, step := range c.Build.Steps {
		if step.Name == "" {
			return errors.ValidationFailed("build.steps", "every step needs a name")
		}
		if step.Command == "" {
			return errors.ValidationFailed("build.steps."+step.Name, "command must not be empty")
		}
		if seen[step.Name] {
			return errors.ValidationFailed("build.steps."+step.Name, "duplicate step name")
		}
		seen[step.Name] = true
		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				return errors.ValidationFailed("build.steps."+step.Name+".timeout", err.Error())
			}
		}
	}

	if len(c.Flows.Names) == 0 {
		return errors.ValidationFailed("flows.names", "at least one sub-flow is required")
	}
	flowSeen := map[string]bool{}
	for _, name := range c.Flows.Names {
		if name == "" {
			return errors.ValidationFailed("flows.names", "sub-flow names must not be empty")
		}
		if flowSeen[name] {
			return errors.ValidationFailed("flows.names", "duplicate sub-flow "+name)
		}
		flowSeen[name] = true
	}

	secretSeen := map[string]bool{}
	for _, s := range c.Secrets {
		if s.Name == "" || s.Env == "" {
			return errors.ValidationFailed("secrets", "name and env are both required")
		}
		if secretSeen[s.Name] {
			return errors.ValidationFailed("secrets."+s.Name, "duplicate secret name")
		}
		secretSeen[s.Name] = true
	}

	if _, err := c.StepTimeout(); err != nil {
		return errors.ValidationFailed("timeouts.step", err.Error())
	}
	if _, err := c.GateMaxHold(); err != nil {
		return errors.ValidationFailed("gate.max_hold", err.Error())
	}
	if _, err := c.GateAcquireTimeout(); err != nil {
		return errors.ValidationFailed("gate.acquire_timeout", err.Error())
	}
	if c.Daemon.ScheduleInterval != "" {
		if _, err := time.ParseDuration(c.Daemon.ScheduleInterval); err != nil {
			return errors.ValidationFailed("daemon.schedule_interval", err.Error())
		}
	}

	return nil
}

// StepTimeout returns the parsed default per-step bound.
func (c *Config) StepTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeouts.Step)
}

// GateMaxHold returns the parsed maximum lease hold; zero disables it.
func (c *Config) GateMaxHold() (time.Duration, error) {
	if c.Gate.MaxHold == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Gate.MaxHold)
}

// GateAcquireTimeout returns how long a run waits for the gate; zero means
// it waits indefinitely.
func (c *Config) GateAcquireTimeout() (time.Duration, error) {
	if c.Gate.AcquireTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Gate.AcquireTimeout)
}

// ScheduleInterval returns the parsed daemon schedule interval; zero means
// scheduled runs are disabled.
func (c *Config) ScheduleInterval() (time.Duration, error) {
	if c.Daemon.ScheduleInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Daemon.ScheduleInterval)
}
