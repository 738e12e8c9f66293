package config

import (
	"os"

	"github.com/muselab-d2x/releasegate/internal/errors"
)

const starterConfig = `# releasegate pipeline definition
project:
  name: my-package
  repo_path: .

build:
  output_dir: dist
  # steps default to: build, install-wheel, install-sdist

flows:
  command: platform
  target_env: release-validation
  names: [feature, beta, master, release]
  teardown: true

# secrets default to the standard release credential set (RG_* variables)

gate:
  token: release
  max_hold: 45m
  # database: /var/lib/releasegate/leases.db   # enable for cross-process runs

timeouts:
  step: 30m

capture:
  root: .releasegate/artifacts

daemon:
  admin_addr: :8977
  # schedule_interval: 24h
  # nats_url: nats://127.0.0.1:4222
`

// Init writes a starter configuration file.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.ValidationFailed("config", "file already exists, use --force to overwrite")
		}
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "writing starter configuration")
	}
	return nil
}
