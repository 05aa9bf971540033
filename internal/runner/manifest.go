package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/hang-sentinel/internal/timeout"
)

// Unit is one protected command in a manifest.
type Unit struct {
	// Name identifies the unit in logs and the summary report.
	// Unnamed units are numbered in manifest order.
	Name string `yaml:"name"`
	// Command is the argv of the child process, program first.
	Command []string `yaml:"command"`
	// TimeoutSeconds overrides the batch time limit for this unit, in
	// seconds. Zero disables enforcement; nil inherits the batch setting.
	TimeoutSeconds *float64 `yaml:"timeout_seconds,omitempty"`
	// Method overrides the batch enforcement strategy for this unit.
	Method string `yaml:"method,omitempty"`
	// Dir is the child's working directory, inherited when empty.
	Dir string `yaml:"dir,omitempty"`
	// Env lists extra KEY=VALUE pairs appended to the inherited environment.
	Env []string `yaml:"env,omitempty"`
}

// Manifest is an ordered batch of units. Units run sequentially, each
// under its own deadline.
type Manifest struct {
	// Units run in file order.
	Units []Unit `yaml:"units"`
}

// DefaultManifestFilename is the manifest path used when none is given.
const DefaultManifestFilename = "hang-sentinel-units.yaml"

var (
	// errNoUnits is returned for a manifest without a single unit.
	errNoUnits = errors.New("manifest contains no units")
	// errUnitWithoutCommand is returned for a unit with an empty command.
	errUnitWithoutCommand = errors.New("unit has no command")
	// errDuplicateUnitName is returned when two units share a name, which
	// would make the summary report ambiguous.
	errDuplicateUnitName = errors.New("duplicate unit name")
)

// LoadManifest reads a batch manifest from the provided path and
// validates it. Units without a name are named after their position.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		path = DefaultManifestFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	if err := validateManifest(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

// validateManifest checks every unit and fills in default names.
func validateManifest(m *Manifest) error {
	if len(m.Units) == 0 {
		return errNoUnits
	}

	seen := make(map[string]struct{}, len(m.Units))

	for i := range m.Units {
		unit := &m.Units[i]

		if unit.Name == "" {
			unit.Name = fmt.Sprintf("unit-%d", i+1)
		}

		if _, ok := seen[unit.Name]; ok {
			return fmt.Errorf("%w: %q", errDuplicateUnitName, unit.Name)
		}

		seen[unit.Name] = struct{}{}

		if len(unit.Command) == 0 || unit.Command[0] == "" {
			return fmt.Errorf("unit %q: %w", unit.Name, errUnitWithoutCommand)
		}

		if unit.TimeoutSeconds != nil {
			if _, err := timeout.DurationFromSeconds(*unit.TimeoutSeconds); err != nil {
				return fmt.Errorf("unit %q: %w", unit.Name, err)
			}
		}

		if _, err := timeout.ParseStrategy(unit.Method); err != nil {
			return fmt.Errorf("unit %q: %w", unit.Name, err)
		}
	}

	return nil
}
