package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout applies to rounds that do not set one.
const DefaultTimeout = 100 * time.Millisecond

// Scenario scripts a sequence of dispatch rounds.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Reactions is the path of the CUE declaration file. Relative paths
	// are resolved against the scenario file's directory by Load.
	Reactions string `yaml:"reactions"`

	// Rounds run in order against one coordinator.
	Rounds []Round `yaml:"rounds"`
}

// Round provides values and then calls React once.
type Round struct {
	// Reset clears bound state before the steps run.
	Reset bool `yaml:"reset,omitempty"`

	Steps []Step `yaml:"steps,omitempty"`

	// Timeout bounds the React wait. Zero uses the run default.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Expect is optional; without it the round always passes.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step provides one value.
type Step struct {
	Provide   Value `yaml:"provide"`
	Authority int   `yaml:"authority,omitempty"`

	// Async schedules the value through ProvideAsync instead of Provide.
	Async bool `yaml:"async,omitempty"`

	// Delay makes an async producer wait before yielding. The wait
	// honors cancellation.
	Delay time.Duration `yaml:"delay,omitempty"`

	// Fail makes an async producer fail with this message.
	Fail string `yaml:"fail,omitempty"`
}

// Value describes a Record.
type Value struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Record converts v into a provided value.
func (v Value) Record() Record {
	return Record{Kind: v.Type, Fields: v.Fields}
}

// Expect specifies the expected round outcome. Unset fields are not
// checked.
type Expect struct {
	Fired    *bool  `yaml:"fired,omitempty"`
	Reaction string `yaml:"reaction,omitempty"`
	State    string `yaml:"state,omitempty"`

	// Error is a substring the React error must contain.
	Error string `yaml:"error,omitempty"`
}

// Load reads and parses a scenario YAML file, resolving the reactions
// path relative to the file. Unknown fields are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(s.Reactions) {
		s.Reactions = filepath.Join(filepath.Dir(path), s.Reactions)
	}
	if _, err := os.Stat(s.Reactions); err != nil {
		return nil, fmt.Errorf("invalid scenario: reactions file not found: %s", s.Reactions)
	}
	return s, nil
}

// Parse decodes and validates scenario YAML without touching the
// filesystem.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Reactions == "" {
		return fmt.Errorf("reactions is required")
	}
	if len(s.Rounds) == 0 {
		return fmt.Errorf("rounds list is required and must be non-empty")
	}

	for i, r := range s.Rounds {
		if r.Timeout < 0 {
			return fmt.Errorf("rounds[%d]: timeout must not be negative", i)
		}
		for j, step := range r.Steps {
			if step.Provide.Type == "" {
				return fmt.Errorf("rounds[%d].steps[%d]: provide.type is required", i, j)
			}
			if step.Authority < 0 {
				return fmt.Errorf("rounds[%d].steps[%d]: authority must not be negative", i, j)
			}
			if !step.Async && (step.Delay != 0 || step.Fail != "") {
				return fmt.Errorf("rounds[%d].steps[%d]: delay and fail require async", i, j)
			}
		}
		if r.Expect != nil && r.Expect.State != "" {
			switch r.Expect.State {
			case "committed", "exhausted", "aborted":
			default:
				return fmt.Errorf("rounds[%d].expect: unknown state %q", i, r.Expect.State)
			}
		}
	}
	return nil
}
