package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario for the sync engine: a set of
// scripted external systems and central candidates, plus an ordered list
// of job cycles to run against a fresh ledger.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Systems describes the scripted external systems.
	Systems []SystemScript `yaml:"systems"`

	// Central describes candidates already sitting in the central store
	// when the scenario starts.
	Central CentralScript `yaml:"central,omitempty"`

	// Cycles is the ordered list of job invocations. Each entry is one
	// of create, claim, complete, purge.
	Cycles []string `yaml:"cycles"`
}

// SystemScript is one fake external system and its visible tasks.
type SystemScript struct {
	URL   string       `yaml:"url"`
	Tasks []TaskScript `yaml:"tasks,omitempty"`
}

// TaskScript is one task visible in an external system.
type TaskScript struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Assignee  string `yaml:"assignee,omitempty"`
	Variables string `yaml:"variables,omitempty"`
}

// CentralScript describes central-side candidates: tasks a user claimed
// or completed before the scenario's cycles run.
type CentralScript struct {
	Claimed   []CentralTaskScript `yaml:"claimed,omitempty"`
	Completed []CentralTaskScript `yaml:"completed,omitempty"`
}

// CentralTaskScript is one central task referencing its external origin.
type CentralTaskScript struct {
	CentralID  string `yaml:"centralId"`
	ExternalID string `yaml:"externalId"`
	SystemURL  string `yaml:"systemUrl"`
	Assignee   string `yaml:"assignee,omitempty"`
}

// knownCycles are the job names Cycles may reference.
var knownCycles = map[string]bool{
	"create":   true,
	"claim":    true,
	"complete": true,
	"purge":    true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently shrinking the
// scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Systems) == 0 {
		return fmt.Errorf("systems list is required and must be non-empty")
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Systems))
	for i, sys := range s.Systems {
		if sys.URL == "" {
			return fmt.Errorf("systems[%d]: url is required", i)
		}
		if seen[sys.URL] {
			return fmt.Errorf("systems[%d]: duplicate url %q", i, sys.URL)
		}
		seen[sys.URL] = true
		for j, task := range sys.Tasks {
			if task.ID == "" {
				return fmt.Errorf("systems[%d].tasks[%d]: id is required", i, j)
			}
			if task.Name == "" {
				return fmt.Errorf("systems[%d].tasks[%d]: name is required", i, j)
			}
		}
	}

	for i, cycle := range s.Cycles {
		if !knownCycles[cycle] {
			return fmt.Errorf("cycles[%d]: unknown job %q", i, cycle)
		}
	}

	for i, ct := range append(append([]CentralTaskScript{}, s.Central.Claimed...), s.Central.Completed...) {
		if ct.CentralID == "" || ct.ExternalID == "" || ct.SystemURL == "" {
			return fmt.Errorf("central task %d: centralId, externalId and systemUrl are required", i)
		}
	}
	return nil
}
