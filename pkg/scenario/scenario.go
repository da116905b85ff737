package scenario

import (
	"fmt"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
)

// APIVersion gates the scenario documents this engine accepts
const APIVersion = "chaos.trading/v1"

// Scenario is the complete declarative experiment document. It is frozen
// before submit; nothing in the engine mutates it.
type Scenario struct {
	APIVersion      string           `yaml:"apiVersion" json:"api_version"`
	Name            string           `yaml:"name" json:"name"`
	Description     string           `yaml:"description" json:"description"`
	Version         string           `yaml:"version" json:"version"`
	Duration        Duration         `yaml:"duration" json:"duration"`
	Timeout         Duration         `yaml:"timeout" json:"timeout"`
	Variables       map[string]Value `yaml:"variables" json:"variables,omitempty"`
	Phases          []Phase          `yaml:"phases" json:"phases"`
	Rollback        RollbackSpec     `yaml:"rollback" json:"rollback"`
	SuccessCriteria []string         `yaml:"success_criteria" json:"success_criteria,omitempty"`
}

// Phase is a named contiguous interval of the scenario
type Phase struct {
	Name            string           `yaml:"name" json:"name"`
	Duration        Duration         `yaml:"duration" json:"duration"`
	Actions         []Action         `yaml:"actions" json:"actions,omitempty"`
	ParallelActions []ParallelAction `yaml:"parallel_actions" json:"parallel_actions,omitempty"`
	Assertions      []Assertion      `yaml:"assertions" json:"assertions,omitempty"`
}

// Action is a directive to cause a specific chaos effect on a named service
type Action struct {
	Service    string           `yaml:"service" json:"service"`
	Kind       string           `yaml:"kind" json:"kind"`
	Parameters map[string]Value `yaml:"parameters" json:"parameters,omitempty"`
}

// ParallelAction is an action scheduled concurrently with the phase's
// sequential stream, delayed from phase start
type ParallelAction struct {
	Action `yaml:",inline"`
	Delay  Duration `yaml:"delay" json:"delay"`
}

// Assertion is a predicate over observable system state with a deadline
type Assertion struct {
	Kind       string           `yaml:"kind" json:"kind"`
	Expect     string           `yaml:"expect" json:"expect"`
	Within     Duration         `yaml:"within" json:"within"`
	Parameters map[string]Value `yaml:"parameters" json:"parameters,omitempty"`
}

// RollbackSpec declares the best-effort reverse-of-chaos sequence
type RollbackSpec struct {
	OnFailure bool     `yaml:"on_failure" json:"on_failure"`
	Actions   []Action `yaml:"actions" json:"actions,omitempty"`
}

// Validate enforce the structural invariants of the document. Parameter
// semantics stay with the drivers and evaluators; this pass only guards the
// shape the engine depends on.
func (s *Scenario) Validate() error {
	if s.APIVersion != APIVersion {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("unsupported apiVersion '%s', want '%s'", s.APIVersion, APIVersion)}
	}
	if s.Name == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: "scenario name is required"}
	}
	if s.Timeout > 0 && s.Timeout < s.Duration {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("timeout %s is shorter than duration %s", s.Timeout, s.Duration)}
	}

	var phaseTotal Duration
	seen := map[string]bool{}
	for i, ph := range s.Phases {
		if ph.Name == "" {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("phase %d has no name", i)}
		}
		if seen[ph.Name] {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("duplicate phase name '%s'", ph.Name)}
		}
		seen[ph.Name] = true
		if ph.Duration <= 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Phase: ph.Name, Reason: "phase duration must be positive"}
		}
		phaseTotal += ph.Duration

		for _, act := range ph.Actions {
			if err := validateActionShape(ph.Name, act); err != nil {
				return err
			}
		}
		for _, act := range ph.ParallelActions {
			if err := validateActionShape(ph.Name, act.Action); err != nil {
				return err
			}
			if act.Delay < 0 {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Phase: ph.Name, Reason: "parallel action delay must be non-negative"}
			}
		}
		for _, as := range ph.Assertions {
			if as.Kind == "" {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Phase: ph.Name, Reason: "assertion kind is required"}
			}
			if as.Within < 0 {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Phase: ph.Name, Reason: "assertion window must be non-negative"}
			}
		}
	}

	if s.Duration > 0 && phaseTotal > s.Duration {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("phase durations sum to %s, exceeding scenario duration %s", phaseTotal, s.Duration)}
	}

	for _, act := range s.Rollback.Actions {
		if err := validateActionShape("rollback", act); err != nil {
			return err
		}
	}
	return nil
}

func validateActionShape(phase string, act Action) error {
	if act.Service == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Phase: phase, Reason: "action service is required"}
	}
	if act.Kind == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Phase: phase, Target: act.Service, Reason: "action kind is required"}
	}
	return nil
}
