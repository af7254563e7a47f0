// Package pipeline implements the generic long-running-job orchestration
// engine: declarative stage graphs, the transition router, and the
// suspend/resume execution loop that drives work steps and readiness polls.
package pipeline

import (
	"time"

	"github.com/recforge/recforge/pkg/models"
)

// ActionType is the router's decision for a polled (stage, status) pair.
type ActionType string

const (
	ActionAdvance ActionType = "advance"
	ActionWait    ActionType = "wait"
	ActionSucceed ActionType = "succeed"
	ActionFail    ActionType = "fail"
)

// Action is the outcome of one routing decision.
type Action struct {
	Type ActionType
	// Next names the stage whose work step runs when Type is ActionAdvance.
	Next models.Stage
}

// Rule is one transition guard: when the polled stage and status both
// match, the rule's action is taken.
type Rule struct {
	Stage  models.Stage
	Status models.ResourceStatus
	Action Action
}

// Family selects which work-step set and poller serve a definition.
const (
	FamilyProvision = "provision"
	FamilyCleanup   = "cleanup"
)

// Definition is the static per-pipeline configuration: the ordered stage
// list, the transition table, and the timing envelope. Built once and
// shared read-only across all executions of the pipeline.
type Definition struct {
	ID     string
	Family string

	// Stages is the declared visit order; the first entry is the stage
	// whose work step starts every execution.
	Stages []models.Stage

	// Rules are evaluated in declaration order; the first match wins.
	Rules []Rule

	// FailureStatus short-circuits to failure from any stage when the
	// polled status equals it and no earlier rule matched. Empty disables
	// the guard (the cleanup pipeline has none).
	FailureStatus models.ResourceStatus

	// PollInterval is the wait between repoll attempts.
	PollInterval time.Duration

	// Budget caps the wall clock for one execution; exhaustion forces the
	// failure path so no execution is left orphaned.
	Budget time.Duration

	// Defaults are merged into the caller request at execution start for
	// keys the caller did not supply (e.g. the pipeline's recipe).
	Defaults map[string]any
}

// Start returns the first stage of the pipeline.
func (d *Definition) Start() models.Stage {
	return d.Stages[0]
}

// Route is the transition router: a pure function of (stage, status) and
// the definition's transition table. Guards are checked in declaration
// order, then the global failure guard, and any unmodeled pair falls
// through to Wait: an unknown status means "still in progress", never an
// error.
func (d *Definition) Route(stage models.Stage, status models.ResourceStatus) Action {
	for _, rule := range d.Rules {
		if rule.Stage == stage && rule.Status == status {
			return rule.Action
		}
	}

	if d.FailureStatus != "" && status == d.FailureStatus {
		return Action{Type: ActionFail}
	}

	return Action{Type: ActionWait}
}

// chain builds the transition table for a linear pipeline: every stage
// advances to its successor when the polled status equals advanceOn, and
// the last stage publishes success.
func chain(stages []models.Stage, advanceOn models.ResourceStatus) []Rule {
	rules := make([]Rule, 0, len(stages))

	for i, stage := range stages {
		if i == len(stages)-1 {
			rules = append(rules, Rule{
				Stage:  stage,
				Status: advanceOn,
				Action: Action{Type: ActionSucceed},
			})

			continue
		}

		rules = append(rules, Rule{
			Stage:  stage,
			Status: advanceOn,
			Action: Action{Type: ActionAdvance, Next: stages[i+1]},
		})
	}

	return rules
}
