package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns the transition configuration of state
	Configure(state State) StateConfiguration

	// Build creates a state machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions leaving one state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type edge struct {
	to    State
	guard GuardFunc
}

type stateConfig struct {
	edges map[Trigger][]edge
}

type stateMachineBuilder struct {
	configs map[State]*stateConfig
}

type stateMachine struct {
	current State
	configs map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{configs: make(map[State]*stateConfig)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	cfg, ok := b.configs[state]
	if !ok {
		cfg = &stateConfig{edges: make(map[Trigger][]edge)}
		b.configs[state] = cfg
	}
	return cfg
}

// Build copies the configuration so later Configure calls do not leak into
// machines already built.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	copied := make(map[State]*stateConfig, len(b.configs))
	for state, cfg := range b.configs {
		edges := make(map[Trigger][]edge, len(cfg.edges))
		for trigger, list := range cfg.edges {
			edges[trigger] = append([]edge(nil), list...)
		}
		copied[state] = &stateConfig{edges: edges}
	}

	return &stateMachine{current: initialState, configs: copied}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.edges[trigger] = append(c.edges[trigger], edge{to: toState, guard: guard})
	return c
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) edges(trigger Trigger) []edge {
	cfg, ok := m.configs[m.current]
	if !ok {
		return nil
	}
	return cfg.edges[trigger]
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.edges(trigger)) > 0
}

func (m *stateMachine) Target(trigger Trigger) (State, bool) {
	edges := m.edges(trigger)
	if len(edges) == 0 {
		return "", false
	}
	return edges[0].to, true
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	edges := m.edges(trigger)
	if len(edges) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, e := range edges {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.to
			return nil
		}
	}
	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

// PermittedTriggers is sorted for stable output
func (m *stateMachine) PermittedTriggers() []Trigger {
	cfg, ok := m.configs[m.current]
	if !ok {
		return []Trigger{}
	}
	triggers := make([]Trigger, 0, len(cfg.edges))
	for trigger := range cfg.edges {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
