package pipeline

import (
	"fmt"
	"sync"

	"constellation/internal/language"
	"constellation/internal/services"
)

// ErrInvalidTransition reports an illegal state change. It indicates a
// programming error rather than a runtime failure.
var ErrInvalidTransition = services.ErrInvalidStateTransition

// RunState is the run-level position in the pipeline.
type RunState string

const (
	RunPlanned         RunState = "planned"
	RunResearchPending RunState = "research_pending"
	RunResearchDone    RunState = "research_done"
	RunScriptPending   RunState = "script_pending"
	RunScriptDone      RunState = "script_done"
	RunAssembled       RunState = "assembled"
	RunFailed          RunState = "failed"
)

// BranchState is the position of one language branch after the script exists.
type BranchState string

const (
	// BranchScriptReady is the terminal state of the primary branch in a
	// transcript-only run.
	BranchScriptReady      BranchState = "script_ready"
	BranchTransformPending BranchState = "transform_pending"
	BranchTransformDone    BranchState = "transform_done"
	BranchSynthesisPending BranchState = "synthesis_pending"
	BranchSynthesisDone    BranchState = "synthesis_done"
	BranchFailed           BranchState = "failed"
)

var runTransitions = map[RunState][]RunState{
	RunPlanned:         {RunResearchPending},
	RunResearchPending: {RunResearchDone, RunFailed},
	RunResearchDone:    {RunScriptPending},
	RunScriptPending:   {RunScriptDone, RunFailed},
	RunScriptDone:      {RunAssembled, RunFailed},
}

var branchTransitions = map[BranchState][]BranchState{
	BranchTransformPending: {BranchTransformDone, BranchFailed},
	BranchTransformDone:    {BranchSynthesisPending},
	BranchSynthesisPending: {BranchSynthesisDone, BranchFailed},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stateMachine tracks the run and its branches. Safe for concurrent use by
// branch goroutines.
type stateMachine struct {
	mu       sync.Mutex
	run      RunState
	branches map[language.Language]BranchState
	order    []language.Language
}

func newStateMachine() *stateMachine {
	return &stateMachine{run: RunPlanned, branches: make(map[language.Language]BranchState)}
}

func (s *stateMachine) Run() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func (s *stateMachine) advance(to RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !allowed(runTransitions, s.run, to) {
		return fmt.Errorf("%w: run %s -> %s", ErrInvalidTransition, s.run, to)
	}
	s.run = to
	return nil
}

// openBranch registers a branch once the script exists.
func (s *stateMachine) openBranch(lang language.Language, initial BranchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != RunScriptDone {
		return fmt.Errorf("%w: branch %s opened in run state %s", ErrInvalidTransition, lang, s.run)
	}
	if _, exists := s.branches[lang]; exists {
		return fmt.Errorf("%w: branch %s already open", ErrInvalidTransition, lang)
	}
	switch initial {
	case BranchTransformPending, BranchSynthesisPending, BranchScriptReady:
	default:
		return fmt.Errorf("%w: branch %s cannot start at %s", ErrInvalidTransition, lang, initial)
	}
	s.branches[lang] = initial
	s.order = append(s.order, lang)
	return nil
}

func (s *stateMachine) advanceBranch(lang language.Language, to BranchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.branches[lang]
	if !ok {
		return fmt.Errorf("%w: branch %s not open", ErrInvalidTransition, lang)
	}
	if !allowed(branchTransitions, from, to) {
		return fmt.Errorf("%w: branch %s %s -> %s", ErrInvalidTransition, lang, from, to)
	}
	s.branches[lang] = to
	return nil
}

func (s *stateMachine) Branch(lang language.Language) (BranchState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.branches[lang]
	return state, ok
}

// branchComplete reports whether a branch reached its successful terminal state.
func branchComplete(state BranchState, transcriptOnly bool) bool {
	switch state {
	case BranchSynthesisDone, BranchScriptReady:
		return true
	case BranchTransformDone:
		return transcriptOnly
	default:
		return false
	}
}
