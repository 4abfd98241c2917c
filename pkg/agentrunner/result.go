package agentrunner

import (
	"sync"
	"time"

	"github.com/opencompletion/rce/pkg/trajectory"
)

// TerminalType names how a run ended.
type TerminalType string

const (
	TerminalNaturalLanguage TerminalType = "natural_language"
	TerminalComputedVar     TerminalType = "computed_variable"
	TerminalForced          TerminalType = "forced"
)

// Result is the final outcome of one Agent Runner invocation.
type Result struct {
	Answer            string
	TerminalType      TerminalType
	TerminalValue     string
	ForcedTermination bool
	Cancelled         bool

	Iterations     int
	TotalTokens    int
	TotalToolCalls int
	TotalCost      float64
	Duration       time.Duration
	Events         []trajectory.Event
}

// agentState is the shared, mutex-guarded flag the terminal tools set and
// the Runner polls after every iteration. It is recreated per Run call so
// concurrent runs of the same Runner never share state.
type agentState struct {
	mu            sync.Mutex
	isTerminal    bool
	terminalType  TerminalType
	answer        string
	terminalValue string
}

func newAgentState() *agentState {
	return &agentState{}
}

func (s *agentState) setFinal(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminal {
		return
	}
	s.isTerminal = true
	s.terminalType = TerminalNaturalLanguage
	s.answer = answer
}

func (s *agentState) setFinalVar(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminal {
		return
	}
	s.isTerminal = true
	s.terminalType = TerminalComputedVar
	s.terminalValue = value
	s.answer = value
}

func (s *agentState) snapshot() (terminal bool, terminalType TerminalType, answer, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTerminal, s.terminalType, s.answer, s.terminalValue
}
