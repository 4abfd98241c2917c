package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCheck(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Ledger
		wantErr ViolationKind
	}{
		{
			name: "within all caps",
			build: func() *Ledger {
				return New(Caps{TokenBudget: 1000, CostBudget: 1.0, ToolBudget: 10, MaxDepth: 5}, time.Minute)
			},
			wantErr: ViolationNone,
		},
		{
			name: "token budget exhausted",
			build: func() *Ledger {
				l := New(Caps{TokenBudget: 100}, time.Minute)
				l.Charge(60, 50, 0)
				return l
			},
			wantErr: ViolationTokenExhausted,
		},
		{
			name: "cost budget exhausted",
			build: func() *Ledger {
				l := New(Caps{CostBudget: 1.0}, time.Minute)
				l.Charge(0, 0, 1.5)
				return l
			},
			wantErr: ViolationCostExhausted,
		},
		{
			name: "tool budget exhausted",
			build: func() *Ledger {
				l := New(Caps{ToolBudget: 2}, time.Minute)
				l.ChargeToolCall()
				l.ChargeToolCall()
				return l
			},
			wantErr: ViolationToolExhausted,
		},
		{
			name: "deadline reached",
			build: func() *Ledger {
				return New(Caps{Deadline: time.Now().Add(-time.Second)}, 0)
			},
			wantErr: ViolationDeadlineReached,
		},
		{
			name: "depth exceeded",
			build: func() *Ledger {
				l := New(Caps{MaxDepth: 1}, time.Minute)
				child := l.Derive(1)
				return child.Derive(1)
			},
			wantErr: ViolationDepthExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.build()
			v := l.Check()
			if tt.wantErr == ViolationNone {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.wantErr, v.Kind)
		})
	}
}

func TestLedgerDeriveProportional(t *testing.T) {
	parent := New(Caps{TokenBudget: 1000, CostBudget: 2.0, ToolBudget: 10, MaxDepth: 5}, time.Minute)
	parent.Charge(200, 0, 0.5)

	child := parent.Derive(0.5)
	state := child.State()

	require.Equal(t, 1, child.Depth())
	// remaining tokens on parent = 800, half reserved for child = 400
	assert.InDelta(t, 400, state.RemainingTokens, 1)
	assert.InDelta(t, 0.75, state.RemainingCost, 0.01)
}

func TestLedgerChargeCostRollup(t *testing.T) {
	parent := New(Caps{CostBudget: 10}, time.Minute)
	child := parent.Derive(1)
	child.Charge(0, 0, 1.25)

	parent.ChargeCost(child.State().Cost)
	assert.Equal(t, 1.25, parent.State().Cost)
}
