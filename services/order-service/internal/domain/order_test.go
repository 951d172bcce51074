package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		current OrderStatus
		ev      PaymentEvent
		sameID  bool
		want    OutcomeKind
		next    OrderStatus
		decr    bool
	}{
		{"pending paid", StatusPending, EventMarkPaid, false, OutcomeAdvance, StatusPaid, true},
		{"pending failed", StatusPending, EventMarkFailed, false, OutcomeAdvance, StatusFailed, false},
		{"pending in-process", StatusPending, EventMarkInProcess, false, OutcomeAdvance, StatusInProcess, false},

		{"in-process paid", StatusInProcess, EventMarkPaid, false, OutcomeAdvance, StatusPaid, true},
		{"in-process failed", StatusInProcess, EventMarkFailed, false, OutcomeAdvance, StatusFailed, false},
		{"in-process repeat same id", StatusInProcess, EventMarkInProcess, true, OutcomeNoOp, "", false},
		{"in-process new payment id", StatusInProcess, EventMarkInProcess, false, OutcomeAdvance, StatusInProcess, false},

		{"paid duplicate", StatusPaid, EventMarkPaid, true, OutcomeNoOp, "", false},
		{"paid different id", StatusPaid, EventMarkPaid, false, OutcomeNoOp, "", false},
		{"paid then failed", StatusPaid, EventMarkFailed, false, OutcomeReject, "", false},
		{"paid then in-process", StatusPaid, EventMarkInProcess, false, OutcomeNoOp, "", false},

		{"failed then paid", StatusFailed, EventMarkPaid, false, OutcomeAdvance, StatusPaid, true},
		{"failed repeat same id", StatusFailed, EventMarkFailed, true, OutcomeNoOp, "", false},
		{"failed new payment id", StatusFailed, EventMarkFailed, false, OutcomeAdvance, StatusFailed, false},
		{"failed then in-process", StatusFailed, EventMarkInProcess, false, OutcomeAdvance, StatusInProcess, false},

		{"cancelled then paid", StatusCancelled, EventMarkPaid, false, OutcomeReject, "", false},
		{"cancelled failed same id", StatusCancelled, EventMarkFailed, true, OutcomeNoOp, "", false},
		{"cancelled failed new id", StatusCancelled, EventMarkFailed, false, OutcomeAdvance, StatusCancelled, false},
		{"cancelled then in-process", StatusCancelled, EventMarkInProcess, false, OutcomeReject, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Transition(tc.current, tc.ev, tc.sameID)
			assert.Equal(t, tc.want, got.Kind)
			if tc.want == OutcomeAdvance {
				assert.Equal(t, tc.next, got.Next)
				assert.Equal(t, tc.decr, got.DecrementStock)
			} else {
				assert.False(t, got.DecrementStock)
			}
		})
	}
}

func TestTransitionDecrementsOnlyOnPaid(t *testing.T) {
	states := []OrderStatus{StatusPending, StatusInProcess, StatusPaid, StatusFailed, StatusCancelled}
	events := []PaymentEvent{EventMarkPaid, EventMarkFailed, EventMarkInProcess}
	for _, s := range states {
		for _, ev := range events {
			for _, same := range []bool{true, false} {
				out := Transition(s, ev, same)
				if out.DecrementStock {
					assert.Equal(t, EventMarkPaid, ev, "decrement outside a paid event from %s", s)
					assert.Equal(t, StatusPaid, out.Next)
				}
			}
		}
	}
}

func TestPaidDifferentIDWarns(t *testing.T) {
	out := Transition(StatusPaid, EventMarkPaid, false)
	assert.Equal(t, OutcomeNoOp, out.Kind)
	assert.NotEmpty(t, out.Warn)

	out = Transition(StatusPaid, EventMarkPaid, true)
	assert.Empty(t, out.Warn)
}
