package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zen-systems/gameforge/pkg/state"
)

func TestDesignGate(t *testing.T) {
	limits := DefaultLimits()

	cases := []struct {
		name      string
		approved  bool
		iteration int
		after     Target
		next      Target
		forced    bool
	}{
		{"approved first pass", true, 1, "", TargetImplementationPlanner, false},
		{"approved skips planning", true, 1, TargetCoder, TargetCoder, false},
		{"revise", false, 1, "", TargetPlanner, false},
		{"revise below cap", false, 2, "", TargetPlanner, false},
		{"cap reached", false, 3, "", TargetImplementationPlanner, true},
		{"past cap", false, 4, TargetCoder, TargetCoder, true},
		{"approved at cap is not forced", true, 3, "", TargetImplementationPlanner, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := state.State{DesignApproved: tc.approved, DesignIteration: tc.iteration}
			d := Design(s, limits, tc.after)
			assert.Equal(t, tc.next, d.Next)
			assert.Equal(t, tc.forced, d.Forced)
			assert.False(t, d.Terminal)
			assert.Equal(t, "design", d.Gate)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestShipGate(t *testing.T) {
	limits := DefaultLimits()

	cases := []struct {
		name      string
		approved  bool
		iteration int
		next      Target
		terminal  bool
		forced    bool
	}{
		{"approved", true, 1, TargetDone, true, false},
		{"fix", false, 1, TargetCoder, false, false},
		{"cap reached", false, 2, TargetDone, true, true},
		{"approved at cap", true, 2, TargetDone, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Ship(state.State{ShipApproved: tc.approved, CodeIteration: tc.iteration}, limits)
			assert.Equal(t, tc.next, d.Next)
			assert.Equal(t, tc.terminal, d.Terminal)
			assert.Equal(t, tc.forced, d.Forced)
		})
	}
}

func TestGatesArePure(t *testing.T) {
	s := state.State{DesignIteration: 1, CodeIteration: 1, Errors: []string{"e"}}
	before := s
	_ = Design(s, DefaultLimits(), "")
	_ = Ship(s, DefaultLimits())
	assert.Equal(t, before, s)
	assert.Equal(t, Design(s, DefaultLimits(), ""), Design(s, DefaultLimits(), ""))
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{MaxDesignIterations: 0, MaxCodeIterations: 1}.Validate())
	assert.Error(t, Limits{MaxDesignIterations: 1, MaxCodeIterations: 0}.Validate())
}
