package timebox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timebox/internal/guard"
)

func TestSlotOffer(t *testing.T) {
	failing := guard.Func(func(guard.Candidate) (bool, error) { return false, errors.New("boom") })
	rejecting := guard.ValueFunc(func(any) bool { return false })

	tests := []struct {
		name      string
		spec      SlotSpec
		value     any
		authority int
		want      offerResult
		wantErr   bool
	}{
		{name: "accepted", spec: Require[Dog](), value: Dog{}, want: offerAccepted},
		{name: "type mismatch", spec: Require[Dog](), value: Cat{}, want: offerTypeMismatch},
		{name: "authority too low", spec: Require[Dog]().WithMinAuthority(5), value: Dog{}, authority: 4, want: offerLowAuthority},
		{name: "authority met", spec: Require[Dog]().WithMinAuthority(5), value: Dog{}, authority: 5, want: offerAccepted},
		{name: "guard rejects", spec: Require[Dog]().Guarded(rejecting), value: Dog{}, want: offerGuardRejected},
		{name: "guard fails", spec: Require[Dog]().Guarded(failing), value: Dog{}, want: offerGuardFailed, wantErr: true},
		// Authority is checked before the guard runs.
		{name: "authority before guard", spec: Require[Dog]().WithMinAuthority(1).Guarded(failing), value: Dog{}, want: offerLowAuthority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &slot{spec: tt.spec}
			res, err := s.offer(TypeOfValue(tt.value), tt.value, tt.authority)
			assert.Equal(t, tt.want, res)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want == offerAccepted, s.satisfied(), "only accepted values bind")
		})
	}
}

func TestSlot_RejectedValueKeepsBinding(t *testing.T) {
	s := &slot{spec: Require[Dog]().WithMinAuthority(5)}

	res, _ := s.offer(TypeOf[Dog](), Dog{Name: "Bean"}, 5)
	require.Equal(t, offerAccepted, res)
	res, _ = s.offer(TypeOf[Dog](), Dog{Name: "Bouncer"}, 1)
	require.Equal(t, offerLowAuthority, res)

	assert.Equal(t, Dog{Name: "Bean"}, s.snapshot())
}

func TestSlot_GatherSnapshotIsCopy(t *testing.T) {
	s := &slot{spec: Gather[Dog]()}
	assert.False(t, s.satisfied())

	_, _ = s.offer(TypeOf[Dog](), Dog{Name: "a"}, 0)
	snap := s.snapshot().([]any)
	_, _ = s.offer(TypeOf[Dog](), Dog{Name: "b"}, 0)

	assert.Len(t, snap, 1)
	assert.Len(t, s.snapshot().([]any), 2)
	assert.True(t, s.satisfied())

	s.reset()
	assert.False(t, s.satisfied())
}
