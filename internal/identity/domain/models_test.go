package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParticipantValidateRequiresCanonicalKind(t *testing.T) {
	cases := []struct {
		name        string
		participant Participant
		wantErr     error
	}{
		{name: "individual", participant: Individual(7)},
		{name: "team", participant: Team(7)},
		{name: "capitalised", participant: Participant{Kind: "Individual", ID: 7}, wantErr: ErrInvalidParticipant},
		{name: "padded", participant: Participant{Kind: " team", ID: 7}, wantErr: ErrInvalidParticipant},
		{name: "unknown", participant: Participant{Kind: "org", ID: 7}, wantErr: ErrInvalidParticipant},
		{name: "zero_id", participant: Individual(0), wantErr: ErrInvalidParticipant},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.participant.Validate()
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseKindNormalizesInput(t *testing.T) {
	kind, ok := ParseKind(" Individual ")
	require.True(t, ok)
	require.Equal(t, ParticipantIndividual, kind)
	require.NoError(t, Participant{Kind: kind, ID: 7}.Validate())

	_, ok = ParseKind("org")
	require.False(t, ok)
}
