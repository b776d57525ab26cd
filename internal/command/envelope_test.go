package command

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/distribute"
	"aggsearch/internal/slotrange"
)

func TestEnvelope_EncodeDecodeRoundTrip(t *testing.T) {
	plan, err := aggplan.NewBuilder("idx", "*", nil).Load("t1").Build()
	require.NoError(t, err)
	split, err := distribute.Split(plan)
	require.NoError(t, err)

	env, err := BuildEnvelope(VerbAggregate, split, []slotrange.Range{{Start: 0, End: 8191}}, true, true)
	require.NoError(t, err)

	argv := env.Encode()
	decoded, err := DecodeEnvelope(argv)
	require.NoError(t, err)

	require.Equal(t, env.Verb, decoded.Verb)
	require.Equal(t, env.Index, decoded.Index)
	require.Equal(t, env.Query, decoded.Query)
	require.Equal(t, env.Body, decoded.Body)
	require.Equal(t, env.Slots, decoded.Slots)
	require.True(t, decoded.WithCursor)
	require.True(t, decoded.WithScores)
}

func TestEnvelope_MultipleSlotRanges(t *testing.T) {
	plan, err := aggplan.NewBuilder("idx", "*", nil).Build()
	require.NoError(t, err)
	split, err := distribute.Split(plan)
	require.NoError(t, err)

	ranges := []slotrange.Range{{Start: 0, End: 4095}, {Start: 4096, End: 8191}}
	env, err := BuildEnvelope(VerbSearch, split, ranges, false, false)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(env.Encode())
	require.NoError(t, err)
	require.Equal(t, ranges, decoded.Slots)
	require.False(t, decoded.WithCursor)
	require.False(t, decoded.WithScores)
}

func TestDecodeEnvelope_MissingSlotsErrors(t *testing.T) {
	_, err := DecodeEnvelope([]string{"_FT.SEARCH", "idx", "*", "LIMIT", "0", "10"})
	require.Error(t, err)
}
