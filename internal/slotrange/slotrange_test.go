package slotrange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	ranges := []Range{{Start: 0, End: 100}, {Start: 101, End: 16383}}
	buf := Serialize(ranges)
	got, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, ranges, got)
}

func TestSerializeDeserialize_EmbeddedNULBytes(t *testing.T) {
	// Start/End == 0 produces embedded NUL bytes in the encoding; the
	// codec must not treat them as a terminator.
	ranges := []Range{{Start: 0, End: 0}, {Start: 0, End: 256}}
	buf := Serialize(ranges)
	got, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, ranges, got)
}

func TestDeserialize_EmptyRanges(t *testing.T) {
	buf := Serialize(nil)
	got, err := Deserialize(buf)
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestDeserialize_RejectsSizeMismatch(t *testing.T) {
	buf := Serialize([]Range{{Start: 1, End: 2}})
	_, err := Deserialize(buf[:len(buf)-1])
	require.Error(t, err)

	_, err = Deserialize(append(buf, 0, 0, 0))
	require.Error(t, err)
}

func TestDeserialize_RejectsTooShortHeader(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	require.Error(t, err)
}
