package scte35_test

import (
	"testing"

	"github.com/dashif-labs/ssaigw/pkg/scte35"
	"github.com/stretchr/testify/require"
)

func TestCreateSpliceInsertPayloadRoundTrip(t *testing.T) {
	payload := scte35.CreateSpliceInsertPayload(scte35.SpliceInsertParams{
		PtsTime:               900_000,
		Duration:              30 * 90000,
		SpliceEventID:         42,
		Tier:                  0x0FFF,
		UniqueProgramID:       7,
		OutOfNetworkIndicator: true,
		AutoReturn:            true,
	})
	require.NotEmpty(t, payload)

	cue, err := scte35.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, scte35.CommandTypeSpliceInsert, cue.CommandType)
	require.Equal(t, uint32(42), cue.EventID)
	require.True(t, cue.OutOfNetworkIndicator)
	require.True(t, cue.HasDuration)
	require.InDelta(t, 30.0, cue.DurationS, 0.001)
}

func TestCreateSpliceInsertPayloadNoDuration(t *testing.T) {
	payload := scte35.CreateSpliceInsertPayload(scte35.SpliceInsertParams{
		PtsTime:               900_000,
		SpliceEventID:         43,
		OutOfNetworkIndicator: false,
		SpliceImmediateFlag:   true,
	})
	cue, err := scte35.Decode(payload)
	require.NoError(t, err)
	require.False(t, cue.HasDuration)
	require.False(t, cue.OutOfNetworkIndicator)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := scte35.Decode([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
}
