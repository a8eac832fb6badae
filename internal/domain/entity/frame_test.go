package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameMessage(t *testing.T) {
	msg, ok := ParseFrameMessage([]byte(`{"type":"frame","data":"aGVsbG8=","format":"png"}`))
	require.True(t, ok)
	assert.Equal(t, FrameFormatPNG, msg.Format)
	assert.Equal(t, "aGVsbG8=", msg.Data)

	msg, ok = ParseFrameMessage([]byte(`{"type":"frame","data":"aGVsbG8=","format":"JPG"}`))
	require.True(t, ok)
	assert.Equal(t, FrameFormatJPEG, msg.Format)
}

func TestParseFrameMessageIgnoresOtherShapes(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"progress","percent":40}`,
		`{"type":"frame","format":"jpeg"}`,
		`{"type":"frame","data":"aGVsbG8=","format":"gif"}`,
		`[]`,
	} {
		_, ok := ParseFrameMessage([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestParseLiveResult(t *testing.T) {
	res, err := ParseLiveResult([]byte(`{"action":{"label":"dribble","confidence":0.91},"metrics":{"balance_score":0.7},"annotated_frame":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "dribble", res.Action.Label)
	assert.InDelta(t, 0.7, res.Metrics.BalanceScore, 1e-9)
	assert.Equal(t, "abc", res.AnnotatedFrame)

	_, err = ParseLiveResult([]byte(`{"hello":"world"}`))
	assert.Error(t, err)
	_, err = ParseLiveResult([]byte(`{`))
	assert.Error(t, err)
}
