package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWrapsDataInEnvelope(t *testing.T) {
	payload, err := encode(MsgEventAck, map[string]interface{}{"version": 3})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, MsgEventAck, env.Type)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, float64(3), data["version"])
}

func TestParseShapeIDEmptyIsNil(t *testing.T) {
	id, err := parseShapeID("")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestParseShapeIDRejectsGarbage(t *testing.T) {
	_, err := parseShapeID("not-a-uuid")
	assert.Error(t, err)
}

func TestEventTimestampZeroMeansNow(t *testing.T) {
	before := time.Now()
	ts := eventTimestamp(0)
	assert.WithinDuration(t, before, ts, time.Second)
}

func TestEventTimestampNonZeroConvertsMillis(t *testing.T) {
	ts := eventTimestamp(1700000000000)
	assert.Equal(t, int64(1700000000000), ts.UnixMilli())
}

func TestBatchSyncRequestParsesLastKnownVersion(t *testing.T) {
	var req batchSyncRequest
	require.NoError(t, json.Unmarshal([]byte(`{"events":[],"lastKnownVersion":5}`), &req))
	assert.Equal(t, int64(5), req.LastKnownVersion)
}
