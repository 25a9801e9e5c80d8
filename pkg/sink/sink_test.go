package sink

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent() Event {
	return Event{
		ChainID:     1,
		Contract:    "0x00000000219ab540356cbb839cbe05303d7705fa",
		Name:        "Transfer",
		BlockNumber: 16,
		TxHash:      "0xabc",
		LogIndex:    3,
		Args:        map[string]any{"value": big.NewInt(1000)},
	}
}

type fakeStream struct {
	stream    string
	values    map[string]interface{}
	published []string
	err       error
}

func (f *fakeStream) XAdd(_ context.Context, stream string, values map[string]interface{}) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stream = stream
	f.values = values
	return "1-0", nil
}

func (f *fakeStream) Publish(_ context.Context, channel string, message interface{}) {
	f.published = append(f.published, channel+"|"+message.(string))
}

func TestRedisSinkPublish(t *testing.T) {
	fs := &fakeStream{}
	s := &RedisSink{Client: fs, Stream: "lynx:events", Channel: "lynx:notify"}

	require.NoError(t, s.Publish(context.Background(), sampleEvent()))
	require.Equal(t, "lynx:events", fs.stream)
	require.Equal(t, "0xabc:3", fs.values["id"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(fs.values["data"].([]byte), &decoded))
	require.Equal(t, "Transfer", decoded["event"])
	require.EqualValues(t, 1000, decoded["args"].(map[string]any)["value"])

	require.Equal(t, []string{`lynx:notify|{"streamId":"1-0","event":"Transfer","block":16}`}, fs.published)
}

func TestRedisSinkPropagatesStreamErrors(t *testing.T) {
	fs := &fakeStream{err: errors.New("READONLY")}
	s := &RedisSink{Client: fs, Stream: "s", Channel: "c"}

	require.Error(t, s.Publish(context.Background(), sampleEvent()))
	require.Empty(t, fs.published)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := &LogSink{Logger: zap.New(core)}

	require.NoError(t, s.Publish(context.Background(), sampleEvent()))
	require.Equal(t, 1, logs.FilterMessage("Contract event").Len())
}
