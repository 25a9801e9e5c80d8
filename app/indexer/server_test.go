package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lynx-network/lynx-indexer/pkg/engine"
)

func TestStatusRouter(t *testing.T) {
	setPaths(t, configYAML(`rpcUrl: "https://node.example"`), validABI)
	fe := &fakeEngine{status: engine.Status{Started: true, ChainHead: 99, NextBlock: 90, EventsIndexed: 4}}
	logger := zaptest.NewLogger(t)
	app := &App{Sequencer: newTestSequencer(t, logger, &recordingFactory{engine: fe}), Logger: logger}

	rec := httptest.NewRecorder()
	app.NewRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err := app.Sequencer.Run(context.Background())
	require.NoError(t, err)
	router := app.NewRouter()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Running", body.State)
	require.NotNil(t, body.Engine)
	require.Equal(t, uint64(99), body.Engine.ChainHead)
	require.Equal(t, uint64(4), body.Engine.EventsIndexed)
}

func TestServeStatusSkipsWithoutAddr(t *testing.T) {
	setPaths(t, configYAML(`rpcUrl: "https://node.example"`), validABI)
	t.Setenv("ADDR", "")
	logger := zaptest.NewLogger(t)
	app := &App{Sequencer: newTestSequencer(t, logger, &recordingFactory{engine: &fakeEngine{}}), Logger: logger}
	_, err := app.Sequencer.Run(context.Background())
	require.NoError(t, err)

	app.serveStatus()
	require.Nil(t, app.Server)
}

func TestServeStatusListens(t *testing.T) {
	setPaths(t, configYAML(`rpcUrl: "https://node.example"`+"\nserver:\n  addr: \"127.0.0.1:0\""), validABI)
	logger := zaptest.NewLogger(t)
	app := &App{Sequencer: newTestSequencer(t, logger, &recordingFactory{engine: &fakeEngine{}}), Logger: logger}
	_, err := app.Sequencer.Run(context.Background())
	require.NoError(t, err)

	app.serveStatus()
	require.NotNil(t, app.Server)
	require.NoError(t, app.Server.Close())
}

type unhealthyEngine struct {
	fakeEngine
	err error
}

func (u *unhealthyEngine) Health(context.Context) error { return u.err }

func TestReadyzReportsOutputHealth(t *testing.T) {
	setPaths(t, configYAML(`rpcUrl: "https://node.example"`), validABI)
	logger := zaptest.NewLogger(t)
	ue := &unhealthyEngine{err: errors.New("redis: connection refused")}

	seq := newTestSequencer(t, logger, nil)
	seq.NewEngine = func(engine.Config) (Engine, error) { return ue, nil }
	app := &App{Sequencer: seq, Logger: logger}
	_, err := seq.Run(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.NewRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ue.err = nil
	rec = httptest.NewRecorder()
	app.NewRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
