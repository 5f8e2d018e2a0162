package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillbridge/tillbridge/internal/dispatch"
	"github.com/tillbridge/tillbridge/internal/executor"
	"github.com/tillbridge/tillbridge/internal/hub"
	"github.com/tillbridge/tillbridge/internal/model"
	"github.com/tillbridge/tillbridge/internal/registry"
	"github.com/tillbridge/tillbridge/internal/render"
	"github.com/tillbridge/tillbridge/internal/scanner"
)

type stubPrinters struct {
	cache []model.PrinterDescriptor
}

func (p *stubPrinters) List() []model.PrinterDescriptor { return p.cache }

func (p *stubPrinters) Find(string) (model.PrinterDescriptor, bool) {
	return model.PrinterDescriptor{}, false
}

func (p *stubPrinters) Refresh(context.Context) ([]model.PrinterDescriptor, error) {
	return p.cache, nil
}

func (p *stubPrinters) WithConnection(context.Context, string, func(registry.Conn) error) error {
	return nil
}

type stubPool struct{}

func (stubPool) Submit(op executor.Operation) <-chan executor.Outcome {
	out := make(chan executor.Outcome, 1)
	value, err := op.Run(context.Background())
	out <- executor.Outcome{Value: value, Err: err}
	return out
}

type stubRenderer struct{}

func (stubRenderer) Render(context.Context, model.DocumentType, render.Payload, int, string) ([]byte, error) {
	return []byte("x"), nil
}

func (stubRenderer) TestPage(string, int) []byte { return []byte("x") }

type stubNotifier struct{}

func (stubNotifier) Show(context.Context, string, string) error { return nil }

type stubKeyboard struct{}

func (stubKeyboard) Toggle(context.Context, bool) error { return nil }

type stubScanner struct{ active bool }

func (s stubScanner) Active() bool { return s.active }

func newTestServer(t *testing.T, printers []model.PrinterDescriptor) (*Server, *httptest.Server) {
	t.Helper()
	d := dispatch.New(
		"0.4.0-test",
		&stubPrinters{cache: printers},
		stubPool{},
		stubRenderer{},
		stubNotifier{},
		stubKeyboard{},
		stubScanner{active: true},
		zerolog.Nop(),
	)
	s := New(d, hub.New(zerolog.Nop()), zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t, []model.PrinterDescriptor{{ID: "network:10.0.0.5:9100"}})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "0.4.0-test", body["version"])
	assert.Equal(t, float64(1), body["printer_count"])
	assert.Equal(t, true, body["scanner_active"])
}

func TestConnectionReceivesSnapshotFirst(t *testing.T) {
	_, ts := newTestServer(t, []model.PrinterDescriptor{
		{ID: "usb:0x04b8:0x0202", Name: "Epson TM-T20", Transport: model.TransportUSB},
	})
	conn := dialWS(t, ts)

	snapshot := readEvent(t, conn)
	assert.Equal(t, "status", snapshot["event"])
	assert.Equal(t, "0.4.0-test", snapshot["version"])

	printers, ok := snapshot["printers"].([]any)
	require.True(t, ok, "printers must be a list even before any command")
	assert.Len(t, printers, 1)
}

func TestCommandReplyRoundTrip(t *testing.T) {
	_, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)
	readEvent(t, conn) // snapshot

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_status"}`)))
	reply := readEvent(t, conn)
	assert.Equal(t, "status", reply["event"])
}

func TestMalformedFrameKeepsConnectionAlive(t *testing.T) {
	_, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)
	readEvent(t, conn) // snapshot

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{broken`)))
	reply := readEvent(t, conn)
	assert.Equal(t, "error", reply["event"])
	assert.Equal(t, "parse_error", reply["code"])

	// The connection is still usable afterwards.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_status"}`)))
	reply = readEvent(t, conn)
	assert.Equal(t, "status", reply["event"])
}

func TestScanBroadcastReachesAllClients(t *testing.T) {
	s, ts := newTestServer(t, nil)

	results := make(chan scanner.Result, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.PumpScans(ctx, results)

	first := dialWS(t, ts)
	second := dialWS(t, ts)
	readEvent(t, first)
	readEvent(t, second)

	// Registration happens just after the snapshot send; wait for both
	// clients to be in the broadcast set before emitting the scan.
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body["client_count"] == float64(2)
	}, 2*time.Second, 10*time.Millisecond)

	results <- scanner.Result{Value: "5901234123457", Kind: "EAN13"}

	for _, conn := range []*websocket.Conn{first, second} {
		ev := readEvent(t, conn)
		assert.Equal(t, "barcode", ev["event"])
		assert.Equal(t, "5901234123457", ev["value"])
		assert.Equal(t, "EAN13", ev["type"])
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
