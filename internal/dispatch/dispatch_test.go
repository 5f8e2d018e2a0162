package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillbridge/tillbridge/internal/executor"
	"github.com/tillbridge/tillbridge/internal/model"
	"github.com/tillbridge/tillbridge/internal/registry"
	"github.com/tillbridge/tillbridge/internal/render"
)

// fakeClient records every event the dispatcher sends.
type fakeClient struct {
	mu     sync.Mutex
	events []any
}

func (c *fakeClient) Send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeClient) last(t *testing.T) any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.events, "expected at least one event")
	return c.events[len(c.events)-1]
}

// inlinePool runs operations synchronously on the caller's goroutine and
// counts submissions, so tests can assert the executor was or wasn't used.
type inlinePool struct {
	submitted int
}

func (p *inlinePool) Submit(op executor.Operation) <-chan executor.Outcome {
	p.submitted++
	out := make(chan executor.Outcome, 1)
	value, err := op.Run(context.Background())
	out <- executor.Outcome{Value: value, Err: err}
	return out
}

type fakeConn struct {
	written []byte
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *fakeConn) Close() error { return nil }

// fakePrinters is a registry stand-in with scriptable cache and connections.
type fakePrinters struct {
	cache      []model.PrinterDescriptor
	refreshed  []model.PrinterDescriptor
	refreshErr error
	conn       *fakeConn
	connectErr error
	opened     int
}

func (p *fakePrinters) List() []model.PrinterDescriptor { return p.cache }

func (p *fakePrinters) Find(id string) (model.PrinterDescriptor, bool) {
	for _, d := range p.cache {
		if d.ID == id {
			return d, true
		}
	}
	return model.PrinterDescriptor{}, false
}

func (p *fakePrinters) Refresh(context.Context) ([]model.PrinterDescriptor, error) {
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	p.cache = p.refreshed
	return p.refreshed, nil
}

func (p *fakePrinters) WithConnection(ctx context.Context, printerID string, fn func(registry.Conn) error) error {
	if _, err := model.ParsePrinterID(printerID); err != nil {
		return err
	}
	if p.connectErr != nil {
		return p.connectErr
	}
	p.opened++
	if p.conn == nil {
		p.conn = &fakeConn{}
	}
	return fn(p.conn)
}

type fakeRenderer struct {
	output    []byte
	renderErr error
	lastType  model.DocumentType
	lastWidth int
}

func (r *fakeRenderer) Render(_ context.Context, docType model.DocumentType, _ render.Payload, paperWidth int, _ string) ([]byte, error) {
	r.lastType = docType
	r.lastWidth = paperWidth
	return r.output, r.renderErr
}

func (r *fakeRenderer) TestPage(string, int) []byte { return []byte("TEST PAGE") }

type fakeNotifier struct {
	err       error
	lastTitle string
	lastBody  string
}

func (n *fakeNotifier) Show(_ context.Context, title, body string) error {
	n.lastTitle = title
	n.lastBody = body
	return n.err
}

type fakeKeyboard struct {
	err         error
	lastVisible bool
}

func (k *fakeKeyboard) Toggle(_ context.Context, visible bool) error {
	k.lastVisible = visible
	return k.err
}

type fakeScanner struct{ active bool }

func (s *fakeScanner) Active() bool { return s.active }

type harness struct {
	dispatcher *Dispatcher
	client     *fakeClient
	pool       *inlinePool
	printers   *fakePrinters
	renderer   *fakeRenderer
	notifier   *fakeNotifier
	keyboard   *fakeKeyboard
}

func newHarness() *harness {
	h := &harness{
		client:   &fakeClient{},
		pool:     &inlinePool{},
		printers: &fakePrinters{},
		renderer: &fakeRenderer{output: []byte("RENDERED")},
		notifier: &fakeNotifier{},
		keyboard: &fakeKeyboard{},
	}
	h.dispatcher = New("0.4.0", h.printers, h.pool, h.renderer, h.notifier, h.keyboard, &fakeScanner{active: true}, zerolog.Nop())
	return h
}

func (h *harness) handle(t *testing.T, raw string) {
	t.Helper()
	h.dispatcher.Handle(context.Background(), h.client, []byte(raw))
}

func TestHandleRejectsInvalidJSON(t *testing.T) {
	h := newHarness()
	h.handle(t, `{not json`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeParseError, ev.Code)
}

func TestHandleRejectsNonObject(t *testing.T) {
	h := newHarness()
	h.handle(t, `["print"]`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeParseError, ev.Code)
}

func TestHandleUnknownAction(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"reboot_universe"}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeUnknownAction, ev.Code)
	assert.Equal(t, "unknown action: reboot_universe", ev.Message)
	assert.Zero(t, h.pool.submitted, "unknown actions never reach the executor")
}

func TestGetStatusAnswersFromCache(t *testing.T) {
	h := newHarness()
	h.printers.cache = []model.PrinterDescriptor{{ID: "network:10.0.0.5:9100", Status: model.StatusReady}}
	h.handle(t, `{"action":"get_status"}`)

	ev, ok := h.client.last(t).(model.StatusEvent)
	require.True(t, ok)
	assert.Equal(t, "0.4.0", ev.Version)
	assert.Len(t, ev.Printers, 1)
	assert.True(t, ev.Scanner)
	assert.Zero(t, h.pool.submitted, "get_status is the fast path")
	assert.Zero(t, h.printers.opened, "get_status touches no hardware")
}

func TestDiscoverPrintersReplacesCache(t *testing.T) {
	h := newHarness()
	h.printers.cache = []model.PrinterDescriptor{{ID: "network:10.0.0.5:9100"}}
	h.printers.refreshed = []model.PrinterDescriptor{
		{ID: "usb:0x04b8:0x0202"},
		{ID: "network:10.0.0.9:9100"},
	}

	h.handle(t, `{"action":"discover_printers"}`)
	ev, ok := h.client.last(t).(model.PrintersEvent)
	require.True(t, ok)
	assert.Len(t, ev.Printers, 2)
	assert.Equal(t, 1, h.pool.submitted)

	// The sweep result is what get_status reports from now on.
	h.handle(t, `{"action":"get_status"}`)
	status, ok := h.client.last(t).(model.StatusEvent)
	require.True(t, ok)
	assert.Len(t, status.Printers, 2)
}

func TestDiscoverPrintersFailureKeepsProtocolAlive(t *testing.T) {
	h := newHarness()
	h.printers.refreshErr = errors.New("usb bus unavailable")
	h.handle(t, `{"action":"discover_printers"}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeDiscoveryError, ev.Code)
	assert.Contains(t, ev.Message, "usb bus unavailable")
}

func TestPrintSuccess(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"print","printer_id":"network:10.0.0.5:9100","job_id":"job-1","data":{"store_name":"Corner Deli"}}`)

	ev, ok := h.client.last(t).(model.PrintCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, []byte("RENDERED"), h.printers.conn.written)
	assert.Equal(t, model.DocReceipt, h.renderer.lastType, "document_type defaults to receipt")
	assert.Equal(t, 80, h.renderer.lastWidth, "unknown printers default to 80mm")
}

func TestPrintGeneratesJobIDWhenAbsent(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"print","printer_id":"network:10.0.0.5:9100","data":{}}`)

	ev, ok := h.client.last(t).(model.PrintCompleteEvent)
	require.True(t, ok)
	assert.NotEmpty(t, ev.JobID)
}

func TestPrintMissingPrinterIDSkipsExecutor(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"print","job_id":"job-2","data":{}}`)

	ev, ok := h.client.last(t).(model.PrintErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "job-2", ev.JobID)
	assert.Equal(t, "no printer_id specified", ev.Error)
	assert.Equal(t, model.CodeMissingParam, ev.Code)
	assert.Zero(t, h.pool.submitted, "validation failures never reach the executor")
	assert.Zero(t, h.printers.opened)
}

func TestPrintBadPrinterIDNoHardwareAccess(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"print","printer_id":"teleport:far-away","job_id":"job-3","data":{}}`)

	ev, ok := h.client.last(t).(model.PrintErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "job-3", ev.JobID)
	assert.Equal(t, model.CodeBadPrinterID, ev.Code)
	assert.Zero(t, h.printers.opened, "malformed ids are rejected before any connection")
}

func TestPrintConnectionFailure(t *testing.T) {
	h := newHarness()
	h.printers.connectErr = &model.CodedError{
		Code:    model.CodeConnectionError,
		Message: "connecting to printer: connection refused",
		Kind:    model.ErrConnection,
	}
	h.handle(t, `{"action":"print","printer_id":"network:10.0.0.5:9100","job_id":"job-4","data":{}}`)

	ev, ok := h.client.last(t).(model.PrintErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "job-4", ev.JobID)
	assert.Contains(t, ev.Error, "connection refused")
	assert.Equal(t, model.CodeConnectionError, ev.Code)
}

func TestPrintRenderFailureReportsJob(t *testing.T) {
	h := newHarness()
	h.renderer.renderErr = errors.New("unknown template")
	h.handle(t, `{"action":"print","printer_id":"network:10.0.0.5:9100","job_id":"job-5","data":{}}`)

	ev, ok := h.client.last(t).(model.PrintErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "job-5", ev.JobID)
	assert.Contains(t, ev.Error, "unknown template")
}

func TestPrintUsesCachedPaperWidth(t *testing.T) {
	h := newHarness()
	h.printers.cache = []model.PrinterDescriptor{
		{ID: "usb:0x04b8:0x0202", PaperWidth: 58},
	}
	h.handle(t, `{"action":"print","printer_id":"usb:0x04b8:0x0202","data":{}}`)

	assert.Equal(t, 58, h.renderer.lastWidth)
}

func TestOpenDrawerSuccess(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"open_drawer","printer_id":"usb:0x04b8:0x0202"}`)

	ev, ok := h.client.last(t).(model.DrawerOpenedEvent)
	require.True(t, ok)
	assert.Equal(t, "usb:0x04b8:0x0202", ev.PrinterID)
	require.NotNil(t, h.printers.conn)
	assert.Equal(t, byte(0x1b), h.printers.conn.written[0], "drawer kick starts with ESC p")
	assert.Equal(t, byte('p'), h.printers.conn.written[1])
}

func TestOpenDrawerMissingPrinterID(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"open_drawer"}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeMissingParam, ev.Code)
	assert.Zero(t, h.pool.submitted)
}

func TestOpenDrawerFailure(t *testing.T) {
	h := newHarness()
	h.printers.connectErr = errors.New("broken pipe")
	h.handle(t, `{"action":"open_drawer","printer_id":"network:10.0.0.5:9100"}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeDrawerError, ev.Code)
	assert.Contains(t, ev.Message, "broken pipe")
}

func TestTestPrintSuccess(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"test_print","printer_id":"network:10.0.0.5:9100"}`)

	ev, ok := h.client.last(t).(model.PrintCompleteEvent)
	require.True(t, ok)
	assert.NotEmpty(t, ev.JobID, "test prints get a generated job id")
	assert.Equal(t, []byte("TEST PAGE"), h.printers.conn.written)
}

func TestTestPrintMissingPrinterID(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"test_print"}`)

	ev, ok := h.client.last(t).(model.PrintErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "no printer_id specified", ev.Error)
	assert.Zero(t, h.pool.submitted)
}

func TestSendNotificationSuccess(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"send_notification","title":"Order up","body":"Table 4 ready"}`)

	ev, ok := h.client.last(t).(model.NotificationSentEvent)
	require.True(t, ok)
	assert.Equal(t, "Order up", ev.Title)
	assert.Equal(t, "Table 4 ready", h.notifier.lastBody)
}

func TestSendNotificationDefaultsTitle(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"send_notification","body":"hello"}`)

	ev, ok := h.client.last(t).(model.NotificationSentEvent)
	require.True(t, ok)
	assert.Equal(t, "tillbridge", ev.Title)
}

func TestSendNotificationFailure(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("notify-send: not found")
	h.handle(t, `{"action":"send_notification","body":"hello"}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeNotificationError, ev.Code)
}

func TestToggleKeyboardDefaultsToVisible(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"toggle_keyboard"}`)

	ev, ok := h.client.last(t).(model.KeyboardToggledEvent)
	require.True(t, ok)
	assert.True(t, ev.Visible)
	assert.True(t, h.keyboard.lastVisible)
}

func TestToggleKeyboardHide(t *testing.T) {
	h := newHarness()
	h.handle(t, `{"action":"toggle_keyboard","visible":false}`)

	ev, ok := h.client.last(t).(model.KeyboardToggledEvent)
	require.True(t, ok)
	assert.False(t, ev.Visible)
	assert.False(t, h.keyboard.lastVisible)
}

func TestToggleKeyboardFailure(t *testing.T) {
	h := newHarness()
	h.keyboard.err = errors.New("virtual keyboard not supported on this platform")
	h.handle(t, `{"action":"toggle_keyboard","visible":true}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeKeyboardError, ev.Code)
}

func TestHandleRecoversFromPanickingCollaborator(t *testing.T) {
	h := newHarness()
	h.dispatcher = New("0.4.0", h.printers, h.pool, h.renderer, h.notifier, h.keyboard, panickyScanner{}, zerolog.Nop())
	h.handle(t, `{"action":"get_status"}`)

	ev, ok := h.client.last(t).(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, model.CodeInternalError, ev.Code)
}

type panickyScanner struct{}

func (panickyScanner) Active() bool { panic("scanner state corrupted") }

func TestEveryCommandGetsExactlyOneReply(t *testing.T) {
	h := newHarness()
	frames := []string{
		`{"action":"get_status"}`,
		`{"action":"print","printer_id":"network:10.0.0.5:9100","data":{}}`,
		`{"action":"open_drawer","printer_id":"network:10.0.0.5:9100"}`,
		`{"action":"nope"}`,
		`not json`,
	}
	for _, f := range frames {
		h.handle(t, f)
	}
	assert.Len(t, h.client.events, len(frames))
}
