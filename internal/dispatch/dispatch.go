// Package dispatch routes inbound commands: parse, validate, execute on the
// fast path or through the hardware task executor, and reply with exactly one
// terminal event per command on the originating connection.
package dispatch

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/escpos"
	"github.com/tillbridge/tillbridge/internal/executor"
	"github.com/tillbridge/tillbridge/internal/model"
	"github.com/tillbridge/tillbridge/internal/platform"
	"github.com/tillbridge/tillbridge/internal/registry"
	"github.com/tillbridge/tillbridge/internal/render"
)

// Printers is the printer registry surface the dispatcher needs.
type Printers interface {
	List() []model.PrinterDescriptor
	Find(printerID string) (model.PrinterDescriptor, bool)
	Refresh(ctx context.Context) ([]model.PrinterDescriptor, error)
	WithConnection(ctx context.Context, printerID string, fn func(registry.Conn) error) error
}

// Submitter hands blocking operations to the task executor.
type Submitter interface {
	Submit(op executor.Operation) <-chan executor.Outcome
}

// Renderer turns print payloads into printer command streams.
type Renderer interface {
	Render(ctx context.Context, docType model.DocumentType, data render.Payload, paperWidth int, mode string) ([]byte, error)
	TestPage(printerID string, paperWidth int) []byte
}

// ScannerStatus reports whether scan capture is running.
type ScannerStatus interface {
	Active() bool
}

// Sender delivers events to the originating connection.
type Sender interface {
	Send(event any) error
}

// Dispatcher handles one inbound message at a time per connection. The
// connection's read loop calls Handle and suspends until the terminal event
// is sent, which keeps per-connection event order aligned with command order.
type Dispatcher struct {
	version  string
	printers Printers
	pool     Submitter
	renderer Renderer
	notifier platform.Notifier
	keyboard platform.Keyboard
	scanner  ScannerStatus
	log      zerolog.Logger
}

// New builds a dispatcher.
func New(
	version string,
	printers Printers,
	pool Submitter,
	renderer Renderer,
	notifier platform.Notifier,
	keyboard platform.Keyboard,
	scanner ScannerStatus,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		version:  version,
		printers: printers,
		pool:     pool,
		renderer: renderer,
		notifier: notifier,
		keyboard: keyboard,
		scanner:  scanner,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// Handle processes one raw inbound frame. Bad input is answered with an error
// event; nothing a client sends crashes the connection loop.
func (d *Dispatcher) Handle(ctx context.Context, client Sender, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("handler panicked")
			d.send(client, model.NewErrorEvent("internal error", model.CodeInternalError))
		}
	}()

	cmd, err := model.ParseCommand(raw)
	if err != nil {
		d.send(client, model.NewErrorEvent(err.Error(), model.ErrorCode(err)))
		return
	}

	d.log.Debug().Str("action", cmd.Action).Msg("command received")

	switch cmd.Action {
	case model.ActionGetStatus:
		d.handleGetStatus(client)
	case model.ActionDiscoverPrinters:
		d.handleDiscoverPrinters(ctx, client)
	case model.ActionPrint:
		d.handlePrint(ctx, client, cmd)
	case model.ActionOpenDrawer:
		d.handleOpenDrawer(ctx, client, cmd)
	case model.ActionTestPrint:
		d.handleTestPrint(ctx, client, cmd)
	case model.ActionSendNotification:
		d.handleSendNotification(ctx, client, cmd)
	case model.ActionToggleKeyboard:
		d.handleToggleKeyboard(ctx, client, cmd)
	default:
		d.send(client, model.NewErrorEvent("unknown action: "+cmd.Action, model.CodeUnknownAction))
	}
}

// Status builds the current status snapshot. The server also uses it for the
// join-time event and the health probe.
func (d *Dispatcher) Status() model.StatusEvent {
	return model.NewStatusEvent(d.version, d.printers.List(), d.scanner.Active())
}

// handleGetStatus answers from the cache; no hardware is touched.
func (d *Dispatcher) handleGetStatus(client Sender) {
	d.send(client, d.Status())
}

func (d *Dispatcher) handleDiscoverPrinters(ctx context.Context, client Sender) {
	outcome := <-d.pool.Submit(executor.Operation{
		Kind: executor.OpDiscover,
		Run: func(ctx context.Context) (any, error) {
			return d.printers.Refresh(ctx)
		},
	})
	if outcome.Err != nil {
		d.log.Error().Err(outcome.Err).Msg("discovery failed")
		d.send(client, model.NewErrorEvent("discovery failed: "+outcome.Err.Error(), model.CodeDiscoveryError))
		return
	}

	printers, _ := outcome.Value.([]model.PrinterDescriptor)
	d.log.Info().Int("count", len(printers)).Msg("discovery finished")
	d.send(client, model.NewPrintersEvent(printers))
}

func (d *Dispatcher) handlePrint(ctx context.Context, client Sender, cmd model.Command) {
	jobID := cmd.JobID
	if jobID == "" {
		jobID = model.GenerateJobID()
	}
	if cmd.PrinterID == "" {
		d.send(client, model.NewCodedPrintErrorEvent(jobID, "no printer_id specified", model.CodeMissingParam))
		return
	}

	data, err := render.DecodePayload(cmd.Data)
	if err != nil {
		d.send(client, printErrorEvent(jobID, err))
		return
	}

	docType := model.DocumentType(cmd.DocumentType)
	if docType == "" {
		docType = model.DocReceipt
	}
	width := d.paperWidth(cmd.PrinterID)

	outcome := <-d.pool.Submit(executor.Operation{
		Kind:  executor.OpPrint,
		JobID: jobID,
		Run: func(ctx context.Context) (any, error) {
			return nil, d.printers.WithConnection(ctx, cmd.PrinterID, func(conn registry.Conn) error {
				payload, rerr := d.renderer.Render(ctx, docType, data, width, cmd.Render)
				if rerr != nil {
					return rerr
				}
				_, werr := conn.Write(payload)
				return werr
			})
		},
	})
	if outcome.Err != nil {
		d.log.Error().Err(outcome.Err).Str("job_id", jobID).Str("printer_id", cmd.PrinterID).Msg("print job failed")
		d.send(client, printErrorEvent(jobID, outcome.Err))
		return
	}

	d.log.Info().Str("job_id", jobID).Str("printer_id", cmd.PrinterID).Msg("print job completed")
	d.send(client, model.NewPrintCompleteEvent(jobID))
}

func (d *Dispatcher) handleOpenDrawer(ctx context.Context, client Sender, cmd model.Command) {
	if cmd.PrinterID == "" {
		d.send(client, model.NewErrorEvent("no printer_id specified", model.CodeMissingParam))
		return
	}

	outcome := <-d.pool.Submit(executor.Operation{
		Kind: executor.OpDrawer,
		Run: func(ctx context.Context) (any, error) {
			return nil, d.printers.WithConnection(ctx, cmd.PrinterID, func(conn registry.Conn) error {
				_, werr := conn.Write(escpos.KickPulse(cmd.Pin))
				return werr
			})
		},
	})
	if outcome.Err != nil {
		d.log.Error().Err(outcome.Err).Str("printer_id", cmd.PrinterID).Msg("drawer kick failed")
		d.send(client, model.NewErrorEvent("drawer error: "+outcome.Err.Error(), model.CodeDrawerError))
		return
	}

	d.log.Info().Str("printer_id", cmd.PrinterID).Msg("cash drawer opened")
	d.send(client, model.NewDrawerOpenedEvent(cmd.PrinterID))
}

func (d *Dispatcher) handleTestPrint(ctx context.Context, client Sender, cmd model.Command) {
	jobID := cmd.JobID
	if jobID == "" {
		jobID = model.GenerateJobID()
	}
	if cmd.PrinterID == "" {
		d.send(client, model.NewCodedPrintErrorEvent(jobID, "no printer_id specified", model.CodeMissingParam))
		return
	}

	page := d.renderer.TestPage(cmd.PrinterID, d.paperWidth(cmd.PrinterID))
	outcome := <-d.pool.Submit(executor.Operation{
		Kind:  executor.OpTestPrint,
		JobID: jobID,
		Run: func(ctx context.Context) (any, error) {
			return nil, d.printers.WithConnection(ctx, cmd.PrinterID, func(conn registry.Conn) error {
				_, werr := conn.Write(page)
				return werr
			})
		},
	})
	if outcome.Err != nil {
		d.log.Error().Err(outcome.Err).Str("printer_id", cmd.PrinterID).Msg("test print failed")
		d.send(client, printErrorEvent(jobID, outcome.Err))
		return
	}

	d.log.Info().Str("printer_id", cmd.PrinterID).Msg("test print completed")
	d.send(client, model.NewPrintCompleteEvent(jobID))
}

func (d *Dispatcher) handleSendNotification(ctx context.Context, client Sender, cmd model.Command) {
	title := cmd.Title
	if title == "" {
		title = "tillbridge"
	}

	outcome := <-d.pool.Submit(executor.Operation{
		Kind: executor.OpNotify,
		Run: func(ctx context.Context) (any, error) {
			return nil, d.notifier.Show(ctx, title, cmd.Body)
		},
	})
	if outcome.Err != nil {
		d.log.Error().Err(outcome.Err).Msg("notification failed")
		d.send(client, model.NewErrorEvent("notification error: "+outcome.Err.Error(), model.CodeNotificationError))
		return
	}

	d.send(client, model.NewNotificationSentEvent(title))
}

func (d *Dispatcher) handleToggleKeyboard(ctx context.Context, client Sender, cmd model.Command) {
	visible := true
	if cmd.Visible != nil {
		visible = *cmd.Visible
	}

	outcome := <-d.pool.Submit(executor.Operation{
		Kind: executor.OpKeyboard,
		Run: func(ctx context.Context) (any, error) {
			return nil, d.keyboard.Toggle(ctx, visible)
		},
	})
	if outcome.Err != nil {
		d.log.Error().Err(outcome.Err).Msg("keyboard toggle failed")
		d.send(client, model.NewErrorEvent("keyboard error: "+outcome.Err.Error(), model.CodeKeyboardError))
		return
	}

	d.log.Info().Bool("visible", visible).Msg("keyboard toggled")
	d.send(client, model.NewKeyboardToggledEvent(visible))
}

// printErrorEvent maps a job failure to its terminal event, carrying the wire
// code when the error has one.
func printErrorEvent(jobID string, err error) model.PrintErrorEvent {
	var coded *model.CodedError
	if errors.As(err, &coded) {
		return model.NewCodedPrintErrorEvent(jobID, coded.Message, coded.Code)
	}
	return model.NewPrintErrorEvent(jobID, err.Error())
}

// paperWidth looks the printer up in the cache; unknown printers get the
// common 80 mm default.
func (d *Dispatcher) paperWidth(printerID string) int {
	if p, ok := d.printers.Find(printerID); ok && p.PaperWidth > 0 {
		return p.PaperWidth
	}
	return 80
}

// send delivers the reply. A failed send means the client disconnected
// mid-command; the job outcome stands regardless.
func (d *Dispatcher) send(client Sender, event any) {
	if err := client.Send(event); err != nil {
		d.log.Debug().Err(err).Msg("reply not delivered, client gone")
	}
}
