package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Actions accepted from the client. Messages carry exactly one of "action"
// (inbound) or "event" (outbound).
const (
	ActionGetStatus        = "get_status"
	ActionDiscoverPrinters = "discover_printers"
	ActionPrint            = "print"
	ActionOpenDrawer       = "open_drawer"
	ActionTestPrint        = "test_print"
	ActionSendNotification = "send_notification"
	ActionToggleKeyboard   = "toggle_keyboard"
)

// Command is an inbound message. Only the fields relevant to the action are
// set; validation of required fields is per action.
type Command struct {
	Action       string          `json:"action"`
	PrinterID    string          `json:"printer_id,omitempty"`
	JobID        string          `json:"job_id,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	Render       string          `json:"render,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Pin          int             `json:"pin,omitempty"`
	Title        string          `json:"title,omitempty"`
	Body         string          `json:"body,omitempty"`
	Visible      *bool           `json:"visible,omitempty"`
}

// ParseCommand decodes one inbound frame. It rejects invalid JSON, bodies
// that are not objects, and objects lacking both "action" and "event".
func ParseCommand(raw []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Command{}, &CodedError{
			Code:    CodeParseError,
			Message: "invalid JSON: " + err.Error(),
			Kind:    ErrProtocol,
		}
	}
	if fields == nil {
		return Command{}, &CodedError{
			Code:    CodeParseError,
			Message: "message must be a JSON object",
			Kind:    ErrProtocol,
		}
	}
	if _, hasAction := fields["action"]; !hasAction {
		if _, hasEvent := fields["event"]; !hasEvent {
			return Command{}, &CodedError{
				Code:    CodeParseError,
				Message: "message must have 'action' or 'event' key",
				Kind:    ErrProtocol,
			}
		}
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, &CodedError{
			Code:    CodeParseError,
			Message: "invalid message: " + err.Error(),
			Kind:    ErrProtocol,
		}
	}
	return cmd, nil
}

// GenerateJobID returns a fresh unique job ID for commands that omit one.
func GenerateJobID() string { return uuid.NewString() }

// Outbound events. Each event is its own struct so required fields are always
// serialized (an empty printer list still appears as []).

// StatusEvent is the snapshot sent on join and in reply to get_status.
type StatusEvent struct {
	Event    string              `json:"event"`
	Version  string              `json:"version"`
	Printers []PrinterDescriptor `json:"printers"`
	Scanner  bool                `json:"scanner"`
}

func NewStatusEvent(version string, printers []PrinterDescriptor, scannerActive bool) StatusEvent {
	if printers == nil {
		printers = []PrinterDescriptor{}
	}
	return StatusEvent{Event: "status", Version: version, Printers: printers, Scanner: scannerActive}
}

// PrintersEvent carries the result of a discovery sweep.
type PrintersEvent struct {
	Event    string              `json:"event"`
	Printers []PrinterDescriptor `json:"printers"`
}

func NewPrintersEvent(printers []PrinterDescriptor) PrintersEvent {
	if printers == nil {
		printers = []PrinterDescriptor{}
	}
	return PrintersEvent{Event: "printers", Printers: printers}
}

// PrintCompleteEvent is the success terminal event for print and test_print.
type PrintCompleteEvent struct {
	Event string `json:"event"`
	JobID string `json:"job_id"`
}

func NewPrintCompleteEvent(jobID string) PrintCompleteEvent {
	return PrintCompleteEvent{Event: "print_complete", JobID: jobID}
}

// PrintErrorEvent is the failure terminal event for print and test_print.
// Code is set when the failure maps to a known error code.
type PrintErrorEvent struct {
	Event string `json:"event"`
	JobID string `json:"job_id"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func NewPrintErrorEvent(jobID, message string) PrintErrorEvent {
	return PrintErrorEvent{Event: "print_error", JobID: jobID, Error: message}
}

func NewCodedPrintErrorEvent(jobID, message, code string) PrintErrorEvent {
	return PrintErrorEvent{Event: "print_error", JobID: jobID, Error: message, Code: code}
}

// DrawerOpenedEvent confirms a cash drawer kick.
type DrawerOpenedEvent struct {
	Event     string `json:"event"`
	PrinterID string `json:"printer_id"`
}

func NewDrawerOpenedEvent(printerID string) DrawerOpenedEvent {
	return DrawerOpenedEvent{Event: "drawer_opened", PrinterID: printerID}
}

// BarcodeEvent is broadcast when the scan detector emits a result.
type BarcodeEvent struct {
	Event string `json:"event"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

func NewBarcodeEvent(value, barcodeType string) BarcodeEvent {
	return BarcodeEvent{Event: "barcode", Value: value, Type: barcodeType}
}

// KeyboardToggledEvent confirms a virtual keyboard toggle.
type KeyboardToggledEvent struct {
	Event   string `json:"event"`
	Visible bool   `json:"visible"`
}

func NewKeyboardToggledEvent(visible bool) KeyboardToggledEvent {
	return KeyboardToggledEvent{Event: "keyboard_toggled", Visible: visible}
}

// NotificationSentEvent confirms an OS notification was shown.
type NotificationSentEvent struct {
	Event string `json:"event"`
	Title string `json:"title"`
}

func NewNotificationSentEvent(title string) NotificationSentEvent {
	return NotificationSentEvent{Event: "notification_sent", Title: title}
}

// ErrorEvent is the generic failure event for commands without a job ID.
type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewErrorEvent(message, code string) ErrorEvent {
	return ErrorEvent{Event: "error", Message: message, Code: code}
}
