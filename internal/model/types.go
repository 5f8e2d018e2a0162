package model

// Transport is the physical connection medium to a printer.
type Transport string

const (
	TransportUSB       Transport = "usb"
	TransportNetwork   Transport = "network"
	TransportBluetooth Transport = "bluetooth"
)

// PrinterStatus is the last observed state of a discovered printer.
type PrinterStatus string

const (
	StatusReady   PrinterStatus = "ready"
	StatusBusy    PrinterStatus = "busy"
	StatusError   PrinterStatus = "error"
	StatusOffline PrinterStatus = "offline"
)

// PrinterDescriptor describes one discoverable printer. ID encodes the
// transport and connection parameters (see ParsePrinterID) and is the only
// identity of the device: two descriptors with the same ID are the same
// physical printer.
type PrinterDescriptor struct {
	ID         string        `json:"id" mapstructure:"id"`
	Name       string        `json:"name" mapstructure:"name"`
	Transport  Transport     `json:"type" mapstructure:"type"`
	Status     PrinterStatus `json:"status" mapstructure:"status"`
	PaperWidth int           `json:"paper_width" mapstructure:"paper_width"`
}

// DocumentType selects a renderer for a print job payload.
type DocumentType string

const (
	DocReceipt      DocumentType = "receipt"
	DocKitchenOrder DocumentType = "kitchen_order"
	DocInvoice      DocumentType = "invoice"
	DocDeliveryNote DocumentType = "delivery_note"
	DocBarcodeLabel DocumentType = "barcode_label"
	DocCashReport   DocumentType = "cash_session_report"
)
