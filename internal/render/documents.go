package render

import (
	"fmt"
	"time"

	"github.com/tillbridge/tillbridge/internal/escpos"
	"github.com/tillbridge/tillbridge/internal/model"
)

// Document renders a document of the given type to an ESC/POS command stream.
// Unknown document types fall back to the generic key/value renderer, so a
// newer front-end never gets a hard failure out of an older bridge.
func Document(docType model.DocumentType, data Payload, columns int) []byte {
	d := escpos.NewDocument(columns)

	switch docType {
	case model.DocReceipt, model.DocInvoice:
		// Invoices on thermal paper share the receipt layout.
		renderReceipt(d, data)
	case model.DocKitchenOrder:
		renderKitchenOrder(d, data)
	case model.DocDeliveryNote:
		renderDeliveryNote(d, data)
	case model.DocBarcodeLabel:
		renderBarcodeLabel(d, data)
	case model.DocCashReport:
		renderCashReport(d, data)
	default:
		renderGeneric(d, data)
	}

	return d.Bytes()
}

// TestPage renders the framed connectivity test page.
func TestPage(printerID string, columns int, version string) []byte {
	d := escpos.NewDocument(columns)

	d.SetStyle(escpos.Style{Align: escpos.AlignCenter})
	d.Divider('=')
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true, DoubleHeight: true})
	d.Line("tillbridge")
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter})
	d.Divider('-')
	d.Line("Test Print OK")
	d.Line(time.Now().Format("2006-01-02 15:04:05"))
	d.Divider('-')
	d.Line("Printer: " + printerID)
	d.Line("Bridge:  v" + version)
	d.Divider('=')
	d.Cut()

	return d.Bytes()
}

func renderReceipt(d *escpos.Document, data Payload) {
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true})
	business := data.Str("business_name")
	if business == "" {
		business = "Receipt"
	}
	d.Line(business)

	d.SetStyle(escpos.Style{Align: escpos.AlignCenter})
	if addr := data.Str("business_address"); addr != "" {
		d.Line(addr)
	}
	if vat := data.Str("vat_number"); vat != "" {
		d.Line("VAT: " + vat)
	}
	if phone := data.Str("phone"); phone != "" {
		d.Line("Tel: " + phone)
	}
	d.Divider('=')

	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	d.Line("Ticket: " + data.Str("receipt_id"))
	d.Line("Date: " + time.Now().Format("02/01/2006 15:04"))
	if cashier := data.Str("cashier"); cashier != "" {
		d.Line("Cashier: " + cashier)
	}
	if customer := data.Str("customer_name"); customer != "" {
		d.Line("Customer: " + customer)
	}
	d.Divider('-')

	for _, item := range data.Items("items") {
		qty, _ := item.Num("quantity")
		if qty == 0 {
			qty = 1
		}
		total, _ := item.Num("total")
		d.PaddedLine(fmt.Sprintf("%dx %s", int(qty), item.Str("name")), Money(total))
		if notes := item.Str("notes"); notes != "" {
			d.Line("  > " + notes)
		}
	}
	d.Divider('-')

	if subtotal, ok := data.Num("subtotal"); ok {
		d.PaddedLine("Subtotal", Money(subtotal))
	}
	if tax, ok := data.Num("tax_amount"); ok {
		label := data.Str("tax_label")
		if label == "" {
			label = "Tax"
		}
		d.PaddedLine(label, Money(tax))
	}
	if discount, ok := data.Num("discount"); ok && discount > 0 {
		d.PaddedLine("Discount", Money(-discount))
	}

	d.Divider('=')
	d.SetStyle(escpos.Style{Align: escpos.AlignLeft, Bold: true, DoubleHeight: true})
	total, _ := data.Num("total")
	d.PaddedLine("TOTAL", Money(total))
	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	d.Divider('=')

	if method := data.Str("payment_method"); method != "" {
		d.Line("Payment: " + method)
	}
	if paid, ok := data.Num("paid"); ok {
		d.PaddedLine("Paid", Money(paid))
	}
	if change, ok := data.Num("change"); ok && change > 0 {
		d.PaddedLine("Change", Money(change))
	}

	d.Line("")
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter})
	if header := data.Str("receipt_header"); header != "" {
		d.Line(header)
	}
	if footer := data.Str("receipt_footer"); footer != "" {
		d.Line(footer)
	}
	d.Line("")
	d.Line("Thank you for your purchase")
	d.Line("")
	d.Cut()
}

func renderKitchenOrder(d *escpos.Document, data Payload) {
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true, DoubleHeight: true, DoubleWidth: true})
	d.Line("KITCHEN")

	orderNumber := data.Str("receipt_id")
	if orderNumber == "" {
		orderNumber = data.Str("order_number")
	}
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true, DoubleHeight: true})
	d.Line("#" + orderNumber)

	d.SetStyle(escpos.Style{Align: escpos.AlignCenter})
	d.Divider('=')

	if table := data.Str("table"); table != "" {
		d.SetStyle(escpos.Style{Align: escpos.AlignLeft, Bold: true, DoubleHeight: true})
		d.Line("Table: " + table)
	}
	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	if waiter := data.Str("waiter"); waiter != "" {
		d.Line("Waiter: " + waiter)
	}
	d.Line("Time: " + time.Now().Format("15:04"))
	d.Divider('-')

	// Big text so the kitchen can read it from a distance.
	for _, item := range data.Items("items") {
		qty, _ := item.Num("quantity")
		if qty == 0 {
			qty = 1
		}
		d.SetStyle(escpos.Style{Align: escpos.AlignLeft, Bold: true, DoubleHeight: true})
		d.Line(fmt.Sprintf("%dx %s", int(qty), item.Str("name")))
		if notes := item.Str("notes"); notes != "" {
			d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
			d.Line("   >> " + notes)
		}
	}
	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	d.Divider('=')

	if data.Str("priority") == "HIGH" {
		d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true, DoubleHeight: true})
		d.Line("!! URGENT !!")
	}

	d.Line("")
	d.Cut()
}

func renderDeliveryNote(d *escpos.Document, data Payload) {
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true})
	d.Line("DELIVERY NOTE")
	d.Divider('=')

	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	d.Line("No: " + data.Str("receipt_id"))
	d.Line("Date: " + time.Now().Format("02/01/2006 15:04"))
	if customer := data.Str("customer_name"); customer != "" {
		d.Line("Customer: " + customer)
	}
	if addr := data.Str("delivery_address"); addr != "" {
		d.Line("Address: " + addr)
	}
	d.Divider('-')

	for _, item := range data.Items("items") {
		qty, _ := item.Num("quantity")
		if qty == 0 {
			qty = 1
		}
		d.Line(fmt.Sprintf("%dx %s", int(qty), item.Str("name")))
	}
	d.Divider('=')
	d.Line("")
	d.Line("Signature: _______________")
	d.Line("")
	d.Cut()
}

func renderBarcodeLabel(d *escpos.Document, data Payload) {
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true})
	d.Line(data.Str("product_name"))

	if value := data.Str("barcode"); value != "" {
		d.Barcode(value)
		d.Line("")
	}

	if price, ok := data.Num("price"); ok {
		d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true, DoubleHeight: true})
		d.Line(Money(price))
	}
	d.Cut()
}

func renderCashReport(d *escpos.Document, data Payload) {
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true})
	d.Line("CASH SESSION REPORT")
	d.Divider('=')

	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	d.Line("Session: " + data.Str("receipt_id"))
	d.Line("Date: " + time.Now().Format("02/01/2006 15:04"))
	if cashier := data.Str("cashier"); cashier != "" {
		d.Line("Cashier: " + cashier)
	}
	d.Divider('-')

	opening, _ := data.Num("opening_balance")
	closing, _ := data.Num("closing_balance")
	d.PaddedLine("Opening", Money(opening))
	d.PaddedLine("Closing", Money(closing))
	d.PaddedLine("Difference", Money(closing-opening))
	d.Divider('-')

	for _, tx := range data.Items("transactions") {
		label := tx.Str("label")
		if label == "" {
			label = tx.Str("type")
		}
		amount, _ := tx.Num("amount")
		d.PaddedLine(label, Money(amount))
	}
	d.Divider('=')
	d.Line("")
	d.Cut()
}

func renderGeneric(d *escpos.Document, data Payload) {
	d.SetStyle(escpos.Style{Align: escpos.AlignCenter, Bold: true})
	title := data.Str("title")
	if title == "" {
		title = "Document"
	}
	d.Line(title)
	d.Divider('=')

	d.SetStyle(escpos.Style{Align: escpos.AlignLeft})
	for key, value := range data {
		if key == "title" || key == "receipt_id" {
			continue
		}
		d.Line(fmt.Sprintf("%s: %v", key, value))
	}
	d.Divider('=')
	d.Line("")
	d.Cut()
}
