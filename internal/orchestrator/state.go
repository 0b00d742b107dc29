package orchestrator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Result keys written by the workflow steps.
const (
	KeyInvoices       = "invoices"
	KeyInvoiceLink    = "invoice_link"
	KeyPaymentDetails = "payment_details"
)

// Unknown is used for customer fields missing from the invoice list.
const Unknown = "Unknown"

// Invoice status indicators.
const (
	InvoiceOpen = "O"
	InvoicePaid = "P"
)

const cyclicDocumentType = "CY"

// CustomerContext identifies the customer being processed. It is derived
// once from the invoice list and read-only afterwards.
type CustomerContext struct {
	CustomerID   int64  `json:"customer_id"`
	MSISIDN      string `json:"msisidn"`
	CustomerName string `json:"customer_name"`
	CustomerRUT  string `json:"customer_rut"`
}

// Results maps step keys to the raw payload each step produced.
type Results map[string]json.RawMessage

// invoiceList returns the implInvoiceLists entries of an invoice payload.
func invoiceList(payload json.RawMessage) []gjson.Result {
	return gjson.GetBytes(payload, "implInvoiceLists").Array()
}

// field returns a string field, treating null and missing alike.
func field(entry gjson.Result, name string) (string, bool) {
	v := entry.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	return v.String(), true
}

func fieldOr(entry gjson.Result, name, fallback string) string {
	if v, ok := field(entry, name); ok {
		return v
	}
	return fallback
}

// statusCounts counts open and paid invoices.
func statusCounts(invoices []gjson.Result) (open, paid int) {
	for _, inv := range invoices {
		switch inv.Get("invoiceStatusInd").String() {
		case InvoiceOpen:
			open++
		case InvoicePaid:
			paid++
		}
	}
	return open, paid
}

// firstOpen returns the first open invoice in list order.
func firstOpen(invoices []gjson.Result) (gjson.Result, bool) {
	for _, inv := range invoices {
		if inv.Get("invoiceStatusInd").String() == InvoiceOpen {
			return inv, true
		}
	}
	return gjson.Result{}, false
}

// value returns the native Go value of a field, or nil when absent.
func value(entry gjson.Result, name string) any {
	v := entry.Get(name)
	if !v.Exists() {
		return nil
	}
	return v.Value()
}
