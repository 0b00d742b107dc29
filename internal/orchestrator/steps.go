package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"

	"billing-mcp/internal/envelope"
)

// Step names as they appear in the execution log.
const (
	StepGetInvoices       = "Step 1: Get Customer Invoices"
	StepGetInvoiceLink    = "Step 2: Get Unpaid Invoice Link"
	StepGetPaymentDetails = "Step 3: Get Payment Details"
)

const (
	msgNoUnpaidInvoices = "No unpaid invoices found"
	rutType             = "RUT"
)

var (
	// ErrMissingInvoiceList is returned when the invoice payload has no
	// implInvoiceLists collection.
	ErrMissingInvoiceList = errors.New("invoice payload has no implInvoiceLists collection")
	// ErrMissingInvoiceNumber is returned when the selected invoice has no
	// billingInvoiceNumber.
	ErrMissingInvoiceNumber = errors.New("invoice entry has no billingInvoiceNumber")
)

// StepFunc performs a step. A nil result with a nil error is an empty
// outcome: the step succeeded but stores nothing.
type StepFunc func(ctx context.Context, o *Orchestrator, in Input) (result json.RawMessage, summary map[string]any, err error)

// Step describes one workflow step. Fatal steps abort the workflow on
// error; the others record the error and let the workflow continue.
type Step struct {
	Key   string
	Name  string
	Fatal bool
	// Skip, when set and true, leaves the step out entirely.
	Skip func(o *Orchestrator) bool
	Run  StepFunc
}

// Steps returns the billing workflow in execution order.
func Steps() []Step {
	return []Step{
		{Key: KeyInvoices, Name: StepGetInvoices, Fatal: true, Run: getCustomerInvoices},
		{Key: KeyInvoiceLink, Name: StepGetInvoiceLink, Run: getFirstUnpaidInvoiceLink},
		{
			Key:  KeyPaymentDetails,
			Name: StepGetPaymentDetails,
			Skip: func(o *Orchestrator) bool { return o.customer == nil },
			Run:  getPaymentDetails,
		},
	}
}

func getCustomerInvoices(ctx context.Context, o *Orchestrator, in Input) (json.RawMessage, map[string]any, error) {
	payload, err := o.gateway.ListInvoices(ctx, in.CustomerID, in.MSISIDN)
	if err != nil {
		return nil, nil, err
	}

	data, err := envelope.Unwrap(payload)
	if err != nil {
		return nil, nil, err
	}
	if !gjson.GetBytes(data, "implInvoiceLists").IsArray() {
		return nil, nil, ErrMissingInvoiceList
	}

	invoices := invoiceList(data)
	first := gjson.Result{}
	if len(invoices) > 0 {
		first = invoices[0]
	}
	o.customer = &CustomerContext{
		CustomerID:   in.CustomerID,
		MSISIDN:      in.MSISIDN,
		CustomerName: fieldOr(first, "name", Unknown),
		CustomerRUT:  fieldOr(first, "customerRut", Unknown),
	}

	open, paid := statusCounts(invoices)
	return data, map[string]any{
		"total_invoices": len(invoices),
		"open_invoices":  open,
		"paid_invoices":  paid,
		"customer_name":  o.customer.CustomerName,
	}, nil
}

func getFirstUnpaidInvoiceLink(ctx context.Context, o *Orchestrator, _ Input) (json.RawMessage, map[string]any, error) {
	unpaid, ok := firstOpen(invoiceList(o.results[KeyInvoices]))
	if !ok {
		return nil, map[string]any{"message": msgNoUnpaidInvoices}, nil
	}

	number, ok := field(unpaid, "billingInvoiceNumber")
	if !ok {
		return nil, nil, ErrMissingInvoiceNumber
	}
	cyclic := unpaid.Get("documentType").String() == cyclicDocumentType

	resp, err := o.gateway.GetInvoiceLink(ctx, number, cyclic)
	if err != nil {
		return nil, nil, err
	}

	return resp, map[string]any{
		"invoice_number": number,
		"amount":         value(unpaid, "totalAmount"),
		"due_date":       value(unpaid, "dueDate"),
		"has_link":       unpaid.Get("downloadLink").Exists(),
	}, nil
}

func getPaymentDetails(ctx context.Context, o *Orchestrator, in Input) (json.RawMessage, map[string]any, error) {
	documentID := in.documentID()
	resp, err := o.gateway.GetPaymentDetails(ctx, o.customer.CustomerRUT, rutType, documentID)
	if err != nil {
		return nil, nil, err
	}
	return resp, map[string]any{"document_id": documentID}, nil
}
