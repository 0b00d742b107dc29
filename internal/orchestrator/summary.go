package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

var rule = strings.Repeat("=", 80)

// Report is the persisted state of a run.
type Report struct {
	CustomerData *CustomerContext `json:"customer_data"`
	Results      Results          `json:"results"`
	ExecutionLog []StepRecord     `json:"execution_log"`
}

// Report snapshots the current run state.
func (o *Orchestrator) Report() *Report {
	return &Report{
		CustomerData: o.Customer(),
		Results:      o.Results(),
		ExecutionLog: o.log.Records(),
	}
}

func (o *Orchestrator) printBanner(in Input) {
	fmt.Fprintln(o.out, rule)
	fmt.Fprintln(o.out, "BILLING PROCESS ORCHESTRATOR")
	fmt.Fprintln(o.out, rule)
	fmt.Fprintln(o.out, "\nThis orchestrator will execute a complete business process:")
	fmt.Fprintln(o.out, "1. Retrieve customer invoices")
	fmt.Fprintln(o.out, "2. Get download link for unpaid invoice")
	fmt.Fprintln(o.out, "3. Get payment details (if available)")
	fmt.Fprintf(o.out, "\nProcessing customer: %d (Phone: %s)\n", in.CustomerID, in.MSISIDN)
	fmt.Fprintln(o.out, rule)
}

// PrintSummary writes the end-of-run summary to the progress stream.
func (o *Orchestrator) PrintSummary() {
	w := o.out
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, "PROCESS ORCHESTRATION SUMMARY")
	fmt.Fprintln(w, rule)

	if c := o.customer; c != nil {
		fmt.Fprintln(w, "\nCustomer Information:")
		fmt.Fprintf(w, "  Name: %s\n", c.CustomerName)
		fmt.Fprintf(w, "  RUT: %s\n", c.CustomerRUT)
		fmt.Fprintf(w, "  Account ID: %d\n", c.CustomerID)
		fmt.Fprintf(w, "  Phone: %s\n", c.MSISIDN)
	}

	if payload, ok := o.results[KeyInvoices]; ok {
		invoices := invoiceList(payload)
		fmt.Fprintln(w, "\nInvoice Summary:")
		fmt.Fprintf(w, "  Total invoices: %d\n", len(invoices))
		for _, inv := range invoices {
			label := "PAID"
			if inv.Get("invoiceStatusInd").String() == InvoiceOpen {
				label = "OPEN"
			}
			fmt.Fprintf(w, "    - %s: $%s CLP (%s)\n",
				inv.Get("billingInvoiceNumber").String(), inv.Get("totalAmount").String(), label)
		}
	}

	fmt.Fprintln(w, "\nExecution Log:")
	for _, rec := range o.log.Outcomes() {
		fmt.Fprintf(w, "  [%s] %s\n", rec.Status.Marker(), rec.Step)
	}
}

// Finish prints the summary and persists the report. The summary is always
// printed; the returned error only reports a failed save.
func (o *Orchestrator) Finish(ctx context.Context) error {
	o.PrintSummary()
	defer fmt.Fprintln(o.out, rule)

	if o.sink == nil {
		return nil
	}
	location, err := o.sink.Save(ctx, o.Report())
	if err != nil {
		fmt.Fprintf(o.out, "\n✗ Failed to save results: %v\n", err)
		o.logger.Error("failed to save report", "error", err)
		return fmt.Errorf("save report: %w", err)
	}
	fmt.Fprintf(o.out, "\n✓ Results saved to: %s\n", location)
	return nil
}
