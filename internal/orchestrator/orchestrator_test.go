package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/metric/noop"

	"billing-mcp/internal/envelope"
)

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListInvoices(ctx context.Context, customerID int64, msisidn string) (json.RawMessage, error) {
	args := m.Called(ctx, customerID, msisidn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockGateway) GetInvoiceLink(ctx context.Context, number string, cyclic bool) (json.RawMessage, error) {
	args := m.Called(ctx, number, cyclic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockGateway) GetPaymentDetails(ctx context.Context, id, idType, document string) (json.RawMessage, error) {
	args := m.Called(ctx, id, idType, document)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type captureSink struct {
	report *Report
	err    error
}

func (s *captureSink) Save(ctx context.Context, r *Report) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.report = r
	return "mem://orchestrator_results.json", nil
}

const (
	testCustomer = int64(45829374)
	testPhone    = "56987654321"
)

var testInput = Input{CustomerID: testCustomer, MSISIDN: testPhone}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

const twoInvoices = `{"implInvoiceLists":[
	{"billingInvoiceNumber":"INV1","invoiceStatusInd":"O","documentType":"CY","totalAmount":15990,"dueDate":"2024-05-10","name":"Ana Perez","customerRut":"12345678-9","downloadLink":"https://x/INV1"},
	{"billingInvoiceNumber":"INV0","invoiceStatusInd":"P","documentType":"CY","totalAmount":14990,"dueDate":"2024-04-10","name":"Ana Perez","customerRut":"12345678-9"}
]}`

func newTestOrchestrator(gw Gateway, opts ...Option) (*Orchestrator, *bytes.Buffer) {
	var out bytes.Buffer
	base := []Option{WithOutput(&out), WithMeter(noop.NewMeterProvider().Meter("test"))}
	return New(gw, append(base, opts...)...), &out
}

func stepsAndStatuses(records []StepRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.Step+"/"+string(r.Status))
	}
	return out
}

func TestScenarioA_OpenAndPaidInvoices(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(twoInvoices), nil)
	gw.On("GetInvoiceLink", mock.Anything, "INV1", true).Return(raw(`{"link":"https://x/INV1.pdf"}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, "12345678-9", "RUT", "45829374").Return(raw(`{"amount":15990}`), nil)

	sink := &captureSink{}
	o, out := newTestOrchestrator(gw, WithSink(sink))

	require.NoError(t, o.Execute(ctx, testInput))
	gw.AssertExpectations(t)

	require.NotNil(t, sink.report)
	data, err := json.Marshal(sink.report)
	require.NoError(t, err)

	assert.Equal(t, int64(2), gjson.GetBytes(data, "results.invoices.implInvoiceLists.#").Int())
	assert.True(t, gjson.GetBytes(data, "results.invoice_link").Exists())
	assert.True(t, gjson.GetBytes(data, "results.payment_details").Exists())
	assert.Equal(t, "Ana Perez", gjson.GetBytes(data, "customer_data.customer_name").String())
	assert.Equal(t, int64(6), gjson.GetBytes(data, "execution_log.#").Int())

	outcomes := o.Log().Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, 1, outcomes[0].Data["open_invoices"])
	assert.Equal(t, 1, outcomes[0].Data["paid_invoices"])
	assert.Equal(t, 2, outcomes[0].Data["total_invoices"])
	assert.Equal(t, "INV1", outcomes[1].Data["invoice_number"])
	assert.Equal(t, true, outcomes[1].Data["has_link"])

	text := out.String()
	assert.Contains(t, text, "Processing customer: 45829374 (Phone: 56987654321)")
	assert.Contains(t, text, "    - INV1: $15990 CLP (OPEN)")
	assert.Contains(t, text, "    - INV0: $14990 CLP (PAID)")
	assert.Contains(t, text, "  [✓] "+StepGetPaymentDetails)
	assert.Contains(t, text, "✓ Results saved to: mem://orchestrator_results.json")
}

func TestScenarioB_NoInvoices(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(`{"implInvoiceLists":[]}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, Unknown, "RUT", "45829374").Return(raw(`{}`), nil)

	sink := &captureSink{}
	o, _ := newTestOrchestrator(gw, WithSink(sink))

	require.NoError(t, o.Execute(ctx, testInput))
	gw.AssertNotCalled(t, "GetInvoiceLink", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertExpectations(t)

	_, hasLink := sink.report.Results[KeyInvoiceLink]
	assert.False(t, hasLink)

	outcomes := o.Log().Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusSuccess, outcomes[1].Status)
	assert.Equal(t, msgNoUnpaidInvoices, outcomes[1].Data["message"])
	assert.Equal(t, StepGetPaymentDetails, outcomes[2].Step)

	c := o.Customer()
	require.NotNil(t, c)
	assert.Equal(t, Unknown, c.CustomerName)
	assert.Equal(t, Unknown, c.CustomerRUT)
}

func TestScenarioC_InvoiceTimeoutIsFatal(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(nil, context.DeadlineExceeded)

	sink := &captureSink{}
	o, out := newTestOrchestrator(gw, WithSink(sink))

	err := o.Execute(ctx, testInput)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepGetInvoices, stepErr.Step)

	gw.AssertNotCalled(t, "GetInvoiceLink", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "GetPaymentDetails", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.NotNil(t, sink.report)
	assert.Nil(t, sink.report.CustomerData)
	assert.Empty(t, sink.report.Results)
	assert.Equal(t, []string{
		StepGetInvoices + "/running",
		StepGetInvoices + "/error",
	}, stepsAndStatuses(sink.report.ExecutionLog))

	assert.Contains(t, out.String(), "✗ Fatal error in orchestration")
	assert.Contains(t, out.String(), "Results saved to")
}

func TestStep1_MalformedEnvelopeIsFatal(t *testing.T) {
	gw := new(MockGateway)
	payload := `{"` + envelope.RawField + `":"here you go ` + "```json\\n{\\\"implInvoiceLists\\\": [" + `"}`
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(payload), nil)

	o, _ := newTestOrchestrator(gw)
	err := o.Run(context.Background(), testInput)

	var malformed *envelope.MalformedEnvelopeError
	assert.ErrorAs(t, err, &malformed)
	assert.Nil(t, o.Customer())
}

func TestStep1_EnvelopeIsUnwrapped(t *testing.T) {
	text := "Aqui estan las boletas:\n```json\n" + twoInvoices + "\n```\n"
	payload, err := json.Marshal(map[string]string{envelope.RawField: text})
	require.NoError(t, err)

	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(string(payload)), nil)
	gw.On("GetInvoiceLink", mock.Anything, "INV1", true).Return(raw(`{}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, "12345678-9", "RUT", "45829374").Return(raw(`{}`), nil)

	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.Run(context.Background(), testInput))
	assert.Equal(t, int64(2), gjson.GetBytes(o.Results()[KeyInvoices], "implInvoiceLists.#").Int())
}

func TestStep1_MissingCollectionIsFatal(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(`{"status":"ok"}`), nil)

	o, _ := newTestOrchestrator(gw)
	err := o.Run(context.Background(), testInput)
	assert.ErrorIs(t, err, ErrMissingInvoiceList)
}

func TestStep1_CountsAndCustomerDefaults(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		open     int
		paid     int
		total    int
		wantName string
		wantRUT  string
	}{
		{
			name:     "mixed statuses",
			payload:  `{"implInvoiceLists":[{"invoiceStatusInd":"P","name":"A","customerRut":"1-9"},{"invoiceStatusInd":"O"},{"invoiceStatusInd":"P"}]}`,
			open:     1,
			paid:     2,
			total:    3,
			wantName: "A",
			wantRUT:  "1-9",
		},
		{
			name:     "first entry lacks customer fields",
			payload:  `{"implInvoiceLists":[{"invoiceStatusInd":"P"},{"invoiceStatusInd":"P","name":"B","customerRut":"2-7"}]}`,
			paid:     2,
			total:    2,
			wantName: Unknown,
			wantRUT:  Unknown,
		},
		{
			name:     "null name",
			payload:  `{"implInvoiceLists":[{"invoiceStatusInd":"P","name":null,"customerRut":"3-5"}]}`,
			paid:     1,
			total:    1,
			wantName: Unknown,
			wantRUT:  "3-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(MockGateway)
			gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(tt.payload), nil)
			gw.On("GetInvoiceLink", mock.Anything, mock.Anything, mock.Anything).Return(raw(`{}`), nil)
			gw.On("GetPaymentDetails", mock.Anything, tt.wantRUT, "RUT", "45829374").Return(raw(`{}`), nil)

			o, _ := newTestOrchestrator(gw)
			require.NoError(t, o.Run(context.Background(), testInput))

			summary := o.Log().Outcomes()[0].Data
			assert.Equal(t, tt.open, summary["open_invoices"])
			assert.Equal(t, tt.paid, summary["paid_invoices"])
			assert.Equal(t, tt.total, summary["total_invoices"])

			c := o.Customer()
			require.NotNil(t, c)
			assert.Equal(t, tt.wantName, c.CustomerName)
			assert.Equal(t, tt.wantRUT, c.CustomerRUT)
		})
	}
}

func TestStep2_SelectsFirstOpenInListOrder(t *testing.T) {
	payload := `{"implInvoiceLists":[
		{"billingInvoiceNumber":"P1","invoiceStatusInd":"P","totalAmount":1},
		{"billingInvoiceNumber":"O-late","invoiceStatusInd":"O","documentType":"NC","totalAmount":10,"dueDate":"2024-12-01"},
		{"billingInvoiceNumber":"O-early","invoiceStatusInd":"O","documentType":"CY","totalAmount":99999,"dueDate":"2024-01-01"}
	]}`
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(payload), nil)
	gw.On("GetInvoiceLink", mock.Anything, "O-late", false).Return(raw(`{"url":"u"}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, Unknown, "RUT", "45829374").Return(raw(`{}`), nil)

	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.Run(context.Background(), testInput))
	gw.AssertExpectations(t)

	summary := o.Log().Outcomes()[1].Data
	assert.Equal(t, "O-late", summary["invoice_number"])
	assert.Equal(t, float64(10), summary["amount"])
	assert.Equal(t, "2024-12-01", summary["due_date"])
	assert.Equal(t, false, summary["has_link"])
}

func TestStep2_FailureDoesNotStopStep3(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(twoInvoices), nil)
	gw.On("GetInvoiceLink", mock.Anything, "INV1", true).Return(nil, errors.New("upstream 502"))
	gw.On("GetPaymentDetails", mock.Anything, "12345678-9", "RUT", "45829374").Return(raw(`{}`), nil)

	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.Run(context.Background(), testInput))
	gw.AssertExpectations(t)

	_, hasLink := o.Results()[KeyInvoiceLink]
	assert.False(t, hasLink)

	outcomes := o.Log().Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusError, outcomes[1].Status)
	assert.Equal(t, "upstream 502", outcomes[1].Data["error"])
	assert.Equal(t, StatusSuccess, outcomes[2].Status)
}

func TestStep2_MissingInvoiceNumberIsRecoverable(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(`{"implInvoiceLists":[{"invoiceStatusInd":"O"}]}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, Unknown, "RUT", "45829374").Return(raw(`{}`), nil)

	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.Run(context.Background(), testInput))

	outcomes := o.Log().Outcomes()
	assert.Equal(t, StatusError, outcomes[1].Status)
	assert.Equal(t, ErrMissingInvoiceNumber.Error(), outcomes[1].Data["error"])
}

func TestStep3_UsesDocumentIDOverride(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(`{"implInvoiceLists":[]}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, Unknown, "RUT", "DOC-7").Return(nil, errors.New("not found"))

	o, _ := newTestOrchestrator(gw)
	in := testInput
	in.DocumentID = "DOC-7"
	require.NoError(t, o.Run(context.Background(), in))
	gw.AssertExpectations(t)

	outcomes := o.Log().Outcomes()
	assert.Equal(t, StatusError, outcomes[2].Status)
	_, ok := o.Results()[KeyPaymentDetails]
	assert.False(t, ok)
}

func TestSteps_OnlyFirstIsFatal(t *testing.T) {
	steps := Steps()
	require.Len(t, steps, 3)
	assert.True(t, steps[0].Fatal)
	assert.False(t, steps[1].Fatal)
	assert.False(t, steps[2].Fatal)
	assert.Equal(t, []string{KeyInvoices, KeyInvoiceLink, KeyPaymentDetails},
		[]string{steps[0].Key, steps[1].Key, steps[2].Key})
}

func TestRun_CustomStepsFollowFatalFlag(t *testing.T) {
	var ran []string
	step := func(key string, fatal bool, err error) Step {
		return Step{
			Key:   key,
			Name:  "step " + key,
			Fatal: fatal,
			Run: func(context.Context, *Orchestrator, Input) (json.RawMessage, map[string]any, error) {
				ran = append(ran, key)
				if err != nil {
					return nil, nil, err
				}
				return raw(`{"ok":true}`), nil, nil
			},
		}
	}

	lookupFailed := errors.New("lookup failed")
	o, _ := newTestOrchestrator(new(MockGateway), WithSteps([]Step{
		step("a", false, errors.New("soft failure")),
		step("b", false, nil),
		step("c", true, lookupFailed),
		step("d", false, nil),
	}))

	err := o.Run(context.Background(), testInput)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "step c", stepErr.Step)
	assert.ErrorIs(t, err, lookupFailed)

	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, []string{"b"}, keys(o.Results()))
}

func keys(r Results) []string {
	var out []string
	for k := range r {
		out = append(out, k)
	}
	return out
}

func TestExecutionLog_ReplayIsDeterministic(t *testing.T) {
	run := func() []string {
		gw := new(MockGateway)
		gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(twoInvoices), nil)
		gw.On("GetInvoiceLink", mock.Anything, "INV1", true).Return(nil, errors.New("boom"))
		gw.On("GetPaymentDetails", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(raw(`{}`), nil)
		o, _ := newTestOrchestrator(gw)
		require.NoError(t, o.Run(context.Background(), testInput))
		return stepsAndStatuses(o.Log().Records())
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, []string{
		StepGetInvoices + "/running", StepGetInvoices + "/success",
		StepGetInvoiceLink + "/running", StepGetInvoiceLink + "/error",
		StepGetPaymentDetails + "/running", StepGetPaymentDetails + "/success",
	}, first)
}

func TestExecutionLog_TimestampsNeverGoBackwards(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	clock := func() time.Time {
		ts := ticks[i%len(ticks)]
		i++
		return ts
	}

	var out bytes.Buffer
	l := newExecutionLog(clock, &out)
	l.Append("a", StatusRunning, nil)
	l.Append("a", StatusError, map[string]any{})
	l.Append("b", StatusRunning, nil)

	recs := l.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, base, recs[1].Timestamp)
	assert.Equal(t, base.Add(time.Second), recs[2].Timestamp)
	assert.Contains(t, out.String(), "[✗] a - error")
	assert.Contains(t, out.String(), "    Error: Unknown error")
}

func TestExecute_SaveFailureIsReported(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(nil, errors.New("down"))

	saveErr := errors.New("disk full")
	o, out := newTestOrchestrator(gw, WithSink(&captureSink{err: saveErr}))

	err := o.Execute(context.Background(), testInput)
	assert.ErrorIs(t, err, saveErr)

	var stepErr *StepError
	assert.ErrorAs(t, err, &stepErr)
	assert.True(t, strings.Contains(out.String(), "✗ Failed to save results: disk full"))
}

func TestExecute_CancelledContextStillSavesReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(nil, context.Canceled)

	sink := &captureSink{}
	o, out := newTestOrchestrator(gw, WithSink(sink))

	err := o.Execute(ctx, testInput)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sink.report)
	assert.Len(t, sink.report.ExecutionLog, 2)
	assert.Contains(t, out.String(), "✓ Results saved to: mem://orchestrator_results.json")
}

func TestReport_JSONShape(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ListInvoices", mock.Anything, testCustomer, testPhone).Return(raw(twoInvoices), nil)
	gw.On("GetInvoiceLink", mock.Anything, "INV1", true).Return(raw(`{}`), nil)
	gw.On("GetPaymentDetails", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(raw(`{}`), nil)

	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.Run(context.Background(), testInput))

	data, err := json.Marshal(o.Report())
	require.NoError(t, err)

	entry := gjson.GetBytes(data, "execution_log.0")
	for _, key := range []string{"timestamp", "step", "status", "data"} {
		assert.True(t, entry.Get(key).Exists(), key)
	}
	assert.Equal(t, testCustomer, gjson.GetBytes(data, "customer_data.customer_id").Int())
	assert.Equal(t, testPhone, gjson.GetBytes(data, "customer_data.msisidn").String())
}
