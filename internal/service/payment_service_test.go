package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/events"
	"ecofin/internal/metrics"
	"ecofin/internal/model"
	"ecofin/internal/smartbill"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIssuedInvoice(t *testing.T, env *testEnv, client *model.Client, number, total string) *model.Invoice {
	t.Helper()
	inv := &model.Invoice{
		ClientID:  client.ID,
		Year:      2025,
		Month:     3,
		Series:    "ECO",
		Number:    number,
		IssueDate: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Mode:      "standard",
		Status:    model.InvoiceIssued,
		Subtotal:  dec(total),
		VATRate:   dec("0"),
		VATTotal:  decimal.Zero,
		Total:     dec(total),
	}
	require.NoError(t, env.invoices.Create(context.Background(), inv))
	return inv
}

func newPaymentService(env *testEnv, sb InvoicingClient, pub events.Publisher, now time.Time) PaymentService {
	svc := NewPaymentService(env.invoices, env.syncLogs, env.audit, sb, pub, metrics.New(), 72*time.Hour, testLogger)
	svc.(*paymentService).now = func() time.Time { return now }
	return svc
}

func TestPaymentService_SyncAppliesPaymentsAndReportsUnmatched(t *testing.T) {
	env := newEnv(t)
	client := env.seedClient(t, "acme", "50")
	inv := seedIssuedInvoice(t, env, client, "0001", "1210")
	untouched := seedIssuedInvoice(t, env, client, "0002", "500")

	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	sb := &fakeSmartBill{
		payments: []smartbill.Payment{
			{InvoiceSeries: "ECO", InvoiceNumber: "0001", PaidAmount: dec("300")},
			{InvoiceSeries: "ECO", InvoiceNumber: "0001", PaidAmount: dec("305")},
			{InvoiceSeries: "ECO", InvoiceNumber: "9999", PaidAmount: dec("10")},
		},
		paid: map[string]decimal.Decimal{"ECO0001": dec("605")},
	}
	pub := &recordingPublisher{}
	svc := newPaymentService(env, sb, pub, now)

	res, err := svc.SyncPayments(context.Background(), adminActor)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PaymentsFound)
	assert.Equal(t, 1, res.InvoicesUpdated)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, []string{"ECO 9999"}, res.UnmatchedInvoices)
	assert.Empty(t, res.Errors)
	assert.True(t, sb.from.Equal(now.Add(-72*time.Hour)), "first run looks back the default window")
	assert.True(t, sb.to.Equal(now))
	assert.Equal(t, []string{events.PaymentsSynced}, pub.types())

	got, err := env.invoices.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(dec("605")))
	assert.True(t, got.DueAmount.Equal(dec("605")))
	assert.Equal(t, "PARTIAL", got.PaymentStatus)

	other, err := env.invoices.FindByID(context.Background(), untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, "UNPAID", other.PaymentStatus)

	logs, total, err := svc.ListSyncLogs(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.SyncSuccess, logs[0].Status)
	assert.Equal(t, 1, logs[0].InvoicesUpdated)
	assert.Equal(t, 1, logs[0].Unmatched)
	assert.Equal(t, []string{"ECO 9999"}, logs[0].UnmatchedInvoices)
}

func TestPaymentService_WindowStartsAtLastSuccess(t *testing.T) {
	env := newEnv(t)
	sb := &fakeSmartBill{}
	first := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	_, err := newPaymentService(env, sb, events.Nop{}, first).SyncPayments(context.Background(), SystemActor)
	require.NoError(t, err)

	second := first.Add(6 * time.Hour)
	_, err = newPaymentService(env, sb, events.Nop{}, second).SyncPayments(context.Background(), SystemActor)
	require.NoError(t, err)
	assert.WithinDuration(t, first, sb.from, time.Second)
	assert.True(t, sb.to.Equal(second))
}

func TestPaymentService_UpstreamFailureIsLogged(t *testing.T) {
	env := newEnv(t)
	sb := &fakeSmartBill{paymentsErr: &apperror.UpstreamError{Service: "smartbill", StatusCode: 503, Body: "down"}}
	svc := newPaymentService(env, sb, events.Nop{}, time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC))

	_, err := svc.SyncPayments(context.Background(), adminActor)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))

	logs, _, err := svc.ListSyncLogs(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncFailure, logs[0].Status)
	assert.NotNil(t, logs[0].FinishedAt)
	assert.Contains(t, logs[0].ErrorMessage, "503")
}

func TestPaymentService_PerInvoiceErrorsAreNotFatal(t *testing.T) {
	env := newEnv(t)
	client := env.seedClient(t, "acme", "50")
	seedIssuedInvoice(t, env, client, "0001", "1000")

	sb := &fakeSmartBill{
		payments: []smartbill.Payment{{InvoiceSeries: "ECO", InvoiceNumber: "0001", PaidAmount: dec("10")}},
		paid:     map[string]decimal.Decimal{},
	}
	res, err := newPaymentService(env, sb, events.Nop{}, time.Now()).SyncPayments(context.Background(), adminActor)
	require.NoError(t, err)
	assert.Equal(t, 0, res.InvoicesUpdated)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "ECO 0001")
}

func TestPaymentService_NotConfigured(t *testing.T) {
	env := newEnv(t)
	svc := NewPaymentService(env.invoices, env.syncLogs, env.audit, nil, events.Nop{}, nil, 0, testLogger)

	_, err := svc.SyncPayments(context.Background(), adminActor)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}
