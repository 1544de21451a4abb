package smartbill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.SmartBillConfig{
		BaseURL:    srv.URL + "/",
		Username:   "ops@ecofin.ro",
		Token:      "tok",
		CompanyCIF: "RO999",
		Timeout:    5 * time.Second,
	})
}

func TestIssueInvoice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoice", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ops@ecofin.ro", user)
		assert.Equal(t, "tok", pass)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "RO999", body["companyVatCode"])
		products := body["products"].([]any)
		if !assert.Len(t, products, 1) {
			return
		}
		assert.Equal(t, 2100.0, products[0].(map[string]any)["price"])

		_, _ = w.Write([]byte(`{"series":"ECO","number":"0042","message":"ok"}`))
	})

	resp, err := c.IssueInvoice(context.Background(), InvoiceRequest{
		SeriesName: "ECO",
		Products: []Product{NewServiceProduct("PRESTARI SERVICII MARTIE 2025", "buc",
			decimal.NewFromInt(1), decimal.NewFromInt(2100), decimal.NewFromInt(21))},
	})
	require.NoError(t, err)
	assert.Equal(t, "ECO", resp.Series)
	assert.Equal(t, "0042", resp.Number)
}

func TestIssueInvoice_UpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errorText":"CIF invalid"}`))
	})

	_, err := c.IssueInvoice(context.Background(), InvoiceRequest{SeriesName: "ECO"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrUpstream)

	var upstream *apperror.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnprocessableEntity, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "CIF invalid")
}

func TestIssueInvoice_MissingNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"draft saved"}`))
	})

	_, err := c.IssueInvoice(context.Background(), InvoiceRequest{SeriesName: "ECO"})
	assert.ErrorIs(t, err, apperror.ErrUpstream)
}

func TestPayments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/list", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2025-03-31", r.URL.Query().Get("endDate"))
		assert.Equal(t, "RO999", r.URL.Query().Get("cif"))
		_, _ = w.Write([]byte(`{"payments":[{"invoiceSeries":"ECO","invoiceNumber":"0042","paidAmount":1000.5}]}`))
	})

	payments, err := c.Payments(context.Background(),
		time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "0042", payments[0].InvoiceNumber)
	assert.True(t, payments[0].PaidAmount.Equal(decimal.RequireFromString("1000.5")))
}

func TestPaymentStatusAndPDF(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/invoice/paymentstatus":
			_, _ = w.Write([]byte(`{"invoiceTotalAmount":2541,"paidAmount":2541,"unpaidAmount":0}`))
		case "/invoice/pdf":
			assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
			_, _ = w.Write([]byte("%PDF-1.4"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	st, err := c.PaymentStatus(context.Background(), "ECO", "0042")
	require.NoError(t, err)
	assert.Equal(t, "2541", st.PaidAmount.String())

	pdf, err := c.InvoicePDF(context.Background(), "ECO", "0042")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(pdf))
}

func TestCancelAndSeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/invoice":
			var body cancelRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "0042", body.Number)
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/invoice/series":
			_, _ = w.Write([]byte(`{"list":[{"name":"ECO"},{"name":"PRO"}]}`))
		}
	})

	require.NoError(t, c.CancelInvoice(context.Background(), "ECO", "0042"))
	series, err := c.Series(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ECO", "PRO"}, series)
}

func TestNetworkError(t *testing.T) {
	c := New(config.SmartBillConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := c.Series(context.Background())
	assert.ErrorIs(t, err, apperror.ErrUpstream)
}
