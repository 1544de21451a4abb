// Package smartbill is a client for the SmartBill Cloud invoicing API.
package smartbill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "smartbill"

// Client talks to SmartBill with basic auth. Calls are throttled client side.
type Client struct {
	baseURL    string
	username   string
	token      string
	companyCIF string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client from configuration.
func New(cfg config.SmartBillConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		token:      cfg.Token,
		companyCIF: cfg.CompanyCIF,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompanyCIF is the issuer fiscal code sent with every request.
func (c *Client) CompanyCIF() string { return c.companyCIF }

// IssueInvoice creates a final (non-draft) invoice. The company code is filled in.
func (c *Client) IssueInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResponse, error) {
	req.CompanyVATCode = c.companyCIF
	var out InvoiceResponse
	if err := c.doJSON(ctx, http.MethodPost, "invoice", nil, req, &out); err != nil {
		return nil, err
	}
	if out.Number == "" {
		return nil, &apperror.UpstreamError{Service: serviceName, StatusCode: http.StatusOK, Body: out.Message,
			Err: fmt.Errorf("response carries no invoice number")}
	}
	if out.Series == "" {
		out.Series = req.SeriesName
	}
	return &out, nil
}

// InvoicePDF downloads the rendered invoice.
func (c *Client) InvoicePDF(ctx context.Context, series, number string) ([]byte, error) {
	q := url.Values{"cif": {c.companyCIF}, "seriesname": {series}, "number": {number}}
	body, err := c.do(ctx, http.MethodGet, "invoice/pdf", q, nil, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	return body, nil
}

// PaymentStatus returns paid and unpaid amounts of one invoice.
func (c *Client) PaymentStatus(ctx context.Context, series, number string) (*PaymentStatus, error) {
	q := url.Values{"cif": {c.companyCIF}, "seriesname": {series}, "number": {number}}
	var out PaymentStatus
	if err := c.doJSON(ctx, http.MethodGet, "invoice/paymentstatus", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payments lists payments collected between from and to, by calendar day.
func (c *Client) Payments(ctx context.Context, from, to time.Time) ([]Payment, error) {
	q := url.Values{
		"cif":       {c.companyCIF},
		"startDate": {from.Format(time.DateOnly)},
		"endDate":   {to.Format(time.DateOnly)},
	}
	var out paymentList
	if err := c.doJSON(ctx, http.MethodGet, "payment/list", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

// CancelInvoice cancels an issued invoice upstream.
func (c *Client) CancelInvoice(ctx context.Context, series, number string) error {
	body := cancelRequest{CompanyVATCode: c.companyCIF, SeriesName: series, Number: number}
	return c.doJSON(ctx, http.MethodDelete, "invoice", nil, body, nil)
}

// Series lists the invoice series configured for the company; used as a connection check.
func (c *Client) Series(ctx context.Context) ([]string, error) {
	var out seriesList
	if err := c.doJSON(ctx, http.MethodGet, "invoice/series", url.Values{"cif": {c.companyCIF}}, nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.List))
	for _, s := range out.List {
		names = append(names, s.Name)
	}
	return names, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	body, err := c.do(ctx, method, path, query, in, "application/json")
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apperror.UpstreamError{Service: serviceName, StatusCode: http.StatusOK, Body: string(body),
			Err: fmt.Errorf("decode %s response: %w", path, err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("smartbill rate limiter: %w", err)
	}

	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", accept)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperror.UpstreamError{Service: serviceName, Err: fmt.Errorf("%s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperror.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Err: fmt.Errorf("read %s response: %w", path, err)}
	}

	c.logger.Debug("SmartBill request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &apperror.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode),
		}
	}
	return body, nil
}
