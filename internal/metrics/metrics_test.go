package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddleware_RecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/billing/invoices/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/billing/invoices/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/billing/invoices/:id", "404")))
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.InvoiceIssued("standard", 2541)
	m.InvoiceIssued("standard", 100)
	m.ImportRows("MATCHED", 3)
	m.ImportRows("ERROR", 0)
	m.SyncRun("SUCCESS", 2)
	m.UpstreamError("issue_invoice")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invoicesIssued.WithLabelValues("standard")))
	assert.Equal(t, 2641.0, testutil.ToFloat64(m.invoiceAmount.WithLabelValues("standard")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importRows.WithLabelValues("MATCHED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.invoicesUpdated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamErrors.WithLabelValues("issue_invoice")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.SyncRun("FAILURE", 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `ecofin_payment_sync_runs_total{status="FAILURE"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
