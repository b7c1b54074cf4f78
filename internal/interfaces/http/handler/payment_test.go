package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/application/payments"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupPaymentRouter(svc PaymentService, opts ...PaymentHandlerOption) *gin.Engine {
	h := NewPaymentHandler(svc, time.UTC, opts...)
	r := newTestRouter()
	g := r.Group("/payments/:marketplace")
	g.POST("/ingest", h.Ingest)
	g.POST("/pull", h.Pull)
	g.POST("/resolve", h.Resolve)
	g.GET("/groups", h.Groups)
	g.GET("/discrepancies", h.Discrepancies)
	return r
}

func ingestBody(archive bool) gin.H {
	return gin.H{
		"archive": archive,
		"lines": []gin.H{
			{"external_ref": "tx-1", "order_id": "240601AAA", "amount": "120.00", "transaction_type": "Order Income", "occurred_at": "2024-06-02T10:00:00Z"},
			{"external_ref": "tx-2", "order_id": "240601AAA", "amount": "-3.50", "is_expense": true, "occurred_at": "2024-06-03T10:00:00Z"},
		},
	}
}

func TestPaymentHandler_Ingest(t *testing.T) {
	t.Run("ingests lines", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("Ingest", mock.Anything, marketplace.Shopee, mock.MatchedBy(func(lines []payment.Line) bool {
			return len(lines) == 2 &&
				lines[0].ExternalRef == "tx-1" &&
				lines[1].Amount.Equal(decimal.RequireFromString("-3.50")) &&
				lines[1].IsExpense
		})).Return(&payments.IngestReport{Marketplace: marketplace.Shopee, Received: 2, Created: 2}, nil)

		w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/shopee/ingest", ingestBody(false))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		report := data["report"].(map[string]any)
		assert.Equal(t, float64(2), report["created"])
		assert.NotContains(t, data, "archive_key")
		svc.AssertExpectations(t)
	})

	t.Run("archives after storing", func(t *testing.T) {
		svc := new(MockPaymentService)
		archive := new(MockSettlementArchive)
		svc.On("Ingest", mock.Anything, marketplace.Shopee, mock.Anything).
			Return(&payments.IngestReport{Received: 2, Created: 2}, nil)
		archive.On("Publish", mock.Anything, marketplace.Shopee, mock.Anything).
			Return("settlements/shopee/2024-06-03/101500.000000000.jsonl", nil)

		w := doJSON(setupPaymentRouter(svc, WithSettlementArchive(archive)), http.MethodPost, "/payments/shopee/ingest", ingestBody(true))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "settlements/shopee/2024-06-03/101500.000000000.jsonl", data["archive_key"])
		archive.AssertExpectations(t)
	})

	t.Run("archive failure keeps the ingestion", func(t *testing.T) {
		svc := new(MockPaymentService)
		archive := new(MockSettlementArchive)
		svc.On("Ingest", mock.Anything, marketplace.Shopee, mock.Anything).
			Return(&payments.IngestReport{Received: 2, Created: 2}, nil)
		archive.On("Publish", mock.Anything, marketplace.Shopee, mock.Anything).Return("", errors.New("s3 down"))

		w := doJSON(setupPaymentRouter(svc, WithSettlementArchive(archive)), http.MethodPost, "/payments/shopee/ingest", ingestBody(true))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, decodeResponse(t, w).Data.(map[string]any), "archive_key")
	})

	t.Run("archive requested without a bucket", func(t *testing.T) {
		svc := new(MockPaymentService)
		w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/shopee/ingest", ingestBody(true))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		svc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			path string
			body gin.H
			code string
		}{
			{"no lines", "/payments/shopee/ingest", gin.H{"lines": []gin.H{}}, dto.ErrCodeValidation},
			{"line without ref", "/payments/shopee/ingest", gin.H{"lines": []gin.H{{"amount": "1", "occurred_at": "2024-06-02T10:00:00Z"}}}, dto.ErrCodeValidation},
			{"line amount not decimal", "/payments/shopee/ingest", gin.H{"lines": []gin.H{{"external_ref": "a", "amount": "x", "occurred_at": "2024-06-02T10:00:00Z"}}}, dto.ErrCodeValidation},
			{"unknown marketplace", "/payments/amazon/ingest", ingestBody(false), dto.ErrCodeInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := new(MockPaymentService)
				w := doJSON(setupPaymentRouter(svc), http.MethodPost, tt.path, tt.body)

				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, tt.code, decodeResponse(t, w).Error.Code)
				svc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})
}

func TestPaymentHandler_Pull(t *testing.T) {
	t.Run("uses the given instant", func(t *testing.T) {
		svc := new(MockPaymentService)
		since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		svc.On("Pull", mock.Anything, marketplace.Magalu, since).Return(&payments.IngestReport{Received: 4, Created: 1, Duplicates: 3}, nil)

		w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/magalu/pull", gin.H{"since": "2024-06-01"})

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("empty body uses the lookback", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("Pull", mock.Anything, marketplace.Magalu, time.Time{}).Return(&payments.IngestReport{}, nil)

		w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/magalu/pull", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("feed not configured", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("Pull", mock.Anything, marketplace.Magalu, mock.Anything).Return(nil, payments.ErrFeedNotConfigured)

		w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/magalu/pull", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.ErrCodeUnavailable, decodeResponse(t, w).Error.Code)
	})

	t.Run("bad since", func(t *testing.T) {
		svc := new(MockPaymentService)
		w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/magalu/pull", gin.H{"since": "last week"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPaymentHandler_Resolve(t *testing.T) {
	svc := new(MockPaymentService)
	svc.On("Resolve", mock.Anything, marketplace.MercadoLivre).
		Return(&payments.ResolveReport{Marketplace: marketplace.MercadoLivre, Considered: 10, Resolved: 8, Unmatched: 2}, nil)

	w := doJSON(setupPaymentRouter(svc), http.MethodPost, "/payments/mercado_livre/resolve", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, float64(8), data["resolved"])
}

func TestPaymentHandler_Groups(t *testing.T) {
	t.Run("filters", func(t *testing.T) {
		svc := new(MockPaymentService)
		groups := []payment.Group{{
			Marketplace:   marketplace.Shopee,
			BaseOrderID:   "240601AAA",
			MemberRefs:    []string{"tx-1", "tx-2"},
			Net:           decimal.RequireFromString("116.50"),
			SuggestedTags: []string{"multi-line"},
		}}
		svc.On("Groups", mock.Anything, marketplace.Shopee, mock.MatchedBy(func(f payment.ListFilter) bool {
			return f.From != nil && f.From.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) &&
				f.To != nil && f.To.Equal(time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC)) &&
				f.Unresolved && f.Limit == 10
		})).Return(groups, nil)

		w := doJSON(setupPaymentRouter(svc), http.MethodGet, "/payments/shopee/groups?from=2024-06-01&to=2024-06-30&unresolved=true&limit=10", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		items := decodeResponse(t, w).Data.([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "240601AAA", items[0].(map[string]any)["base_order_id"])
		svc.AssertExpectations(t)
	})

	t.Run("bad date", func(t *testing.T) {
		svc := new(MockPaymentService)
		w := doJSON(setupPaymentRouter(svc), http.MethodGet, "/payments/shopee/groups?from=june", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})
}

func TestPaymentHandler_Discrepancies(t *testing.T) {
	t.Run("reconciles the period", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("Reconcile", mock.Anything, payments.ReconcileRequest{
			Marketplace: marketplace.Shopee,
			From:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			To:          time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC),
		}).Return(&payments.ReconcileReport{Marketplace: marketplace.Shopee, Orders: 12, Payments: 20, Counts: map[string]int{"matched": 11, "underpaid": 1}}, nil)

		w := doJSON(setupPaymentRouter(svc), http.MethodGet, "/payments/shopee/discrepancies?from=2024-06-01&to=2024-06-30", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, float64(12), data["orders"])
		svc.AssertExpectations(t)
	})

	t.Run("range required", func(t *testing.T) {
		svc := new(MockPaymentService)
		w := doJSON(setupPaymentRouter(svc), http.MethodGet, "/payments/shopee/discrepancies", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
	})

	t.Run("inverted range", func(t *testing.T) {
		svc := new(MockPaymentService)
		w := doJSON(setupPaymentRouter(svc), http.MethodGet, "/payments/shopee/discrepancies?from=2024-06-30&to=2024-06-01", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
