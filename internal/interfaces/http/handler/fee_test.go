package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/application/fees"
	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func setupFeeRouter(svc FeeService) *gin.Engine {
	h := NewFeeHandler(svc, time.UTC)
	h.now = func() time.Time { return fixedNow }
	r := newTestRouter()
	r.POST("/fees/preview", h.Preview)
	r.POST("/fees/orders/:erpId", h.ComputeForOrder)
	r.POST("/fees/recompute", h.Recompute)
	r.GET("/fees/rules", h.Rules)
	r.PUT("/fees/rules/:marketplace", h.UpdateRules)
	return r
}

func sampleBreakdown() fee.Breakdown {
	return fee.Breakdown{
		Marketplace:    marketplace.Shopee,
		OrderValue:     decimal.RequireFromString("100"),
		FeeBase:        decimal.RequireFromString("100"),
		CommissionRate: decimal.RequireFromString("0.14"),
		CommissionFee:  decimal.RequireFromString("14"),
		TotalFees:      decimal.RequireFromString("18"),
		NetValue:       decimal.RequireFromString("82"),
		RuleVersion:    "v1",
	}
}

func TestFeeHandler_Preview(t *testing.T) {
	t.Run("prices the request", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("Preview", mock.Anything, mock.MatchedBy(func(in fee.Input) bool {
			return in.Marketplace == marketplace.Shopee &&
				in.OrderValue.Equal(decimal.NewFromInt(100)) &&
				in.FreeShipping &&
				in.OrderDate.Equal(fixedNow)
		})).Return(sampleBreakdown(), nil)

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/preview",
			gin.H{"marketplace": "shopee", "order_value": "100", "free_shipping": true})

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "82", data["net_value"])
		svc.AssertExpectations(t)
	})

	t.Run("not computable", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("Preview", mock.Anything, mock.Anything).Return(fee.Breakdown{}, fee.ErrNotComputable)

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/preview",
			gin.H{"marketplace": "magalu", "order_value": "5", "seller_voucher": "10"})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeNotComputable, decodeResponse(t, w).Error.Code)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			body gin.H
		}{
			{"missing value", gin.H{"marketplace": "shopee"}},
			{"value not decimal", gin.H{"marketplace": "shopee", "order_value": "cem"}},
			{"unknown marketplace", gin.H{"marketplace": "amazon", "order_value": "10"}},
			{"bad voucher", gin.H{"marketplace": "shopee", "order_value": "10", "seller_voucher": "x"}},
			{"bad order date", gin.H{"marketplace": "shopee", "order_value": "10", "order_date": "june"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := new(MockFeeService)
				w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/preview", tt.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				svc.AssertNotCalled(t, "Preview", mock.Anything, mock.Anything)
			})
		}
	})
}

func TestFeeHandler_ComputeForOrder(t *testing.T) {
	t.Run("with voucher", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("ComputeForOrder", mock.Anything, mock.MatchedBy(func(req fees.ComputeRequest) bool {
			return req.ERPOrderID == 321 && req.SellerVoucher.Equal(decimal.RequireFromString("7.5"))
		})).Return(sampleBreakdown(), nil)

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/orders/321", gin.H{"seller_voucher": "7.5"})

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("without body", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("ComputeForOrder", mock.Anything, mock.MatchedBy(func(req fees.ComputeRequest) bool {
			return req.ERPOrderID == 321 && req.SellerVoucher.IsZero()
		})).Return(sampleBreakdown(), nil)

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/orders/321", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("order not linked", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("ComputeForOrder", mock.Anything, mock.Anything).Return(fee.Breakdown{}, fees.ErrOrderNotLinked)

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/orders/321", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeNotLinked, decodeResponse(t, w).Error.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		svc := new(MockFeeService)
		for _, id := range []string{"abc", "0", "-3"} {
			w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/orders/"+id, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, id)
		}
		svc.AssertNotCalled(t, "ComputeForOrder", mock.Anything, mock.Anything)
	})
}

func TestFeeHandler_Recompute(t *testing.T) {
	t.Run("covers whole days", func(t *testing.T) {
		svc := new(MockFeeService)
		report := &fees.RecomputeReport{Considered: 5, Computed: 3, NotLinked: 1, NotComputable: 1, RuleVersion: "v2"}
		svc.On("RecomputeRange", mock.Anything,
			time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 31, 23, 59, 59, 999999999, time.UTC),
		).Return(report, nil)

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/recompute", gin.H{"from": "2024-05-01", "to": "2024-05-31"})

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, float64(3), data["computed"])
		svc.AssertExpectations(t)
	})

	t.Run("interrupted run returns partial report", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("RecomputeRange", mock.Anything, mock.Anything, mock.Anything).
			Return(&fees.RecomputeReport{Considered: 2, Computed: 2}, errors.New("list orders: timeout"))

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/recompute", gin.H{"from": "2024-05-01", "to": "2024-05-31"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rules unavailable", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("RecomputeRange", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("fees: load rules: db down"))

		w := doJSON(setupFeeRouter(svc), http.MethodPost, "/fees/recompute", gin.H{"from": "2024-05-01", "to": "2024-05-31"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestFeeHandler_Rules(t *testing.T) {
	svc := new(MockFeeService)
	view := fees.RulesView{Version: "v3", Sets: []fee.RuleSet{{
		Marketplace:        marketplace.Magalu,
		BaseCommissionRate: decimal.RequireFromString("0.16"),
		FixedCostPerUnit:   decimal.RequireFromString("5"),
	}}}
	svc.On("Rules", mock.Anything).Return(view, nil)

	w := doJSON(setupFeeRouter(svc), http.MethodGet, "/fees/rules", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "v3", data["version"])
	sets := data["rule_sets"].([]any)
	require.Len(t, sets, 1)
	assert.Equal(t, "magalu", sets[0].(map[string]any)["marketplace"])
}

func TestFeeHandler_UpdateRules(t *testing.T) {
	t.Run("replaces rule sets", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("UpdateRuleSet", mock.Anything, marketplace.MercadoLivre, mock.MatchedBy(func(sets []fee.RuleSet) bool {
			return len(sets) == 1 && sets[0].BaseCommissionRate.Equal(decimal.RequireFromString("0.12"))
		})).Return(fees.RulesView{Version: "v4"}, nil)

		w := doJSON(setupFeeRouter(svc), http.MethodPut, "/fees/rules/mercado_livre", gin.H{
			"rule_sets": []gin.H{{"marketplace": "mercado_livre", "base_commission_rate": "0.12"}},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("mismatched marketplace", func(t *testing.T) {
		svc := new(MockFeeService)
		svc.On("UpdateRuleSet", mock.Anything, marketplace.Shopee, mock.Anything).
			Return(fees.RulesView{}, fee.ErrRuleSetMismatch)

		w := doJSON(setupFeeRouter(svc), http.MethodPut, "/fees/rules/shopee", gin.H{
			"rule_sets": []gin.H{{"marketplace": "magalu"}},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeResponse(t, w).Error.Code)
	})

	t.Run("empty rule sets", func(t *testing.T) {
		svc := new(MockFeeService)
		w := doJSON(setupFeeRouter(svc), http.MethodPut, "/fees/rules/shopee", gin.H{"rule_sets": []gin.H{}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})
}
