package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkInput struct {
	Marketplace string `json:"marketplace" binding:"required,marketplace"`
	OrderID     string `json:"marketplace_order_id" binding:"required"`
	ERPOrderID  int64  `json:"erp_order_id" binding:"required,gt=0"`
	Voucher     string `json:"seller_voucher" binding:"omitempty,decimal"`
}

func newValidationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req linkInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func TestSetupValidator(t *testing.T) {
	SetupValidator()
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	require.True(t, ok)
	assert.NoError(t, v.Var("Mercado Livre", "marketplace"))
	assert.Error(t, v.Var("amazon", "marketplace"))
	assert.NoError(t, v.Var("12.50", "decimal"))
	assert.Error(t, v.Var("12,50", "decimal"))
}

func TestHandleValidationError(t *testing.T) {
	router := newValidationRouter()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantFields []string
	}{
		{
			name:       "valid input",
			body:       `{"marketplace":"shopee","marketplace_order_id":"2401019ABCDEF","erp_order_id":7,"seller_voucher":"5.00"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown marketplace and missing order",
			body:       `{"marketplace":"amazon","erp_order_id":7}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
			wantFields: []string{"marketplace", "marketplace_order_id"},
		},
		{
			name:       "bad voucher and erp id",
			body:       `{"marketplace":"magalu","marketplace_order_id":"123","erp_order_id":-1,"seller_voucher":"abc"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
			wantFields: []string{"erp_order_id", "seller_voucher"},
		},
		{
			name:       "malformed json",
			body:       `{"marketplace":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode == "" {
				return
			}

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, w.Header().Get(RequestIDHeader), resp.Error.RequestID)

			var fields []string
			for _, d := range resp.Error.Details {
				fields = append(fields, d.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestGetValidationMessage(t *testing.T) {
	type input struct {
		Required    string `validate:"required"`
		Marketplace string `validate:"marketplace"`
		Decimal     string `validate:"decimal"`
		OneOf       string `validate:"oneof=asc desc"`
		GT          int    `validate:"gt=0"`
		Max         string `validate:"max=2"`
	}

	v := validator.New()
	require.NoError(t, RegisterValidations(v))

	err := v.Struct(input{Marketplace: "amazon", Decimal: "x", OneOf: "up", Max: "abc"})
	require.Error(t, err)

	want := map[string]string{
		"Required":    "This field is required",
		"Marketplace": "Must be one of: shopee mercado_livre magalu",
		"Decimal":     "Must be a decimal number",
		"OneOf":       "Must be one of: asc desc",
		"GT":          "Must be greater than 0",
		"Max":         "Must have at most 2 items or characters",
	}
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, len(want))
	for _, e := range verrs {
		assert.Equal(t, want[e.Field()], getValidationMessage(e), e.Field())
	}
}
