package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/reconciler/internal/application/erpsync"
	"github.com/erp/reconciler/internal/application/fees"
	"github.com/erp/reconciler/internal/application/payments"
	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/linking"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/scheduler"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/erp/reconciler/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ActorHeader names the operator behind an administrative change
const ActorHeader = "X-Actor"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// getActor returns the operator named by the request, empty when absent
func getActor(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(ActorHeader))
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// bindJSON binds the body and answers the request itself on failure
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// bindQuery binds the query string and answers the request itself on failure
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// marketplaceParam parses the :marketplace path segment
func (h *BaseHandler) marketplaceParam(c *gin.Context) (marketplace.Marketplace, bool) {
	m, err := marketplace.ParseMarketplace(c.Param(middleware.MarketplaceParam))
	if err != nil {
		h.HandleError(c, err)
		return "", false
	}
	return m, true
}

// errorMapping ties a domain sentinel to the code it is reported with
type errorMapping struct {
	target error
	code   string
}

// sentinelCodes is checked in order, so wrapped errors match their most
// specific sentinel first
var sentinelCodes = []errorMapping{
	{linking.ErrLinkNotFound, dto.ErrCodeNotFound},
	{payment.ErrPaymentNotFound, dto.ErrCodeNotFound},
	{erporder.ErrOrderNotFound, dto.ErrCodeNotFound},
	{marketplace.ErrOrderNotFound, dto.ErrCodeNotFound},
	{fee.ErrRuleSetNotFound, dto.ErrCodeNotFound},
	{scheduler.ErrJobNotFound, dto.ErrCodeNotFound},

	{linking.ErrLinkExists, dto.ErrCodeAlreadyExists},
	{erpsync.ErrRunInProgress, dto.ErrCodeRunInProgress},
	{shared.ErrLockHeld, dto.ErrCodeRunInProgress},
	{scheduler.ErrJobAlreadyRunning, dto.ErrCodeRunInProgress},

	{fee.ErrNotComputable, dto.ErrCodeNotComputable},
	{fees.ErrOrderNotLinked, dto.ErrCodeNotLinked},
	{payment.ErrLinkMismatch, dto.ErrCodeConflict},
	{payment.ErrResolutionMismatch, dto.ErrCodeInvalidState},

	{linking.ErrInvalidLink, dto.ErrCodeInvalidInput},
	{linking.ErrActorRequired, dto.ErrCodeInvalidInput},
	{linking.ErrSameERPOrder, dto.ErrCodeInvalidInput},
	{linking.ErrInvalidConfidence, dto.ErrCodeInvalidInput},
	{linking.ErrMissingERPOrderRef, dto.ErrCodeInvalidInput},
	{payment.ErrInvalidPayment, dto.ErrCodeInvalidInput},
	{payment.ErrInvalidRule, dto.ErrCodeInvalidInput},
	{marketplace.ErrUnknownMarketplace, dto.ErrCodeInvalidInput},
	{marketplace.ErrInvalidOrderID, dto.ErrCodeInvalidInput},
	{fee.ErrInvalidRuleSet, dto.ErrCodeInvalidInput},
	{fee.ErrRuleSetMismatch, dto.ErrCodeInvalidInput},
	{fee.ErrInvalidFeeInput, dto.ErrCodeInvalidInput},
	{fee.ErrOverlappingWindow, dto.ErrCodeInvalidInput},
	{erpsync.ErrInvalidRange, dto.ErrCodeInvalidInput},

	{erporder.ErrRateLimited, dto.ErrCodeRateLimited},
	{erporder.ErrSourceUnavailable, dto.ErrCodeUpstream},
	{erporder.ErrUnauthorized, dto.ErrCodeUpstream},
	{erporder.ErrInvalidResponse, dto.ErrCodeUpstream},
	{erpsync.ErrRetriesExhausted, dto.ErrCodeUpstream},
	{marketplace.ErrLookupUnavailable, dto.ErrCodeUnavailable},
	{payments.ErrFeedNotConfigured, dto.ErrCodeUnavailable},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeUnavailable},
}

// errorCode returns the response code for err and whether err is known
func errorCode(err error) (string, bool) {
	for _, m := range sentinelCodes {
		if errors.Is(err, m.target) {
			return m.code, true
		}
	}
	return "", false
}

// HandleError converts domain errors to HTTP responses. Unknown errors are
// reported as internal without leaking their message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	if code, ok := errorCode(err); ok {
		h.ErrorWithCode(c, code, err.Error())
		return
	}

	_ = c.Error(err)
	h.InternalError(c, "An unexpected error occurred")
}
