package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/application/erpsync"
	"github.com/erp/reconciler/internal/application/fees"
	linkapp "github.com/erp/reconciler/internal/application/linking"
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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// newTestRouter returns an engine carrying the request id middleware
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r
}

// doJSON sends body as JSON, or no body when body is nil
func doJSON(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, _ := json.Marshal(b)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeResponse decodes the standard envelope
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// MockSyncService implements SyncService for testing
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Run(ctx context.Context, req erpsync.Request) (*erpsync.Report, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erpsync.Report), args.Error(1)
}

func (m *MockSyncService) Runs(ctx context.Context, filter shared.Filter) (shared.Paginated[erporder.SyncRun], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[erporder.SyncRun]), args.Error(1)
}

// MockLinkService implements LinkService for testing
type MockLinkService struct {
	mock.Mock
}

func (m *MockLinkService) Resolve(ctx context.Context, erpOrderID int64) (linking.Outcome, error) {
	args := m.Called(ctx, erpOrderID)
	return args.Get(0).(linking.Outcome), args.Error(1)
}

func (m *MockLinkService) ResolveBatch(ctx context.Context, req linkapp.BatchRequest) (*linkapp.BatchReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linkapp.BatchReport), args.Error(1)
}

func (m *MockLinkService) LinkManually(ctx context.Context, req linkapp.ManualLinkRequest) (*linking.Link, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linking.Link), args.Error(1)
}

func (m *MockLinkService) Reassign(ctx context.Context, mp marketplace.Marketplace, marketplaceOrderID string, newERPOrderID int64, actor, reason string) (*linking.Link, error) {
	args := m.Called(ctx, mp, marketplaceOrderID, newERPOrderID, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linking.Link), args.Error(1)
}

func (m *MockLinkService) Delete(ctx context.Context, mp marketplace.Marketplace, marketplaceOrderID, actor, reason string) error {
	return m.Called(ctx, mp, marketplaceOrderID, actor, reason).Error(0)
}

func (m *MockLinkService) Get(ctx context.Context, mp marketplace.Marketplace, marketplaceOrderID string) (*linking.Link, error) {
	args := m.Called(ctx, mp, marketplaceOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linking.Link), args.Error(1)
}

func (m *MockLinkService) Audits(ctx context.Context, mp marketplace.Marketplace, marketplaceOrderID string) ([]linking.Audit, error) {
	args := m.Called(ctx, mp, marketplaceOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]linking.Audit), args.Error(1)
}

// MockFeeService implements FeeService for testing
type MockFeeService struct {
	mock.Mock
}

func (m *MockFeeService) Preview(ctx context.Context, in fee.Input) (fee.Breakdown, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(fee.Breakdown), args.Error(1)
}

func (m *MockFeeService) ComputeForOrder(ctx context.Context, req fees.ComputeRequest) (fee.Breakdown, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(fee.Breakdown), args.Error(1)
}

func (m *MockFeeService) RecomputeRange(ctx context.Context, from, to time.Time) (*fees.RecomputeReport, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.RecomputeReport), args.Error(1)
}

func (m *MockFeeService) Rules(ctx context.Context) (fees.RulesView, error) {
	args := m.Called(ctx)
	return args.Get(0).(fees.RulesView), args.Error(1)
}

func (m *MockFeeService) UpdateRuleSet(ctx context.Context, mp marketplace.Marketplace, sets []fee.RuleSet) (fees.RulesView, error) {
	args := m.Called(ctx, mp, sets)
	return args.Get(0).(fees.RulesView), args.Error(1)
}

// MockPaymentService implements PaymentService for testing
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Ingest(ctx context.Context, mp marketplace.Marketplace, lines []payment.Line) (*payments.IngestReport, error) {
	args := m.Called(ctx, mp, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.IngestReport), args.Error(1)
}

func (m *MockPaymentService) Pull(ctx context.Context, mp marketplace.Marketplace, since time.Time) (*payments.IngestReport, error) {
	args := m.Called(ctx, mp, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.IngestReport), args.Error(1)
}

func (m *MockPaymentService) Resolve(ctx context.Context, mp marketplace.Marketplace) (*payments.ResolveReport, error) {
	args := m.Called(ctx, mp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.ResolveReport), args.Error(1)
}

func (m *MockPaymentService) Groups(ctx context.Context, mp marketplace.Marketplace, filter payment.ListFilter) ([]payment.Group, error) {
	args := m.Called(ctx, mp, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Group), args.Error(1)
}

func (m *MockPaymentService) Reconcile(ctx context.Context, req payments.ReconcileRequest) (*payments.ReconcileReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.ReconcileReport), args.Error(1)
}

// MockSettlementArchive implements SettlementArchive for testing
type MockSettlementArchive struct {
	mock.Mock
}

func (m *MockSettlementArchive) Publish(ctx context.Context, mp marketplace.Marketplace, lines []payment.Line) (string, error) {
	args := m.Called(ctx, mp, lines)
	return args.String(0), args.Error(1)
}

// MockJobScheduler implements JobScheduler for testing
type MockJobScheduler struct {
	mock.Mock
}

func (m *MockJobScheduler) Stats() []scheduler.JobStats {
	return m.Called().Get(0).([]scheduler.JobStats)
}

func (m *MockJobScheduler) RunNow(name string) error {
	return m.Called(name).Error(0)
}
