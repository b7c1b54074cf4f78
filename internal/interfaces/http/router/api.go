package router

import (
	"github.com/erp/reconciler/internal/interfaces/http/handler"
)

// Handlers are the endpoints of the admin API
type Handlers struct {
	Sync    *handler.SyncHandler
	Link    *handler.LinkHandler
	Fee     *handler.FeeHandler
	Payment *handler.PaymentHandler
	System  *handler.SystemHandler
}

// APIGroups returns the resource groups of the admin API. Link, rule and
// payment routes name their marketplace with the :marketplace segment,
// which the tracing, metrics and profiling middleware pick up.
func APIGroups(h Handlers) []RouteRegistrar {
	syncRuns := NewDomainGroup("sync", "/sync")
	syncRuns.POST("/runs", h.Sync.Run)
	syncRuns.GET("/runs", h.Sync.List)

	links := NewDomainGroup("links", "/links")
	links.POST("/resolve", h.Link.Resolve)
	links.POST("", h.Link.Create)
	links.GET("/:marketplace/:orderId", h.Link.Get)
	links.PUT("/:marketplace/:orderId", h.Link.Reassign)
	links.DELETE("/:marketplace/:orderId", h.Link.Delete)
	links.GET("/:marketplace/:orderId/audits", h.Link.Audits)

	fees := NewDomainGroup("fees", "/fees")
	fees.POST("/preview", h.Fee.Preview)
	fees.POST("/orders/:erpId", h.Fee.ComputeForOrder)
	fees.POST("/recompute", h.Fee.Recompute)
	fees.GET("/rules", h.Fee.Rules)
	fees.PUT("/rules/:marketplace", h.Fee.UpdateRules)

	payments := NewDomainGroup("payments", "/payments/:marketplace")
	payments.POST("/ingest", h.Payment.Ingest)
	payments.POST("/pull", h.Payment.Pull)
	payments.POST("/resolve", h.Payment.Resolve)
	payments.GET("/groups", h.Payment.Groups)
	payments.GET("/discrepancies", h.Payment.Discrepancies)

	system := NewDomainGroup("system", "")
	system.GET("/health", h.System.Health)
	jobs := system.Group("scheduler", "/scheduler/jobs")
	jobs.GET("", h.System.Jobs)
	jobs.POST("/:name/run", h.System.RunJob)

	return []RouteRegistrar{syncRuns, links, fees, payments, system}
}
