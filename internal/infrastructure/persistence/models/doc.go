// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain entities so the domain stays free of ORM
// concerns; each model carries ToDomain and a FromDomain constructor.
//
//   - erp_order.go: synced ERP orders with enrichment and link state
//   - link.go: marketplace order links and their audit trail
//   - payment.go: settlement payments
//   - fee_rule.go: marketplace fee rule sets
//   - sync_run.go: ERP sync run history
//
// Tables are created by the SQL migrations; AutoMigrate is only used by
// tests against SQLite.
package models
