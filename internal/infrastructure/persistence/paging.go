package persistence

import (
	"github.com/erp/reconciler/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paginate applies the page window of filter and orders by columns in the
// filter's direction. Column names come from code, never from requests.
func paginate(filter shared.Filter, columns ...string) func(*gorm.DB) *gorm.DB {
	filter = filter.Normalize()
	desc := filter.OrderDir != "asc"
	return func(db *gorm.DB) *gorm.DB {
		for _, col := range columns {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc})
		}
		return db.Offset(filter.Offset()).Limit(filter.PageSize)
	}
}
