package models

import "gorm.io/gorm"

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// Pagination is the envelope metadata for list endpoints.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// Paginate counts the scoped query, then applies offset/limit and scans into
// dest. The caller builds the WHERE clauses; this only pages them.
func Paginate(dbCtx *gorm.DB, page, limit int, dest interface{}) (*Pagination, error) {
	page, limit = NormalizePage(page, limit)

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}

	err := dbCtx.Offset((page - 1) * limit).Limit(limit).Find(dest).Error
	if err != nil {
		return nil, err
	}
	return &Pagination{Page: page, Limit: limit, Total: total}, nil
}
