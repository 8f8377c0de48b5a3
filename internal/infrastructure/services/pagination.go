package services

import (
	"math"
	"strconv"
)

// Pagination limits for admin listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page is one slice of a listing plus navigation metadata.
type Page[T any] struct {
	Data        []T  `json:"data"`
	Page        int  `json:"page"`
	Size        int  `json:"size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate slices items according to "page"/"size" or "offset"/"limit"
// query parameters. Offset style wins when an offset is given.
func Paginate[T any](items []T, queryParams map[string]string) Page[T] {
	offset, limit := resolveSliceBounds(queryParams)

	totalItems := len(items)
	offset = min(offset, totalItems)
	end := min(offset+limit, totalItems)

	totalPages := int(math.Ceil(float64(totalItems) / float64(limit)))
	if totalPages == 0 {
		totalPages = 1
	}

	data := items[offset:end]
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:        data,
		Page:        (offset / limit) + 1,
		Size:        limit,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNext:     end < totalItems,
		HasPrevious: offset > 0,
	}
}

func resolveSliceBounds(qp map[string]string) (offset, limit int) {
	limit = DefaultPageSize

	if v, ok := qp["offset"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
		if v, ok := qp["limit"]; ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
	} else {
		page := 1
		if v, ok := qp["page"]; ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				page = n
			}
		}
		if v, ok := qp["size"]; ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		offset = (page - 1) * limit
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}
