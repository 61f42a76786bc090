package xmongo

import (
	"math"

	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// MaxPageSize 单页上限。
const MaxPageSize = 10000

// PageOptions 分页查询选项。
type PageOptions struct {
	// Page 页码，从 1 开始。
	Page int64

	// PageSize 每页大小。
	PageSize int64
}

// PageResult 分页查询结果。
//
// 一致性说明：Total 通过独立的 COUNT 查询获取，与数据查询不在同一事务中，
// 并发写入时可能与 Items 的实际数量略有差异。
type PageResult struct {
	Items      []*xescalate.DeadLetter
	Total      int64
	Page       int64
	PageSize   int64
	TotalPages int64
}

// validatePagination 校验分页参数并返回 skip。
func validatePagination(page, pageSize int64) (int64, error) {
	if page < 1 {
		return 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, ErrInvalidPageSize
	}
	if page-1 > math.MaxInt64/pageSize {
		return 0, ErrPageOverflow
	}
	return (page - 1) * pageSize, nil
}

func totalPages(total, pageSize int64) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// BulkOptions 批量写入选项。
type BulkOptions struct {
	// BatchSize 每批大小，默认 1000，上限 10000。
	BatchSize int

	// Ordered 是否有序写入。有序写入时，遇到错误会停止后续批次。
	Ordered bool
}

// BulkResult 批量写入结果。
//
// 即使返回的 error 不为 nil，InsertedCount 也可能 > 0，表示部分成功。
type BulkResult struct {
	InsertedCount int64
	Errors        []error
}
