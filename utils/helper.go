package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/bsm/redislock"
	"github.com/eppcloud/epp_backend/config"
)

func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			// if not exists in map, append it, otherwise do nothing
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// ExecTemplate renders a SQL text template (used for optional WHERE clauses).
func ExecTemplate(tString string, data map[string]interface{}) (string, error) {
	t, err := template.New("sql").Parse(tString)
	if err != nil {
		return "", errors.New("error parsing sql template: " + err.Error())
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", errors.New("failed to execute sql template: " + err.Error())
	}
	return b.String(), nil
}

// ConvertToDate truncates t to a date in the given timezone.
func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = "America/Lima"
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return t, err
	}
	localTime := t.In(location)
	dateOnly := time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, location)
	return dateOnly, nil
}

// MonthRange returns the [start, end) bounds of a calendar month.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// WarehouseStockLock serializes multi-row stock mutations per warehouse.
// Row locks on lots and stock records remain the correctness mechanism;
// this keeps multi-line deliveries from interleaving their lot scans.
func WarehouseStockLock(ctx context.Context, warehouseId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// row locks still serialize correctness; without redis we only lose
		// the coarse per-warehouse ordering of multi-line deliveries
		config.LogWarn(logger, moduleName, functionName, "redis lock not initialized, proceeding on row locks only", warehouseId)
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("stockLock:%d", warehouseId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain stock lock for warehouse", warehouseId, err)
		return nil, ErrConcurrentModification
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining stock lock for warehouse", warehouseId, err)
		return nil, err
	}
	release := func() {
		_ = lock.Release(ctx)
	}
	return release, nil
}

var seqMutex sync.Mutex

// GetSequence returns the next document sequence number for model T.
// Redis INCR is the fast path; on a cold counter the max persisted
// sequence_no is read back from the db so numbers are never reused.
func GetSequence[T any](ctx context.Context, typeName string) (int64, error) {
	seqMutex.Lock()
	defer seqMutex.Unlock()

	cacheKey := strings.ToLower(typeName) + "_seq"
	db := config.GetDB()

	rdb := config.GetRedisDB()
	if rdb != nil {
		seqNo, err := rdb.Incr(config.GetRedisContext(), cacheKey).Result()
		if err != nil {
			return 0, err
		}
		if seqNo > 1 {
			return seqNo, nil
		}
		// cold counter: seed from db below, then fix redis
		var model T
		var dbSeq *int64
		if err := db.WithContext(ctx).Model(&model).Select("max(sequence_no)").Scan(&dbSeq).Error; err != nil {
			return 0, err
		}
		next := int64(1)
		if dbSeq != nil {
			next = *dbSeq + 1
		}
		if err := rdb.Set(config.GetRedisContext(), cacheKey, next, 0).Err(); err != nil {
			return 0, err
		}
		return next, nil
	}

	// no redis: db max + 1 under the package mutex
	var model T
	var dbSeq *int64
	if err := db.WithContext(ctx).Model(&model).Select("max(sequence_no)").Scan(&dbSeq).Error; err != nil {
		return 0, err
	}
	if dbSeq == nil {
		return 1, nil
	}
	return *dbSeq + 1, nil
}
