package reports

import (
	"time"

	"github.com/eppcloud/epp_backend/config"
)

const slowReportThreshold = 2 * time.Second

// cachedReport serves a report from redis when possible and otherwise
// builds, times and caches it. Reports slower than the threshold are logged
// so heavy aggregations surface before users complain.
func cachedReport[T any](moduleName string, funcName string, key string, ttl time.Duration, build func() (*T, error)) (*T, error) {
	var cached T
	if found, err := config.GetRedisObject(key, &cached); err == nil && found {
		return &cached, nil
	}

	start := time.Now()
	report, err := build()
	if err != nil {
		return nil, err
	}
	if elapsed := time.Since(start); elapsed > slowReportThreshold {
		config.LogWarn(config.GetLogger(), moduleName, funcName, "slow report", map[string]interface{}{
			"key":     key,
			"elapsed": elapsed.String(),
		})
	}

	_ = config.SetRedisObject(key, report, ttl)
	return report, nil
}
