package reports

import (
	"testing"

	"github.com/eppcloud/epp_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func entry(id int, role string, cost string) RankingEntry {
	return RankingEntry{
		EmployeeId: id,
		JobRole:    role,
		TotalCost:  decimal.RequireFromString(cost),
	}
}

func TestRankConsumptionOrdersByCostThenId(t *testing.T) {
	ranked := rankConsumption([]RankingEntry{
		entry(5, "welder", "100"),
		entry(2, "welder", "300"),
		entry(9, "welder", "200"),
	})

	assert.Equal(t, []int{2, 9, 5}, []int{ranked[0].EmployeeId, ranked[1].EmployeeId, ranked[2].EmployeeId})
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, 3, ranked[2].Rank)
	for _, e := range ranked {
		assert.False(t, e.EsEmpate)
	}
}

func TestRankConsumptionFlagsTies(t *testing.T) {
	ranked := rankConsumption([]RankingEntry{
		entry(8, "welder", "200"),
		entry(3, "welder", "200"),
		entry(1, "welder", "500"),
		entry(6, "welder", "100"),
	})

	// tie on 200 shares rank 2, ordered by employee id
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 1, ranked[0].EmployeeId)

	assert.Equal(t, 3, ranked[1].EmployeeId)
	assert.Equal(t, 8, ranked[2].EmployeeId)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, 2, ranked[2].Rank)
	assert.True(t, ranked[1].EsEmpate)
	assert.True(t, ranked[2].EsEmpate)

	assert.Equal(t, 4, ranked[3].Rank)
	assert.False(t, ranked[3].EsEmpate)
}

func TestTopWithTiesIncludesBoundaryTie(t *testing.T) {
	ranked := rankConsumption([]RankingEntry{
		entry(1, "welder", "500"),
		entry(2, "welder", "400"),
		entry(3, "welder", "300"),
		entry(4, "welder", "300"),
		entry(5, "welder", "100"),
	})

	top := topWithTies(ranked, 3)
	// the third place is tied, so the cut expands to four entries
	assert.Len(t, top, 4)
	assert.Equal(t, 4, top[3].EmployeeId)

	assert.Len(t, topWithTies(ranked, 10), 5)
}

func TestBottomWithTiesIncludesBoundaryTie(t *testing.T) {
	ranked := rankConsumption([]RankingEntry{
		entry(1, "welder", "500"),
		entry(2, "welder", "400"),
		entry(3, "welder", "300"),
		entry(4, "welder", "300"),
		entry(5, "welder", "100"),
	})

	bottom := bottomWithTies(ranked, 2)
	// entry 4 ties with entry 3 at the boundary
	assert.Len(t, bottom, 3)
	assert.Equal(t, 3, bottom[0].EmployeeId)
	assert.Equal(t, 5, bottom[2].EmployeeId)
}

func TestGroupStats(t *testing.T) {
	mean, stddev := GroupStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 0.0001)
	assert.InDelta(t, 2.0, stddev, 0.0001)

	mean, stddev = GroupStats(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}

func TestScoreEntriesUsesPeerGroupPerRole(t *testing.T) {
	entries := []RankingEntry{
		entry(1, "welder", "100"),
		entry(2, "welder", "100"),
		entry(3, "welder", "400"),
		entry(4, "clerk", "50"),
	}
	scoreEntries(entries, map[int]int{3: 5})

	// single-member peer group has no deviation
	assert.Zero(t, entries[3].DeviationStd)
	assert.Equal(t, models.RiskBandNormal, entries[3].RiskBand)

	// the outlier welder carries both deviation and alert pressure
	assert.Greater(t, entries[2].DeviationStd, 1.0)
	assert.Equal(t, 5, entries[2].PendingAlerts)
	assert.Greater(t, entries[2].RiskScore, entries[0].RiskScore)
}

func TestRiskScoreClamps(t *testing.T) {
	assert.Equal(t, 100.0, riskScore(10, 50))
	assert.Equal(t, 0.0, riskScore(-2, 0))
}

func TestRiskBands(t *testing.T) {
	assert.Equal(t, models.RiskBandCritical, riskBand(85))
	assert.Equal(t, models.RiskBandHigh, riskBand(60))
	assert.Equal(t, models.RiskBandMedium, riskBand(45))
	assert.Equal(t, models.RiskBandLow, riskBand(20))
	assert.Equal(t, models.RiskBandNormal, riskBand(5))
}
