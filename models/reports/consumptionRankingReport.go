package reports

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
)

const defaultRankingSize = 10

type ConsumptionRankingInput struct {
	Year      int     `json:"year" binding:"required"`
	Month     int     `json:"month" binding:"required,min=1,max=12"`
	ProjectId *int    `json:"project_id"`
	JobRole   *string `json:"job_role"`
	TopN      int     `json:"top_n"`
}

// RankingEntry is one employee in the consumption ranking. Rank is shared
// across a cost tie and every member of the tie is flagged EsEmpate.
type RankingEntry struct {
	EmployeeId    int             `json:"employee_id"`
	FullName      string          `json:"full_name"`
	JobRole       string          `json:"job_role"`
	ProjectId     *int            `json:"project_id"`
	TotalQty      decimal.Decimal `json:"total_qty"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	DeliveryCount int             `json:"delivery_count"`
	Rank          int             `json:"rank"`
	EsEmpate      bool            `json:"es_empate"`
	DeviationStd  float64         `json:"deviation_std"`
	PendingAlerts int             `json:"pending_alerts"`
	RiskScore     float64         `json:"risk_score"`
	RiskBand      models.RiskBand `json:"risk_band"`
}

type ConsumptionRankingReport struct {
	Year        int            `json:"year"`
	Month       int            `json:"month"`
	Entries     []RankingEntry `json:"entries"`
	Top         []RankingEntry `json:"top"`
	Bottom      []RankingEntry `json:"bottom"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// GetConsumptionRanking aggregates the month's deliveries per employee,
// ranks them by total cost and scores each one against its job-role peer
// group. Served from the report cache when a recent copy exists.
func GetConsumptionRanking(ctx context.Context, input *ConsumptionRankingInput) (*ConsumptionRankingReport, error) {
	if input.TopN <= 0 {
		input.TopN = defaultRankingSize
	}
	cacheKey := fmt.Sprintf("consumptionRanking:%d-%02d:p%s:r%s:n%d",
		input.Year, input.Month,
		intFilterKey(input.ProjectId), strFilterKey(input.JobRole), input.TopN)

	return cachedReport("reports", "GetConsumptionRanking", cacheKey, 10*time.Minute, func() (*ConsumptionRankingReport, error) {
		return buildConsumptionRanking(ctx, input)
	})
}

func intFilterKey(v *int) string {
	if v == nil {
		return "all"
	}
	return fmt.Sprintf("%d", *v)
}

func strFilterKey(v *string) string {
	if v == nil {
		return "all"
	}
	return *v
}

func buildConsumptionRanking(ctx context.Context, input *ConsumptionRankingInput) (*ConsumptionRankingReport, error) {
	monthStart, monthEnd := utils.MonthRange(input.Year, time.Month(input.Month))

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Table("deliveries d").
		Select(`d.employee_id,
			e.full_name,
			e.job_role,
			e.project_id,
			COALESCE(SUM(d.qty), 0) AS total_qty,
			COALESCE(SUM(d.qty * l.unit_price), 0) AS total_cost,
			COUNT(d.id) AS delivery_count`).
		Joins("JOIN employees e ON e.id = d.employee_id").
		Joins("JOIN lots l ON l.id = d.lot_id").
		Where("d.delivery_date >= ? AND d.delivery_date < ?", monthStart, monthEnd).
		Group("d.employee_id, e.full_name, e.job_role, e.project_id")
	if input.ProjectId != nil {
		dbCtx = dbCtx.Where("e.project_id = ?", *input.ProjectId)
	}
	if input.JobRole != nil && *input.JobRole != "" {
		dbCtx = dbCtx.Where("e.job_role = ?", *input.JobRole)
	}

	var entries []RankingEntry
	if err := dbCtx.Scan(&entries).Error; err != nil {
		return nil, err
	}

	entries = rankConsumption(entries)

	employeeIds := make([]int, 0, len(entries))
	for _, e := range entries {
		employeeIds = append(employeeIds, e.EmployeeId)
	}
	pending, err := models.CountPendingAlertsByEmployee(ctx, employeeIds)
	if err != nil {
		return nil, err
	}
	scoreEntries(entries, pending)

	return &ConsumptionRankingReport{
		Year:        input.Year,
		Month:       input.Month,
		Entries:     entries,
		Top:         topWithTies(entries, input.TopN),
		Bottom:      bottomWithTies(entries, input.TopN),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// rankConsumption orders entries by total cost descending, breaking cost
// ties by employee id ascending, and assigns shared ranks: every member of
// an equal-cost group carries the same rank and the EsEmpate flag.
func rankConsumption(entries []RankingEntry) []RankingEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TotalCost.Equal(entries[j].TotalCost) {
			return entries[i].TotalCost.GreaterThan(entries[j].TotalCost)
		}
		return entries[i].EmployeeId < entries[j].EmployeeId
	})

	for i := range entries {
		if i == 0 {
			entries[i].Rank = 1
			continue
		}
		if entries[i].TotalCost.Equal(entries[i-1].TotalCost) {
			entries[i].Rank = entries[i-1].Rank
			entries[i].EsEmpate = true
			entries[i-1].EsEmpate = true
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

// topWithTies returns the first n ranked entries plus every entry tied on
// cost with the nth one, so a boundary tie is never cut in half.
func topWithTies(entries []RankingEntry, n int) []RankingEntry {
	if len(entries) <= n {
		return append([]RankingEntry(nil), entries...)
	}
	cut := n
	boundary := entries[n-1].TotalCost
	for cut < len(entries) && entries[cut].TotalCost.Equal(boundary) {
		cut++
	}
	return append([]RankingEntry(nil), entries[:cut]...)
}

// bottomWithTies mirrors topWithTies from the other end of the ranking.
func bottomWithTies(entries []RankingEntry, n int) []RankingEntry {
	if len(entries) <= n {
		return append([]RankingEntry(nil), entries...)
	}
	start := len(entries) - n
	boundary := entries[start].TotalCost
	for start > 0 && entries[start-1].TotalCost.Equal(boundary) {
		start--
	}
	return append([]RankingEntry(nil), entries[start:]...)
}

// GroupStats returns the mean and population standard deviation of values.
// Exported because the periodic top-consumer scan shares the same peer
// statistics.
func GroupStats(values []float64) (mean float64, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum / float64(len(values)))
}

// scoreEntries computes the deviation of each employee against its job-role
// peer group and folds in unresolved-alert pressure into a 0..100 score.
func scoreEntries(entries []RankingEntry, pendingAlerts map[int]int) {
	costsByRole := make(map[string][]float64)
	for _, e := range entries {
		costsByRole[e.JobRole] = append(costsByRole[e.JobRole], e.TotalCost.InexactFloat64())
	}
	statsByRole := make(map[string][2]float64, len(costsByRole))
	for role, costs := range costsByRole {
		mean, stddev := GroupStats(costs)
		statsByRole[role] = [2]float64{mean, stddev}
	}

	for i := range entries {
		stats := statsByRole[entries[i].JobRole]
		if stats[1] > 0 {
			entries[i].DeviationStd = (entries[i].TotalCost.InexactFloat64() - stats[0]) / stats[1]
		}
		entries[i].PendingAlerts = pendingAlerts[entries[i].EmployeeId]
		entries[i].RiskScore = riskScore(entries[i].DeviationStd, entries[i].PendingAlerts)
		entries[i].RiskBand = riskBand(entries[i].RiskScore)
	}
}

// riskScore blends statistical deviation (70%) with unresolved-alert
// pressure (30%), clamped to 0..100. Only consumption above the peer mean
// contributes.
func riskScore(deviationStd float64, pendingAlerts int) float64 {
	deviation := deviationStd / 3
	if deviation < 0 {
		deviation = 0
	}
	if deviation > 1 {
		deviation = 1
	}
	alerts := float64(pendingAlerts) / 5
	if alerts > 1 {
		alerts = 1
	}
	return math.Round((deviation*70+alerts*30)*100) / 100
}

func riskBand(score float64) models.RiskBand {
	switch {
	case score >= 80:
		return models.RiskBandCritical
	case score >= 60:
		return models.RiskBandHigh
	case score >= 40:
		return models.RiskBandMedium
	case score >= 20:
		return models.RiskBandLow
	}
	return models.RiskBandNormal
}
