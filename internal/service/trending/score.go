package trending

import (
	"context"
	"time"

	"github.com/givehub/discovery-engine/internal/models"
)

// Period is a trending lookback window.
type Period string

// Trending periods.
const (
	Period1h  Period = "1h"
	Period6h  Period = "6h"
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
)

var periodHours = map[Period]int{
	Period1h:  1,
	Period6h:  6,
	Period24h: 24,
	Period7d:  7 * 24,
	Period30d: 30 * 24,
}

// ParsePeriod maps a raw period string to a known period. Unknown values
// degrade to 24h.
func ParsePeriod(raw string) Period {
	p := Period(raw)
	if _, ok := periodHours[p]; ok {
		return p
	}
	return Period24h
}

// Window returns the lookback duration for the period.
func (p Period) Window() time.Duration {
	hours, ok := periodHours[p]
	if !ok {
		hours = periodHours[Period24h]
	}
	return time.Duration(hours) * time.Hour
}

// Score breaks a need's trending score into its weighted components.
type Score struct {
	Views        int     `json:"views"`
	Interactions int     `json:"interactions"`
	Momentum     float64 `json:"momentum"`
	Recency      float64 `json:"recency"`
	TotalScore   float64 `json:"total_score"`
}

// Score component weights. Momentum and recency are normalized fractions,
// scaled by 100 to live on the same order as raw counts.
const (
	weightViews        = 0.2
	weightInteractions = 0.4
	weightMomentum     = 0.3
	weightRecency      = 0.1
	normalizationScale = 100
)

// Fixed per-user momentum and recency. User-level ledger history is too
// sparse for a per-user baseline, so every user gets the same constants and
// ranking is driven by windowed points and engagement.
const (
	userMomentum = 0.5
	userRecency  = 0.7
)

// PreviousPeriodSource supplies activity counts for the window preceding the
// current one. Deployments without historical snapshots plug in ZeroBaseline.
type PreviousPeriodSource interface {
	NeedCounts(ctx context.Context, needID uint, window time.Duration) (views, interactions int, err error)
	TagCount(ctx context.Context, tag string, window time.Duration) (int, error)
}

// ZeroBaseline reports no previous-period activity. With it, every need
// carries maximal momentum and every tag maximal growth.
type ZeroBaseline struct{}

func (ZeroBaseline) NeedCounts(ctx context.Context, needID uint, window time.Duration) (int, int, error) {
	return 0, 0, nil
}

func (ZeroBaseline) TagCount(ctx context.Context, tag string, window time.Duration) (int, error) {
	return 0, nil
}

// ScoreNeed computes the weighted trending score of a need at time now.
// Momentum is the mean of the views and interactions momentum terms; a term
// without a baseline is 1, so fresh activity with nothing to compare against
// counts as fully accelerating, which surfaces new needs.
func ScoreNeed(need *models.Need, prevViews, prevInteractions int, window time.Duration, now time.Time) Score {
	views := need.ViewCount
	interactions := need.Interactions()

	momentum := (Momentum(views, prevViews) + Momentum(interactions, prevInteractions)) / 2
	recency := Recency(now.Sub(need.CreatedAt), window)

	total := float64(views)*weightViews +
		float64(interactions)*weightInteractions +
		momentum*normalizationScale*weightMomentum +
		recency*normalizationScale*weightRecency

	return Score{
		Views:        views,
		Interactions: interactions,
		Momentum:     momentum,
		Recency:      recency,
		TotalScore:   total,
	}
}

// ScoreUser computes the weighted trending score of a user from their
// windowed points and engagement counts.
func ScoreUser(pointsEarned, needsCreated, contributions int) float64 {
	engagement := needsCreated*10 + contributions*5
	return float64(pointsEarned)*weightViews +
		float64(engagement)*weightInteractions +
		userMomentum*normalizationScale*weightMomentum +
		userRecency*normalizationScale*weightRecency
}

// Momentum is the relative growth of current activity over previous
// activity. No previous activity yields 1 regardless of the current count.
func Momentum(current, previous int) float64 {
	if previous > 0 {
		return float64(current-previous) / float64(previous)
	}
	return 1
}

// Recency maps an item's age to [0, 1]: 1 at the window's leading edge,
// linearly down to 0 for anything at or past the window's full span.
func Recency(age, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	r := 1 - age.Hours()/window.Hours()
	if r < 0 {
		return 0
	}
	return r
}

// GrowthRate is the percentage change of current usage over previous usage.
// A tag unseen in the previous window reports 100.
func GrowthRate(current, previous int) float64 {
	if previous > 0 {
		return float64(current-previous) / float64(previous) * 100
	}
	return 100
}
