package leaderboard

import "time"

// Category selects the aggregate metric a leaderboard ranks by.
type Category string

// Leaderboard categories.
const (
	CategoryPoints         Category = "points"
	CategoryContributions  Category = "contributions"
	CategoryNeedsCreated   Category = "needs_created"
	CategoryNeedsSupported Category = "needs_supported"
	CategoryBadges         Category = "badges"
	CategoryLevel          Category = "level"
	CategoryTasksCompleted Category = "tasks_completed"
	CategoryTeamsCreated   Category = "teams_created"
)

// categoryColumns maps each category to its aggregate column.
var categoryColumns = map[Category]string{
	CategoryPoints:         "total_points",
	CategoryContributions:  "total_contributions",
	CategoryNeedsCreated:   "needs_created",
	CategoryNeedsSupported: "needs_supported",
	CategoryBadges:         "badges_count",
	CategoryLevel:          "current_level",
	CategoryTasksCompleted: "tasks_completed",
	CategoryTeamsCreated:   "teams_created",
}

// ParseCategory maps a raw category string to a known category. Unknown
// values degrade to points; category is a user-tunable query parameter and
// never a hard failure.
func ParseCategory(raw string) Category {
	c := Category(raw)
	if _, ok := categoryColumns[c]; ok {
		return c
	}
	return CategoryPoints
}

// Column returns the aggregate column this category ranks by.
func (c Category) Column() string {
	if column, ok := categoryColumns[c]; ok {
		return column
	}
	return categoryColumns[CategoryPoints]
}

// Period selects the time window a leaderboard covers.
type Period string

// Leaderboard periods.
const (
	PeriodAllTime Period = "all_time"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// periodWindows maps each windowed period to its lookback duration.
var periodWindows = map[Period]time.Duration{
	PeriodDaily:   24 * time.Hour,
	PeriodWeekly:  7 * 24 * time.Hour,
	PeriodMonthly: 30 * 24 * time.Hour,
}

// ParsePeriod maps a raw period string to a known period. Unknown values
// degrade to all_time.
func ParsePeriod(raw string) Period {
	p := Period(raw)
	if p == PeriodAllTime {
		return p
	}
	if _, ok := periodWindows[p]; ok {
		return p
	}
	return PeriodAllTime
}

// Window returns the lookback duration and whether the period is windowed.
// All-time has no window.
func (p Period) Window() (time.Duration, bool) {
	d, ok := periodWindows[p]
	return d, ok
}
