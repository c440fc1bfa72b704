package recommend

import "github.com/givehub/discovery-engine/internal/models"

// Strategy selects how need recommendations are produced.
type Strategy string

// Recommendation strategies.
const (
	StrategyCollaborative Strategy = "collaborative"
	StrategyContentBased  Strategy = "content_based"
	StrategyPopular       Strategy = "popular"
	StrategyTrending      Strategy = "trending"
	StrategyHybrid        Strategy = "hybrid"
)

var knownStrategies = map[Strategy]bool{
	StrategyCollaborative: true,
	StrategyContentBased:  true,
	StrategyPopular:       true,
	StrategyTrending:      true,
	StrategyHybrid:        true,
}

// ParseStrategy maps a raw strategy string to a known strategy. Unknown and
// empty values degrade to hybrid.
func ParseStrategy(raw string) Strategy {
	s := Strategy(raw)
	if knownStrategies[s] {
		return s
	}
	return StrategyHybrid
}

// Reason is one human-readable justification attached to a recommendation.
type Reason struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// NeedRecommendation is a scored, explained need suggestion. Score lives on
// a 0 to 100 scale except for the trending strategy, which reuses the raw
// trending score. Confidence is in [0, 1] and grows with evidence strength.
type NeedRecommendation struct {
	Need       models.Need        `json:"need"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Reasons    []Reason           `json:"reasons"`
	Strategy   Strategy           `json:"strategy"`
	MatchScore map[string]float64 `json:"match_score,omitempty"`
}

// UserRecommendation is a scored, explained user suggestion.
type UserRecommendation struct {
	User       models.User        `json:"user"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Reasons    []Reason           `json:"reasons"`
	MatchScore map[string]float64 `json:"match_score,omitempty"`
}

// TeamRecommendation is a scored, explained team suggestion.
type TeamRecommendation struct {
	Team       models.Team        `json:"team"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Reasons    []Reason           `json:"reasons"`
	MatchScore map[string]float64 `json:"match_score,omitempty"`
}
