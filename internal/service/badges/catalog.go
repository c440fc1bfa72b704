package badges

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/givehub/discovery-engine/internal/models"
)

// catalogFile is the YAML badge catalog shipped with a deployment.
type catalogFile struct {
	Badges []catalogEntry `yaml:"badges"`
}

type catalogEntry struct {
	Slug        string                  `yaml:"slug"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Icon        string                  `yaml:"icon"`
	Points      int                     `yaml:"points"`
	Conditions  []models.BadgeCondition `yaml:"conditions"`
}

// LoadCatalog parses a YAML badge catalog into badge rows ready for
// seeding. Conditions are stored as JSON on the badge row.
func LoadCatalog(path string) ([]models.Badge, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badge catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse badge catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Badges))
	badges := make([]models.Badge, 0, len(file.Badges))
	for i, entry := range file.Badges {
		if entry.Slug == "" || entry.Name == "" {
			return nil, fmt.Errorf("badge catalog entry %d is missing slug or name", i)
		}
		if seen[entry.Slug] {
			return nil, fmt.Errorf("badge catalog has duplicate slug %q", entry.Slug)
		}
		seen[entry.Slug] = true

		conditions, err := json.Marshal(entry.Conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode conditions for badge %q: %w", entry.Slug, err)
		}
		badges = append(badges, models.Badge{
			Slug:        entry.Slug,
			Name:        entry.Name,
			Description: entry.Description,
			Icon:        entry.Icon,
			Points:      entry.Points,
			Conditions:  conditions,
		})
	}
	return badges, nil
}
