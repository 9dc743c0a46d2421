package persona

import (
	"fmt"
	"os"
	"sort"
	"time"

	"maripist/internal/logging"

	"gopkg.in/yaml.v3"
)

// rosterEntry is the on-disk shape of one persona in personas.yaml.
// Personality is a pointer so an omitted value can default to balanced
// without swallowing an explicit 0.
type rosterEntry struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	UserID      string    `yaml:"user_id"`
	CreatedAt   time.Time `yaml:"created_at"`
	Personality *float64  `yaml:"personality"`
}

type rosterFile struct {
	Personas []rosterEntry `yaml:"personas"`
}

// LoadRoster reads a persona roster from a YAML file and returns the
// personas sorted by creation time. Personality values are clamped into
// [0,1] here so the rest of the engine never sees out-of-range input;
// a missing personality defaults to 0.5 (balanced).
func LoadRoster(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	personas := make([]Persona, 0, len(rf.Personas))
	for _, e := range rf.Personas {
		if e.ID == "" {
			return nil, fmt.Errorf("persona %q missing id", e.Name)
		}
		if e.Name == "" {
			return nil, fmt.Errorf("persona %q missing name", e.ID)
		}
		personality := 0.5
		if e.Personality != nil {
			personality = clamp(*e.Personality)
		}
		personas = append(personas, Persona{
			ID:          e.ID,
			Name:        e.Name,
			UserID:      e.UserID,
			CreatedAt:   e.CreatedAt,
			Personality: personality,
		})
	}

	sort.SliceStable(personas, func(i, j int) bool {
		return personas[i].CreatedAt.Before(personas[j].CreatedAt)
	})

	logging.Get(logging.CategoryConfig).Info("Loaded %d personas from %s", len(personas), path)
	return personas, nil
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
