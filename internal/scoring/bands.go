package scoring

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"

	"github.com/bantai/bantai-service/internal/domain"
)

// Band maps an inclusive score range to a risk level. A nil MaxScore means the
// band is open-ended.
type Band struct {
	MinScore int              `mapstructure:"min_score" json:"minScore"`
	MaxScore *int             `mapstructure:"max_score" json:"maxScore,omitempty"`
	Level    domain.RiskLevel `mapstructure:"level" json:"level"`
}

func (b Band) Contains(score int) bool {
	if score < b.MinScore {
		return false
	}
	return b.MaxScore == nil || score <= *b.MaxScore
}

func intPtr(v int) *int {
	return &v
}

func DefaultBands() []Band {
	return []Band{
		{MinScore: 0, MaxScore: intPtr(2), Level: domain.RiskLow},
		{MinScore: 3, MaxScore: intPtr(5), Level: domain.RiskModerate},
		{MinScore: 6, Level: domain.RiskHigh},
	}
}

// ValidateBands checks that bands partition [0, +inf) with no gap or overlap.
// It returns the bands sorted by MinScore.
func ValidateBands(bands []Band) ([]Band, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("risk bands: at least one band is required")
	}

	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })

	if sorted[0].MinScore != 0 {
		return nil, fmt.Errorf("risk bands: first band must start at 0, starts at %d", sorted[0].MinScore)
	}

	for i, b := range sorted {
		if !b.Level.Valid() {
			return nil, fmt.Errorf("risk bands: unknown level %q", b.Level)
		}

		last := i == len(sorted)-1
		if b.MaxScore == nil {
			if !last {
				return nil, fmt.Errorf("risk bands: only the last band may be open-ended (band starting at %d)", b.MinScore)
			}
			continue
		}

		if *b.MaxScore < b.MinScore {
			return nil, fmt.Errorf("risk bands: band %d-%d is inverted", b.MinScore, *b.MaxScore)
		}
		if last {
			return nil, fmt.Errorf("risk bands: last band must be open-ended, ends at %d", *b.MaxScore)
		}

		next := sorted[i+1].MinScore
		switch {
		case next <= *b.MaxScore:
			return nil, fmt.Errorf("risk bands: bands overlap at %d", next)
		case next > *b.MaxScore+1:
			return nil, fmt.Errorf("risk bands: gap between %d and %d", *b.MaxScore, next)
		}
	}

	return sorted, nil
}

// LoadBands reads a `risk_bands` list from a yaml, json or toml file. An empty
// path yields the default bands.
func LoadBands(path string) ([]Band, error) {
	if path == "" {
		return DefaultBands(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read risk config %s: %w", path, err)
	}

	var bands []Band
	if err := v.UnmarshalKey("risk_bands", &bands); err != nil {
		return nil, fmt.Errorf("failed to parse risk bands: %w", err)
	}

	return ValidateBands(bands)
}
