// Package cleaning implements the ordered filtering pipeline and the schema
// normalizer that turn the raw sales extract into clean property records.
package cleaning

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules holds the tunable bounds and sentinel sets of the cleaning pipeline.
type Rules struct {
	// RejectedTowns are placeholder town values equivalent to missing data.
	RejectedTowns []string `yaml:"rejected_towns"`
	// CategorySentinels are placeholder values for the categorical type
	// columns, beyond the generic null sentinels.
	CategorySentinels []string `yaml:"category_sentinels"`
	MinListYear       int      `yaml:"min_list_year"`
	MaxListYear       int      `yaml:"max_list_year"`
	MaxYearsUntilSold int      `yaml:"max_years_until_sold"`
	// RatioFloor is the hard lower bound applied to the sales-ratio
	// outlier window: lower = max(RatioFloor, mean-3σ).
	RatioFloor float64 `yaml:"ratio_floor"`
}

// DefaultRules returns the compiled-in cleaning rules, matching the bounds
// the dataset was originally curated with.
func DefaultRules() Rules {
	return Rules{
		RejectedTowns:     []string{"***Unknown***", "Unknown", "N/A", "NA"},
		CategorySentinels: []string{"Nan"},
		MinListYear:       2000,
		MaxListYear:       2020,
		MaxYearsUntilSold: 20,
		RatioFloor:        0.1,
	}
}

// LoadRules reads cleaning rules from a YAML file. Omitted fields keep their
// default values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "cleaning: read rules %s", path)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, eris.Wrapf(err, "cleaning: parse rules %s", path)
	}
	return rules, nil
}

func (r Rules) rejectedTownSet() map[string]bool {
	set := make(map[string]bool, len(r.RejectedTowns))
	for _, t := range r.RejectedTowns {
		set[t] = true
	}
	return set
}

func (r Rules) sentinelSet() map[string]bool {
	set := make(map[string]bool, len(r.CategorySentinels))
	for _, s := range r.CategorySentinels {
		set[s] = true
	}
	return set
}
