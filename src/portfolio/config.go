package portfolio

type UnitRoundingPolicy string

const (
	// UnitRoundingNone leaves order units untouched. This matches the
	// production behavior, where the rounding filter is short-circuited.
	UnitRoundingNone UnitRoundingPolicy = "none"

	// UnitRoundingWhole rounds order units to whole contracts.
	UnitRoundingWhole UnitRoundingPolicy = "whole"
)

type Config struct {
	UnitRounding UnitRoundingPolicy `yaml:"unit_rounding"`

	// EnableAggregatedCarry activates carry realization on aggregated
	// positions. Disabled by default: the historical code path is inert.
	EnableAggregatedCarry bool `yaml:"enable_aggregated_carry"`
}

func DefaultConfig() *Config {
	return &Config{
		UnitRounding:          UnitRoundingNone,
		EnableAggregatedCarry: false,
	}
}
