package ratings

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
)

// MaxCommentLength bounds the optional free-text comment, counted in runes.
const MaxCommentLength = 500

// MaxSeedWeight bounds the real and fake blending weights of a seed.
const MaxSeedWeight = 1000

// Options holds the engine settings that would otherwise be global toggles.
type Options struct {
	// DefaultMode, DefaultRealWeight and DefaultFakeWeight seed every new
	// (entity, category) key at onboarding.
	DefaultMode       domain.DisplayMode
	DefaultRealWeight decimal.Decimal
	DefaultFakeWeight decimal.Decimal
	// Precision is the number of decimal places displayed averages are
	// rounded to. Resolution itself is never rounded.
	Precision int32
	// CategoryCacheTTL is how long the category catalog is cached.
	CategoryCacheTTL time.Duration
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DefaultMode:       domain.DisplayModeReal,
		DefaultRealWeight: decimal.RequireFromString("0.7"),
		DefaultFakeWeight: decimal.RequireFromString("0.3"),
		Precision:         1,
		CategoryCacheTTL:  5 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if !o.DefaultMode.Valid() {
		o.DefaultMode = def.DefaultMode
	}
	if o.DefaultRealWeight.IsNegative() {
		o.DefaultRealWeight = def.DefaultRealWeight
	}
	if o.DefaultFakeWeight.IsNegative() {
		o.DefaultFakeWeight = def.DefaultFakeWeight
	}
	if o.Precision < 0 {
		o.Precision = def.Precision
	}
	if o.CategoryCacheTTL <= 0 {
		o.CategoryCacheTTL = def.CategoryCacheTTL
	}
	return o
}

func (o Options) seedDefaults() repository.SeedDefaults {
	return repository.SeedDefaults{
		RealWeight: o.DefaultRealWeight,
		FakeWeight: o.DefaultFakeWeight,
		Mode:       o.DefaultMode,
	}
}

func (o Options) defaultSeed(entityID, categoryID string) domain.SeedConfig {
	return domain.SeedConfig{
		EntityID:        entityID,
		CategoryID:      categoryID,
		RealWeight:      o.DefaultRealWeight,
		FakeWeight:      o.DefaultFakeWeight,
		Mode:            o.DefaultMode,
		AllowNewRatings: true,
	}
}
