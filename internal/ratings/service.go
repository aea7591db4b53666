package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/events"
	"github.com/Clark-Hu/smart-ratings/internal/logging"
	"github.com/Clark-Hu/smart-ratings/internal/monitoring"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
)

const (
	categoriesCacheKey = "categories"
	maxEntityIDLength  = 128

	// Stored scales of seed_configs.fake_average and the weight columns.
	fakeAverageScale = 2
	weightScale      = 4
)

var (
	fakeAverageMin = decimal.NewFromInt(domain.MinStars)
	fakeAverageMax = decimal.NewFromInt(domain.MaxStars)
	maxSeedWeight  = decimal.NewFromInt(MaxSeedWeight)
)

// Service implements rating submission, resolution and seed administration.
type Service struct {
	repo       *repository.Repository
	opts       Options
	categories *cache.Cache
	emitter    events.Emitter
	logger     zerolog.Logger
}

// NewService wires a Service. A nil emitter discards events.
func NewService(repo *repository.Repository, opts Options, emitter events.Emitter) *Service {
	opts = opts.withDefaults()
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &Service{
		repo:       repo,
		opts:       opts,
		categories: cache.New(opts.CategoryCacheTTL, 0),
		emitter:    emitter,
		logger:     logging.NewLogger("ratings"),
	}
}

// Options returns the effective engine settings.
func (s *Service) Options() Options {
	return s.opts
}

// SubmitRatingInput is one rater's rating for one key.
type SubmitRatingInput struct {
	RaterID    string
	EntityID   string
	CategoryID string
	Stars      int
	Comment    string
}

// SubmitResult is the committed event and the aggregate right after it.
type SubmitResult struct {
	Event     domain.RatingEvent
	Aggregate domain.AggregateRating
}

// NewAverage is the post-commit real average rounded for display.
func (r SubmitResult) NewAverage(precision int32) decimal.NullDecimal {
	return RoundAverage(r.Aggregate.RealAverage(), precision)
}

// RatingStats exposes the raw aggregate for statistics consumers.
type RatingStats struct {
	Aggregate   domain.AggregateRating
	RealAverage decimal.NullDecimal
}

// CategoryRating pairs a category with its resolved rating.
type CategoryRating struct {
	Category domain.Category
	Resolved domain.ResolvedRating
}

// EntitySummary is every category's resolved rating plus a weighted overall.
type EntitySummary struct {
	Entity     domain.Entity
	Categories []CategoryRating
	Overall    decimal.NullDecimal
}

// SetSeedInput replaces the seed for a key. Nil weights, mode or ratings gate
// keep the current values.
type SetSeedInput struct {
	EntityID        string
	CategoryID      string
	FakeAverage     decimal.Decimal
	FakeCount       int64
	RealWeight      *decimal.Decimal
	FakeWeight      *decimal.Decimal
	Mode            *domain.DisplayMode
	AllowNewRatings *bool
	Reason          string
	ActorID         string
}

// SeedResult is the stored seed and the resolved rating it now produces.
type SeedResult struct {
	Seed     domain.SeedConfig
	Resolved domain.ResolvedRating
}

// ListCategories returns the category catalog, cached for CategoryCacheTTL.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if cached, ok := s.categories.Get(categoriesCacheKey); ok {
		monitoring.RecordCacheHit("categories")
		return cached.([]domain.Category), nil
	}
	monitoring.RecordCacheMiss("categories")

	categories, err := s.repo.Categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	s.categories.SetDefault(categoriesCacheKey, categories)
	return categories, nil
}

// activeCategory returns the category or ErrNotFound when it is unknown or inactive.
func (s *Service) activeCategory(ctx context.Context, id string) (domain.Category, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	for _, c := range categories {
		if c.ID == id {
			if !c.IsActive {
				return domain.Category{}, fmt.Errorf("category %q: %w", id, domain.ErrNotFound)
			}
			return c, nil
		}
	}
	return domain.Category{}, fmt.Errorf("category %q: %w", id, domain.ErrNotFound)
}

// OnboardEntity registers an entity and creates default seeds for every category.
func (s *Service) OnboardEntity(ctx context.Context, id, name string) (domain.Entity, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return domain.Entity{}, domain.NewValidationError("id", "is required")
	}
	if len(id) > maxEntityIDLength {
		return domain.Entity{}, domain.NewValidationError("id", "must be at most %d characters", maxEntityIDLength)
	}
	if name == "" {
		return domain.Entity{}, domain.NewValidationError("name", "is required")
	}

	var entity domain.Entity
	err := s.repo.InTx(ctx, func(q repository.Querier) error {
		var err error
		entity, err = s.repo.Entities.Create(ctx, q, repository.EntityCreateParams{ID: id, Name: name})
		if err != nil {
			return err
		}
		return s.repo.Seeds.EnsureDefaultsForEntity(ctx, q, id, s.opts.seedDefaults())
	})
	if err != nil {
		if errors.Is(err, repository.ErrStorageConflict) {
			return domain.Entity{}, domain.ErrEntityExists
		}
		return domain.Entity{}, fmt.Errorf("onboard entity: %w", err)
	}
	s.logger.Info().Str("entity_id", id).Msg("entity onboarded")
	return entity, nil
}

// GetEntity returns a single entity.
func (s *Service) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return s.repo.Entities.GetByID(ctx, id)
}

// ListEntities pages through entities newest first.
func (s *Service) ListEntities(ctx context.Context, filters repository.EntityListFilters) (repository.EntityListResult, error) {
	return s.repo.Entities.List(ctx, filters)
}

func validateSubmission(in SubmitRatingInput) error {
	if in.Stars < domain.MinStars || in.Stars > domain.MaxStars {
		return domain.NewValidationError("stars", "must be between %d and %d", domain.MinStars, domain.MaxStars)
	}
	if strings.TrimSpace(in.RaterID) == "" {
		return domain.NewValidationError("raterId", "is required")
	}
	if in.RaterID == in.EntityID {
		return domain.NewValidationError("raterId", "cannot rate yourself")
	}
	if utf8.RuneCountInString(in.Comment) > MaxCommentLength {
		return domain.NewValidationError("comment", "must be at most %d characters", MaxCommentLength)
	}
	return nil
}

// SubmitRating records a rater's first and only rating for a key. The event
// insert, the aggregate increment and the audit append commit together; a
// second rating for the same key fails with ErrDuplicateRating and changes
// nothing. A frozen key fails with ErrRatingsClosed. The rating committed
// event is emitted only after commit.
func (s *Service) SubmitRating(ctx context.Context, in SubmitRatingInput) (SubmitResult, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := validateSubmission(in); err != nil {
		monitoring.RecordRatingSubmitted("unknown", "invalid")
		return SubmitResult{}, err
	}
	if _, err := s.activeCategory(ctx, in.CategoryID); err != nil {
		monitoring.RecordRatingSubmitted("unknown", "not_found")
		return SubmitResult{}, err
	}

	var result SubmitResult
	err := s.repo.InTx(ctx, func(q repository.Querier) error {
		exists, err := s.repo.Entities.Exists(ctx, q, in.EntityID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("entity %q: %w", in.EntityID, domain.ErrNotFound)
		}
		open, err := s.repo.Seeds.AcceptsRatings(ctx, q, in.EntityID, in.CategoryID)
		if err != nil {
			return err
		}
		if !open {
			return domain.ErrRatingsClosed
		}

		event, err := s.repo.Ratings.InsertEvent(ctx, q, repository.RatingInsertParams{
			ID:         uuid.NewString(),
			EntityID:   in.EntityID,
			CategoryID: in.CategoryID,
			RaterID:    in.RaterID,
			Stars:      in.Stars,
			Comment:    in.Comment,
		})
		if err != nil {
			return err
		}
		agg, err := s.repo.Ratings.IncrementAggregate(ctx, q, in.EntityID, in.CategoryID, in.Stars)
		if err != nil {
			return err
		}

		before, after, err := aggregateSnapshots(event, agg)
		if err != nil {
			return err
		}
		if _, err := s.repo.Audit.Append(ctx, q, repository.AuditAppendParams{
			ActorID: in.RaterID,
			Action:  domain.AuditActionRatingSubmitted,
			Target:  domain.AuditTarget(in.EntityID, in.CategoryID),
			Before:  before,
			After:   after,
		}); err != nil {
			return err
		}

		result = SubmitResult{Event: event, Aggregate: agg}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStorageConflict):
			monitoring.RecordRatingSubmitted(in.CategoryID, "duplicate")
			return SubmitResult{}, domain.ErrDuplicateRating
		case errors.Is(err, domain.ErrNotFound):
			monitoring.RecordRatingSubmitted(in.CategoryID, "not_found")
			return SubmitResult{}, err
		case errors.Is(err, domain.ErrRatingsClosed):
			monitoring.RecordRatingSubmitted(in.CategoryID, "closed")
			return SubmitResult{}, err
		}
		monitoring.RecordRatingSubmitted(in.CategoryID, "error")
		return SubmitResult{}, fmt.Errorf("submit rating: %w", err)
	}

	monitoring.RecordRatingSubmitted(in.CategoryID, "ok")
	s.emitter.Emit(events.RatingCommitted{
		EntityID:    in.EntityID,
		CategoryID:  in.CategoryID,
		RatingID:    result.Event.ID,
		NewAverage:  Float(result.NewAverage(s.opts.Precision)),
		NewCount:    result.Aggregate.RealCount,
		CommittedAt: result.Event.CreatedAt,
	})
	return result, nil
}

type aggregateSnapshot struct {
	RatingID  string `json:"ratingId,omitempty"`
	Stars     int    `json:"stars,omitempty"`
	RealCount int64  `json:"realCount"`
	RealSum   int64  `json:"realSum"`
}

func aggregateSnapshots(event domain.RatingEvent, agg domain.AggregateRating) ([]byte, []byte, error) {
	before, err := json.Marshal(aggregateSnapshot{
		RealCount: agg.RealCount - 1,
		RealSum:   agg.RealSum - int64(event.Stars),
	})
	if err != nil {
		return nil, nil, err
	}
	after, err := json.Marshal(aggregateSnapshot{
		RatingID:  event.ID,
		Stars:     event.Stars,
		RealCount: agg.RealCount,
		RealSum:   agg.RealSum,
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// GetResolvedRating reads the aggregate and the seed independently and blends
// them. The two reads may observe slightly different instants.
func (s *Service) GetResolvedRating(ctx context.Context, entityID, categoryID string) (domain.ResolvedRating, error) {
	if _, err := s.activeCategory(ctx, categoryID); err != nil {
		return domain.ResolvedRating{}, err
	}
	if _, err := s.repo.Entities.GetByID(ctx, entityID); err != nil {
		return domain.ResolvedRating{}, err
	}
	resolved, err := s.resolveKey(ctx, entityID, categoryID)
	if err != nil {
		return domain.ResolvedRating{}, err
	}
	resolved.Average = RoundAverage(resolved.Average, s.opts.Precision)
	return resolved, nil
}

func (s *Service) resolveKey(ctx context.Context, entityID, categoryID string) (domain.ResolvedRating, error) {
	agg, err := s.repo.Ratings.Aggregate(ctx, entityID, categoryID)
	if err != nil {
		return domain.ResolvedRating{}, err
	}
	seed, err := s.seedOrDefault(ctx, entityID, categoryID)
	if err != nil {
		return domain.ResolvedRating{}, err
	}
	return Resolve(agg, seed), nil
}

func (s *Service) seedOrDefault(ctx context.Context, entityID, categoryID string) (domain.SeedConfig, error) {
	seed, err := s.repo.Seeds.Get(ctx, entityID, categoryID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.opts.defaultSeed(entityID, categoryID), nil
	}
	return seed, err
}

// GetRatingStats returns the raw real-rating figures for a key.
func (s *Service) GetRatingStats(ctx context.Context, entityID, categoryID string) (RatingStats, error) {
	if _, err := s.activeCategory(ctx, categoryID); err != nil {
		return RatingStats{}, err
	}
	if _, err := s.repo.Entities.GetByID(ctx, entityID); err != nil {
		return RatingStats{}, err
	}
	agg, err := s.repo.Ratings.Aggregate(ctx, entityID, categoryID)
	if err != nil {
		return RatingStats{}, err
	}
	return RatingStats{
		Aggregate:   agg,
		RealAverage: RoundAverage(agg.RealAverage(), s.opts.Precision),
	}, nil
}

// GetEntitySummary resolves every active category of an entity. Overall is
// the category-weight average over categories with a defined average.
func (s *Service) GetEntitySummary(ctx context.Context, entityID string) (EntitySummary, error) {
	entity, err := s.repo.Entities.GetByID(ctx, entityID)
	if err != nil {
		return EntitySummary{}, err
	}
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return EntitySummary{}, err
	}
	aggregates, err := s.repo.Ratings.ListAggregatesForEntity(ctx, entityID)
	if err != nil {
		return EntitySummary{}, err
	}
	seeds, err := s.repo.Seeds.ListForEntity(ctx, entityID)
	if err != nil {
		return EntitySummary{}, err
	}

	aggByCategory := make(map[string]domain.AggregateRating, len(aggregates))
	for _, a := range aggregates {
		aggByCategory[a.CategoryID] = a
	}
	seedByCategory := make(map[string]domain.SeedConfig, len(seeds))
	for _, sc := range seeds {
		seedByCategory[sc.CategoryID] = sc
	}

	summary := EntitySummary{Entity: entity}
	weightedSum := decimal.Zero
	weightTotal := decimal.Zero
	for _, c := range categories {
		if !c.IsActive {
			continue
		}
		agg, ok := aggByCategory[c.ID]
		if !ok {
			agg = domain.AggregateRating{EntityID: entityID, CategoryID: c.ID}
		}
		seed, ok := seedByCategory[c.ID]
		if !ok {
			seed = s.opts.defaultSeed(entityID, c.ID)
		}
		resolved := Resolve(agg, seed)
		if resolved.Average.Valid && c.Weight.IsPositive() {
			weightedSum = weightedSum.Add(resolved.Average.Decimal.Mul(c.Weight))
			weightTotal = weightTotal.Add(c.Weight)
		}
		resolved.Average = RoundAverage(resolved.Average, s.opts.Precision)
		summary.Categories = append(summary.Categories, CategoryRating{Category: c, Resolved: resolved})
	}
	if weightTotal.IsPositive() {
		summary.Overall = RoundAverage(decimal.NullDecimal{Decimal: weightedSum.Div(weightTotal), Valid: true}, s.opts.Precision)
	}
	return summary, nil
}

func validateSeed(in SetSeedInput) error {
	if in.FakeCount < 0 {
		return domain.NewValidationError("fakeCount", "must be non-negative")
	}
	if !in.FakeAverage.IsZero() && (in.FakeAverage.LessThan(fakeAverageMin) || in.FakeAverage.GreaterThan(fakeAverageMax)) {
		return domain.NewValidationError("fakeAverage", "must be 0 or between %d and %d", domain.MinStars, domain.MaxStars)
	}
	if exceedsScale(in.FakeAverage, fakeAverageScale) {
		return domain.NewValidationError("fakeAverage", "must have at most %d decimal places", fakeAverageScale)
	}
	if in.FakeCount > 0 && in.FakeAverage.IsZero() {
		return domain.NewValidationError("fakeAverage", "is required when fakeCount is positive")
	}
	if err := validateWeight("realWeight", in.RealWeight); err != nil {
		return err
	}
	if err := validateWeight("fakeWeight", in.FakeWeight); err != nil {
		return err
	}
	if in.Mode != nil && !in.Mode.Valid() {
		return domain.NewValidationError("mode", "must be one of real, fake, mixed, weighted")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return domain.NewValidationError("reason", "is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return domain.NewValidationError("actorId", "is required")
	}
	return nil
}

func validateWeight(field string, w *decimal.Decimal) error {
	if w == nil {
		return nil
	}
	if w.IsNegative() || w.GreaterThan(maxSeedWeight) {
		return domain.NewValidationError(field, "must be between 0 and %d", MaxSeedWeight)
	}
	if exceedsScale(*w, weightScale) {
		return domain.NewValidationError(field, "must have at most %d decimal places", weightScale)
	}
	return nil
}

func exceedsScale(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

// SetSeed overwrites the seed for a key and appends an audit entry with the
// before and after state in the same transaction.
func (s *Service) SetSeed(ctx context.Context, in SetSeedInput) (SeedResult, error) {
	return s.mutateSeed(ctx, in, domain.AuditActionSeedSet)
}

// ResetSeed zeroes the fake side of a seed, keeping its weights, mode and
// ratings gate, so mixed and weighted display collapse to the real-only figure.
func (s *Service) ResetSeed(ctx context.Context, entityID, categoryID, reason, actorID string) (SeedResult, error) {
	return s.mutateSeed(ctx, SetSeedInput{
		EntityID:   entityID,
		CategoryID: categoryID,
		Reason:     reason,
		ActorID:    actorID,
	}, domain.AuditActionSeedReset)
}

func (s *Service) mutateSeed(ctx context.Context, in SetSeedInput, action string) (SeedResult, error) {
	if err := validateSeed(in); err != nil {
		return SeedResult{}, err
	}
	if _, err := s.activeCategory(ctx, in.CategoryID); err != nil {
		return SeedResult{}, err
	}

	target := domain.AuditTarget(in.EntityID, in.CategoryID)
	var stored domain.SeedConfig
	err := s.repo.InTx(ctx, func(q repository.Querier) error {
		exists, err := s.repo.Entities.Exists(ctx, q, in.EntityID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("entity %q: %w", in.EntityID, domain.ErrNotFound)
		}
		if err := s.repo.Seeds.EnsureDefault(ctx, q, in.EntityID, in.CategoryID, s.opts.seedDefaults()); err != nil {
			return err
		}
		current, err := s.repo.Seeds.GetForUpdate(ctx, q, in.EntityID, in.CategoryID)
		if err != nil {
			return err
		}

		params := repository.SeedUpdateParams{
			EntityID:        in.EntityID,
			CategoryID:      in.CategoryID,
			FakeCount:       in.FakeCount,
			FakeAverage:     in.FakeAverage,
			RealWeight:      current.RealWeight,
			FakeWeight:      current.FakeWeight,
			Mode:            current.Mode,
			AllowNewRatings: current.AllowNewRatings,
			UpdatedBy:       in.ActorID,
		}
		if in.RealWeight != nil {
			params.RealWeight = *in.RealWeight
		}
		if in.FakeWeight != nil {
			params.FakeWeight = *in.FakeWeight
		}
		if in.Mode != nil {
			params.Mode = *in.Mode
		}
		if in.AllowNewRatings != nil {
			params.AllowNewRatings = *in.AllowNewRatings
		}

		stored, err = s.repo.Seeds.Update(ctx, q, params)
		if err != nil {
			return err
		}

		before, err := json.Marshal(current)
		if err != nil {
			return err
		}
		after, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		_, err = s.repo.Audit.Append(ctx, q, repository.AuditAppendParams{
			ActorID: in.ActorID,
			Action:  action,
			Target:  target,
			Before:  before,
			After:   after,
			Reason:  strings.TrimSpace(in.Reason),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SeedResult{}, err
		}
		return SeedResult{}, fmt.Errorf("%s: %w", action, err)
	}

	monitoring.RecordSeedMutation(action)
	logging.LogAdminAction(in.ActorID, action, target, in.Reason)

	agg, err := s.repo.Ratings.Aggregate(ctx, in.EntityID, in.CategoryID)
	if err != nil {
		return SeedResult{}, err
	}
	resolved := Resolve(agg, stored)
	resolved.Average = RoundAverage(resolved.Average, s.opts.Precision)
	return SeedResult{Seed: stored, Resolved: resolved}, nil
}

// ListAudit pages through the audit trail newest first.
func (s *Service) ListAudit(ctx context.Context, filters repository.AuditListFilters) (repository.AuditListResult, error) {
	if filters.BeforeID < 0 {
		return repository.AuditListResult{}, domain.NewValidationError("cursor", "must be positive")
	}
	return s.repo.Audit.List(ctx, filters)
}

// FeaturedCandidates resolves the primary category of every entity, unrounded.
func (s *Service) FeaturedCandidates(ctx context.Context) ([]FeaturedCandidate, error) {
	rows, err := s.repo.Seeds.PrimaryCandidates(ctx, s.opts.seedDefaults())
	if err != nil {
		return nil, err
	}
	out := make([]FeaturedCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, FeaturedCandidate{
			EntityID:  row.EntityID,
			RealCount: row.Aggregate.RealCount,
			Resolved:  Resolve(row.Aggregate, row.Seed),
		})
	}
	return out, nil
}
