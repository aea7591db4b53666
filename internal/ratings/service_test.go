package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/events"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
	"github.com/Clark-Hu/smart-ratings/internal/testutil/pgtest"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.RatingCommitted
}

func (r *recordingEmitter) Emit(evt events.RatingCommitted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) all() []events.RatingCommitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.RatingCommitted(nil), r.events...)
}

type serviceEnv struct {
	ctx     context.Context
	repo    *repository.Repository
	svc     *Service
	emitter *recordingEmitter
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	db := pgtest.Start(t)
	repo := repository.NewWithPool(db.Pool)
	emitter := &recordingEmitter{}
	return &serviceEnv{
		ctx:     db.Ctx,
		repo:    repo,
		svc:     NewService(repo, DefaultOptions(), emitter),
		emitter: emitter,
	}
}

func (env *serviceEnv) onboard(t *testing.T, id string) {
	t.Helper()
	_, err := env.svc.OnboardEntity(env.ctx, id, "Entity "+id)
	require.NoError(t, err)
}

func (env *serviceEnv) rate(t *testing.T, entityID, categoryID, raterID string, stars int) SubmitResult {
	t.Helper()
	res, err := env.svc.SubmitRating(env.ctx, SubmitRatingInput{
		RaterID:    raterID,
		EntityID:   entityID,
		CategoryID: categoryID,
		Stars:      stars,
	})
	require.NoError(t, err)
	return res
}

func modePtr(m domain.DisplayMode) *domain.DisplayMode { return &m }

func TestServiceSubmitRating(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-1")

	first := env.rate(t, "mp-1", "overall", "alice", 5)
	assert.Equal(t, int64(1), first.Aggregate.RealCount)
	assert.Equal(t, int64(5), first.Aggregate.RealSum)

	second := env.rate(t, "mp-1", "overall", "bob", 4)
	assert.Equal(t, int64(2), second.Aggregate.RealCount)
	assert.True(t, second.NewAverage(1).Decimal.Equal(dec("4.5")))

	_, err := env.svc.SubmitRating(env.ctx, SubmitRatingInput{RaterID: "alice", EntityID: "mp-1", CategoryID: "overall", Stars: 1})
	require.ErrorIs(t, err, domain.ErrDuplicateRating)

	stats, err := env.svc.GetRatingStats(env.ctx, "mp-1", "overall")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Aggregate.RealCount, "duplicate must not change the aggregate")
	assert.Equal(t, int64(9), stats.Aggregate.RealSum)
	assert.Equal(t, [domain.MaxStars]int64{0, 0, 0, 1, 1}, stats.Aggregate.Distribution)
	assert.True(t, stats.RealAverage.Decimal.Equal(dec("4.5")))

	emitted := env.emitter.all()
	require.Len(t, emitted, 2, "only committed ratings are emitted")
	assert.Equal(t, second.Event.ID, emitted[1].RatingID)
	assert.Equal(t, int64(2), emitted[1].NewCount)
	require.NotNil(t, emitted[1].NewAverage)
	assert.InDelta(t, 4.5, *emitted[1].NewAverage, 1e-9)

	// Other categories are independent keys.
	other := env.rate(t, "mp-1", "transparency", "alice", 2)
	assert.Equal(t, int64(1), other.Aggregate.RealCount)
}

func TestServiceSubmitRatingValidation(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-v")

	tests := []struct {
		name string
		in   SubmitRatingInput
	}{
		{"stars too low", SubmitRatingInput{RaterID: "r", EntityID: "mp-v", CategoryID: "overall", Stars: 0}},
		{"stars too high", SubmitRatingInput{RaterID: "r", EntityID: "mp-v", CategoryID: "overall", Stars: 6}},
		{"missing rater", SubmitRatingInput{RaterID: " ", EntityID: "mp-v", CategoryID: "overall", Stars: 3}},
		{"self rating", SubmitRatingInput{RaterID: "mp-v", EntityID: "mp-v", CategoryID: "overall", Stars: 3}},
		{"comment too long", SubmitRatingInput{RaterID: "r", EntityID: "mp-v", CategoryID: "overall", Stars: 3, Comment: strings.Repeat("ж", MaxCommentLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.SubmitRating(env.ctx, tt.in)
			assert.True(t, domain.IsValidation(err), "err = %v, want validation error", err)
		})
	}

	_, err := env.svc.SubmitRating(env.ctx, SubmitRatingInput{RaterID: "r", EntityID: "missing", CategoryID: "overall", Stars: 3})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.SubmitRating(env.ctx, SubmitRatingInput{RaterID: "r", EntityID: "mp-v", CategoryID: "charisma", Stars: 3})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err := env.svc.GetRatingStats(env.ctx, "mp-v", "overall")
	require.NoError(t, err)
	assert.Zero(t, stats.Aggregate.RealCount)
	assert.False(t, stats.RealAverage.Valid)
	assert.Empty(t, env.emitter.all())

	count, err := env.repo.Audit.Count(env.ctx, domain.AuditTarget("mp-v", "overall"))
	require.NoError(t, err)
	assert.Zero(t, count, "rejected submissions must not be audited")
}

func TestServiceConcurrentSubmissions(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-c")

	const raters = 40
	var wg sync.WaitGroup
	errs := make(chan error, raters)
	wantSum := int64(0)
	for i := 0; i < raters; i++ {
		stars := i%domain.MaxStars + 1
		wantSum += int64(stars)
		wg.Add(1)
		go func(i, stars int) {
			defer wg.Done()
			_, err := env.svc.SubmitRating(env.ctx, SubmitRatingInput{
				RaterID:    fmt.Sprintf("rater-%d", i),
				EntityID:   "mp-c",
				CategoryID: "overall",
				Stars:      stars,
			})
			errs <- err
		}(i, stars)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := env.svc.GetRatingStats(env.ctx, "mp-c", "overall")
	require.NoError(t, err)
	assert.Equal(t, int64(raters), stats.Aggregate.RealCount)
	assert.Equal(t, wantSum, stats.Aggregate.RealSum)
	assert.Len(t, env.emitter.all(), raters)

	count, err := env.repo.Audit.Count(env.ctx, domain.AuditTarget("mp-c", "overall"))
	require.NoError(t, err)
	assert.Equal(t, int64(raters), count)
}

func TestServiceSeedBlending(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-s")

	// 100 ratings averaging 4.8: 80 fives and 20 fours.
	for i := 0; i < 100; i++ {
		stars := 5
		if i < 20 {
			stars = 4
		}
		env.rate(t, "mp-s", "overall", fmt.Sprintf("citizen-%03d", i), stars)
	}

	resolved, err := env.svc.GetResolvedRating(env.ctx, "mp-s", "overall")
	require.NoError(t, err)
	assert.Equal(t, domain.DisplayModeReal, resolved.Mode)
	assert.True(t, resolved.Average.Decimal.Equal(dec("4.8")))
	assert.Equal(t, int64(100), resolved.Count)

	res, err := env.svc.SetSeed(env.ctx, SetSeedInput{
		EntityID:    "mp-s",
		CategoryID:  "overall",
		FakeAverage: dec("4.2"),
		FakeCount:   500,
		Mode:        modePtr(domain.DisplayModeWeighted),
		Reason:      "launch baseline",
		ActorID:     "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Resolved.Average.Decimal.Equal(dec("4.3")), "average = %s", res.Resolved.Average.Decimal)
	assert.Equal(t, int64(600), res.Resolved.Count)
	assert.True(t, res.Seed.RealWeight.Equal(dec("0.7")), "nil weights keep stored values")
	assert.Equal(t, "admin-1", res.Seed.UpdatedBy)

	resolved, err = env.svc.GetResolvedRating(env.ctx, "mp-s", "overall")
	require.NoError(t, err)
	assert.True(t, resolved.Average.Decimal.Equal(dec("4.3")))

	rw, fw := dec("0.5"), dec("0.5")
	res, err = env.svc.SetSeed(env.ctx, SetSeedInput{
		EntityID:    "mp-s",
		CategoryID:  "overall",
		FakeAverage: dec("4.2"),
		FakeCount:   500,
		RealWeight:  &rw,
		FakeWeight:  &fw,
		Mode:        modePtr(domain.DisplayModeMixed),
		Reason:      "switch to mixed",
		ActorID:     "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Resolved.Average.Decimal.Equal(dec("4.5")), "average = %s", res.Resolved.Average.Decimal)

	res, err = env.svc.ResetSeed(env.ctx, "mp-s", "overall", "remove baseline", "admin-2")
	require.NoError(t, err)
	assert.Equal(t, domain.DisplayModeMixed, res.Seed.Mode, "reset keeps the mode")
	assert.Zero(t, res.Seed.FakeCount)
	assert.True(t, res.Resolved.Average.Decimal.Equal(dec("4.8")))
	assert.Equal(t, int64(100), res.Resolved.Count)

	target := domain.AuditTarget("mp-s", "overall")
	count, err := env.repo.Audit.Count(env.ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(103), count, "100 ratings plus 3 seed edits")

	action := domain.AuditActionSeedReset
	page, err := env.svc.ListAudit(env.ctx, repository.AuditListFilters{Target: &target, Action: &action})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "admin-2", page.Items[0].ActorID)
	assert.Equal(t, "remove baseline", page.Items[0].Reason)
	var before, after domain.SeedConfig
	require.NoError(t, json.Unmarshal(page.Items[0].Before, &before))
	require.NoError(t, json.Unmarshal(page.Items[0].After, &after))
	assert.Equal(t, int64(500), before.FakeCount)
	assert.Zero(t, after.FakeCount)
}

func TestServiceSeedValidation(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-sv")

	negative := dec("-0.1")
	tooHeavy := dec("12345")
	tooPrecise := dec("0.12345")
	valid := SetSeedInput{EntityID: "mp-sv", CategoryID: "overall", FakeAverage: dec("4"), FakeCount: 10, Reason: "r", ActorID: "a"}
	tests := []struct {
		name   string
		mutate func(in *SetSeedInput)
	}{
		{"negative count", func(in *SetSeedInput) { in.FakeCount = -1 }},
		{"average above range", func(in *SetSeedInput) { in.FakeAverage = dec("5.1") }},
		{"average below range", func(in *SetSeedInput) { in.FakeAverage = dec("0.5") }},
		{"count without average", func(in *SetSeedInput) { in.FakeAverage = decimal.Zero }},
		{"negative real weight", func(in *SetSeedInput) { in.RealWeight = &negative }},
		{"negative fake weight", func(in *SetSeedInput) { in.FakeWeight = &negative }},
		{"average with three decimals", func(in *SetSeedInput) { in.FakeAverage = dec("4.255") }},
		{"real weight above bound", func(in *SetSeedInput) { in.RealWeight = &tooHeavy }},
		{"fake weight above bound", func(in *SetSeedInput) { in.FakeWeight = &tooHeavy }},
		{"weight with five decimals", func(in *SetSeedInput) { in.RealWeight = &tooPrecise }},
		{"unknown mode", func(in *SetSeedInput) { in.Mode = modePtr("bogus") }},
		{"missing reason", func(in *SetSeedInput) { in.Reason = "  " }},
		{"missing actor", func(in *SetSeedInput) { in.ActorID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := env.svc.SetSeed(env.ctx, in)
			assert.True(t, domain.IsValidation(err), "err = %v, want validation error", err)
		})
	}

	// Trailing zeros are not extra precision.
	padded := valid
	padded.FakeAverage = dec("4.2500")
	bound := dec("1000.0000")
	padded.FakeWeight = &bound
	res, err := env.svc.SetSeed(env.ctx, padded)
	require.NoError(t, err)
	assert.True(t, res.Seed.FakeAverage.Equal(dec("4.25")), "stored %s", res.Seed.FakeAverage)
	assert.True(t, res.Seed.FakeWeight.Equal(dec("1000")), "stored %s", res.Seed.FakeWeight)

	missing := valid
	missing.EntityID = "nobody"
	_, err = env.svc.SetSeed(env.ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := env.repo.Audit.Count(env.ctx, domain.AuditTarget("mp-sv", "overall"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the accepted seed is audited")
}

func TestServiceEntitySummary(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-sum")

	env.rate(t, "mp-sum", "overall", "alice", 4)       // weight 1.5
	env.rate(t, "mp-sum", "problem_solving", "bob", 2) // weight 1.6

	summary, err := env.svc.GetEntitySummary(env.ctx, "mp-sum")
	require.NoError(t, err)
	assert.Equal(t, "mp-sum", summary.Entity.ID)
	assert.Len(t, summary.Categories, 8)
	assert.Equal(t, "overall", summary.Categories[0].Category.ID)

	// (4*1.5 + 2*1.6) / 3.1 = 2.967...
	require.True(t, summary.Overall.Valid)
	assert.True(t, summary.Overall.Decimal.Equal(dec("3")), "overall = %s", summary.Overall.Decimal)

	for _, c := range summary.Categories {
		if c.Category.ID == "transparency" {
			assert.False(t, c.Resolved.Average.Valid)
		}
	}

	_, err = env.svc.GetEntitySummary(env.ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServiceOnboardEntity(t *testing.T) {
	env := newServiceEnv(t)

	entity, err := env.svc.OnboardEntity(env.ctx, "  mp-o  ", " Jane Doe ")
	require.NoError(t, err)
	assert.Equal(t, "mp-o", entity.ID)
	assert.Equal(t, "Jane Doe", entity.Name)

	_, err = env.svc.OnboardEntity(env.ctx, "mp-o", "again")
	assert.True(t, errors.Is(err, domain.ErrEntityExists), "err = %v", err)

	_, err = env.svc.OnboardEntity(env.ctx, "", "x")
	assert.True(t, domain.IsValidation(err))
	_, err = env.svc.OnboardEntity(env.ctx, "mp-x", "")
	assert.True(t, domain.IsValidation(err))

	seeds, err := env.repo.Seeds.ListForEntity(env.ctx, "mp-o")
	require.NoError(t, err)
	assert.Len(t, seeds, 8, "every category gets a default seed")

	categories, err := env.svc.ListCategories(env.ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 8)
}

func TestServiceFeaturedCandidates(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-f1")
	env.onboard(t, "mp-f2")
	env.rate(t, "mp-f1", "overall", "alice", 5)

	candidates, err := env.svc.FeaturedCandidates(env.ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	byID := map[string]FeaturedCandidate{}
	for _, c := range candidates {
		byID[c.EntityID] = c
	}
	assert.Equal(t, int64(1), byID["mp-f1"].RealCount)
	assert.True(t, byID["mp-f1"].Resolved.Average.Decimal.Equal(dec("5")))
	assert.False(t, byID["mp-f2"].Resolved.Average.Valid)

	scheduler := NewFeaturedScheduler(env.svc, SchedulerConfig{Thresholds: Thresholds{MinRealCount: 1, MinAverage: dec("4"), MaxSize: 10}})
	snap, err := scheduler.Refresh(env.ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "mp-f1", snap.Entries[0].EntityID)
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func TestServiceRatingsFreeze(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-fz")
	env.rate(t, "mp-fz", "overall", "alice", 5)

	res, err := env.svc.SetSeed(env.ctx, SetSeedInput{
		EntityID: "mp-fz", CategoryID: "overall",
		AllowNewRatings: boolPtr(false),
		Reason:          "freeze", ActorID: "admin",
	})
	require.NoError(t, err)
	assert.False(t, res.Seed.AllowNewRatings)

	_, err = env.svc.SubmitRating(env.ctx, SubmitRatingInput{RaterID: "bob", EntityID: "mp-fz", CategoryID: "overall", Stars: 4})
	require.ErrorIs(t, err, domain.ErrRatingsClosed)

	stats, err := env.svc.GetRatingStats(env.ctx, "mp-fz", "overall")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Aggregate.RealCount)
	assert.Len(t, env.emitter.all(), 1, "rejected rating must not emit")

	// Nil gate keeps the current value.
	res, err = env.svc.SetSeed(env.ctx, SetSeedInput{
		EntityID: "mp-fz", CategoryID: "overall",
		FakeAverage: dec("4"), FakeCount: 10,
		Reason: "seed while frozen", ActorID: "admin",
	})
	require.NoError(t, err)
	assert.False(t, res.Seed.AllowNewRatings)

	_, err = env.svc.SetSeed(env.ctx, SetSeedInput{
		EntityID: "mp-fz", CategoryID: "overall",
		AllowNewRatings: boolPtr(true),
		Reason:          "reopen", ActorID: "admin",
	})
	require.NoError(t, err)
	env.rate(t, "mp-fz", "overall", "bob", 4)

	entries, err := env.svc.ListAudit(env.ctx, repository.AuditListFilters{Target: strPtr(domain.AuditTarget("mp-fz", "overall")), Action: strPtr(domain.AuditActionSeedSet)})
	require.NoError(t, err)
	require.Len(t, entries.Items, 3)
	var before, after domain.SeedConfig
	require.NoError(t, json.Unmarshal(entries.Items[2].Before, &before))
	require.NoError(t, json.Unmarshal(entries.Items[2].After, &after))
	assert.True(t, before.AllowNewRatings)
	assert.False(t, after.AllowNewRatings, "freeze must be audited")
}

func TestServiceReports(t *testing.T) {
	env := newServiceEnv(t)
	env.onboard(t, "mp-rp")
	rating := env.rate(t, "mp-rp", "overall", "troll", 1)

	invalid := []FileReportInput{
		{RatingID: rating.Event.ID, ReporterID: "", Type: domain.ReportTypeSpam, Description: "x"},
		{RatingID: rating.Event.ID, ReporterID: "citizen", Type: "rude", Description: "x"},
		{RatingID: rating.Event.ID, ReporterID: "citizen", Type: domain.ReportTypeSpam, Description: "   "},
		{RatingID: rating.Event.ID, ReporterID: "citizen", Type: domain.ReportTypeSpam, Description: strings.Repeat("ب", MaxReportTextLength+1)},
		{RatingID: rating.Event.ID, ReporterID: "troll", Type: domain.ReportTypeSpam, Description: "self"},
	}
	for i, in := range invalid {
		_, err := env.svc.FileReport(env.ctx, in)
		assert.True(t, domain.IsValidation(err), "case %d: err = %v, want validation error", i, err)
	}

	_, err := env.svc.FileReport(env.ctx, FileReportInput{RatingID: "missing", ReporterID: "citizen", Type: domain.ReportTypeSpam, Description: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	report, err := env.svc.FileReport(env.ctx, FileReportInput{
		RatingID: rating.Event.ID, ReporterID: "citizen", Type: domain.ReportTypeOffensive, Description: "  insulting comment  ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusPending, report.Status)
	assert.Equal(t, "insulting comment", report.Description)
	assert.Nil(t, report.ReviewedAt)

	_, err = env.svc.FileReport(env.ctx, FileReportInput{
		RatingID: rating.Event.ID, ReporterID: "citizen", Type: domain.ReportTypeSpam, Description: "again",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateReport)

	second, err := env.svc.FileReport(env.ctx, FileReportInput{
		RatingID: rating.Event.ID, ReporterID: "neighbour", Type: domain.ReportTypeFake, Description: "not a resident",
	})
	require.NoError(t, err)

	_, err = env.svc.ReviewReport(env.ctx, ReviewReportInput{ReportID: report.ID, Status: domain.ReportStatusPending, ActorID: "admin"})
	assert.True(t, domain.IsValidation(err))
	_, err = env.svc.ReviewReport(env.ctx, ReviewReportInput{ReportID: report.ID, Status: domain.ReportStatusReviewed})
	assert.True(t, domain.IsValidation(err))
	_, err = env.svc.ReviewReport(env.ctx, ReviewReportInput{ReportID: 424242, Status: domain.ReportStatusReviewed, ActorID: "admin"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reviewed, err := env.svc.ReviewReport(env.ctx, ReviewReportInput{ReportID: report.ID, Status: domain.ReportStatusReviewed, AdminNotes: "checking", ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusReviewed, reviewed.Status)
	assert.Equal(t, "admin", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)

	// Reviewed is not final.
	resolved, err := env.svc.ReviewReport(env.ctx, ReviewReportInput{ReportID: report.ID, Status: domain.ReportStatusResolved, AdminNotes: "comment removed", ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusResolved, resolved.Status)

	_, err = env.svc.ReviewReport(env.ctx, ReviewReportInput{ReportID: report.ID, Status: domain.ReportStatusRejected, ActorID: "admin"})
	require.ErrorIs(t, err, domain.ErrReportClosed)

	pending := domain.ReportStatusPending
	list, err := env.svc.ListReports(env.ctx, repository.ReportListFilters{Status: &pending})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, second.ID, list.Items[0].ID)

	bogus := domain.ReportStatus("open")
	_, err = env.svc.ListReports(env.ctx, repository.ReportListFilters{Status: &bogus})
	assert.True(t, domain.IsValidation(err))

	got, err := env.svc.GetReport(env.ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "comment removed", got.AdminNotes)

	count, err := env.repo.Audit.Count(env.ctx, domain.ReportTarget(report.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "one filing and two reviews")

	entries, err := env.svc.ListAudit(env.ctx, repository.AuditListFilters{Target: strPtr(domain.ReportTarget(report.ID)), Action: strPtr(domain.AuditActionReportReviewed)})
	require.NoError(t, err)
	require.Len(t, entries.Items, 2)
	var before, after domain.RatingReport
	require.NoError(t, json.Unmarshal(entries.Items[0].Before, &before))
	require.NoError(t, json.Unmarshal(entries.Items[0].After, &after))
	assert.Equal(t, domain.ReportStatusReviewed, before.Status)
	assert.Equal(t, domain.ReportStatusResolved, after.Status)
	assert.Equal(t, "comment removed", entries.Items[0].Reason)
}
