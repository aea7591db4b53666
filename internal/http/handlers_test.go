package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/config"
	"github.com/Clark-Hu/smart-ratings/internal/ratings"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
	"github.com/Clark-Hu/smart-ratings/internal/testutil/pgtest"
)

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

func buildTestServer(tb testing.TB) *Server {
	tb.Helper()
	cfg := config.Config{
		Port:             "0",
		AuthToken:        "secret",
		ReadTimeoutSecs:  15,
		WriteTimeoutSecs: 15,
		IdleTimeoutSecs:  60,
	}

	db := pgtest.Start(tb)
	repo := repository.NewWithPool(db.Pool)
	svc := ratings.NewService(repo, ratings.DefaultOptions(), nil)
	featured := ratings.NewFeaturedScheduler(svc, ratings.SchedulerConfig{
		Interval: time.Hour,
		Thresholds: ratings.Thresholds{
			MinRealCount: 1,
			MinAverage:   decimal.NewFromInt(4),
			MaxSize:      10,
		},
		Precision: 1,
	})
	return New(cfg, stubHealth{}, svc, featured)
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

var adminHeaders = map[string]string{"Authorization": "Bearer secret", "X-Actor-Id": "admin-1"}

func rater(id string) map[string]string { return map[string]string{"X-Rater-Id": id} }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != code {
		t.Fatalf("code = %q, want %q", resp.Code, code)
	}
}

func mustOnboard(t *testing.T, srv *Server, id string) {
	t.Helper()
	rec := doRequest(srv, http.MethodPost, "/entities", fmt.Sprintf(`{"id":%q,"name":"Member %s"}`, id, id), adminHeaders)
	if rec.Code != http.StatusCreated {
		t.Fatalf("onboard %s: status = %d, body %s", id, rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	srv := New(config.Config{}, stubHealth{}, nil, nil)

	rec := httptest.NewRecorder()
	srv.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	srv.health = stubHealth{err: errors.New("down")}
	rec = httptest.NewRecorder()
	srv.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCreateEntity(t *testing.T) {
	srv := buildTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/entities", `{"id":"mp-1","name":"Jane"}`, nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = doRequest(srv, http.MethodPost, "/entities", "invalid json", adminHeaders)
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, "/entities", `{"id":"","name":""}`, adminHeaders)
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, "/entities", `{"id":"mp-1","name":"Jane","extra":1}`, adminHeaders)
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	mustOnboard(t, srv, "mp-1")

	rec = doRequest(srv, http.MethodPost, "/entities", `{"id":"mp-1","name":"Jane"}`, adminHeaders)
	assertError(t, rec, http.StatusConflict, "ENTITY_EXISTS")

	rec = doRequest(srv, http.MethodGet, "/entities/mp-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get entity status = %d", rec.Code)
	}
	var entity entityResponse
	decodeBody(t, rec, &entity)
	if entity.ID != "mp-1" || entity.Name != "Member mp-1" {
		t.Fatalf("unexpected entity %+v", entity)
	}

	rec = doRequest(srv, http.MethodGet, "/entities/nobody", "", nil)
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = doRequest(srv, http.MethodGet, "/entities?limit=abc", "", nil)
	assertError(t, rec, http.StatusBadRequest, "BAD_REQUEST")

	rec = doRequest(srv, http.MethodGet, "/entities?limit=10", "", nil)
	var list entityListResponse
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 {
		t.Fatalf("list items = %d, want 1", len(list.Items))
	}
}

func TestSubmitAndGetRating(t *testing.T) {
	srv := buildTestServer(t)
	mustOnboard(t, srv, "mp-2")

	rec := doRequest(srv, http.MethodGet, "/entities/mp-2/ratings/overall", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get rating status = %d", rec.Code)
	}
	var resolved resolvedRatingResponse
	decodeBody(t, rec, &resolved)
	if resolved.Average != nil || resolved.Count != 0 || resolved.Mode != "real" {
		t.Fatalf("unrated entity should have undefined average: %+v", resolved)
	}

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":4}`, nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":6}`, rater("u1"))
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":4.5}`, rater("u1"))
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":4}`, rater("mp-2"))
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, "/entities/nobody/ratings/overall", `{"stars":4}`, rater("u1"))
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/charisma", `{"stars":4}`, rater("u1"))
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":4,"comment":"solid"}`, rater("u1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var submitted ratingSubmittedResponse
	decodeBody(t, rec, &submitted)
	if submitted.RatingID == "" || submitted.NewCount != 1 || submitted.NewAverage == nil || *submitted.NewAverage != 4 {
		t.Fatalf("unexpected submit response %+v", submitted)
	}

	rec = doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":1}`, rater("u1"))
	assertError(t, rec, http.StatusConflict, "DUPLICATE_RATING")

	doRequest(srv, http.MethodPost, "/entities/mp-2/ratings/overall", `{"stars":5}`, rater("u2"))

	rec = doRequest(srv, http.MethodGet, "/entities/mp-2/ratings/overall", "", nil)
	decodeBody(t, rec, &resolved)
	if resolved.Average == nil || *resolved.Average != 4.5 || resolved.Count != 2 {
		t.Fatalf("unexpected resolved rating %+v", resolved)
	}

	rec = doRequest(srv, http.MethodGet, "/entities/mp-2/ratings/overall/stats", "", nil)
	var stats ratingStatsResponse
	decodeBody(t, rec, &stats)
	if stats.RealCount != 2 || stats.RealSum != 9 || len(stats.Distribution) != 5 || stats.Distribution[3] != 1 || stats.Distribution[4] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rec = doRequest(srv, http.MethodGet, "/entities/mp-2/summary", "", nil)
	var summary entitySummaryResponse
	decodeBody(t, rec, &summary)
	if summary.Overall == nil || *summary.Overall != 4.5 || len(summary.Categories) != 8 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestAdminSeedLifecycle(t *testing.T) {
	srv := buildTestServer(t)
	mustOnboard(t, srv, "mp-3")

	for i := 0; i < 100; i++ {
		stars := 5
		if i < 20 {
			stars = 4
		}
		rec := doRequest(srv, http.MethodPost, "/entities/mp-3/ratings/overall", fmt.Sprintf(`{"stars":%d}`, stars), rater(fmt.Sprintf("c-%d", i)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit %d: status = %d", i, rec.Code)
		}
	}

	body := `{"fakeAverage":4.2,"fakeCount":500,"mode":"weighted","reason":"baseline"}`
	rec := doRequest(srv, http.MethodPut, "/admin/entities/mp-3/seeds/overall", body, nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = doRequest(srv, http.MethodPut, "/admin/entities/mp-3/seeds/overall", body, map[string]string{"Authorization": "Bearer secret"})
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	for _, invalid := range []string{
		`{"fakeAverage":7,"fakeCount":5,"reason":"x"}`,
		`{"fakeAverage":0,"fakeCount":5,"reason":"x"}`,
		`{"fakeAverage":4.255,"fakeCount":5,"reason":"x"}`,
		`{"fakeAverage":4,"fakeCount":5,"realWeight":12345,"reason":"x"}`,
		`{"fakeAverage":4,"fakeCount":5,"fakeWeight":0.00001,"reason":"x"}`,
	} {
		rec = doRequest(srv, http.MethodPut, "/admin/entities/mp-3/seeds/overall", invalid, adminHeaders)
		assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	}

	rec = doRequest(srv, http.MethodPut, "/admin/entities/mp-3/seeds/overall", body, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("set seed status = %d, body %s", rec.Code, rec.Body.String())
	}
	var seed seedResponse
	decodeBody(t, rec, &seed)
	if seed.Mode != "weighted" || seed.FakeCount != 500 || seed.UpdatedBy != "admin-1" {
		t.Fatalf("unexpected seed %+v", seed)
	}
	if seed.Resolved.Average == nil || *seed.Resolved.Average != 4.3 || seed.Resolved.Count != 600 {
		t.Fatalf("unexpected resolved %+v", seed.Resolved)
	}

	rec = doRequest(srv, http.MethodGet, "/entities/mp-3/ratings/overall", "", nil)
	var resolved resolvedRatingResponse
	decodeBody(t, rec, &resolved)
	if resolved.Average == nil || *resolved.Average != 4.3 || resolved.Mode != "weighted" {
		t.Fatalf("unexpected public rating %+v", resolved)
	}

	rec = doRequest(srv, http.MethodDelete, "/admin/entities/mp-3/seeds/overall", `{"reason":"remove"}`, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset seed status = %d, body %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &seed)
	if seed.FakeCount != 0 || seed.Resolved.Average == nil || *seed.Resolved.Average != 4.8 {
		t.Fatalf("reset should collapse to real: %+v", seed)
	}

	rec = doRequest(srv, http.MethodGet, "/admin/audit?target=mp-3/overall&action=seed.set", "", adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d", rec.Code)
	}
	var audit auditListResponse
	decodeBody(t, rec, &audit)
	if len(audit.Items) != 1 || audit.Items[0].Reason != "baseline" || audit.Items[0].ActorID != "admin-1" {
		t.Fatalf("unexpected audit %+v", audit.Items)
	}

	rec = doRequest(srv, http.MethodGet, "/admin/audit?target=mp-3/overall&limit=60", "", adminHeaders)
	decodeBody(t, rec, &audit)
	if len(audit.Items) != 60 || audit.NextCursor == nil {
		t.Fatalf("audit page = %d items, next %v", len(audit.Items), audit.NextCursor)
	}
	rec = doRequest(srv, http.MethodGet, "/admin/audit?target=mp-3/overall&limit=60&cursor="+*audit.NextCursor, "", adminHeaders)
	decodeBody(t, rec, &audit)
	if len(audit.Items) != 42 {
		t.Fatalf("second audit page = %d items, want 42", len(audit.Items))
	}
}

func TestFeaturedEndpoints(t *testing.T) {
	srv := buildTestServer(t)
	mustOnboard(t, srv, "mp-a")
	mustOnboard(t, srv, "mp-b")
	doRequest(srv, http.MethodPost, "/entities/mp-a/ratings/overall", `{"stars":5}`, rater("u1"))
	doRequest(srv, http.MethodPost, "/entities/mp-b/ratings/overall", `{"stars":3}`, rater("u1"))

	rec := doRequest(srv, http.MethodGet, "/featured", "", nil)
	var featured featuredResponse
	decodeBody(t, rec, &featured)
	if len(featured.Items) != 0 {
		t.Fatalf("featured should be empty before the first pass: %+v", featured)
	}

	rec = doRequest(srv, http.MethodPost, "/admin/featured/refresh", "", nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = doRequest(srv, http.MethodPost, "/admin/featured/refresh", "", adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/featured?limit=5", "", nil)
	decodeBody(t, rec, &featured)
	if len(featured.Items) != 1 || featured.Items[0].EntityID != "mp-a" || featured.GeneratedAt == nil {
		t.Fatalf("unexpected featured %+v", featured)
	}

	rec = doRequest(srv, http.MethodGet, "/featured?limit=x", "", nil)
	assertError(t, rec, http.StatusBadRequest, "BAD_REQUEST")

	rec = doRequest(srv, http.MethodGet, "/categories", "", nil)
	var categories struct {
		Items []categoryResponse `json:"items"`
	}
	decodeBody(t, rec, &categories)
	if len(categories.Items) != 8 || !categories.Items[0].IsPrimary {
		t.Fatalf("unexpected categories %+v", categories.Items)
	}
}

func TestRatingsFreeze(t *testing.T) {
	srv := buildTestServer(t)
	mustOnboard(t, srv, "mp-f")

	rec := doRequest(srv, http.MethodPost, "/entities/mp-f/ratings/overall", `{"stars":4}`, rater("early"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodPut, "/admin/entities/mp-f/seeds/overall", `{"allowNewRatings":false,"reason":"election silence"}`, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("freeze status = %d, body %s", rec.Code, rec.Body.String())
	}
	var seed seedResponse
	decodeBody(t, rec, &seed)
	if seed.AllowNewRatings {
		t.Fatalf("seed should be frozen: %+v", seed)
	}

	rec = doRequest(srv, http.MethodPost, "/entities/mp-f/ratings/overall", `{"stars":5}`, rater("late"))
	assertError(t, rec, http.StatusConflict, "RATINGS_CLOSED")

	// Other categories stay open.
	rec = doRequest(srv, http.MethodPost, "/entities/mp-f/ratings/transparency", `{"stars":5}`, rater("late"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("open category status = %d", rec.Code)
	}

	// Reset keeps the gate closed.
	rec = doRequest(srv, http.MethodDelete, "/admin/entities/mp-f/seeds/overall", `{"reason":"clear seed"}`, adminHeaders)
	decodeBody(t, rec, &seed)
	if seed.AllowNewRatings {
		t.Fatalf("reset must not reopen ratings: %+v", seed)
	}

	rec = doRequest(srv, http.MethodPut, "/admin/entities/mp-f/seeds/overall", `{"allowNewRatings":true,"reason":"reopen"}`, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("reopen status = %d", rec.Code)
	}
	rec = doRequest(srv, http.MethodPost, "/entities/mp-f/ratings/overall", `{"stars":5}`, rater("late"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit after reopen status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodGet, "/entities/mp-f/ratings/overall/stats", "", nil)
	var stats ratingStatsResponse
	decodeBody(t, rec, &stats)
	if stats.RealCount != 2 {
		t.Fatalf("rejected rating must not count: %+v", stats)
	}
}

func TestReportLifecycle(t *testing.T) {
	srv := buildTestServer(t)
	mustOnboard(t, srv, "mp-r")

	rec := doRequest(srv, http.MethodPost, "/entities/mp-r/ratings/overall", `{"stars":1,"comment":"spam spam"}`, rater("troll"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}
	var submitted ratingSubmittedResponse
	decodeBody(t, rec, &submitted)
	path := "/ratings/" + submitted.RatingID + "/reports"

	rec = doRequest(srv, http.MethodPost, path, `{"type":"spam","description":"bot"}`, nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = doRequest(srv, http.MethodPost, path, `{"type":"spam","description":"own"}`, rater("troll"))
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, path, `{"type":"rude","description":"x"}`, rater("citizen"))
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPost, "/ratings/missing/reports", `{"type":"spam","description":"x"}`, rater("citizen"))
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = doRequest(srv, http.MethodPost, path, `{"type":"spam","description":"automated account"}`, rater("citizen"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("file report status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report reportResponse
	decodeBody(t, rec, &report)
	if report.Status != "pending" || report.RatingID != submitted.RatingID || report.ReporterID != "citizen" {
		t.Fatalf("unexpected report %+v", report)
	}
	if loc := rec.Header().Get("Location"); loc != fmt.Sprintf("/admin/reports/%d", report.ID) {
		t.Fatalf("location = %q", loc)
	}

	rec = doRequest(srv, http.MethodPost, path, `{"type":"fake","description":"again"}`, rater("citizen"))
	assertError(t, rec, http.StatusConflict, "DUPLICATE_REPORT")

	reportPath := fmt.Sprintf("/admin/reports/%d", report.ID)
	rec = doRequest(srv, http.MethodGet, reportPath, "", nil)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = doRequest(srv, http.MethodGet, "/admin/reports?status=pending", "", adminHeaders)
	var list reportListResponse
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != report.ID {
		t.Fatalf("unexpected pending reports %+v", list.Items)
	}

	rec = doRequest(srv, http.MethodGet, "/admin/reports?status=bogus", "", adminHeaders)
	assertError(t, rec, http.StatusBadRequest, "BAD_REQUEST")

	rec = doRequest(srv, http.MethodPut, reportPath, `{"status":"pending"}`, adminHeaders)
	assertError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = doRequest(srv, http.MethodPut, reportPath, `{"status":"resolved","adminNotes":"rating hidden from review"}`, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("review status = %d, body %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &report)
	if report.Status != "resolved" || report.ReviewedBy != "admin-1" || report.ReviewedAt == nil {
		t.Fatalf("unexpected reviewed report %+v", report)
	}

	rec = doRequest(srv, http.MethodPut, reportPath, `{"status":"rejected"}`, adminHeaders)
	assertError(t, rec, http.StatusConflict, "REPORT_CLOSED")

	rec = doRequest(srv, http.MethodPut, "/admin/reports/999999", `{"status":"reviewed"}`, adminHeaders)
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = doRequest(srv, http.MethodGet, "/admin/reports/abc", "", adminHeaders)
	assertError(t, rec, http.StatusBadRequest, "BAD_REQUEST")

	rec = doRequest(srv, http.MethodGet, fmt.Sprintf("/admin/audit?target=report/%d", report.ID), "", adminHeaders)
	var audit auditListResponse
	decodeBody(t, rec, &audit)
	if len(audit.Items) != 2 || audit.Items[0].Action != "report.reviewed" || audit.Items[1].Action != "report.filed" {
		t.Fatalf("unexpected report audit %+v", audit.Items)
	}
}
