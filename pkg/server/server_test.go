package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/suite"

	"github.com/Ramsey-B/sortinghat/internal/repositories/memory"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/middleware"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes/health"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

type APISuite struct {
	suite.Suite
	handler http.Handler
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	svc := registry.NewService(memory.NewStore(), logger)

	srv := New(Config{AppName: "sortinghat-test", UnifyLockTTL: time.Minute}, Dependencies{
		Registry:    svc,
		Recommender: recommendation.NewRecommender(svc, logger),
		Unifier:     unify.NewUnifier(svc, nil, logger),
		Health:      health.NewChecker("test"),
	}, logger)
	s.handler = srv.Handler()
}

func (s *APISuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "jsmith")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) decode(rec *httptest.ResponseRecorder, code int, v any) {
	s.Require().Equal(code, rec.Code, rec.Body.String())
	if v != nil {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
	}
}

func (s *APISuite) requireError(rec *httptest.ResponseRecorder, status int, code errors.Code) {
	var body middleware.ErrorResponse
	s.decode(rec, status, &body)
	s.EqualValues(code, body.Meta["code"])
}

func (s *APISuite) addIdentity(source, email string) models.Identity {
	var identity models.Identity
	s.decode(s.do(http.MethodPost, "/api/v1/identities", map[string]any{
		"source": source, "email": email, "name": "John Smith",
	}), http.StatusCreated, &identity)
	return identity
}

func (s *APISuite) TestUnifyAndAffiliate() {
	s.decode(s.do(http.MethodPost, "/api/v1/organizations", map[string]any{"name": "Example"}), http.StatusCreated, nil)
	s.decode(s.do(http.MethodPost, "/api/v1/organizations/Example/domains", map[string]any{
		"domain": "example.com", "is_top_domain": true,
	}), http.StatusCreated, nil)

	a := s.addIdentity("git", "jsmith@example.com")
	b := s.addIdentity("mls", "jsmith@example.com")
	s.NotEqual(a.IndividualMK, b.IndividualMK)

	var stats unify.Stats
	s.decode(s.do(http.MethodPost, "/api/v1/unify", map[string]any{}), http.StatusOK, &stats)
	s.Equal(1, stats.Matched)

	var ia, ib models.Individual
	s.decode(s.do(http.MethodGet, "/api/v1/identities/"+a.UUID+"/individual", nil), http.StatusOK, &ia)
	s.decode(s.do(http.MethodGet, "/api/v1/identities/"+b.UUID+"/individual", nil), http.StatusOK, &ib)
	s.Equal(ia.MK, ib.MK)
	s.Len(ia.Identities, 2)

	var recs map[string][]recommendation.Recommendation
	s.decode(s.do(http.MethodPost, "/api/v1/recommendations/affiliation", map[string]any{"keys": []string{ia.MK}}),
		http.StatusOK, &recs)
	s.Require().Len(recs["results"], 1)
	s.Equal([]string{"Example"}, recs["results"][0].Organizations)

	var res recommendation.Result
	s.decode(s.do(http.MethodPost, "/api/v1/affiliate", map[string]any{"uuids": []string{ia.MK}}), http.StatusOK, &res)
	s.Empty(res.Errors)

	s.decode(s.do(http.MethodGet, "/api/v1/individuals/"+ia.MK, nil), http.StatusOK, &ia)
	s.Require().Len(ia.Enrollments, 1)

	var trxs []models.Transaction
	s.decode(s.do(http.MethodGet, "/api/v1/transactions?authored_by=jsmith&name=add_identity", nil), http.StatusOK, &trxs)
	s.Len(trxs, 2)

	var trx models.Transaction
	s.decode(s.do(http.MethodGet, "/api/v1/transactions/"+trxs[0].TUID, nil), http.StatusOK, &trx)
	s.NotEmpty(trx.Operations)
}

func (s *APISuite) TestEnrollments() {
	s.decode(s.do(http.MethodPost, "/api/v1/organizations", map[string]any{"name": "Example"}), http.StatusCreated, nil)
	id := s.addIdentity("git", "jsmith@example.com")
	base := "/api/v1/individuals/" + id.IndividualMK

	var ind models.Individual
	s.decode(s.do(http.MethodPost, base+"/enrollments", map[string]any{
		"group": "Example", "start": "2010-01-01T00:00:00Z", "end": "2015-01-01T00:00:00Z",
	}), http.StatusCreated, &ind)
	s.Require().Len(ind.Enrollments, 1)

	s.requireError(s.do(http.MethodPost, base+"/enrollments", map[string]any{
		"group": "Example", "start": "2011-01-01T00:00:00Z", "end": "2012-01-01T00:00:00Z", "strict": true,
	}), http.StatusConflict, errors.CodeDuplicateRange)

	s.decode(s.do(http.MethodPost, base+"/withdraw", map[string]any{
		"group": "Example", "start": "2012-01-01T00:00:00Z", "end": "2013-01-01T00:00:00Z",
	}), http.StatusOK, &ind)
	s.Len(ind.Enrollments, 2)

	s.decode(s.do(http.MethodDelete, base+"/enrollments?group=Example&start=2010-01-01&end=2012-01-01", nil), http.StatusOK, &ind)
	s.Len(ind.Enrollments, 1)
}

func (s *APISuite) TestLockedIndividual() {
	id := s.addIdentity("git", "jsmith@example.com")
	base := "/api/v1/individuals/" + id.IndividualMK

	var ind models.Individual
	s.decode(s.do(http.MethodPost, base+"/lock", nil), http.StatusOK, &ind)
	s.True(ind.IsLocked)

	s.requireError(s.do(http.MethodPatch, base+"/profile", map[string]any{"name": "J. Smith"}),
		http.StatusLocked, errors.CodeLockedIdentity)

	s.decode(s.do(http.MethodDelete, base+"/lock", nil), http.StatusOK, &ind)
	s.decode(s.do(http.MethodPatch, base+"/profile", map[string]any{"name": "J. Smith"}), http.StatusOK, &ind)
	s.Equal("J. Smith", *ind.Profile.Name)
}

func (s *APISuite) TestScheduledTasks() {
	var task models.ScheduledTask
	s.decode(s.do(http.MethodPost, "/api/v1/tasks", map[string]any{
		"job_type": "affiliate", "interval": 60,
	}), http.StatusCreated, &task)

	path := fmt.Sprintf("/api/v1/tasks/%d", task.ID)
	s.decode(s.do(http.MethodPut, path, map[string]any{"interval": 0}), http.StatusOK, &task)
	s.Equal(0, task.Interval)

	var tasks []models.ScheduledTask
	s.decode(s.do(http.MethodGet, "/api/v1/tasks", nil), http.StatusOK, &tasks)
	s.Len(tasks, 1)

	s.decode(s.do(http.MethodDelete, path, nil), http.StatusOK, nil)
	s.requireError(s.do(http.MethodGet, path, nil), http.StatusNotFound, errors.CodeNotFound)

	s.requireError(s.do(http.MethodPost, "/api/v1/tasks", map[string]any{"job_type": "backup"}),
		http.StatusBadRequest, errors.CodeValue)
}

func (s *APISuite) TestErrors() {
	s.requireError(s.do(http.MethodGet, "/api/v1/individuals/missing", nil), http.StatusNotFound, errors.CodeNotFound)
	s.requireError(s.do(http.MethodPost, "/api/v1/identities", map[string]any{"email": "x@example.com"}),
		http.StatusBadRequest, errors.CodeValue)
	s.requireError(s.do(http.MethodPost, "/api/v1/individuals/merge", map[string]any{
		"from_mks": []string{"a"}, "to_mk": "a",
	}), http.StatusBadRequest, errors.CodeEqualIndividual)
	s.requireError(s.do(http.MethodPost, "/api/v1/recommendations/unknown", map[string]any{}),
		http.StatusBadRequest, errors.CodeRecommendation)
	s.requireError(s.do(http.MethodGet, "/api/v1/individuals?limit=-1", nil), http.StatusBadRequest, errors.CodeFilter)
	s.requireError(s.do(http.MethodGet, "/api/v1/transactions?from_date=yesterday", nil), http.StatusBadRequest, errors.CodeFilter)
}

func (s *APISuite) TestHealthAndMetrics() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", nil).Code)
}

func TestStartStop(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	svc := registry.NewService(memory.NewStore(), logger)
	srv := New(Config{Port: 0}, Dependencies{Registry: svc}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := srv.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
