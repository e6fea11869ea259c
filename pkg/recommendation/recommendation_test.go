package recommendation_test

import (
	"context"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Ramsey-B/sortinghat/internal/repositories/memory"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/genderize"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/period"
	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
)

func ptr[T any](v T) *T { return &v }

type fakeGuesser struct {
	calls   []string
	genders map[string]string
}

func (g *fakeGuesser) Guess(_ context.Context, name string) (*genderize.Guess, error) {
	g.calls = append(g.calls, name)
	out := &genderize.Guess{Name: name}
	if gender, ok := g.genders[strings.ToLower(name)]; ok {
		out.Gender = ptr(gender)
		out.Accuracy = ptr(92)
	}
	return out, nil
}

type RecommendationSuite struct {
	suite.Suite
	ctx     context.Context
	svc     *registry.Service
	guesser *fakeGuesser
	rec     *recommendation.Recommender
}

func TestRecommendationSuite(t *testing.T) {
	suite.Run(t, new(RecommendationSuite))
}

func (s *RecommendationSuite) SetupTest() {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s.ctx = context.Background()
	s.svc = registry.NewService(memory.NewStore(), logger)
	s.guesser = &fakeGuesser{genders: map[string]string{"john": "male", "jane": "female"}}
	s.rec = recommendation.NewRecommender(s.svc, logger,
		recommendation.WithGuesser(s.guesser),
		recommendation.WithCacheSize(8),
	)

	_, err := s.svc.AddOrganization(s.ctx, "Example")
	s.Require().NoError(err)
	_, err = s.svc.AddDomain(s.ctx, "Example", "example.com", true)
	s.Require().NoError(err)
	_, err = s.svc.AddOrganization(s.ctx, "Bitergia")
	s.Require().NoError(err)
	_, err = s.svc.AddDomain(s.ctx, "Bitergia", "bitergia.com", false)
	s.Require().NoError(err)
}

func (s *RecommendationSuite) addIdentity(email, name string, mk *string) *models.Identity {
	data := models.IdentityData{Source: "scm"}
	if email != "" {
		data.Email = ptr(email)
	}
	if name != "" {
		data.Name = ptr(name)
	}
	id, err := s.svc.AddIdentity(s.ctx, data, mk)
	s.Require().NoError(err)
	return id
}

func byMK(recs []recommendation.Recommendation) map[string]recommendation.Recommendation {
	out := map[string]recommendation.Recommendation{}
	for _, r := range recs {
		out[r.MK] = r
	}
	return out
}

func (s *RecommendationSuite) TestAffiliations() {
	jroe := s.addIdentity("jroe@example.com", "Jane Roe", nil)
	s.addIdentity("jroe@bitergia.com", "", &jroe.IndividualMK)
	jsmith := s.addIdentity("jsmith@us.example.com", "John Smith", nil)
	jdoe := s.addIdentity("jdoe@us.bitergia.com", "", nil)
	nomail := s.addIdentity("", "No Mail", nil)
	bad := s.addIdentity("not-an-email", "", nil)

	recs, err := s.rec.Recommend(s.ctx, recommendation.EngineAffiliation, recommendation.Request{})
	s.Require().NoError(err)
	s.Len(recs, 5)

	got := byMK(recs)
	s.Equal([]string{"Bitergia", "Example"}, got[jroe.IndividualMK].Organizations)
	s.Equal([]string{"Example"}, got[jsmith.IndividualMK].Organizations)
	s.Empty(got[jdoe.IndividualMK].Organizations)
	s.Empty(got[nomail.IndividualMK].Organizations)
	s.Empty(got[bad.IndividualMK].Organizations)
}

func (s *RecommendationSuite) TestAffiliationsSingleLabelTopDomain() {
	_, err := s.svc.AddOrganization(s.ctx, "Government")
	s.Require().NoError(err)
	_, err = s.svc.AddDomain(s.ctx, "Government", "gov", true)
	s.Require().NoError(err)

	jdoe := s.addIdentity("jdoe@agency.gov", "John Doe", nil)
	jroe := s.addIdentity("jroe@mail.bitergia.com", "Jane Roe", nil)

	recs, err := s.rec.RecommendAffiliations(s.ctx, []string{jdoe.IndividualMK, jroe.IndividualMK})
	s.Require().NoError(err)
	got := byMK(recs)
	s.Equal([]string{"Government"}, got[jdoe.IndividualMK].Organizations)
	s.Empty(got[jroe.IndividualMK].Organizations)
}

func (s *RecommendationSuite) TestAffiliationsByIdentityUUID() {
	jroe := s.addIdentity("jroe@example.com", "Jane Roe", nil)
	extra := s.addIdentity("jroe@bitergia.com", "", &jroe.IndividualMK)

	recs, err := s.rec.RecommendAffiliations(s.ctx, []string{extra.UUID, "unknown"})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(extra.UUID, recs[0].Key)
	s.Equal(jroe.IndividualMK, recs[0].MK)
	s.Equal([]string{"Bitergia", "Example"}, recs[0].Organizations)
}

func (s *RecommendationSuite) TestAffiliationsSkipEnrolled() {
	jroe := s.addIdentity("jroe@example.com", "Jane Roe", nil)
	s.addIdentity("jroe@bitergia.com", "", &jroe.IndividualMK)
	_, err := s.svc.AddEnrollment(s.ctx, jroe.IndividualMK, models.GroupRef{Name: "Example"},
		ptr(period.MinPeriod.AddDate(10, 0, 0)), nil, registry.EnrollOptions{})
	s.Require().NoError(err)

	recs, err := s.rec.RecommendAffiliations(s.ctx, []string{jroe.IndividualMK})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal([]string{"Bitergia"}, recs[0].Organizations)
}

func (s *RecommendationSuite) TestAffiliate() {
	jroe := s.addIdentity("jroe@example.com", "Jane Roe", nil)
	s.addIdentity("jroe@bitergia.com", "", &jroe.IndividualMK)
	s.addIdentity("jdoe@us.bitergia.com", "", nil)

	res, err := s.rec.Affiliate(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(res.Errors)
	s.Require().Len(res.Results, 1)
	s.Equal([]string{"Bitergia", "Example"}, res.Results[0].Organizations)

	ind, err := s.svc.GetIndividual(s.ctx, jroe.IndividualMK)
	s.Require().NoError(err)
	s.Require().Len(ind.Enrollments, 2)
	for _, e := range ind.Enrollments {
		s.True(e.Start.Equal(period.MinPeriod))
		s.True(e.End.Equal(period.MaxPeriod))
	}

	res, err = s.rec.Affiliate(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(res.Results)
}

func (s *RecommendationSuite) TestMatches() {
	a := s.addIdentity("jsmith@example.com", "", nil)
	b := s.addIdentity("", "John Smith", nil)
	data := models.IdentityData{Source: "git", Email: ptr("JSmith@example.com"), Name: ptr("John Smith")}
	c, err := s.svc.AddIdentity(s.ctx, data, nil)
	s.Require().NoError(err)
	d := s.addIdentity("other@example.com", "", nil)

	recs, err := s.rec.Recommend(s.ctx, recommendation.EngineMatches, recommendation.Request{
		Keys:    []string{a.IndividualMK, d.IndividualMK},
		Matcher: "email-name",
	})
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal([]string{c.IndividualMK}, recs[0].Matches)
	s.Empty(recs[1].Matches)

	recs, err = s.rec.RecommendMatches(s.ctx, recommendation.Request{
		Keys:    []string{c.IndividualMK},
		Targets: []string{b.IndividualMK},
		Matcher: "email-name",
	})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal([]string{b.IndividualMK}, recs[0].Matches)

	_, err = s.rec.RecommendMatches(s.ctx, recommendation.Request{Matcher: "fuzzy"})
	s.Error(err)
}

func (s *RecommendationSuite) TestMatchesStrictAndExclude() {
	a := s.addIdentity("", "jsmith", nil)
	b, err := s.svc.AddIdentity(s.ctx, models.IdentityData{Source: "git", Name: ptr("jsmith")}, nil)
	s.Require().NoError(err)
	c := s.addIdentity("bot@example.com", "", nil)
	d, err := s.svc.AddIdentity(s.ctx, models.IdentityData{Source: "git", Email: ptr("bot@example.com")}, nil)
	s.Require().NoError(err)
	_, err = s.svc.AddExclusion(s.ctx, "bot@example.com")
	s.Require().NoError(err)

	recs, err := s.rec.RecommendMatches(s.ctx, recommendation.Request{Keys: []string{a.IndividualMK, c.IndividualMK}})
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Empty(recs[0].Matches)
	s.Empty(recs[1].Matches)

	lax, noExclusions := false, false
	recs, err = s.rec.RecommendMatches(s.ctx, recommendation.Request{
		Keys:    []string{a.IndividualMK, c.IndividualMK},
		Strict:  &lax,
		Exclude: &noExclusions,
	})
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal([]string{b.IndividualMK}, recs[0].Matches)
	s.Equal([]string{d.IndividualMK}, recs[1].Matches)
}

func (s *RecommendationSuite) TestGenderize() {
	john := s.addIdentity("", "John Smith", nil)
	johnny := s.addIdentity("", "john Doe", nil)
	jane := s.addIdentity("", "Jane Roe", nil)
	unknown := s.addIdentity("", "Zork Unknown", nil)
	noname := s.addIdentity("anon@example.com", "", nil)

	recs, err := s.rec.RecommendGender(s.ctx, []string{john.IndividualMK, johnny.IndividualMK, unknown.IndividualMK, noname.IndividualMK})
	s.Require().NoError(err)
	s.Require().Len(recs, 4)
	s.Equal("male", *recs[0].Gender)
	s.Equal(92, *recs[0].Accuracy)
	s.Equal("male", *recs[1].Gender)
	s.Nil(recs[2].Gender)
	s.Nil(recs[3].Gender)
	s.Equal([]string{"john", "zork"}, s.guesser.calls)

	res, err := s.rec.Genderize(s.ctx, []string{jane.IndividualMK})
	s.Require().NoError(err)
	s.Empty(res.Errors)
	s.Require().Len(res.Results, 1)

	ind, err := s.svc.GetIndividual(s.ctx, jane.IndividualMK)
	s.Require().NoError(err)
	s.Require().NotNil(ind.Profile.Gender)
	s.Equal("female", *ind.Profile.Gender)
	s.Equal(92, *ind.Profile.GenderAcc)

	s.guesser.calls = nil
	res, err = s.rec.Genderize(s.ctx, []string{jane.IndividualMK})
	s.Require().NoError(err)
	s.Empty(res.Results)
	s.Empty(s.guesser.calls)
}

func TestUnknownEngine(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	rec := recommendation.NewRecommender(registry.NewService(memory.NewStore(), logger), logger)

	_, err := rec.Recommend(context.Background(), "crystal-ball", recommendation.Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeRecommendation))
	assert.Equal(t, []string{"affiliation", "gender", "matches"}, recommendation.Engines())

	_, err = rec.Recommend(context.Background(), recommendation.EngineGender, recommendation.Request{})
	assert.True(t, errors.Is(err, errors.CodeRecommendation))
}
