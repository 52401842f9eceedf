//go:build integration

package repository_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/ports/matchtx"
	"crowdship-engine/internal/repository"
)

type MatchRepositorySuite struct {
	suite.Suite
	pool          *pgxpool.Pool
	repo          *repository.MatchRepo
	announcements *repository.AnnouncementRepo
	routes        *repository.RouteRepo
}

func (s *MatchRepositorySuite) SetupSuite() {
	s.Require().NotNil(tcPool, "tcPool must be initialized in TestMain")

	s.pool = tcPool
	s.repo = repository.NewMatchRepo(tcPool)
	s.announcements = repository.NewAnnouncementRepo(tcPool)
	s.routes = repository.NewRouteRepo(tcPool)
}

func (s *MatchRepositorySuite) SetupTest() {
	s.Require().NoError(truncateAll(context.Background(), s.pool))
}

// seed creates the announcement and route rows the match FKs point at.
func (s *MatchRepositorySuite) seed(status domain.AnnouncementStatus) (announcementID, routeID string) {
	ctx := context.Background()

	a := newAnnouncement(status)
	s.Require().NoError(s.announcements.Create(ctx, a))

	r := newRoute()
	s.Require().NoError(s.routes.Create(ctx, r))

	return a.ID, r.ID
}

func (s *MatchRepositorySuite) TestReplacePendingAndList() {
	ctx := context.Background()
	aID, rID := s.seed(domain.StatusActive)

	low := newMatch(aID, rID, 40)
	high := newMatch(aID, rID, 90)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{low, high}))

	list, err := s.repo.ListPendingByAnnouncement(ctx, aID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	// лучший кандидат первым
	s.Equal(high.ID, list[0].ID)
	s.Equal(low.ID, list[1].ID)
	s.Equal(high.Reasons, list[0].Reasons)

	replacement := newMatch(aID, rID, 70)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{replacement}))

	list, err = s.repo.ListPendingByAnnouncement(ctx, aID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(replacement.ID, list[0].ID)
}

func (s *MatchRepositorySuite) TestGetMatchNotFound() {
	got, err := s.repo.GetMatch(context.Background(), "missing")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *MatchRepositorySuite) TestUpdateStatus() {
	ctx := context.Background()
	aID, rID := s.seed(domain.StatusActive)

	m := newMatch(aID, rID, 80)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{m}))

	ok, err := s.repo.UpdateStatus(ctx, m.ID, domain.MatchPending, domain.MatchRejected)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.repo.UpdateStatus(ctx, m.ID, domain.MatchPending, domain.MatchRejected)
	s.Require().NoError(err)
	s.False(ok, "rejected match must not transition again")
}

func (s *MatchRepositorySuite) TestAcceptFlowInTx() {
	ctx := context.Background()
	aID, rID := s.seed(domain.StatusActive)

	winner := newMatch(aID, rID, 90)
	loser := newMatch(aID, rID, 50)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{winner, loser}))

	err := s.repo.WithTx(ctx, func(tx matchtx.Repository) error {
		locked, err := tx.GetMatchForUpdate(ctx, winner.ID)
		s.Require().NoError(err)
		s.Require().NotNil(locked)
		s.Equal(domain.MatchPending, locked.Status)

		ok, err := tx.UpdateMatchStatus(ctx, winner.ID, domain.MatchPending, domain.MatchAccepted)
		s.Require().NoError(err)
		s.Require().True(ok)

		n, err := tx.InvalidateSiblings(ctx, aID, winner.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), n)

		ok, err = tx.UpdateAnnouncementStatus(ctx, aID,
			[]domain.AnnouncementStatus{domain.StatusActive, domain.StatusMatched}, domain.StatusAssigned)
		s.Require().NoError(err)
		s.Require().True(ok)
		return nil
	})
	s.Require().NoError(err)

	accepted, err := s.repo.GetAcceptedByAnnouncement(ctx, aID)
	s.Require().NoError(err)
	s.Require().NotNil(accepted)
	s.Equal(winner.ID, accepted.ID)

	sibling, err := s.repo.GetMatch(ctx, loser.ID)
	s.Require().NoError(err)
	s.Equal(domain.MatchInvalidated, sibling.Status)

	a, err := s.announcements.Get(ctx, aID)
	s.Require().NoError(err)
	s.Equal(domain.StatusAssigned, a.Status)
}

func (s *MatchRepositorySuite) TestWithTx_RollbackOnError() {
	ctx := context.Background()
	aID, rID := s.seed(domain.StatusActive)

	m := newMatch(aID, rID, 80)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{m}))

	boom := s.repo.WithTx(ctx, func(tx matchtx.Repository) error {
		ok, err := tx.UpdateMatchStatus(ctx, m.ID, domain.MatchPending, domain.MatchAccepted)
		s.Require().NoError(err)
		s.Require().True(ok)
		return context.DeadlineExceeded
	})
	s.ErrorIs(boom, context.DeadlineExceeded)

	got, err := s.repo.GetMatch(ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(domain.MatchPending, got.Status, "rollback must restore the pending status")
}

func (s *MatchRepositorySuite) TestSecondAcceptedViolatesUniqueIndex() {
	ctx := context.Background()
	aID, rID := s.seed(domain.StatusActive)

	first := newMatch(aID, rID, 90)
	second := newMatch(aID, rID, 70)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{first, second}))

	ok, err := s.repo.UpdateStatus(ctx, first.ID, domain.MatchPending, domain.MatchAccepted)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = s.repo.UpdateStatus(ctx, second.ID, domain.MatchPending, domain.MatchAccepted)
	s.Error(err, "partial unique index allows a single accepted match per announcement")
}

func (s *MatchRepositorySuite) TestExpireStale() {
	ctx := context.Background()

	aID, rID := s.seed(domain.StatusCancelled)
	m := newMatch(aID, rID, 60)
	s.Require().NoError(s.repo.ReplacePending(ctx, aID, []domain.Match{m}))

	n, err := s.repo.ExpireStale(ctx, tcNow())
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got, err := s.repo.GetMatch(ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(domain.MatchExpired, got.Status)
}

func TestMatchRepositorySuite(t *testing.T) {
	suite.Run(t, new(MatchRepositorySuite))
}
