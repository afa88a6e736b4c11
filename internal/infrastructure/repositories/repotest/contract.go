// Package repotest holds the behaviour every storage backend must share.
package repotest

import (
	"context"
	"testing"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"

	"github.com/stretchr/testify/suite"
)

// Factory returns fresh, empty repositories backed by the same store.
type Factory func(t *testing.T) (ports.StreamRepository, ports.UserRepository)

// Run executes the storage contract against the backend built by factory.
func Run(t *testing.T, factory Factory) {
	suite.Run(t, &ContractSuite{factory: factory})
}

type ContractSuite struct {
	suite.Suite
	factory Factory

	ctx     context.Context
	streams ports.StreamRepository
	users   ports.UserRepository
}

func (s *ContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.streams, s.users = s.factory(s.T())
}

func (s *ContractSuite) createUser(name string) *domain.User {
	u, err := s.users.Create(s.ctx, domain.UserAttributes{Username: name, Email: name + "@gmail.com"})
	s.Require().NoError(err)
	return u
}

func (s *ContractSuite) createStream(owner domain.UserID, title, appInstance string, live bool) *domain.Stream {
	st, err := s.streams.Create(s.ctx, owner, domain.StreamAttributes{
		Title:       title,
		AppInstance: appInstance,
		Live:        &live,
	})
	s.Require().NoError(err)
	return st
}

func (s *ContractSuite) TestCreateAndGet() {
	u := s.createUser("alexchan")
	created := s.createStream(u.ID, "I am going to dance", "appInstance", true)

	s.NotEmpty(created.ID)
	s.True(created.Live)

	got, err := s.streams.GetByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("I am going to dance", got.Title)
	s.Equal(u.ID, got.Owner)
	s.Require().NotNil(got.Streamer)
	s.Equal("alexchan", got.Streamer.Username)
}

func (s *ContractSuite) TestCreateUnknownUser() {
	_, err := s.streams.Create(s.ctx, "no-such-user", domain.StreamAttributes{Title: "t", AppInstance: "x"})
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *ContractSuite) TestCreateInvalidField() {
	u := s.createUser("alexchan")
	_, err := s.streams.Create(s.ctx, u.ID, domain.StreamAttributes{Title: "", AppInstance: "x"})

	var fieldErr *domain.InvalidFieldError
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("title", fieldErr.Field)
}

func (s *ContractSuite) TestLiveAppInstanceIsExclusive() {
	alex := s.createUser("alexchan")
	sam := s.createUser("samlee")
	first := s.createStream(alex.ID, "first", "x1", true)

	_, err := s.streams.Create(s.ctx, sam.ID, domain.StreamAttributes{Title: "second", AppInstance: "x1"})
	var fieldErr *domain.InvalidFieldError
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("appInstance", fieldErr.Field)

	// Ended streams keep their appInstance without holding it.
	s.createStream(sam.ID, "archived", "x1", false)

	other := s.createStream(sam.ID, "other", "x2", true)
	_, err = s.streams.Update(s.ctx, other.ID, domain.StreamUpdates{"appInstance": "x1"})
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("appInstance", fieldErr.Field)

	_, err = s.streams.Update(s.ctx, first.ID, domain.StreamUpdates{"live": false})
	s.Require().NoError(err)

	moved, err := s.streams.Update(s.ctx, other.ID, domain.StreamUpdates{"appInstance": "x1"})
	s.Require().NoError(err)
	s.Equal("x1", moved.AppInstance)

	_, err = s.streams.Update(s.ctx, first.ID, domain.StreamUpdates{"live": true})
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("appInstance", fieldErr.Field)

	_, err = s.streams.Update(s.ctx, moved.ID, domain.StreamUpdates{"title": "renamed"})
	s.NoError(err, "a live stream does not conflict with itself")
}

func (s *ContractSuite) TestGetUnknownStream() {
	_, err := s.streams.GetByID(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, domain.ErrStreamNotFound)
}

func (s *ContractSuite) TestListFiltersAndOrder() {
	u := s.createUser("alexchan")
	s.createStream(u.ID, "alpha", "a1", true)
	s.createStream(u.ID, "bravo", "b1", false)
	s.createStream(u.ID, "charlie", "c1", true)

	live, err := s.streams.List(s.ctx, domain.StreamFilters{State: domain.StreamStateLive, Sort: domain.SortByTitle, Order: domain.OrderDesc})
	s.Require().NoError(err)
	s.Require().Len(live, 2)
	s.Equal("charlie", live[0].Title)
	s.Equal("alpha", live[1].Title)

	done, err := s.streams.List(s.ctx, domain.StreamFilters{State: domain.StreamStateDone})
	s.Require().NoError(err)
	s.Require().Len(done, 1)
	s.Equal("bravo", done[0].Title)

	page, err := s.streams.List(s.ctx, domain.StreamFilters{Sort: domain.SortByTitle, Order: domain.OrderAsc, Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("bravo", page[0].Title)
}

func (s *ContractSuite) TestListEmpty() {
	streams, err := s.streams.List(s.ctx, domain.StreamFilters{})
	s.NoError(err)
	s.Empty(streams)
}

func (s *ContractSuite) TestUpdate() {
	u := s.createUser("alexchan")
	st := s.createStream(u.ID, "I am going to dance", "appInstance", true)

	updated, err := s.streams.Update(s.ctx, st.ID, domain.StreamUpdates{
		"title":         "a new title",
		"totalStickers": float64(203),
		"live":          false,
	})
	s.Require().NoError(err)
	s.Equal("a new title", updated.Title)
	s.Equal(203, updated.TotalStickers)
	s.False(updated.Live)
	s.NotNil(updated.EndedAt)

	got, err := s.streams.GetByID(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal("a new title", got.Title)
	s.False(got.Live)
}

func (s *ContractSuite) TestUpdateErrors() {
	u := s.createUser("alexchan")
	st := s.createStream(u.ID, "title", "x1", true)

	_, err := s.streams.Update(s.ctx, st.ID, domain.StreamUpdates{"nope": 1})
	var colErr *domain.InvalidColumnError
	s.Require().ErrorAs(err, &colErr)
	s.Equal("nope", colErr.Column)

	_, err = s.streams.Update(s.ctx, st.ID, domain.StreamUpdates{"title": ""})
	var fieldErr *domain.InvalidFieldError
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("title", fieldErr.Field)

	_, err = s.streams.Update(s.ctx, st.ID, domain.StreamUpdates{"totalViewers": float64(-1)})
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("totalViewers", fieldErr.Field)

	_, err = s.streams.Update(s.ctx, "00000000-0000-0000-0000-000000000000", domain.StreamUpdates{"title": "x"})
	s.ErrorIs(err, domain.ErrStreamNotFound)

	got, err := s.streams.GetByID(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal("title", got.Title, "failed updates leave the stream untouched")
}

func (s *ContractSuite) TestViews() {
	streamer := s.createUser("streamer")
	viewer1 := s.createUser("viewer1")
	viewer2 := s.createUser("viewer2")
	st := s.createStream(streamer.ID, "title", "x1", true)

	s.Require().NoError(s.streams.RecordView(s.ctx, st.ID, viewer1.ID))
	s.Require().NoError(s.streams.RecordView(s.ctx, st.ID, viewer1.ID))
	s.Require().NoError(s.streams.RecordView(s.ctx, st.ID, viewer2.ID))
	s.Require().NoError(s.streams.UpdateTotalViews(s.ctx, st.ID))

	got, err := s.streams.GetByID(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Equal(2, got.TotalViewers)

	s.ErrorIs(s.streams.UpdateTotalViews(s.ctx, "00000000-0000-0000-0000-000000000000"), domain.ErrStreamNotFound)
	s.ErrorIs(s.streams.RecordView(s.ctx, "00000000-0000-0000-0000-000000000000", viewer1.ID), domain.ErrStreamNotFound)
}

func (s *ContractSuite) TestDelete() {
	u := s.createUser("alexchan")
	st := s.createStream(u.ID, "title", "x1", true)

	deleted, err := s.streams.Delete(s.ctx, st.ID)
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.streams.Delete(s.ctx, st.ID)
	s.Require().NoError(err)
	s.False(deleted)

	_, err = s.streams.GetByID(s.ctx, st.ID)
	s.ErrorIs(err, domain.ErrStreamNotFound)
}

func (s *ContractSuite) TestSubscriptions() {
	streamer := s.createUser("streamer")
	other := s.createUser("other")
	fan := s.createUser("fan")
	s.createStream(streamer.ID, "followed", "x1", true)
	s.createStream(other.ID, "not followed", "x2", true)

	s.Require().NoError(s.users.AddSubscriber(s.ctx, streamer.ID, fan.ID))
	s.Require().NoError(s.users.AddSubscriber(s.ctx, streamer.ID, fan.ID))

	u, err := s.users.GetByID(s.ctx, streamer.ID)
	s.Require().NoError(err)
	s.Equal([]domain.UserID{fan.ID}, u.Subscribers)

	streams, err := s.streams.ListFromSubscriptions(s.ctx, fan.ID)
	s.Require().NoError(err)
	s.Require().Len(streams, 1)
	s.Equal("followed", streams[0].Title)
	s.Require().NotNil(streams[0].Streamer)
	s.True(streams[0].Streamer.HasSubscriber(fan.ID))

	_, err = s.streams.ListFromSubscriptions(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, domain.ErrUserNotFound)

	s.ErrorIs(s.users.AddSubscriber(s.ctx, "00000000-0000-0000-0000-000000000000", fan.ID), domain.ErrUserNotFound)
}

func (s *ContractSuite) TestUsers() {
	u := s.createUser("Alex Chan")

	got, err := s.users.GetByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("Alex Chan", got.Username)

	_, err = s.users.Create(s.ctx, domain.UserAttributes{Username: "Alex Chan"})
	s.ErrorIs(err, domain.ErrUserExists)

	_, err = s.users.Create(s.ctx, domain.UserAttributes{Username: "ab"})
	var fieldErr *domain.InvalidFieldError
	s.Require().ErrorAs(err, &fieldErr)
	s.Equal("username", fieldErr.Field)

	_, err = s.users.GetByID(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, domain.ErrUserNotFound)
}
