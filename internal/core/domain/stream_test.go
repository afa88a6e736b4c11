package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamUpdates_ApplyTo(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Stream{ID: "s1", Title: "I am going to dance", AppInstance: "appInstance", Live: true}

	err := StreamUpdates{
		"title":         "a new title",
		"duration":      "100000",
		"totalStickers": float64(203),
		"totalViewers":  23123,
	}.ApplyTo(s, now)

	require.NoError(t, err)
	assert.Equal(t, "a new title", s.Title)
	assert.Equal(t, "100000", s.Duration)
	assert.Equal(t, 203, s.TotalStickers)
	assert.Equal(t, 23123, s.TotalViewers)
	assert.True(t, s.Live)
	assert.Nil(t, s.EndedAt)
}

func TestStreamUpdates_EndingStampsEndedAt(t *testing.T) {
	now := time.Now()
	s := &Stream{ID: "s1", Live: true}

	require.NoError(t, StreamUpdates{"live": false}.ApplyTo(s, now))

	assert.False(t, s.Live)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, now, *s.EndedAt)
}

func TestStreamUpdates_InvalidColumn(t *testing.T) {
	s := &Stream{ID: "s1", Title: "keep"}

	err := StreamUpdates{"title": "changed", "owner": "someone"}.ApplyTo(s, time.Now())

	var colErr *InvalidColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "owner", colErr.Column)
	assert.Equal(t, "keep", s.Title, "nothing applied when a column is invalid")
}

func TestStreamUpdates_WrongType(t *testing.T) {
	tests := []struct {
		name    string
		updates StreamUpdates
		field   string
	}{
		{"live not bool", StreamUpdates{"live": "no"}, "live"},
		{"viewers fractional", StreamUpdates{"totalViewers": 1.5}, "totalViewers"},
		{"stickers string", StreamUpdates{"totalStickers": "many"}, "totalStickers"},
		{"title number", StreamUpdates{"title": 12.0}, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.updates.ApplyTo(&Stream{}, time.Now())
			var fieldErr *InvalidFieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestStreamFilters_OrderAndState(t *testing.T) {
	base := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	streams := []*Stream{
		{ID: "a", Title: "I am going to dance", Live: true, CreatedAt: base.Add(time.Hour)},
		{ID: "b", Title: "hello, look at me! More recent!", Live: true, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c", Title: "this is an ended stream", Live: false, CreatedAt: base},
	}

	f := StreamFilters{}.Normalize()
	assert.Equal(t, StreamStateAll, f.State)
	assert.Equal(t, SortByTime, f.Sort)
	assert.Equal(t, OrderDesc, f.Order)

	sorted := append([]*Stream(nil), streams...)
	sort.SliceStable(sorted, func(i, j int) bool { return f.Less(sorted[i], sorted[j]) })
	assert.Equal(t, StreamID("b"), sorted[0].ID)
	assert.Equal(t, StreamID("a"), sorted[1].ID)
	assert.Equal(t, StreamID("c"), sorted[2].ID)

	live := StreamFilters{State: StreamStateLive}.Normalize()
	assert.True(t, live.Matches(streams[0]))
	assert.False(t, live.Matches(streams[2]))

	done := StreamFilters{State: StreamStateDone}.Normalize()
	assert.True(t, done.Matches(streams[2]))

	byTitle := StreamFilters{Sort: SortByTitle, Order: OrderDesc}.Normalize()
	assert.True(t, byTitle.Less(streams[2], streams[1]))
}

func TestStreamFilters_Page(t *testing.T) {
	streams := []*Stream{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	assert.Len(t, StreamFilters{Limit: 2}.Page(streams), 2)
	assert.Len(t, StreamFilters{Offset: 1}.Page(streams), 2)
	assert.Empty(t, StreamFilters{Offset: 5}.Page(streams))
}

func TestFormatStreamView(t *testing.T) {
	s := &Stream{
		ID: "s1", Title: "t", AppInstance: "x1", Owner: "u1", Live: true,
		Streamer: &User{ID: "u1", Username: "Alex Chan", Subscribers: []UserID{"u2"}},
	}

	flat := FormatStreamView(s, FormatStream)
	assert.Nil(t, flat.Streamer)
	assert.Equal(t, UserID("u1"), flat.UserID)

	view := FormatStreamView(s, FormatView)
	require.NotNil(t, view.Streamer)
	assert.Equal(t, "Alex Chan", view.Streamer.Username)
	assert.Equal(t, []UserID{"u2"}, view.Streamer.Subscribers)

	view.MarkSubscription("u2")
	require.NotNil(t, view.Streamer.IsSubscribe)
	assert.True(t, *view.Streamer.IsSubscribe)
	assert.Nil(t, view.Streamer.Subscribers)

	other := FormatStreamView(s, FormatView)
	other.MarkSubscription("u3")
	assert.False(t, *other.Streamer.IsSubscribe)

	assert.Nil(t, FormatStreamView(nil, FormatView))
}

func TestStream_Validate(t *testing.T) {
	s := &Stream{Title: "", AppInstance: "x1"}
	var fieldErr *InvalidFieldError
	require.ErrorAs(t, s.Validate(), &fieldErr)
	assert.Equal(t, "title", fieldErr.Field)

	s.Title = "ok"
	assert.NoError(t, s.Validate())
}
