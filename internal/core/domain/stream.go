package domain

import (
	"time"
)

type StreamID string

// Stream is a live or ended broadcast session with one owning user.
type Stream struct {
	ID            StreamID   `json:"streamId"`
	Title         string     `json:"title" validate:"notblank,max=100"`
	AppInstance   string     `json:"appInstance" validate:"notblank,max=100"`
	Owner         UserID     `json:"owner"`
	Live          bool       `json:"live"`
	Duration      string     `json:"duration"`
	TotalViewers  int        `json:"totalViewers" validate:"gte=0"`
	TotalStickers int        `json:"totalStickers" validate:"gte=0"`
	CreatedAt     time.Time  `json:"createdAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`

	// Streamer is populated by storage when the owner is loaded with the stream.
	Streamer *User `json:"streamer,omitempty" validate:"-"`
}

// StreamAttributes are the caller supplied fields of a new stream.
type StreamAttributes struct {
	Title       string     `json:"title"`
	AppInstance string     `json:"appInstance"`
	Live        *bool      `json:"live,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// NewStream builds an unsaved stream owned by userID. Streams start live
// unless the attributes say otherwise.
func NewStream(id StreamID, owner UserID, attrs StreamAttributes, now time.Time) *Stream {
	s := &Stream{
		ID:          id,
		Title:       attrs.Title,
		AppInstance: attrs.AppInstance,
		Owner:       owner,
		Live:        true,
		Duration:    attrs.Duration,
		CreatedAt:   now,
		EndedAt:     attrs.EndedAt,
	}
	if attrs.Live != nil {
		s.Live = *attrs.Live
	}
	if attrs.CreatedAt != nil {
		s.CreatedAt = *attrs.CreatedAt
	}
	return s
}

// StreamState selects streams by their live flag.
type StreamState string

const (
	StreamStateAll  StreamState = "all"
	StreamStateLive StreamState = "live"
	StreamStateDone StreamState = "done"
)

type StreamSort string

const (
	SortByTime    StreamSort = "time"
	SortByTitle   StreamSort = "title"
	SortByViewers StreamSort = "viewers"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// StreamFilters narrows and orders a stream listing.
type StreamFilters struct {
	State  StreamState `form:"state" json:"state,omitempty"`
	Sort   StreamSort  `form:"sort" json:"sort,omitempty"`
	Order  SortOrder   `form:"order" json:"order,omitempty"`
	Limit  int         `form:"limit" json:"limit,omitempty"`
	Offset int         `form:"offset" json:"offset,omitempty"`
}

// Normalize fills in defaults and drops unknown values.
func (f StreamFilters) Normalize() StreamFilters {
	switch f.State {
	case StreamStateLive, StreamStateDone, StreamStateAll:
	default:
		f.State = StreamStateAll
	}
	switch f.Sort {
	case SortByTime, SortByTitle, SortByViewers:
	default:
		f.Sort = SortByTime
	}
	switch f.Order {
	case OrderAsc, OrderDesc:
	default:
		f.Order = OrderDesc
	}
	if f.Limit < 0 {
		f.Limit = 0
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether s passes the state filter.
func (f StreamFilters) Matches(s *Stream) bool {
	switch f.State {
	case StreamStateLive:
		return s.Live
	case StreamStateDone:
		return !s.Live
	default:
		return true
	}
}

// Less orders a before b according to the sort key and order.
func (f StreamFilters) Less(a, b *Stream) bool {
	var less, equal bool
	switch f.Sort {
	case SortByTitle:
		less, equal = a.Title < b.Title, a.Title == b.Title
	case SortByViewers:
		less, equal = a.TotalViewers < b.TotalViewers, a.TotalViewers == b.TotalViewers
	default:
		less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
	if equal {
		// stable tie break so pages do not shuffle
		return a.ID < b.ID
	}
	if f.Order == OrderAsc {
		return less
	}
	return !less
}

// Page applies offset and limit to an already ordered slice.
func (f StreamFilters) Page(streams []*Stream) []*Stream {
	if f.Offset >= len(streams) {
		return []*Stream{}
	}
	streams = streams[f.Offset:]
	if f.Limit > 0 && f.Limit < len(streams) {
		streams = streams[:f.Limit]
	}
	return streams
}

// SharesRoomWith reports whether s and other are distinct live streams on
// the same appInstance. At most one live stream may hold an appInstance.
func (s *Stream) SharesRoomWith(other *Stream) bool {
	return s.ID != other.ID && s.Live && other.Live && s.AppInstance == other.AppInstance
}
