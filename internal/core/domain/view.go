package domain

import "time"

// Format selects how much of a stream is rendered for a caller.
type Format string

const (
	// FormatStream renders the flat stream record.
	FormatStream Format = "stream"
	// FormatView adds the streamer block.
	FormatView Format = "view"
)

// StreamView is the normalized representation returned by the service.
type StreamView struct {
	StreamID      StreamID      `json:"streamId"`
	Title         string        `json:"title"`
	AppInstance   string        `json:"appInstance"`
	UserID        UserID        `json:"userId"`
	Live          bool          `json:"live"`
	Duration      string        `json:"duration"`
	TotalViewers  int           `json:"totalViewers"`
	TotalStickers int           `json:"totalStickers"`
	CreatedAt     time.Time     `json:"createdAt"`
	EndedAt       *time.Time    `json:"endedAt,omitempty"`
	Streamer      *StreamerView `json:"streamer,omitempty"`
}

type StreamerView struct {
	UserID      UserID   `json:"userId"`
	Username    string   `json:"username"`
	Subscribers []UserID `json:"subscribers,omitempty"`
	IsSubscribe *bool    `json:"isSubscribe,omitempty"`
}

// FormatStreamView builds the view of s for the given format.
func FormatStreamView(s *Stream, format Format) *StreamView {
	if s == nil {
		return nil
	}
	v := &StreamView{
		StreamID:      s.ID,
		Title:         s.Title,
		AppInstance:   s.AppInstance,
		UserID:        s.Owner,
		Live:          s.Live,
		Duration:      s.Duration,
		TotalViewers:  s.TotalViewers,
		TotalStickers: s.TotalStickers,
		CreatedAt:     s.CreatedAt,
		EndedAt:       s.EndedAt,
	}
	if format == FormatView {
		v.Streamer = &StreamerView{UserID: s.Owner}
		if s.Streamer != nil {
			v.Streamer.Username = s.Streamer.Username
			v.Streamer.Subscribers = append([]UserID(nil), s.Streamer.Subscribers...)
		}
	}
	return v
}

// MarkSubscription sets the subscription flag for viewer and drops the
// subscriber list.
func (v *StreamView) MarkSubscription(viewer UserID) {
	if v.Streamer == nil {
		return
	}
	subscribed := false
	for _, id := range v.Streamer.Subscribers {
		if id == viewer {
			subscribed = true
			break
		}
	}
	v.Streamer.IsSubscribe = &subscribed
	v.Streamer.Subscribers = nil
}

// StripSubscribers removes the subscriber list from the view.
func (v *StreamView) StripSubscribers() {
	if v.Streamer != nil {
		v.Streamer.Subscribers = nil
	}
}
