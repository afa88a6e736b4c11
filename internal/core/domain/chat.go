package domain

import "time"

// ChatRoom is the ephemeral channel bound to a live stream. AppInstance is
// its identity.
type ChatRoom struct {
	AppInstance string    `json:"appInstance"`
	StreamID    StreamID  `json:"streamId"`
	CreatedAt   time.Time `json:"createdAt"`
	Members     int       `json:"members"`
}
