package domain

import "time"

type UserID string

// User owns streams and can be subscribed to by other users.
type User struct {
	ID          UserID    `json:"userId"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Subscribers []UserID  `json:"subscribers,omitempty"`
}

// HasSubscriber reports whether id is among the user's subscribers.
func (u *User) HasSubscriber(id UserID) bool {
	if u == nil {
		return false
	}
	for _, s := range u.Subscribers {
		if s == id {
			return true
		}
	}
	return false
}

type UserAttributes struct {
	Username string `json:"username" validate:"notblank,min=3,max=50,username"`
	Email    string `json:"email" validate:"omitempty,max=254,email"`
}
