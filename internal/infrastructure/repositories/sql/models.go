package sql

import (
	"time"

	"livestream/internal/core/domain"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Username  string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	Email     string    `gorm:"type:varchar(254)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// SubscriptionModel records that SubscriberID follows StreamerID.
type SubscriptionModel struct {
	StreamerID   string    `gorm:"type:varchar(36);primaryKey"`
	SubscriberID string    `gorm:"type:varchar(36);primaryKey;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// StreamModel is the GORM model for streams table.
type StreamModel struct {
	ID            string `gorm:"type:varchar(36);primaryKey"`
	Title         string `gorm:"type:varchar(100);not null"`
	AppInstance   string `gorm:"type:varchar(100);index;not null"`
	OwnerID       string `gorm:"type:varchar(36);index;not null"`
	Live          bool   `gorm:"index;not null"`
	Duration      string `gorm:"type:varchar(32)"`
	TotalViewers  int    `gorm:"default:0"`
	TotalStickers int    `gorm:"default:0"`
	CreatedAt     time.Time
	EndedAt       *time.Time
}

func (StreamModel) TableName() string {
	return "streams"
}

// StreamViewModel records one distinct viewer of a stream.
type StreamViewModel struct {
	StreamID  string    `gorm:"type:varchar(36);primaryKey"`
	ViewerID  string    `gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (StreamViewModel) TableName() string {
	return "stream_views"
}

func (m *StreamModel) ToDomain() *domain.Stream {
	return &domain.Stream{
		ID:            domain.StreamID(m.ID),
		Title:         m.Title,
		AppInstance:   m.AppInstance,
		Owner:         domain.UserID(m.OwnerID),
		Live:          m.Live,
		Duration:      m.Duration,
		TotalViewers:  m.TotalViewers,
		TotalStickers: m.TotalStickers,
		CreatedAt:     m.CreatedAt,
		EndedAt:       m.EndedAt,
	}
}

func StreamToModel(s *domain.Stream) *StreamModel {
	return &StreamModel{
		ID:            string(s.ID),
		Title:         s.Title,
		AppInstance:   s.AppInstance,
		OwnerID:       string(s.Owner),
		Live:          s.Live,
		Duration:      s.Duration,
		TotalViewers:  s.TotalViewers,
		TotalStickers: s.TotalStickers,
		CreatedAt:     s.CreatedAt,
		EndedAt:       s.EndedAt,
	}
}

func (m *UserModel) ToDomain() *domain.User {
	return &domain.User{
		ID:        domain.UserID(m.ID),
		Username:  m.Username,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
	}
}
