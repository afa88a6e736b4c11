package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/pkg/tracing"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) ports.UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, attrs domain.UserAttributes) (*domain.User, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "create", "users")
	defer span.End()

	attrs.Username = strings.TrimSpace(attrs.Username)
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	model := &UserModel{
		ID:       uuid.New().String(),
		Username: attrs.Username,
		Email:    attrs.Email,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&UserModel{}).Where("username = ?", model.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrUserExists
		}
		return tx.Create(model).Error
	})
	switch {
	case errors.Is(err, domain.ErrUserExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, domain.ErrUserExists
	case err != nil:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return model.ToDomain(), nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "get", "users")
	defer span.End()

	users, err := loadUsers(r.db.WithContext(ctx), []string{string(id)})
	if err != nil {
		return nil, err
	}
	u, ok := users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *GormUserRepository) AddSubscriber(ctx context.Context, streamer, subscriber domain.UserID) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "add_subscriber", "users")
	defer span.End()

	db := r.db.WithContext(ctx)
	if err := userExists(db, streamer); err != nil {
		return err
	}
	if err := userExists(db, subscriber); err != nil {
		return err
	}

	sub := &SubscriptionModel{StreamerID: string(streamer), SubscriberID: string(subscriber)}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

func userExists(db *gorm.DB, id domain.UserID) error {
	var count int64
	if err := db.Model(&UserModel{}).Where("id = ?", string(id)).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if count == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// loadUsers returns the users with the given ids keyed by id, subscribers
// included. Missing ids are absent from the map.
func loadUsers(db *gorm.DB, ids []string) (map[domain.UserID]*domain.User, error) {
	var models []UserModel
	if err := db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	var subs []SubscriptionModel
	if err := db.Where("streamer_id IN ?", ids).Order("subscriber_id ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	users := make(map[domain.UserID]*domain.User, len(models))
	for i := range models {
		u := models[i].ToDomain()
		users[u.ID] = u
	}
	for _, s := range subs {
		if u, ok := users[domain.UserID(s.StreamerID)]; ok {
			u.Subscribers = append(u.Subscribers, domain.UserID(s.SubscriberID))
		}
	}
	return users, nil
}
