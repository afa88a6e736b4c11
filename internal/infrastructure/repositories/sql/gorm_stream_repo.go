package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/pkg/tracing"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sortColumns = map[domain.StreamSort]string{
	domain.SortByTime:    "created_at",
	domain.SortByTitle:   "title",
	domain.SortByViewers: "total_viewers",
}

// GormStreamRepository implements StreamRepository using GORM.
type GormStreamRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStreamRepository(db *gorm.DB) ports.StreamRepository {
	return &GormStreamRepository{db: db, now: time.Now}
}

func (r *GormStreamRepository) Create(ctx context.Context, owner domain.UserID, attrs domain.StreamAttributes) (*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "create", "streams")
	defer span.End()

	if err := userExists(r.db.WithContext(ctx), owner); err != nil {
		return nil, err
	}

	stream := domain.NewStream(domain.StreamID(uuid.New().String()), owner, attrs, r.now())
	if err := stream.Validate(); err != nil {
		return nil, err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkAppInstance(tx, stream); err != nil {
			return err
		}
		if err := tx.Create(StreamToModel(stream)).Error; err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return r.withStreamer(ctx, stream)
}

func (r *GormStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "get", "streams")
	defer span.End()

	stream, err := findStream(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return r.withStreamer(ctx, stream)
}

func (r *GormStreamRepository) List(ctx context.Context, filters domain.StreamFilters) ([]*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "list", "streams")
	defer span.End()

	filters = filters.Normalize()

	query := r.db.WithContext(ctx).Model(&StreamModel{})
	switch filters.State {
	case domain.StreamStateLive:
		query = query.Where("live = ?", true)
	case domain.StreamStateDone:
		query = query.Where("live = ?", false)
	}

	query = query.Order(clause.OrderByColumn{
		Column: clause.Column{Name: sortColumns[filters.Sort]},
		Desc:   filters.Order == domain.OrderDesc,
	}).Order("id ASC")

	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var models []StreamModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	return r.toDomain(ctx, models)
}

func (r *GormStreamRepository) ListFromSubscriptions(ctx context.Context, subscriber domain.UserID) ([]*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "list_subscribed", "streams")
	defer span.End()

	db := r.db.WithContext(ctx)
	if err := userExists(db, subscriber); err != nil {
		return nil, err
	}

	streamers := db.Model(&SubscriptionModel{}).
		Select("streamer_id").
		Where("subscriber_id = ?", string(subscriber))

	var models []StreamModel
	err := db.Where("owner_id IN (?)", streamers).
		Order("created_at DESC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed streams: %w", err)
	}
	return r.toDomain(ctx, models)
}

func (r *GormStreamRepository) Update(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "update", "streams")
	defer span.End()

	var updated *domain.Stream

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stream, err := findStream(tx, id)
		if err != nil {
			return err
		}
		if err := updates.ApplyTo(stream, r.now()); err != nil {
			return err
		}
		if err := stream.Validate(); err != nil {
			return err
		}
		if err := checkAppInstance(tx, stream); err != nil {
			return err
		}
		if err := tx.Save(StreamToModel(stream)).Error; err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
		updated = stream
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return r.withStreamer(ctx, updated)
}

func (r *GormStreamRepository) UpdateTotalViews(ctx context.Context, id domain.StreamID) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "update_total_views", "streams")
	defer span.End()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findStream(tx, id); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&StreamViewModel{}).Where("stream_id = ?", string(id)).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count viewers: %w", err)
		}

		return tx.Model(&StreamModel{}).
			Where("id = ?", string(id)).
			Update("total_viewers", count).Error
	})
}

func (r *GormStreamRepository) RecordView(ctx context.Context, id domain.StreamID, viewer domain.UserID) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "record_view", "stream_views")
	defer span.End()

	if strings.TrimSpace(string(viewer)) == "" {
		return &domain.InvalidFieldError{Field: "userId", Message: "userId is required"}
	}

	db := r.db.WithContext(ctx)
	if _, err := findStream(db, id); err != nil {
		return err
	}

	view := &StreamViewModel{StreamID: string(id), ViewerID: string(viewer)}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(view).Error; err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	return nil
}

func (r *GormStreamRepository) Delete(ctx context.Context, id domain.StreamID) (bool, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, r.db.Dialector.Name(), "delete", "streams")
	defer span.End()

	var deleted bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stream_id = ?", string(id)).Delete(&StreamViewModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", string(id)).Delete(&StreamModel{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete stream: %w", err)
	}
	return deleted, nil
}

func (r *GormStreamRepository) withStreamer(ctx context.Context, stream *domain.Stream) (*domain.Stream, error) {
	streams, err := attachStreamers(r.db.WithContext(ctx), []*domain.Stream{stream})
	if err != nil {
		return nil, err
	}
	return streams[0], nil
}

func (r *GormStreamRepository) toDomain(ctx context.Context, models []StreamModel) ([]*domain.Stream, error) {
	streams := make([]*domain.Stream, len(models))
	for i := range models {
		streams[i] = models[i].ToDomain()
	}
	return attachStreamers(r.db.WithContext(ctx), streams)
}

func findStream(db *gorm.DB, id domain.StreamID) (*domain.Stream, error) {
	var model StreamModel
	if err := db.First(&model, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStreamNotFound
		}
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	return model.ToDomain(), nil
}

// checkAppInstance rejects a live st when another live stream already uses
// its appInstance.
func checkAppInstance(tx *gorm.DB, st *domain.Stream) error {
	if !st.Live {
		return nil
	}
	var count int64
	err := tx.Model(&StreamModel{}).
		Where("app_instance = ? AND live = ? AND id <> ?", st.AppInstance, true, string(st.ID)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check appInstance: %w", err)
	}
	if count > 0 {
		return domain.NewAppInstanceInUseError(st.AppInstance)
	}
	return nil
}

// attachStreamers loads the owners of streams, with their subscribers, in
// two queries.
func attachStreamers(db *gorm.DB, streams []*domain.Stream) ([]*domain.Stream, error) {
	if len(streams) == 0 {
		return streams, nil
	}

	ids := make([]string, 0, len(streams))
	seen := make(map[domain.UserID]bool)
	for _, st := range streams {
		if !seen[st.Owner] {
			seen[st.Owner] = true
			ids = append(ids, string(st.Owner))
		}
	}

	users, err := loadUsers(db, ids)
	if err != nil {
		return nil, err
	}
	for _, st := range streams {
		if u, ok := users[st.Owner]; ok {
			cp := *u
			cp.Subscribers = append([]domain.UserID(nil), u.Subscribers...)
			st.Streamer = &cp
		}
	}
	return streams, nil
}
