package services

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// evictingRepository drops the cached profile of every account it writes, so
// logins, verifications and admin actions never leave a stale profile behind.
type evictingRepository struct {
	AccountRepository
	cache  ProfileCache
	logger *slog.Logger
}

// WithProfileEviction wraps repo so each successful Save or Create evicts the
// account's cached profile. Eviction failures are logged; the TTL bounds them.
func WithProfileEviction(repo AccountRepository, cache ProfileCache, logger *slog.Logger) AccountRepository {
	return &evictingRepository{AccountRepository: repo, cache: cache, logger: logger}
}

func (r *evictingRepository) Create(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	created, err := r.AccountRepository.Create(ctx, rec)
	if err == nil {
		r.evict(ctx, created.ID)
	}
	return created, err
}

func (r *evictingRepository) Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	saved, err := r.AccountRepository.Save(ctx, rec)
	if err == nil {
		r.evict(ctx, saved.ID)
	}
	return saved, err
}

func (r *evictingRepository) evict(ctx context.Context, id int64) {
	if err := r.cache.Delete(ctx, id); err != nil {
		r.logger.Warn("failed to evict cached profile",
			slog.String("user_id", strconv.FormatInt(id, 10)),
			slog.Any("error", err),
		)
	}
}
