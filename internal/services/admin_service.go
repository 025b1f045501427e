package services

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/repo"
)

// AdminService performs administrative maintenance.
type AdminService struct {
	DB        *gorm.DB
	Referrals *ReferralService // optional; its code cache is purged
	Hints     CooldownHints    // optional; markers are purged
}

// Reset deletes every account and everything that references one, then
// drops process caches. Cache purge failures are logged and ignored.
func (s *AdminService) Reset(ctx context.Context) error {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Reset")
	defer span.End()

	if err := repo.ResetAll(ctx, s.DB); err != nil {
		return err
	}
	if s.Referrals != nil {
		s.Referrals.PurgeCache()
	}
	if s.Hints != nil {
		if err := s.Hints.Purge(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("cooldown hint purge failed")
		}
	}
	zerolog.Ctx(ctx).Info().Msg("store reset")
	return nil
}
