package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
)

type InviteExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository inviteExpiryRepo
}

type inviteExpiryRepo interface {
	ExpirePendingBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewInviteExpiryJob sweeps pending invites past their deadline. Token
// validation already fails closed on expiry; the sweep tombstones the rows
// so the roster stops listing them and the email can be re-invited.
func NewInviteExpiryJob(params InviteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("memberships repository required")
	}
	return &inviteExpiryJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		now:  time.Now,
	}, nil
}

type inviteExpiryJob struct {
	logg *logger.Logger
	db   txRunner
	repo inviteExpiryRepo
	now  func() time.Time
}

func (j *inviteExpiryJob) Name() string { return "invite-expiry" }

func (j *inviteExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	var swept int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.ExpirePendingBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		swept = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("invite expiry: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"invites_swept": swept,
	})
	j.logg.Info(logCtx, "invite expiry sweep complete")
	return nil
}
