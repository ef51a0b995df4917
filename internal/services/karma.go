package services

import (
	"context"
	"fmt"

	"devnewz/internal/logger"
	"devnewz/internal/metrics"
	"devnewz/internal/models"
	"devnewz/internal/repository"

	"github.com/rs/zerolog"
)

// 被投票方获得的 karma
const (
	KarmaReceivePostUpvote      = 2
	KarmaReceivePostDownvote    = -2
	KarmaReceiveCommentUpvote   = 1
	KarmaReceiveCommentDownvote = -1
)

// 投票方自身的 karma，仅在 ChargeVoter 打开时生效
const (
	KarmaPostUpvote      = 1
	KarmaPostDownvote    = -1
	KarmaCommentUpvote   = 1
	KarmaCommentDownvote = -1
)

const DefaultDownvoteKarma = 500

// KarmaAccount owns the per-user reputation counter. The counter only moves
// through ApplyDelta, which the storage layer executes as an atomic increment.
type KarmaAccount struct {
	store             repository.Store
	downvoteThreshold int
	log               zerolog.Logger
}

func NewKarmaAccount(store repository.Store, downvoteThreshold int) *KarmaAccount {
	if downvoteThreshold <= 0 {
		downvoteThreshold = DefaultDownvoteKarma
	}
	return &KarmaAccount{
		store:             store,
		downvoteThreshold: downvoteThreshold,
		log:               logger.WithComponent("karma"),
	}
}

// withStore binds the account to a transaction.
func (k *KarmaAccount) withStore(s repository.Store) *KarmaAccount {
	cp := *k
	cp.store = s
	return &cp
}

// ApplyDelta adds delta to the user's karma and records why. No floor or
// ceiling is enforced.
func (k *KarmaAccount) ApplyDelta(ctx context.Context, userID uint, delta int, reason string) error {
	if delta == 0 {
		return nil
	}
	if err := k.store.Users().AddKarma(ctx, userID, delta, reason); err != nil {
		metrics.KarmaUpdatesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("apply karma %+d to user %d: %w", delta, userID, notFound(err, ErrNotFound))
	}
	metrics.KarmaUpdatesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (k *KarmaAccount) Karma(ctx context.Context, userID uint) (int, error) {
	u, err := k.store.Users().Get(ctx, userID)
	if err != nil {
		return 0, notFound(err, ErrNotFound)
	}
	return u.Karma, nil
}

func (k *KarmaAccount) CanDownvote(ctx context.Context, userID uint) (bool, error) {
	karma, err := k.Karma(ctx, userID)
	if err != nil {
		return false, err
	}
	return karma >= k.downvoteThreshold, nil
}

func (k *KarmaAccount) DownvoteThreshold() int {
	return k.downvoteThreshold
}

// History returns the newest karma changes first.
func (k *KarmaAccount) History(ctx context.Context, userID uint, limit int) ([]models.KarmaLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return k.store.Users().KarmaLogs(ctx, userID, limit)
}
