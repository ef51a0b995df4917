package main

import (
	"context"
	"fmt"

	"devnewz/internal/config"
	"devnewz/internal/db"
	"devnewz/internal/logger"
	"devnewz/internal/middleware"
	"devnewz/internal/repository"
	"devnewz/internal/router"
	"devnewz/internal/services"
	"devnewz/internal/utils"

	"gorm.io/gorm"
)

const lruFeedEntries = 256

// app holds everything a command needs, wired from config.
type app struct {
	cfg     *config.Config
	conn    *gorm.DB // nil with the memory store
	store   repository.Store
	cache   utils.FeedCache
	closers []func() error

	karma    *services.KarmaAccount
	ledger   *services.VoteLedger
	comments *services.CommentTree
	ranking  *services.RankingEngine
	posts    *services.PostService
	worker   *services.RerankWorker
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, *gorm.DB, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Log.Warn().Msg("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewGormStore(conn), conn, nil
}

func openCache(ctx context.Context, cfg *config.Config) (utils.FeedCache, func() error, error) {
	if cfg.RedisURL != "" {
		rc, err := utils.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		logger.Log.Info().Msg("feed cache: redis")
		return rc, rc.Close, nil
	}
	lc, err := utils.NewLRUCache(lruFeedEntries)
	if err != nil {
		return nil, nil, err
	}
	logger.Log.Info().Int("entries", lruFeedEntries).Msg("feed cache: in-process LRU")
	return lc, nil, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, conn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, conn: conn, store: store}
	if conn != nil {
		a.closers = append(a.closers, func() error { return db.Close(conn) })
		if err := db.Migrate(conn); err != nil {
			a.Close()
			return nil, err
		}
	}

	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = cache
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	a.karma = services.NewKarmaAccount(store, cfg.DownvoteKarma)
	a.ledger = services.NewVoteLedger(store, a.karma, services.LedgerOptions{
		Policy:      services.KarmaPolicy(cfg.KarmaPolicy),
		ChargeVoter: cfg.ChargeVoter,
	})
	a.comments = services.NewCommentTree(store, a.ledger, cfg.MaxCommentDepth)
	a.ranking = services.NewRankingEngine(store, a.ledger, cache, services.RankingOptions{
		PageSize: cfg.FeedPageSize,
		CacheTTL: cfg.FeedCacheTTL,
	})
	a.worker = services.NewRerankWorker(store, cfg.RerankInterval)
	a.ranking.SetWorker(a.worker)
	a.ledger.SetPostVoteListener(a.ranking)
	a.posts = services.NewPostService(store, a.ledger, a.ranking, services.PostOptions{
		SiteName:    cfg.SiteName,
		NewestLimit: cfg.NewestLimit,
	})
	return a, nil
}

func (a *app) routerDeps(limiter *middleware.VoteLimiter) router.Deps {
	deps := router.Deps{
		Store:       a.store,
		Ledger:      a.ledger,
		Karma:       a.karma,
		Comments:    a.comments,
		Posts:       a.posts,
		Ranking:     a.ranking,
		VoteLimiter: limiter,
	}
	if a.conn != nil {
		conn := a.conn
		deps.Health = func(ctx context.Context) error { return db.Health(ctx, conn) }
	}
	return deps
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Log.Warn().Err(err).Msg("close failed")
		}
	}
}
