package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"devnewz/internal/logger"
	"devnewz/internal/metrics"
	"devnewz/internal/models"
	"devnewz/internal/repository"
	"devnewz/internal/utils"

	"github.com/rs/zerolog"
)

const (
	DefaultFeedPageSize = 30
	feedCachePrefix     = "feed:"
)

type RankingOptions struct {
	PageSize int
	CacheTTL time.Duration
}

// RankingEngine serves the velocity-ordered feeds.
type RankingEngine struct {
	store    repository.Store
	ledger   *VoteLedger
	cache    utils.FeedCache
	pageSize int
	cacheTTL time.Duration
	worker   *RerankWorker
	now      func() time.Time
	log      zerolog.Logger
}

func NewRankingEngine(store repository.Store, ledger *VoteLedger, cache utils.FeedCache, opts RankingOptions) *RankingEngine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultFeedPageSize
	}
	return &RankingEngine{
		store:    store,
		ledger:   ledger,
		cache:    cache,
		pageSize: opts.PageSize,
		cacheTTL: opts.CacheTTL,
		now:      time.Now,
		log:      logger.WithComponent("ranking"),
	}
}

// SetWorker enables stored-velocity maintenance for the global feed.
func (r *RankingEngine) SetWorker(w *RerankWorker) {
	r.worker = w
	w.afterBatch = func(ctx context.Context) { r.invalidate(ctx, feedCachePrefix+"top:") }
}

func (r *RankingEngine) PageSize() int { return r.pageSize }

// Feed is the default front page: one recency page, reordered by velocity.
// Ranking is only correct within that page.
func (r *RankingEngine) Feed(ctx context.Context, page int, viewerID uint) (*FeedPage, error) {
	return r.page(ctx, "velocity", page, viewerID, func(p int) (*FeedPage, error) {
		fp, err := r.load(ctx, repository.PostQuery{OrderBy: repository.OrderRecency, Page: p, PageSize: r.pageSize}, p)
		if err != nil {
			return nil, err
		}
		sortByVelocity(fp.Items)
		return fp, nil
	})
}

// Top orders the whole corpus by the velocity stored by the rerank worker.
func (r *RankingEngine) Top(ctx context.Context, page int, viewerID uint) (*FeedPage, error) {
	return r.page(ctx, "top", page, viewerID, func(p int) (*FeedPage, error) {
		return r.load(ctx, repository.PostQuery{OrderBy: repository.OrderVelocity, Page: p, PageSize: r.pageSize}, p)
	})
}

func (r *RankingEngine) page(ctx context.Context, name string, page int, viewerID uint, build func(int) (*FeedPage, error)) (*FeedPage, error) {
	if page < 1 {
		page = 1
	}
	key := fmt.Sprintf("%s%s:%d", feedCachePrefix, name, page)

	var fp FeedPage
	hit := false
	if r.cache != nil {
		var err error
		hit, err = r.cache.Get(ctx, key, &fp)
		if err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("feed cache read failed")
			hit = false
		}
	}
	if !hit {
		built, err := build(page)
		if err != nil {
			return nil, err
		}
		fp = *built
		if r.cache != nil && r.cacheTTL > 0 {
			if err := r.cache.Set(ctx, key, fp, r.cacheTTL); err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("feed cache write failed")
			}
		}
	}

	// 共享部分走缓存，用户投票状态单独注入
	if err := annotate(ctx, r.ledger, fp.Items, viewerID); err != nil {
		return nil, err
	}
	return &fp, nil
}

func (r *RankingEngine) load(ctx context.Context, q repository.PostQuery, page int) (*FeedPage, error) {
	posts, total, err := r.store.Posts().List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	items, err := summarize(ctx, r.store, posts, r.now())
	if err != nil {
		return nil, err
	}
	return &FeedPage{
		Items: items,
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  utils.TotalPages(total, q.PageSize),
			TotalNews:   total,
			PageSize:    q.PageSize,
		},
	}, nil
}

// PostVoted drops cached feeds and queues the post for rescoring.
func (r *RankingEngine) PostVoted(ctx context.Context, postID uint) {
	if r.worker != nil {
		r.worker.Schedule(postID)
	}
	r.invalidate(ctx, feedCachePrefix)
}

// PostsChanged is called after a submission, edit or delete.
func (r *RankingEngine) PostsChanged(ctx context.Context) {
	r.invalidate(ctx, feedCachePrefix)
}

func (r *RankingEngine) invalidate(ctx context.Context, prefix string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, prefix); err != nil {
		r.log.Warn().Err(err).Str("prefix", prefix).Msg("feed cache invalidation failed")
	}
}

// RerankWorker 异步计算并写回帖子的 velocity，供全局排序使用
type RerankWorker struct {
	store      repository.Store
	queue      chan uint // 待更新的帖子 ID 队列
	pending    map[uint]bool
	mu         sync.Mutex
	interval   time.Duration
	batchSize  int
	flushEvery time.Duration
	now        func() time.Time
	afterBatch func(ctx context.Context)
	log        zerolog.Logger
}

func NewRerankWorker(store repository.Store, interval time.Duration) *RerankWorker {
	return &RerankWorker{
		store:      store,
		queue:      make(chan uint, 1000), // 缓冲队列，防止阻塞
		pending:    make(map[uint]bool),
		interval:   interval,
		batchSize:  50,
		flushEvery: 500 * time.Millisecond,
		now:        time.Now,
		log:        logger.WithComponent("rerank"),
	}
}

// Schedule 将帖子加入更新队列（异步），已在队列中的帖子直接跳过
func (w *RerankWorker) Schedule(postID uint) {
	w.mu.Lock()
	if w.pending[postID] {
		w.mu.Unlock()
		return
	}
	w.pending[postID] = true
	w.mu.Unlock()

	select {
	case w.queue <- postID:
	default:
		w.mu.Lock()
		delete(w.pending, postID)
		w.mu.Unlock()
		w.log.Warn().Uint("post_id", postID).Msg("rerank queue full, skipping")
	}
}

// Run processes the queue in batches and refreshes hot posts every interval
// until ctx is cancelled.
func (w *RerankWorker) Run(ctx context.Context) {
	batch := make([]uint, 0, w.batchSize)
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	var refresh <-chan time.Time
	if w.interval > 0 {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		refresh = t.C
	}

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				w.processBatch(context.WithoutCancel(ctx), batch)
			}
			return
		case postID := <-w.queue:
			batch = append(batch, postID)
			if len(batch) >= w.batchSize {
				w.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-refresh:
			if _, err := w.RefreshHot(ctx); err != nil {
				w.log.Error().Err(err).Msg("scheduled rerank failed")
			}
		}
	}
}

func (w *RerankWorker) processBatch(ctx context.Context, postIDs []uint) {
	metrics.RerankBatchSize.Observe(float64(len(postIDs)))
	if err := w.rescore(ctx, postIDs); err != nil {
		w.log.Error().Err(err).Int("batch", len(postIDs)).Msg("rerank batch failed")
	}

	w.mu.Lock()
	for _, id := range postIDs {
		delete(w.pending, id)
	}
	w.mu.Unlock()

	if w.afterBatch != nil {
		w.afterBatch(ctx)
	}
}

func (w *RerankWorker) rescore(ctx context.Context, postIDs []uint) error {
	if len(postIDs) == 0 {
		return nil
	}
	posts, _, err := w.store.Posts().List(ctx, repository.PostQuery{IDs: postIDs})
	if err != nil {
		return err
	}
	counts, err := w.store.Votes().Counts(ctx, models.TargetPost, postIDs)
	if err != nil {
		return err
	}
	now := w.now()
	for _, p := range posts {
		c := counts[p.ID]
		v := utils.Velocity(c.Upvotes, c.Downvotes, p.CreatedAt, now)
		if err := w.store.Posts().UpdateVelocity(ctx, p.ID, v); err != nil {
			return fmt.Errorf("update velocity of post %d: %w", p.ID, err)
		}
	}
	return nil
}

// RefreshHot rescores posts from the last 7 days plus the current top page,
// so decayed scores of older leaders drop as well.
func (w *RerankWorker) RefreshHot(ctx context.Context) (int, error) {
	ids, err := w.store.Posts().RecentIDs(ctx, w.now().AddDate(0, 0, -7))
	if err != nil {
		return 0, err
	}
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	top, _, err := w.store.Posts().List(ctx, repository.PostQuery{OrderBy: repository.OrderVelocity, Page: 1, PageSize: DefaultFeedPageSize})
	if err != nil {
		return 0, err
	}
	for _, p := range top {
		if !seen[p.ID] {
			ids = append(ids, p.ID)
		}
	}

	if err := w.rescoreAll(ctx, ids); err != nil {
		return 0, err
	}
	if w.afterBatch != nil {
		w.afterBatch(ctx)
	}
	w.log.Info().Int("posts", len(ids)).Msg("hot posts rescored")
	return len(ids), nil
}

// RefreshAll rescores every post.
func (w *RerankWorker) RefreshAll(ctx context.Context) (int, error) {
	ids, err := w.store.Posts().RecentIDs(ctx, time.Time{})
	if err != nil {
		return 0, err
	}
	if err := w.rescoreAll(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (w *RerankWorker) rescoreAll(ctx context.Context, ids []uint) error {
	for start := 0; start < len(ids); start += w.batchSize {
		end := start + w.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		metrics.RerankBatchSize.Observe(float64(end - start))
		if err := w.rescore(ctx, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
