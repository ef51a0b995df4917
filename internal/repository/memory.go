package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devnewz/internal/models"
)

type voteKey struct {
	userID   uint
	kind     models.TargetKind
	targetID uint
}

type memData struct {
	mu sync.Mutex

	users     map[uint]models.User
	posts     map[uint]models.Post
	comments  map[uint]models.Comment
	votes     map[voteKey]models.Vote
	karmaLogs []models.KarmaLog

	userSeq, postSeq, commentSeq, voteSeq, logSeq uint
}

func (d *memData) clone() *memData {
	c := &memData{
		users:      make(map[uint]models.User, len(d.users)),
		posts:      make(map[uint]models.Post, len(d.posts)),
		comments:   make(map[uint]models.Comment, len(d.comments)),
		votes:      make(map[voteKey]models.Vote, len(d.votes)),
		karmaLogs:  append([]models.KarmaLog(nil), d.karmaLogs...),
		userSeq:    d.userSeq,
		postSeq:    d.postSeq,
		commentSeq: d.commentSeq,
		voteSeq:    d.voteSeq,
		logSeq:     d.logSeq,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.posts {
		c.posts[k] = v
	}
	for k, v := range d.comments {
		c.comments[k] = v
	}
	for k, v := range d.votes {
		c.votes[k] = v
	}
	return c
}

func (d *memData) restore(from *memData) {
	d.users, d.posts, d.comments, d.votes, d.karmaLogs = from.users, from.posts, from.comments, from.votes, from.karmaLogs
	d.userSeq, d.postSeq, d.commentSeq, d.voteSeq, d.logSeq = from.userSeq, from.postSeq, from.commentSeq, from.voteSeq, from.logSeq
}

// MemoryStore keeps everything in process memory. It backs STORE_DRIVER=memory
// and the service tests. A transaction holds the store lock for its whole
// duration and restores a snapshot when fn fails.
type MemoryStore struct {
	d    *memData
	inTx bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{d: &memData{
		users:    map[uint]models.User{},
		posts:    map[uint]models.Post{},
		comments: map[uint]models.Comment{},
		votes:    map[voteKey]models.Vote{},
	}}
}

func (s *MemoryStore) Users() UserRepo       { return &memUsers{s} }
func (s *MemoryStore) Posts() PostRepo       { return &memPosts{s} }
func (s *MemoryStore) Comments() CommentRepo { return &memComments{s} }
func (s *MemoryStore) Votes() VoteRepo       { return &memVotes{s} }

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	unlock := s.lock()
	defer unlock()

	snapshot := s.d.clone()
	if err := fn(&MemoryStore{d: s.d, inTx: true}); err != nil {
		s.d.restore(snapshot)
		return err
	}
	return nil
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.d.mu.Lock()
	return s.d.mu.Unlock
}

// withUser attaches the author the way gorm's Preload("User") does.
func (d *memData) withUser(uid uint) models.User {
	return d.users[uid]
}

// Rows never share pointer fields with callers.
func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneUint(v *uint) *uint {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func detachPost(p models.Post) models.Post {
	p.URL = cloneString(p.URL)
	p.Content = cloneString(p.Content)
	return p
}

func detachComment(c models.Comment) models.Comment {
	c.ParentCommentID = cloneUint(c.ParentCommentID)
	c.Parent = nil
	return c
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// ---- users ----

type memUsers struct{ s *MemoryStore }

func (r *memUsers) Create(ctx context.Context, user *models.User) error {
	defer r.s.lock()()
	d := r.s.d
	for _, u := range d.users {
		if u.Username == user.Username {
			return fmt.Errorf("username %q already taken", user.Username)
		}
	}
	d.userSeq++
	user.ID = d.userSeq
	if user.Role == "" {
		user.Role = "user"
	}
	user.CreatedAt = stamp(user.CreatedAt)
	user.UpdatedAt = user.CreatedAt
	d.users[user.ID] = *user
	return nil
}

func (r *memUsers) Get(ctx context.Context, id uint) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUsers) AddKarma(ctx context.Context, userID uint, delta int, reason string) error {
	defer r.s.lock()()
	d := r.s.d
	u, ok := d.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Karma += delta
	d.users[userID] = u
	d.logSeq++
	d.karmaLogs = append(d.karmaLogs, models.KarmaLog{
		ID:        d.logSeq,
		UserID:    userID,
		Amount:    delta,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (r *memUsers) KarmaLogs(ctx context.Context, userID uint, limit int) ([]models.KarmaLog, error) {
	defer r.s.lock()()
	var logs []models.KarmaLog
	for i := len(r.s.d.karmaLogs) - 1; i >= 0; i-- {
		l := r.s.d.karmaLogs[i]
		if l.UserID != userID {
			continue
		}
		logs = append(logs, l)
		if limit > 0 && len(logs) == limit {
			break
		}
	}
	return logs, nil
}

// ---- posts ----

type memPosts struct{ s *MemoryStore }

func (r *memPosts) Create(ctx context.Context, post *models.Post) error {
	defer r.s.lock()()
	d := r.s.d
	if _, ok := d.users[post.UserID]; !ok {
		return fmt.Errorf("post references missing user %d", post.UserID)
	}
	d.postSeq++
	post.ID = d.postSeq
	if post.Type == "" {
		post.Type = models.PostTypeGeneral
	}
	post.CreatedAt = stamp(post.CreatedAt)
	post.UpdatedAt = post.CreatedAt
	stored := detachPost(*post)
	stored.User = models.User{}
	d.posts[post.ID] = stored
	return nil
}

func (r *memPosts) Get(ctx context.Context, id uint) (*models.Post, error) {
	defer r.s.lock()()
	p, ok := r.s.d.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = detachPost(p)
	p.User = r.s.d.withUser(p.UserID)
	return &p, nil
}

func (r *memPosts) Update(ctx context.Context, post *models.Post) error {
	defer r.s.lock()()
	p, ok := r.s.d.posts[post.ID]
	if !ok {
		return ErrNotFound
	}
	p.Title, p.URL, p.Content, p.Type = post.Title, cloneString(post.URL), cloneString(post.Content), post.Type
	p.UpdatedAt = time.Now().UTC()
	r.s.d.posts[post.ID] = p
	return nil
}

func (r *memPosts) Delete(ctx context.Context, id uint) error {
	defer r.s.lock()()
	d := r.s.d
	if _, ok := d.posts[id]; !ok {
		return ErrNotFound
	}
	for cid, c := range d.comments {
		if c.PostID == id {
			d.deleteVotesOn(models.TargetComment, cid)
			delete(d.comments, cid)
		}
	}
	d.deleteVotesOn(models.TargetPost, id)
	delete(d.posts, id)
	return nil
}

func (d *memData) deleteVotesOn(kind models.TargetKind, targetID uint) {
	for k := range d.votes {
		if k.kind == kind && k.targetID == targetID {
			delete(d.votes, k)
		}
	}
}

func (r *memPosts) List(ctx context.Context, q PostQuery) ([]models.Post, int64, error) {
	defer r.s.lock()()
	d := r.s.d

	var idSet map[uint]bool
	if q.IDs != nil {
		idSet = make(map[uint]bool, len(q.IDs))
		for _, id := range q.IDs {
			idSet[id] = true
		}
	}

	var matched []models.Post
	for _, p := range d.posts {
		if q.UserID != 0 && p.UserID != q.UserID {
			continue
		}
		if q.Type != "" && p.Type != q.Type {
			continue
		}
		if !q.CreatedFrom.IsZero() && p.CreatedAt.Before(q.CreatedFrom) {
			continue
		}
		if !q.CreatedTo.IsZero() && !p.CreatedAt.Before(q.CreatedTo) {
			continue
		}
		if idSet != nil && !idSet[p.ID] {
			continue
		}
		p = detachPost(p)
		p.User = d.withUser(p.UserID)
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.OrderBy == OrderVelocity && a.Velocity != b.Velocity {
			return a.Velocity > b.Velocity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := int64(len(matched))
	if q.Page > 0 && q.PageSize > 0 {
		start := (q.Page - 1) * q.PageSize
		if start >= len(matched) {
			return []models.Post{}, total, nil
		}
		end := start + q.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	if matched == nil {
		matched = []models.Post{}
	}
	return matched, total, nil
}

func (r *memPosts) UpdateVelocity(ctx context.Context, id uint, velocity float64) error {
	defer r.s.lock()()
	p, ok := r.s.d.posts[id]
	if !ok {
		return nil
	}
	p.Velocity = velocity
	r.s.d.posts[id] = p
	return nil
}

func (r *memPosts) RecentIDs(ctx context.Context, since time.Time) ([]uint, error) {
	defer r.s.lock()()
	var ids []uint
	for id, p := range r.s.d.posts {
		if !p.CreatedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ---- comments ----

type memComments struct{ s *MemoryStore }

func (r *memComments) Create(ctx context.Context, comment *models.Comment) error {
	defer r.s.lock()()
	d := r.s.d
	if _, ok := d.posts[comment.PostID]; !ok {
		return fmt.Errorf("comment references missing post %d", comment.PostID)
	}
	if comment.ParentCommentID != nil {
		if _, ok := d.comments[*comment.ParentCommentID]; !ok {
			return fmt.Errorf("comment references missing parent %d", *comment.ParentCommentID)
		}
	}
	d.commentSeq++
	comment.ID = d.commentSeq
	comment.CreatedAt = stamp(comment.CreatedAt)
	comment.UpdatedAt = comment.CreatedAt
	stored := detachComment(*comment)
	stored.User = models.User{}
	stored.Post = models.Post{}
	d.comments[comment.ID] = stored
	return nil
}

func (r *memComments) Get(ctx context.Context, id uint) (*models.Comment, error) {
	defer r.s.lock()()
	c, ok := r.s.d.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = detachComment(c)
	c.User = r.s.d.withUser(c.UserID)
	return &c, nil
}

func (r *memComments) UpdateContent(ctx context.Context, id uint, content string) error {
	defer r.s.lock()()
	c, ok := r.s.d.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Content = content
	c.UpdatedAt = time.Now().UTC()
	r.s.d.comments[id] = c
	return nil
}

func (r *memComments) filter(keep func(models.Comment) bool, ascending bool) []models.Comment {
	d := r.s.d
	out := []models.Comment{}
	for _, c := range d.comments {
		if keep(c) {
			c = detachComment(c)
			c.User = d.withUser(c.UserID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if ascending {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if ascending {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return out
}

func (r *memComments) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	defer r.s.lock()()
	return r.filter(func(c models.Comment) bool { return c.PostID == postID }, true), nil
}

func (r *memComments) ListByUser(ctx context.Context, userID uint) ([]models.Comment, error) {
	defer r.s.lock()()
	return r.filter(func(c models.Comment) bool { return c.UserID == userID }, false), nil
}

func (r *memComments) ListNewest(ctx context.Context, limit int) ([]models.Comment, error) {
	defer r.s.lock()()
	all := r.filter(func(models.Comment) bool { return true }, false)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memComments) ListByIDs(ctx context.Context, ids []uint) ([]models.Comment, error) {
	defer r.s.lock()()
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return r.filter(func(c models.Comment) bool { return set[c.ID] }, false), nil
}

func (r *memComments) ChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error) {
	defer r.s.lock()()
	set := make(map[uint]bool, len(parentIDs))
	for _, id := range parentIDs {
		set[id] = true
	}
	var ids []uint
	for id, c := range r.s.d.comments {
		if c.ParentCommentID != nil && set[*c.ParentCommentID] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memComments) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	defer r.s.lock()()
	d := r.s.d
	var deleted int64
	for _, id := range ids {
		if _, ok := d.comments[id]; !ok {
			continue
		}
		d.deleteVotesOn(models.TargetComment, id)
		delete(d.comments, id)
		deleted++
	}
	return deleted, nil
}

func (r *memComments) CountByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	defer r.s.lock()()
	set := make(map[uint]bool, len(postIDs))
	for _, id := range postIDs {
		set[id] = true
	}
	counts := make(map[uint]int64, len(postIDs))
	for _, c := range r.s.d.comments {
		if set[c.PostID] {
			counts[c.PostID]++
		}
	}
	return counts, nil
}

// ---- votes ----

type memVotes struct{ s *MemoryStore }

func (r *memVotes) Get(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (models.VoteType, error) {
	defer r.s.lock()()
	v, ok := r.s.d.votes[voteKey{userID, kind, targetID}]
	if !ok {
		return "", nil
	}
	return v.Type, nil
}

func (r *memVotes) CompareAndSet(ctx context.Context, userID uint, kind models.TargetKind, targetID uint, from, to models.VoteType) (bool, error) {
	defer r.s.lock()()
	d := r.s.d
	key := voteKey{userID, kind, targetID}
	v, exists := d.votes[key]

	var current models.VoteType
	if exists {
		current = v.Type
	}
	if current != from || from == to {
		return false, nil
	}

	now := time.Now().UTC()
	switch {
	case to == "":
		delete(d.votes, key)
	case !exists:
		d.voteSeq++
		d.votes[key] = models.Vote{ID: d.voteSeq, UserID: userID, TargetType: kind, TargetID: targetID, Type: to, CreatedAt: now, UpdatedAt: now}
	default:
		v.Type = to
		v.UpdatedAt = now
		d.votes[key] = v
	}
	return true, nil
}

func (r *memVotes) Counts(ctx context.Context, kind models.TargetKind, ids []uint) (map[uint]models.VoteCount, error) {
	defer r.s.lock()()
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	counts := make(map[uint]models.VoteCount, len(ids))
	for k, v := range r.s.d.votes {
		if k.kind != kind || !set[k.targetID] {
			continue
		}
		c := counts[k.targetID]
		if v.Type == models.VoteUp {
			c.Upvotes++
		} else {
			c.Downvotes++
		}
		counts[k.targetID] = c
	}
	return counts, nil
}

func (r *memVotes) States(ctx context.Context, userID uint, kind models.TargetKind, ids []uint) (map[uint]models.VoteType, error) {
	defer r.s.lock()()
	states := make(map[uint]models.VoteType, len(ids))
	if userID == 0 {
		return states, nil
	}
	for _, id := range ids {
		if v, ok := r.s.d.votes[voteKey{userID, kind, id}]; ok {
			states[id] = v.Type
		}
	}
	return states, nil
}

func (r *memVotes) TargetIDs(ctx context.Context, userID uint, kind models.TargetKind, vt models.VoteType) ([]uint, error) {
	defer r.s.lock()()
	var votes []models.Vote
	for k, v := range r.s.d.votes {
		if k.userID == userID && k.kind == kind && v.Type == vt {
			votes = append(votes, v)
		}
	}
	sort.Slice(votes, func(i, j int) bool {
		if !votes[i].UpdatedAt.Equal(votes[j].UpdatedAt) {
			return votes[i].UpdatedAt.After(votes[j].UpdatedAt)
		}
		return votes[i].ID > votes[j].ID
	})
	ids := make([]uint, 0, len(votes))
	for _, v := range votes {
		ids = append(ids, v.TargetID)
	}
	return ids, nil
}
