package repository

import (
	"context"
	"errors"
	"time"

	"devnewz/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepo       { return &gormUsers{db: s.db} }
func (s *GormStore) Posts() PostRepo       { return &gormPosts{db: s.db} }
func (s *GormStore) Comments() CommentRepo { return &gormComments{db: s.db} }
func (s *GormStore) Votes() VoteRepo       { return &gormVotes{db: s.db} }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ---- users ----

type gormUsers struct{ db *gorm.DB }

func (r *gormUsers) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *gormUsers) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *gormUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *gormUsers) AddKarma(ctx context.Context, userID uint, delta int, reason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 原子自增，避免读改写丢失更新
		res := tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("karma", gorm.Expr("karma + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&models.KarmaLog{
			UserID: userID,
			Amount: delta,
			Reason: reason,
		}).Error
	})
}

func (r *gormUsers) KarmaLogs(ctx context.Context, userID uint, limit int) ([]models.KarmaLog, error) {
	var logs []models.KarmaLog
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}

// ---- posts ----

type gormPosts struct{ db *gorm.DB }

func (r *gormPosts) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error
}

func (r *gormPosts) Get(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := r.db.WithContext(ctx).Preload("User").First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *gormPosts) Update(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).Model(post).
		Select("title", "url", "content", "type").
		Updates(post)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormPosts) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var commentIDs []uint
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", id).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if len(commentIDs) > 0 {
			if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetComment, commentIDs).
				Delete(&models.Vote{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", commentIDs).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("target_type = ? AND target_id = ?", models.TargetPost, id).
			Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormPosts) List(ctx context.Context, q PostQuery) ([]models.Post, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Post{})
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.Type != "" {
		query = query.Where("type = ?", q.Type)
	}
	if !q.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", q.CreatedFrom)
	}
	if !q.CreatedTo.IsZero() {
		query = query.Where("created_at < ?", q.CreatedTo)
	}
	if q.IDs != nil {
		if len(q.IDs) == 0 {
			return []models.Post{}, 0, nil
		}
		query = query.Where("id IN ?", q.IDs)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch q.OrderBy {
	case OrderVelocity:
		query = query.Order("velocity DESC, created_at DESC, id DESC")
	default:
		query = query.Order("created_at DESC, id DESC")
	}
	if q.Page > 0 && q.PageSize > 0 {
		query = query.Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize)
	}

	var posts []models.Post
	if err := query.Preload("User").Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *gormPosts) UpdateVelocity(ctx context.Context, id uint, velocity float64) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		UpdateColumn("velocity", velocity).Error
}

func (r *gormPosts) RecentIDs(ctx context.Context, since time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("created_at >= ?", since).
		Pluck("id", &ids).Error
	return ids, err
}

// ---- comments ----

type gormComments struct{ db *gorm.DB }

func (r *gormComments) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error
}

func (r *gormComments) Get(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *gormComments) UpdateContent(ctx context.Context, id uint, content string) error {
	res := r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormComments) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).Preload("User").
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

func (r *gormComments) ListByUser(ctx context.Context, userID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).Preload("User").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&comments).Error
	return comments, err
}

func (r *gormComments) ListNewest(ctx context.Context, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).Preload("User").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&comments).Error
	return comments, err
}

func (r *gormComments) ListByIDs(ctx context.Context, ids []uint) ([]models.Comment, error) {
	if len(ids) == 0 {
		return []models.Comment{}, nil
	}
	var comments []models.Comment
	err := r.db.WithContext(ctx).Preload("User").
		Where("id IN ?", ids).
		Order("created_at DESC, id DESC").
		Find(&comments).Error
	return comments, err
}

func (r *gormComments) ChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("parent_comment_id IN ?", parentIDs).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *gormComments) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetComment, ids).
			Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Comment{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func (r *gormComments) CountByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PostID uint
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select("post_id, count(*) as count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.PostID] = row.Count
	}
	return counts, nil
}

// ---- votes ----

type gormVotes struct{ db *gorm.DB }

func (r *gormVotes) Get(ctx context.Context, userID uint, kind models.TargetKind, targetID uint) (models.VoteType, error) {
	var v models.Vote
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, kind, targetID).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.Type, nil
}

func (r *gormVotes) CompareAndSet(ctx context.Context, userID uint, kind models.TargetKind, targetID uint, from, to models.VoteType) (bool, error) {
	db := r.db.WithContext(ctx)
	where := "user_id = ? AND target_type = ? AND target_id = ? AND type = ?"

	var res *gorm.DB
	switch {
	case from == to:
		return false, nil
	case from == "":
		// unique index turns a concurrent duplicate into a no-op
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Vote{
			UserID:     userID,
			TargetType: kind,
			TargetID:   targetID,
			Type:       to,
		})
	case to == "":
		res = db.Where(where, userID, kind, targetID, from).Delete(&models.Vote{})
	default:
		res = db.Model(&models.Vote{}).Where(where, userID, kind, targetID, from).
			Updates(map[string]interface{}{"type": to, "updated_at": time.Now().UTC()})
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormVotes) Counts(ctx context.Context, kind models.TargetKind, ids []uint) (map[uint]models.VoteCount, error) {
	counts := make(map[uint]models.VoteCount, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	var rows []struct {
		TargetID  uint
		Upvotes   int
		Downvotes int
	}
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Select("target_id, "+
			"SUM(CASE WHEN type = ? THEN 1 ELSE 0 END) AS upvotes, "+
			"SUM(CASE WHEN type = ? THEN 1 ELSE 0 END) AS downvotes", models.VoteUp, models.VoteDown).
		Where("target_type = ? AND target_id IN ?", kind, ids).
		Group("target_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TargetID] = models.VoteCount{Upvotes: row.Upvotes, Downvotes: row.Downvotes}
	}
	return counts, nil
}

func (r *gormVotes) States(ctx context.Context, userID uint, kind models.TargetKind, ids []uint) (map[uint]models.VoteType, error) {
	states := make(map[uint]models.VoteType, len(ids))
	if len(ids) == 0 || userID == 0 {
		return states, nil
	}
	var votes []models.Vote
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, kind, ids).
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		states[v.TargetID] = v.Type
	}
	return states, nil
}

func (r *gormVotes) TargetIDs(ctx context.Context, userID uint, kind models.TargetKind, vt models.VoteType) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ? AND target_type = ? AND type = ?", userID, kind, vt).
		Order("updated_at DESC").
		Pluck("target_id", &ids).Error
	return ids, err
}
