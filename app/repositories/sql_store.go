package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"inkwell/app/models"
	"inkwell/app/query"
)

// MySQL error numbers mapped onto core error kinds.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// SQLStore implements Store on MySQL through gorm. Updates are guarded by
// a version column and writers lock the post row they read.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore connects to MySQL and migrates the schema.
func OpenSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return NewSQLStore(db)
}

// NewSQLStore migrates the schema on an open connection.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&postRow{}, &postTagRow{}, &commentRow{}, &outboxRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Begin opens a database transaction bound to ctx.
func (s *SQLStore) Begin(ctx context.Context, writable bool) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err)
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, sqlError(tx.Error)
	}
	return &sqlTx{tx: tx, writable: writable}, nil
}

// PendingEvents returns up to limit unsent events, oldest first.
func (s *SQLStore) PendingEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	var rows []outboxRow
	if err := s.db.WithContext(ctx).
		Where("status = ?", 0).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, sqlError(err)
	}
	events := make([]*models.Event, 0, len(rows))
	for _, row := range rows {
		var event models.Event
		if err := unmarshalEntity([]byte(row.Payload), &event); err != nil {
			return nil, err
		}
		event.ID = row.ID
		events = append(events, &event)
	}
	return events, nil
}

func (s *SQLStore) MarkEventsSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return sqlError(s.db.WithContext(ctx).Model(&outboxRow{}).
		Where("id IN ?", ids).
		Update("status", 1).Error)
}

type sqlTx struct {
	tx       *gorm.DB
	writable bool
	done     bool
}

func (t *sqlTx) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", models.ErrStorage)
	}
	t.done = true
	return sqlError(t.tx.Commit().Error)
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return sqlError(t.tx.Rollback().Error)
}

// locking returns the query with a row lock when the transaction writes.
func (t *sqlTx) locking() *gorm.DB {
	if t.writable {
		return t.tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.tx
}

func (t *sqlTx) CreatePost(post *models.Post) error {
	row := newPostRow(post)
	row.ID = 0
	if err := t.tx.Create(row).Error; err != nil {
		return sqlError(err)
	}
	post.ID = row.ID
	return t.replaceTags(post.ID, post.Tags)
}

func (t *sqlTx) GetPost(id int64) (*models.Post, error) {
	var row postRow
	if err := t.locking().First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
		}
		return nil, sqlError(err)
	}
	tags, err := t.loadTags([]int64{id})
	if err != nil {
		return nil, err
	}
	return row.toModel(tags[id]), nil
}

// UpdatePost writes the post only where the version column still holds
// expectedVersion.
func (t *sqlTx) UpdatePost(post *models.Post, expectedVersion int64) error {
	res := t.tx.Model(&postRow{}).
		Where("id = ? AND version = ?", post.ID, expectedVersion).
		Updates(map[string]any{
			"title":            post.Title,
			"body":             post.Body,
			"status":           string(post.Status),
			"version":          post.Version,
			"rejection_reason": post.RejectionReason,
			"likes":            post.Likes,
			"deleted":          post.Deleted,
			"deleted_at":       post.DeletedAt,
			"updated_at":       post.UpdatedAt,
		})
	if res.Error != nil {
		return sqlError(res.Error)
	}
	if res.RowsAffected == 0 {
		// Zero rows is either a missing post, a stale version or, on a
		// connection without clientFoundRows, a row that already held
		// these values. A locking read tells them apart.
		var current postRow
		if err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "version").First(&current, post.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("post %d: %w", post.ID, models.ErrNotFound)
			}
			return sqlError(err)
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%w: post %d is at version %d, expected %d",
				models.ErrConflict, post.ID, current.Version, expectedVersion)
		}
	}
	return t.replaceTags(post.ID, post.Tags)
}

func (t *sqlTx) DeletePost(id int64) error {
	if err := t.tx.Where("post_id = ?", id).Delete(&postTagRow{}).Error; err != nil {
		return sqlError(err)
	}
	res := t.tx.Delete(&postRow{}, id)
	if res.Error != nil {
		return sqlError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// QueryPosts pushes the filter, ordering and window down to MySQL.
func (t *sqlTx) QueryPosts(filter query.Filter, page query.Page) ([]*models.Post, int, error) {
	page = page.Normalize()
	q := t.tx.Model(&postRow{}).Where("deleted = ?", false)
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.AuthorID != "" {
		q = q.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Tag != "" {
		q = q.Where("id IN (?)", t.tx.Model(&postTagRow{}).Select("post_id").Where("tag = ?", filter.Tag))
	}
	if filter.Search != "" {
		term := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", term, term)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, sqlError(err)
	}

	var rows []postRow
	if err := q.Order("created_at DESC").Order("id ASC").
		Offset(page.Offset).Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, sqlError(err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	tags, err := t.loadTags(ids)
	if err != nil {
		return nil, 0, err
	}
	posts := make([]*models.Post, 0, len(rows))
	for i := range rows {
		posts = append(posts, rows[i].toModel(tags[rows[i].ID]))
	}
	return posts, int(total), nil
}

func (t *sqlTx) loadTags(postIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []postTagRow
	if err := t.tx.Where("post_id IN ?", postIDs).Order("tag ASC").Find(&rows).Error; err != nil {
		return nil, sqlError(err)
	}
	for _, row := range rows {
		out[row.PostID] = append(out[row.PostID], row.Tag)
	}
	return out, nil
}

func (t *sqlTx) replaceTags(postID int64, tags []string) error {
	if err := t.tx.Where("post_id = ?", postID).Delete(&postTagRow{}).Error; err != nil {
		return sqlError(err)
	}
	if len(tags) == 0 {
		return nil
	}
	rows := make([]postTagRow, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, postTagRow{PostID: postID, Tag: tag})
	}
	return sqlError(t.tx.Create(&rows).Error)
}

func (t *sqlTx) CreateComment(comment *models.Comment) error {
	row := newCommentRow(comment)
	row.ID = 0
	if err := t.tx.Create(row).Error; err != nil {
		return sqlError(err)
	}
	comment.ID = row.ID
	return nil
}

func (t *sqlTx) GetComment(id int64) (*models.Comment, error) {
	var row commentRow
	if err := t.locking().First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
		}
		return nil, sqlError(err)
	}
	return row.toModel(), nil
}

func (t *sqlTx) UpdateComment(comment *models.Comment) error {
	res := t.tx.Model(&commentRow{}).Where("id = ?", comment.ID).Updates(map[string]any{
		"body":           comment.Body,
		"status":         string(comment.Status),
		"parent_deleted": comment.ParentDeleted,
		"deleted":        comment.Deleted,
		"updated_at":     comment.UpdatedAt,
	})
	if res.Error != nil {
		return sqlError(res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := t.tx.Model(&commentRow{}).Where("id = ?", comment.ID).Count(&n).Error; err != nil {
			return sqlError(err)
		}
		if n == 0 {
			return fmt.Errorf("comment %d: %w", comment.ID, models.ErrNotFound)
		}
	}
	return nil
}

func (t *sqlTx) DeleteComment(id int64) error {
	res := t.tx.Delete(&commentRow{}, id)
	if res.Error != nil {
		return sqlError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// ScanComments streams rows from an open cursor so long threads are never
// loaded whole.
func (t *sqlTx) ScanComments(postID int64, fn func(*models.Comment) bool) error {
	rows, err := t.tx.Model(&commentRow{}).
		Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").
		Rows()
	if err != nil {
		return sqlError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var row commentRow
		if err := t.tx.ScanRows(rows, &row); err != nil {
			return sqlError(err)
		}
		if !fn(row.toModel()) {
			return nil
		}
	}
	return sqlError(rows.Err())
}

func (t *sqlTx) EnqueueEvent(event *models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}
	row := &outboxRow{
		EventType: string(event.Type),
		PostID:    event.PostID,
		Payload:   string(payload),
		CreatedAt: event.OccurredAt,
	}
	if err := t.tx.Create(row).Error; err != nil {
		return sqlError(err)
	}
	event.ID = row.ID
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// sqlError maps MySQL and gorm errors onto the core error kinds.
func sqlError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDeadlock:
			return fmt.Errorf("%w: %v", models.ErrConflict, err)
		case mysqlLockWaitTimeout:
			return fmt.Errorf("%w: %v", models.ErrTimeout, err)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return storageError(err)
}
