package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corplearn/lms-api/internal/models"
)

// ForumRepository persists per-course discussion topics and replies.
type ForumRepository struct {
	db *sqlx.DB
}

// NewForumRepository constructs the repository.
func NewForumRepository(db *sqlx.DB) *ForumRepository {
	return &ForumRepository{db: db}
}

// CreateTopic inserts a topic under a course.
func (r *ForumRepository) CreateTopic(ctx context.Context, topic *models.ForumTopic) error {
	if topic.ID == "" {
		topic.ID = uuid.NewString()
	}
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO forum_topics (id, course_id, user_id, title, content, created_at)
        VALUES (:id, :course_id, :user_id, :title, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, topic); err != nil {
		return fmt.Errorf("create forum topic: %w", err)
	}
	return nil
}

// FindTopicByID returns a topic with its author name and reply count.
func (r *ForumRepository) FindTopicByID(ctx context.Context, id string) (*models.ForumTopicDetail, error) {
	const query = `SELECT t.id, t.course_id, t.user_id, t.title, t.content, t.created_at,
        u.full_name AS author_name,
        (SELECT COUNT(*) FROM forum_replies WHERE topic_id = t.id) AS reply_count
        FROM forum_topics t
        JOIN users u ON u.id = t.user_id
        WHERE t.id = $1`
	var topic models.ForumTopicDetail
	if err := r.db.GetContext(ctx, &topic, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find forum topic: %w", err)
	}
	return &topic, nil
}

// ListTopicsByCourse returns a course's topics, newest first.
func (r *ForumRepository) ListTopicsByCourse(ctx context.Context, courseID string) ([]models.ForumTopicDetail, error) {
	const query = `SELECT t.id, t.course_id, t.user_id, t.title, t.content, t.created_at,
        u.full_name AS author_name,
        (SELECT COUNT(*) FROM forum_replies WHERE topic_id = t.id) AS reply_count
        FROM forum_topics t
        JOIN users u ON u.id = t.user_id
        WHERE t.course_id = $1
        ORDER BY t.created_at DESC`
	var topics []models.ForumTopicDetail
	if err := r.db.SelectContext(ctx, &topics, query, courseID); err != nil {
		return nil, fmt.Errorf("list forum topics: %w", err)
	}
	return topics, nil
}

// CreateReply inserts a reply under a topic.
func (r *ForumRepository) CreateReply(ctx context.Context, reply *models.ForumReply) error {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO forum_replies (id, topic_id, user_id, content, created_at)
        VALUES (:id, :topic_id, :user_id, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reply); err != nil {
		return fmt.Errorf("create forum reply: %w", err)
	}
	return nil
}

// ListRepliesByTopic returns a topic's replies in chronological order.
func (r *ForumRepository) ListRepliesByTopic(ctx context.Context, topicID string) ([]models.ForumReplyDetail, error) {
	const query = `SELECT r.id, r.topic_id, r.user_id, r.content, r.created_at,
        u.full_name AS author_name
        FROM forum_replies r
        JOIN users u ON u.id = r.user_id
        WHERE r.topic_id = $1
        ORDER BY r.created_at ASC`
	var replies []models.ForumReplyDetail
	if err := r.db.SelectContext(ctx, &replies, query, topicID); err != nil {
		return nil, fmt.Errorf("list forum replies: %w", err)
	}
	return replies, nil
}
