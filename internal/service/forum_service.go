package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type forumRepository interface {
	CreateTopic(ctx context.Context, topic *models.ForumTopic) error
	FindTopicByID(ctx context.Context, id string) (*models.ForumTopicDetail, error)
	ListTopicsByCourse(ctx context.Context, courseID string) ([]models.ForumTopicDetail, error)
	CreateReply(ctx context.Context, reply *models.ForumReply) error
	ListRepliesByTopic(ctx context.Context, topicID string) ([]models.ForumReplyDetail, error)
}

// CreateTopicRequest is the payload for opening a discussion thread.
type CreateTopicRequest struct {
	Title   string `json:"title" validate:"required,min=3"`
	Content string `json:"content" validate:"required"`
}

// CreateReplyRequest is the payload for responding within a thread.
type CreateReplyRequest struct {
	Content string `json:"content" validate:"required"`
}

// ForumService manages course discussions. Course eligibility is enforced
// when opening a topic and when browsing a course's board; replying to an
// existing topic is deliberately not re-gated, so conversations survive
// membership churn.
type ForumService struct {
	forum       forumRepository
	eligibility courseEligibilityResolver
	activity    progressActivityRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewForumService constructs a ForumService.
func NewForumService(forum forumRepository, eligibility courseEligibilityResolver, activity progressActivityRepository, validate *validator.Validate, logger *zap.Logger) *ForumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ForumService{forum: forum, eligibility: eligibility, activity: activity, validator: validate, logger: logger}
}

// CreateTopic opens a thread under a course the caller is eligible for.
func (s *ForumService) CreateTopic(ctx context.Context, userID, courseID string, req CreateTopicRequest) (*models.ForumTopic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic payload")
	}

	decision, err := s.eligibility.Resolve(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, DenialError(decision.Reason)
	}

	topic := &models.ForumTopic{
		CourseID: courseID,
		UserID:   userID,
		Title:    req.Title,
		Content:  req.Content,
	}
	if err := s.forum.CreateTopic(ctx, topic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create topic")
	}

	if err := s.activity.CreateActivity(ctx, &models.UserActivity{
		UserID:     &userID,
		Action:     models.ActivityTopicCreated,
		Resource:   "forum_topics",
		ResourceID: &topic.ID,
	}); err != nil {
		s.logger.Warn("failed to record topic activity", zap.Error(err))
	}
	return topic, nil
}

// ListTopics returns a course's board for an eligible caller.
func (s *ForumService) ListTopics(ctx context.Context, userID, courseID string) ([]models.ForumTopicDetail, error) {
	decision, err := s.eligibility.Resolve(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, DenialError(decision.Reason)
	}

	topics, err := s.forum.ListTopicsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list topics")
	}
	return topics, nil
}

// GetTopic returns a thread with its replies. Existing threads stay
// readable even if the caller's course access has since changed.
func (s *ForumService) GetTopic(ctx context.Context, topicID string) (*models.ForumTopicDetail, []models.ForumReplyDetail, error) {
	topic, err := s.forum.FindTopicByID(ctx, topicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}

	replies, err := s.forum.ListRepliesByTopic(ctx, topicID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list replies")
	}
	return topic, replies, nil
}

// CreateReply appends a reply to an existing thread.
func (s *ForumService) CreateReply(ctx context.Context, userID, topicID string, req CreateReplyRequest) (*models.ForumReply, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reply payload")
	}

	if _, err := s.forum.FindTopicByID(ctx, topicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}

	reply := &models.ForumReply{
		TopicID: topicID,
		UserID:  userID,
		Content: req.Content,
	}
	if err := s.forum.CreateReply(ctx, reply); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reply")
	}
	return reply, nil
}
