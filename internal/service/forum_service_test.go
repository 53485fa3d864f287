package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type fakeForumRepo struct {
	topics  map[string]*models.ForumTopic
	replies map[string][]*models.ForumReply
}

func newFakeForumRepo() *fakeForumRepo {
	return &fakeForumRepo{topics: map[string]*models.ForumTopic{}, replies: map[string][]*models.ForumReply{}}
}

func (f *fakeForumRepo) CreateTopic(ctx context.Context, topic *models.ForumTopic) error {
	if topic.ID == "" {
		topic.ID = uuid.NewString()
	}
	cp := *topic
	f.topics[topic.ID] = &cp
	return nil
}

func (f *fakeForumRepo) FindTopicByID(ctx context.Context, id string) (*models.ForumTopicDetail, error) {
	if t, ok := f.topics[id]; ok {
		return &models.ForumTopicDetail{ForumTopic: *t, ReplyCount: len(f.replies[id])}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeForumRepo) ListTopicsByCourse(ctx context.Context, courseID string) ([]models.ForumTopicDetail, error) {
	var out []models.ForumTopicDetail
	for _, t := range f.topics {
		if t.CourseID == courseID {
			out = append(out, models.ForumTopicDetail{ForumTopic: *t, ReplyCount: len(f.replies[t.ID])})
		}
	}
	return out, nil
}

func (f *fakeForumRepo) CreateReply(ctx context.Context, reply *models.ForumReply) error {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	cp := *reply
	f.replies[reply.TopicID] = append(f.replies[reply.TopicID], &cp)
	return nil
}

func (f *fakeForumRepo) ListRepliesByTopic(ctx context.Context, topicID string) ([]models.ForumReplyDetail, error) {
	var out []models.ForumReplyDetail
	for _, r := range f.replies[topicID] {
		out = append(out, models.ForumReplyDetail{ForumReply: *r})
	}
	return out, nil
}

func newForumFixture(decision models.EligibilityDecision) (*fakeForumRepo, *ForumService) {
	repo := newFakeForumRepo()
	svc := NewForumService(repo, fixedResolver{decision}, &fakeActivityRepo{}, nil, nil)
	return repo, svc
}

func TestCreateTopicGatedByEligibility(t *testing.T) {
	_, svc := newForumFixture(models.Deny(models.DenialNotApproved))

	_, err := svc.CreateTopic(context.Background(), "dev", "c1", CreateTopicRequest{Title: "Stuck on lesson 3", Content: "help"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotApproved.Code, appErrors.FromError(err).Code)
}

func TestCreateTopicAndReplyFlow(t *testing.T) {
	repo, svc := newForumFixture(models.Allow())

	topic, err := svc.CreateTopic(context.Background(), "dev", "c1", CreateTopicRequest{Title: "Stuck on lesson 3", Content: "help"})
	require.NoError(t, err)
	require.NotEmpty(t, topic.ID)

	reply, err := svc.CreateReply(context.Background(), "mentor", topic.ID, CreateReplyRequest{Content: "check the docs"})
	require.NoError(t, err)
	assert.Equal(t, topic.ID, reply.TopicID)

	got, replies, err := svc.GetTopic(context.Background(), topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReplyCount)
	require.Len(t, replies, 1)
	assert.Equal(t, "check the docs", replies[0].Content)
	assert.Len(t, repo.replies[topic.ID], 1)
}

func TestReplyNotRegatedAfterAccessChange(t *testing.T) {
	repo, _ := newForumFixture(models.Allow())

	// Topic created while the author was eligible.
	repo.topics["t1"] = &models.ForumTopic{ID: "t1", CourseID: "c1", UserID: "dev", Title: "Old thread"}

	// Service now denies the course, but replies still land.
	svc := NewForumService(repo, fixedResolver{models.Deny(models.DenialNoTeamAccess)}, &fakeActivityRepo{}, nil, nil)
	reply, err := svc.CreateReply(context.Background(), "dev", "t1", CreateReplyRequest{Content: "still here"})
	require.NoError(t, err)
	assert.Equal(t, "t1", reply.TopicID)
}

func TestListTopicsDenied(t *testing.T) {
	_, svc := newForumFixture(models.Deny(models.DenialNoTeamAccess))

	_, err := svc.ListTopics(context.Background(), "dev", "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoTeamAccess.Code, appErrors.FromError(err).Code)
}

func TestReplyToMissingTopic(t *testing.T) {
	_, svc := newForumFixture(models.Allow())

	_, err := svc.CreateReply(context.Background(), "dev", "ghost", CreateReplyRequest{Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
