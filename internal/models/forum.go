package models

import "time"

// ForumTopic is a discussion thread attached to a course. Eligibility is
// checked once at creation; topics persist if the author's access changes.
type ForumTopic struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ForumTopicDetail enriches a topic with author info and reply count.
type ForumTopicDetail struct {
	ForumTopic
	AuthorName string `db:"author_name" json:"author_name"`
	ReplyCount int    `db:"reply_count" json:"reply_count"`
}

// ForumReply is a response within a topic. No course gate is applied at
// reply time.
type ForumReply struct {
	ID        string    `db:"id" json:"id"`
	TopicID   string    `db:"topic_id" json:"topic_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ForumReplyDetail enriches a reply with author info.
type ForumReplyDetail struct {
	ForumReply
	AuthorName string `db:"author_name" json:"author_name"`
}
