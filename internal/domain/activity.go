package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityType string

const (
	ActivityNotesView      ActivityType = "notes-view"
	ActivityQuizSubmission ActivityType = "quiz-submission"
)

func (t ActivityType) Valid() bool {
	return t == ActivityNotesView || t == ActivityQuizSubmission
}

// Scope locates a chapter by denormalized fields. No reference is enforced.
type Scope struct {
	Kind          ContainerKind `bson:"kind" json:"kind"`
	Exam          string        `bson:"exam,omitempty" json:"exam,omitempty"`
	Year          string        `bson:"year,omitempty" json:"year,omitempty"`
	Branch        string        `bson:"branch,omitempty" json:"branch,omitempty"`
	Subject       string        `bson:"subject" json:"subject"`
	ChapterNumber int           `bson:"chapterNumber" json:"chapterNumber"`
}

func (s Scope) Key() ContainerKey {
	return ContainerKey{Kind: s.Kind, Exam: s.Exam, Year: s.Year, Branch: s.Branch}
}

func (s Scope) Validate() error {
	if err := s.Key().Validate(); err != nil {
		return err
	}
	if s.Subject == "" {
		return errors.New("subject is required")
	}
	if s.ChapterNumber <= 0 {
		return errors.New("chapter number must be positive")
	}
	return nil
}

// QuizResult is present on quiz-submission records only. Answers is keyed by
// question index rendered as a string.
type QuizResult struct {
	Score   int               `bson:"score" json:"score"`
	Total   int               `bson:"total" json:"total"`
	Answers map[string]string `bson:"answers" json:"answers"`
}

// Activity is an immutable log entry of one user interaction with a chapter.
type Activity struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"userId"`
	UserName  string             `bson:"userName" json:"userName"`
	Scope     Scope              `bson:"scope" json:"scope"`
	Type      ActivityType       `bson:"activityType" json:"activityType"`
	Result    *QuizResult        `bson:"quizResult,omitempty" json:"quizResult,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
