package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContainerKind distinguishes exam material from course material.
type ContainerKind string

const (
	KindExam   ContainerKind = "exam"
	KindCourse ContainerKind = "course"
)

// ContainerKey addresses one root document: an exam name, or a year+branch pair.
type ContainerKey struct {
	Kind   ContainerKind `json:"kind"`
	Exam   string        `json:"exam,omitempty"`
	Year   string        `json:"year,omitempty"`
	Branch string        `json:"branch,omitempty"`
}

func ExamKey(exam string) ContainerKey {
	return ContainerKey{Kind: KindExam, Exam: strings.TrimSpace(exam)}
}

func CourseKey(year, branch string) ContainerKey {
	return ContainerKey{Kind: KindCourse, Year: strings.TrimSpace(year), Branch: strings.TrimSpace(branch)}
}

// Validate reports a missing key component.
func (k ContainerKey) Validate() error {
	switch k.Kind {
	case KindExam:
		if k.Exam == "" {
			return errors.New("exam is required")
		}
	case KindCourse:
		if k.Year == "" || k.Branch == "" {
			return errors.New("year and branch are required")
		}
	default:
		return fmt.Errorf("unknown container kind %q", k.Kind)
	}
	return nil
}

// String renders the key as a slash path, used for storage prefixes and logs.
func (k ContainerKey) String() string {
	if k.Kind == KindCourse {
		return string(k.Kind) + "/" + k.Year + "/" + k.Branch
	}
	return string(k.Kind) + "/" + k.Exam
}

// Scope returns the activity scope of one chapter inside this container.
func (k ContainerKey) Scope(subject string, chapter int) Scope {
	return Scope{Kind: k.Kind, Exam: k.Exam, Year: k.Year, Branch: k.Branch, Subject: subject, ChapterNumber: chapter}
}

// Container is the root aggregate: an exam or a course with its subjects.
// Version is bumped on every save and checked to detect concurrent writers.
type Container struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind      ContainerKind      `bson:"kind" json:"kind"`
	Exam      string             `bson:"exam,omitempty" json:"exam,omitempty"`
	Year      string             `bson:"year,omitempty" json:"year,omitempty"`
	Branch    string             `bson:"branch,omitempty" json:"branch,omitempty"`
	Subjects  []Subject          `bson:"subjects" json:"subjects"`
	Version   int64              `bson:"version" json:"version"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewContainer creates an empty aggregate for key.
func NewContainer(key ContainerKey) *Container {
	return &Container{Kind: key.Kind, Exam: key.Exam, Year: key.Year, Branch: key.Branch, Subjects: []Subject{}}
}

func (c *Container) Key() ContainerKey {
	return ContainerKey{Kind: c.Kind, Exam: c.Exam, Year: c.Year, Branch: c.Branch}
}

// Subject returns a pointer into c.Subjects, or nil.
func (c *Container) Subject(name string) *Subject {
	for i := range c.Subjects {
		if c.Subjects[i].Name == name {
			return &c.Subjects[i]
		}
	}
	return nil
}

// Merge folds incoming subjects into the aggregate. Existing subjects have their
// chapters merged by number (matching chapters overwritten in place, new ones
// appended); unknown subjects are appended whole.
func (c *Container) Merge(incoming []Subject) {
	for _, in := range incoming {
		existing := c.Subject(in.Name)
		if existing == nil {
			chapters := make([]Chapter, len(in.Chapters))
			copy(chapters, in.Chapters)
			c.Subjects = append(c.Subjects, Subject{Name: in.Name, Chapters: chapters})
			continue
		}
		for _, ch := range in.Chapters {
			if cur := existing.Chapter(ch.Number); cur != nil {
				cur.File = ch.File
				cur.Summary = ch.Summary
				cur.Quiz = ch.Quiz
				cur.Degraded = ch.Degraded
				cur.UpdatedAt = ch.UpdatedAt
				continue
			}
			existing.Chapters = append(existing.Chapters, ch)
		}
	}
}

// Subject groups the numbered chapters (or units) of one topic.
type Subject struct {
	Name     string    `bson:"name" json:"name"`
	Chapters []Chapter `bson:"chapters" json:"chapters"`
}

// Chapter returns a pointer into s.Chapters, or nil.
func (s *Subject) Chapter(number int) *Chapter {
	for i := range s.Chapters {
		if s.Chapters[i].Number == number {
			return &s.Chapters[i]
		}
	}
	return nil
}

// RemoveChapter deletes the chapter with the given number and returns it.
func (s *Subject) RemoveChapter(number int) (Chapter, bool) {
	for i := range s.Chapters {
		if s.Chapters[i].Number == number {
			removed := s.Chapters[i]
			s.Chapters = append(s.Chapters[:i], s.Chapters[i+1:]...)
			return removed, true
		}
	}
	return Chapter{}, false
}

// Chapter is one uploaded document with its generated summary and quiz.
// Degraded marks content that was produced from fallback placeholders.
type Chapter struct {
	Number    int            `bson:"number" json:"number"`
	File      FileRef        `bson:"file" json:"file"`
	Summary   string         `bson:"summary" json:"summary"`
	Quiz      []QuizQuestion `bson:"quiz" json:"quiz"`
	Degraded  bool           `bson:"degraded" json:"degraded"`
	UpdatedAt time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// FileRef points at the stored source document.
type FileRef struct {
	URL  string `bson:"url" json:"url"`
	Key  string `bson:"key" json:"key"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
}

type QuizQuestion struct {
	Question string   `bson:"question" json:"question"`
	Options  []string `bson:"options" json:"options"`
	Answer   string   `bson:"answer" json:"answer"`
}
