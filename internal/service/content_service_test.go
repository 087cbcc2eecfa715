package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/generate"
	"studyhub/portal/internal/platform/logger"
)

type contentFixture struct {
	repo       *memContainerRepo
	activity   *memActivityRepo
	files      *memStorage
	generator  *fakeGenerator
	activities ActivityService
	svc        ContentService
}

func newContentFixture() *contentFixture {
	f := &contentFixture{
		repo:      newMemContainerRepo(),
		activity:  &memActivityRepo{},
		files:     newMemStorage(),
		generator: &fakeGenerator{quizParts: []string{twoQuestionQuiz}},
	}
	f.activities = NewActivityService(f.activity)
	f.svc = NewContentService(f.repo, f.files, f.generator, f.activities, logger.Nop(), ContentOptions{MaxPageSize: 2})
	return f
}

func textUpload(n int, body string) ChapterUpload {
	return ChapterUpload{Number: n, FileName: "notes.txt", ContentType: "text/plain", Data: []byte(body)}
}

func (f *contentFixture) createGATE(t *testing.T) *domain.Container {
	t.Helper()
	c, created, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key: domain.ExamKey("GATE"),
		Subjects: []SubjectUpload{{
			Name:     "Physics",
			Chapters: []ChapterUpload{textUpload(1, "Newton's laws of motion")},
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatalf("expected a new container")
	}
	return c
}

func TestCreateContentThenRead(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)

	got, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ExamKey("GATE")})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || len(got[0].Subjects) != 1 {
		t.Fatalf("expected one aggregate with one subject, got %+v", got)
	}
	ch := got[0].Subjects[0].Chapters[0]
	if ch.Number != 1 || ch.Summary != "summary of Newton's laws of motion" {
		t.Fatalf("unexpected chapter %+v", ch)
	}
	if len(ch.Quiz) != 2 || ch.Degraded {
		t.Fatalf("expected 2 quiz questions and no degradation, got %+v", ch)
	}
	if !strings.HasPrefix(ch.File.Key, "exam/GATE/Physics/1/") || !strings.HasSuffix(ch.File.Key, ".txt") {
		t.Fatalf("unexpected object key %q", ch.File.Key)
	}
	if _, ok := f.files.objects[ch.File.Key]; !ok {
		t.Fatalf("file was not stored")
	}
}

func TestCreateContentMergesAndSkipsEmptySlots(t *testing.T) {
	f := newContentFixture()
	first := f.createGATE(t)
	oldKey := first.Subjects[0].Chapters[0].File.Key

	c, created, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key: domain.ExamKey("GATE"),
		Subjects: []SubjectUpload{
			{Name: "Physics", Chapters: []ChapterUpload{
				textUpload(1, "revised notes"),
				textUpload(2, "thermodynamics"),
				{Number: 3}, // no file
			}},
			{Name: "Maths", Chapters: []ChapterUpload{textUpload(1, "calculus")}},
		},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if created {
		t.Fatalf("expected a merge into the existing container")
	}
	phys := c.Subject("Physics")
	if len(phys.Chapters) != 2 {
		t.Fatalf("expected chapters 1 and 2 only, got %+v", phys.Chapters)
	}
	if phys.Chapters[0].Summary != "summary of revised notes" {
		t.Fatalf("chapter 1 should be overwritten, got %q", phys.Chapters[0].Summary)
	}
	if c.Subject("Maths") == nil {
		t.Fatalf("new subject should be appended")
	}
	if len(f.files.deleted) != 1 || f.files.deleted[0] != oldKey {
		t.Fatalf("replaced file should be cleaned up, deleted=%v", f.files.deleted)
	}
	stored, _ := f.repo.get(domain.ExamKey("GATE"))
	if stored.Version != 2 {
		t.Fatalf("expected version 2, got %d", stored.Version)
	}
}

func TestCreateContentValidation(t *testing.T) {
	f := newContentFixture()
	cases := []CreateContentInput{
		{Key: domain.ExamKey(""), Subjects: []SubjectUpload{{Name: "P", Chapters: []ChapterUpload{textUpload(1, "x")}}}},
		{Key: domain.ExamKey("GATE")},
		{Key: domain.ExamKey("GATE"), Subjects: []SubjectUpload{{Name: " ", Chapters: []ChapterUpload{textUpload(1, "x")}}}},
		{Key: domain.ExamKey("GATE"), Subjects: []SubjectUpload{{Name: "P", Chapters: []ChapterUpload{textUpload(0, "x")}}}},
		{Key: domain.ExamKey("GATE"), Subjects: []SubjectUpload{{Name: "P", Chapters: []ChapterUpload{textUpload(1, "x"), textUpload(1, "y")}}}},
		{Key: domain.ExamKey("GATE"), Subjects: []SubjectUpload{{Name: "P", Chapters: []ChapterUpload{{Number: 1}}}}},
		{Key: domain.CourseKey("2", ""), Subjects: []SubjectUpload{{Name: "P", Chapters: []ChapterUpload{textUpload(1, "x")}}}},
	}
	for i, in := range cases {
		if _, _, err := f.svc.CreateContent(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCreateContentDegradesOnGenerationFailure(t *testing.T) {
	f := newContentFixture()
	f.generator.fail = true
	c := f.createGATE(t)

	ch := c.Subjects[0].Chapters[0]
	if !ch.Degraded || ch.Summary != generate.FallbackSummary {
		t.Fatalf("expected fallback summary, got %+v", ch)
	}
	if len(ch.Quiz) != 1 || ch.Quiz[0].Answer != "OK" {
		t.Fatalf("expected the placeholder quiz, got %+v", ch.Quiz)
	}
}

func TestCreateContentExtractionFailureUsesPlaceholder(t *testing.T) {
	f := newContentFixture()
	c, _, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key: domain.ExamKey("GATE"),
		Subjects: []SubjectUpload{{Name: "Physics", Chapters: []ChapterUpload{
			{Number: 1, FileName: "scan.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 broken")},
		}}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch := c.Subjects[0].Chapters[0]
	if !ch.Degraded || !strings.Contains(ch.Summary, "No extractable text") {
		t.Fatalf("expected placeholder-based summary, got %+v", ch)
	}
}

func TestCreateContentUploadFailure(t *testing.T) {
	f := newContentFixture()
	f.files.putErr = errBoom
	_, _, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key:      domain.ExamKey("GATE"),
		Subjects: []SubjectUpload{{Name: "Physics", Chapters: []ChapterUpload{textUpload(1, "x")}}},
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if _, ok := f.repo.get(domain.ExamKey("GATE")); ok {
		t.Fatalf("nothing should be persisted")
	}
}

func TestCreateContentConflictCleansUploads(t *testing.T) {
	f := newContentFixture()
	f.repo.conflict = true
	_, _, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key:      domain.ExamKey("GATE"),
		Subjects: []SubjectUpload{{Name: "Physics", Chapters: []ChapterUpload{textUpload(1, "x"), textUpload(2, "y")}}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.files.deleted) != 2 || len(f.files.objects) != 0 {
		t.Fatalf("uploaded files should be removed, deleted=%v", f.files.deleted)
	}
}

func TestGetQuizzesAndFilters(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)
	_, _, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key: domain.ExamKey("GATE"),
		Subjects: []SubjectUpload{
			{Name: "Physics", Chapters: []ChapterUpload{textUpload(2, "optics")}},
			{Name: "Maths", Chapters: []ChapterUpload{textUpload(1, "algebra")}},
		},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	quizzes, err := f.svc.GetQuizzes(context.Background(), ContentQuery{Key: domain.ExamKey("GATE"), Subject: "Physics"})
	if err != nil {
		t.Fatalf("quizzes: %v", err)
	}
	if len(quizzes) != 2 || quizzes[0].ChapterNumber != 1 || quizzes[1].ChapterNumber != 2 {
		t.Fatalf("expected physics chapters 1 and 2, got %+v", quizzes)
	}
	if quizzes[0].Exam != "GATE" || quizzes[0].Subject != "Physics" || len(quizzes[0].Quiz) != 2 {
		t.Fatalf("unexpected payload %+v", quizzes[0])
	}

	one, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ExamKey("GATE"), Subject: "Physics", ChapterNumber: 2})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(one) != 1 || len(one[0].Subjects) != 1 || len(one[0].Subjects[0].Chapters) != 1 || one[0].Subjects[0].Chapters[0].Number != 2 {
		t.Fatalf("expected only physics chapter 2, got %+v", one)
	}

	none, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ExamKey("GATE"), Subject: "Chemistry"})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no match, got %+v %v", none, err)
	}
}

func TestGetContentPaginationIsCapped(t *testing.T) {
	f := newContentFixture()
	for _, exam := range []string{"A", "B", "C"} {
		_, _, err := f.svc.CreateContent(context.Background(), CreateContentInput{
			Key:      domain.ExamKey(exam),
			Subjects: []SubjectUpload{{Name: "S", Chapters: []ChapterUpload{textUpload(1, "x")}}},
		})
		if err != nil {
			t.Fatalf("create %s: %v", exam, err)
		}
	}
	all, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ContainerKey{Kind: domain.KindExam}, Limit: 50})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit should be capped at the max page size, got %d", len(all))
	}
	rest, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ContainerKey{Kind: domain.KindExam}, Skip: 2})
	if err != nil || len(rest) != 1 || rest[0].Exam != "C" {
		t.Fatalf("expected the last exam, got %+v %v", rest, err)
	}
	if _, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ContainerKey{Kind: domain.KindExam}, Skip: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative skip should be rejected, got %v", err)
	}
}

func TestGetChapterLogsNotesView(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)
	ref := ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}

	view, err := f.svc.GetChapter(context.Background(), ref, domain.Identity{UserID: "u1", UserName: "Asha"})
	if err != nil {
		t.Fatalf("get chapter: %v", err)
	}
	if !strings.HasSuffix(view.DownloadURL, "?signed=1") {
		t.Fatalf("expected a presigned url, got %q", view.DownloadURL)
	}
	records, _ := f.activity.List(context.Background(), "u1")
	if len(records) != 1 || records[0].Type != domain.ActivityNotesView || records[0].Scope != ref.Scope() {
		t.Fatalf("expected one notes-view record, got %+v", records)
	}

	if _, err := f.svc.GetChapter(context.Background(), ref, domain.Identity{}); err != nil {
		t.Fatalf("anonymous read: %v", err)
	}
	all, _ := f.activity.List(context.Background(), "")
	if len(all) != 1 {
		t.Fatalf("anonymous reads are not logged, got %d records", len(all))
	}

	_, err = f.svc.GetChapter(context.Background(), ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 9}, domain.Identity{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateChapter(t *testing.T) {
	f := newContentFixture()
	created := f.createGATE(t)
	oldKey := created.Subjects[0].Chapters[0].File.Key
	ref := ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}

	quizJSON := `[{"question":"Unit of force?","options":["Newton","Joule"],"answer":"Newton"}]`
	c, err := f.svc.UpdateChapter(context.Background(), UpdateChapterInput{Ref: ref, Quiz: &quizJSON})
	if err != nil {
		t.Fatalf("update quiz: %v", err)
	}
	ch := c.Subjects[0].Chapters[0]
	if len(ch.Quiz) != 1 || ch.Quiz[0].Answer != "Newton" {
		t.Fatalf("quiz not replaced: %+v", ch.Quiz)
	}
	if ch.File.Key != oldKey || len(f.files.deleted) != 0 {
		t.Fatalf("file should be untouched")
	}

	upload := textUpload(1, "new edition")
	c, err = f.svc.UpdateChapter(context.Background(), UpdateChapterInput{Ref: ref, File: &upload})
	if err != nil {
		t.Fatalf("update file: %v", err)
	}
	ch = c.Subjects[0].Chapters[0]
	if ch.File.Key == oldKey || ch.Summary != "summary of new edition" {
		t.Fatalf("file and summary should be replaced, got %+v", ch)
	}
	if len(ch.Quiz) != 2 {
		t.Fatalf("a new file without a quiz regenerates the quiz, got %+v", ch.Quiz)
	}
	if len(f.files.deleted) != 1 || f.files.deleted[0] != oldKey {
		t.Fatalf("old file should be deleted, got %v", f.files.deleted)
	}
}

func TestUpdateChapterErrors(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)
	badQuiz := `[{"question":"q","options":["only"],"answer":"only"}]`
	goodQuiz := `[]`

	_, err := f.svc.UpdateChapter(context.Background(), UpdateChapterInput{
		Ref: ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}, Quiz: &badQuiz})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected format error, got %v", err)
	}
	for _, ref := range []ChapterRef{
		{Key: domain.ExamKey("JEE"), Subject: "Physics", Number: 1},
		{Key: domain.ExamKey("GATE"), Subject: "Maths", Number: 1},
		{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 7},
	} {
		if _, err := f.svc.UpdateChapter(context.Background(), UpdateChapterInput{Ref: ref, Quiz: &goodQuiz}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ref %+v: expected not found, got %v", ref, err)
		}
	}
	if _, err := f.svc.UpdateChapter(context.Background(), UpdateChapterInput{
		Ref: ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty update should be rejected, got %v", err)
	}
}

func TestUpdateChapterOldFileDeleteFailureIsSwallowed(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)
	f.files.deleteErr = errBoom
	upload := textUpload(1, "v2")
	_, err := f.svc.UpdateChapter(context.Background(), UpdateChapterInput{
		Ref: ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}, File: &upload})
	if err != nil {
		t.Fatalf("delete failure must not block the update: %v", err)
	}
}

func TestDeleteChapterCascades(t *testing.T) {
	f := newContentFixture()
	created := f.createGATE(t)
	fileKey := created.Subjects[0].Chapters[0].File.Key
	ref := ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}

	if _, err := f.svc.SubmitQuiz(context.Background(), SubmitQuizInput{Ref: ref, UserID: "u1", Answers: map[string]string{"0": "Paris"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	other := ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 2}
	if _, err := f.activities.Log(context.Background(), LogActivityInput{UserID: "u2", Scope: other.Scope(), Type: domain.ActivityNotesView}); err != nil {
		t.Fatalf("log: %v", err)
	}
	f.files.deleteErr = errBoom

	c, err := f.svc.DeleteChapter(context.Background(), ref)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(c.Subject("Physics").Chapters) != 0 {
		t.Fatalf("chapter should be removed, got %+v", c.Subjects)
	}
	stored, _ := f.repo.get(domain.ExamKey("GATE"))
	if len(stored.Subjects[0].Chapters) != 0 {
		t.Fatalf("removal should be persisted")
	}
	if len(f.files.deleted) != 1 || f.files.deleted[0] != fileKey {
		t.Fatalf("file deletion should be attempted, got %v", f.files.deleted)
	}
	remaining, _ := f.activity.List(context.Background(), "")
	if len(remaining) != 1 || remaining[0].UserID != "u2" {
		t.Fatalf("only the matching scope should be purged, got %+v", remaining)
	}

	if _, err := f.svc.DeleteChapter(context.Background(), ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestDeleteChapterActivityCleanupFailureIsSwallowed(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)
	f.activity.deleteErr = errBoom
	if _, err := f.svc.DeleteChapter(context.Background(), ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}); err != nil {
		t.Fatalf("activity cleanup failure must not block deletion: %v", err)
	}
	stored, _ := f.repo.get(domain.ExamKey("GATE"))
	if len(stored.Subjects[0].Chapters) != 0 {
		t.Fatalf("chapter should still be removed")
	}
}

func TestSubmitQuizScores(t *testing.T) {
	f := newContentFixture()
	f.createGATE(t)
	ref := ChapterRef{Key: domain.ExamKey("GATE"), Subject: "Physics", Number: 1}

	rec, err := f.svc.SubmitQuiz(context.Background(), SubmitQuizInput{
		Ref: ref, UserID: "u1", UserName: "Asha",
		Answers: map[string]string{"0": "Paris", "1": "Berlin"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Result == nil || rec.Result.Score != 1 || rec.Result.Total != 2 {
		t.Fatalf("expected score 1/2, got %+v", rec.Result)
	}
	if rec.Type != domain.ActivityQuizSubmission || rec.Result.Answers["1"] != "Berlin" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := f.svc.SubmitQuiz(context.Background(), SubmitQuizInput{Ref: ref}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing user should be rejected, got %v", err)
	}
}

func TestCourseContentUsesYearAndBranch(t *testing.T) {
	f := newContentFixture()
	key := domain.CourseKey("2", "CSE")
	c, created, err := f.svc.CreateContent(context.Background(), CreateContentInput{
		Key:      key,
		Subjects: []SubjectUpload{{Name: "Networks", Chapters: []ChapterUpload{textUpload(3, "tcp/ip")}}},
	})
	if err != nil || !created {
		t.Fatalf("create course: %v created=%v", err, created)
	}
	if c.Kind != domain.KindCourse || c.Year != "2" || c.Branch != "CSE" {
		t.Fatalf("unexpected container %+v", c)
	}
	if !strings.HasPrefix(c.Subjects[0].Chapters[0].File.Key, "course/2/CSE/Networks/3/") {
		t.Fatalf("unexpected key %q", c.Subjects[0].Chapters[0].File.Key)
	}
	exams, err := f.svc.GetContent(context.Background(), ContentQuery{Key: domain.ContainerKey{Kind: domain.KindExam}})
	if err != nil || len(exams) != 0 {
		t.Fatalf("course content must not appear in exam reads, got %+v", exams)
	}
}
