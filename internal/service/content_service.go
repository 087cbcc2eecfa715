package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/extract"
	"studyhub/portal/internal/generate"
	"studyhub/portal/internal/platform/logger"
	"studyhub/portal/internal/quiz"
	"studyhub/portal/internal/repository"
	"studyhub/portal/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ContentGenerator produces generated text for one document.
type ContentGenerator interface {
	Generate(ctx context.Context, text string, mode generate.Mode) generate.Result
}

// ChapterUpload is one chapter slot of a create request. Slots without Data
// are skipped.
type ChapterUpload struct {
	Number      int
	FileName    string
	ContentType string
	Data        []byte
}

type SubjectUpload struct {
	Name     string
	Chapters []ChapterUpload
}

type CreateContentInput struct {
	Key      domain.ContainerKey
	Subjects []SubjectUpload
}

// ChapterRef addresses a chapter (or unit) inside a container.
type ChapterRef struct {
	Key     domain.ContainerKey
	Subject string
	Number  int
}

func (r ChapterRef) Scope() domain.Scope {
	return r.Key.Scope(r.Subject, r.Number)
}

func (r ChapterRef) validate() error {
	if err := r.Key.Validate(); err != nil {
		return validationf("%v", err)
	}
	if strings.TrimSpace(r.Subject) == "" {
		return validationf("subject is required")
	}
	if r.Number <= 0 {
		return validationf("chapter number must be a positive integer")
	}
	return nil
}

// ContentQuery filters reads. Key.Kind is required; empty key fields, Subject
// and a zero ChapterNumber match everything.
type ContentQuery struct {
	Key           domain.ContainerKey
	Subject       string
	ChapterNumber int
	Skip          int
	Limit         int
}

// QuizPayload is one chapter's quiz in a flattened quiz-only read.
type QuizPayload struct {
	Kind          domain.ContainerKind  `json:"kind"`
	Exam          string                `json:"exam,omitempty"`
	Year          string                `json:"year,omitempty"`
	Branch        string                `json:"branch,omitempty"`
	Subject       string                `json:"subject"`
	ChapterNumber int                   `json:"chapterNumber"`
	Quiz          []domain.QuizQuestion `json:"quiz"`
}

// ChapterView is a chapter together with a short-lived download URL.
type ChapterView struct {
	Chapter     domain.Chapter `json:"chapter"`
	DownloadURL string         `json:"downloadUrl"`
}

// UpdateChapterInput replaces the file and/or the quiz of an existing chapter.
// Quiz is the raw JSON array supplied by the administrator.
type UpdateChapterInput struct {
	Ref  ChapterRef
	File *ChapterUpload
	Quiz *string
}

type SubmitQuizInput struct {
	Ref      ChapterRef
	UserID   string
	UserName string
	Answers  map[string]string
}

type ContentService interface {
	// CreateContent processes the uploaded chapters and creates or merges the
	// container. created reports whether a new container was inserted.
	CreateContent(ctx context.Context, in CreateContentInput) (c *domain.Container, created bool, err error)
	GetContent(ctx context.Context, q ContentQuery) ([]domain.Container, error)
	GetQuizzes(ctx context.Context, q ContentQuery) ([]QuizPayload, error)
	GetChapter(ctx context.Context, ref ChapterRef, viewer domain.Identity) (*ChapterView, error)
	UpdateChapter(ctx context.Context, in UpdateChapterInput) (*domain.Container, error)
	DeleteChapter(ctx context.Context, ref ChapterRef) (*domain.Container, error)
	SubmitQuiz(ctx context.Context, in SubmitQuizInput) (*domain.Activity, error)
}

type ContentOptions struct {
	MaxPageSize   int
	PresignExpiry time.Duration
}

type contentService struct {
	repo       repository.ContainerRepository
	files      storage.FileStorage
	generator  ContentGenerator
	activities ActivityService
	log        *logger.Logger
	opts       ContentOptions
	now        func() time.Time
}

func NewContentService(
	repo repository.ContainerRepository,
	files storage.FileStorage,
	generator ContentGenerator,
	activities ActivityService,
	log *logger.Logger,
	opts ContentOptions,
) ContentService {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 200
	}
	return &contentService{
		repo:       repo,
		files:      files,
		generator:  generator,
		activities: activities,
		log:        log,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// --- Create ---

func (s *contentService) CreateContent(ctx context.Context, in CreateContentInput) (*domain.Container, bool, error) {
	if err := validateCreate(&in); err != nil {
		return nil, false, err
	}

	subjects, uploaded, err := s.processSubjects(ctx, in)
	if err != nil {
		s.cleanupObjects(uploaded)
		return nil, false, err
	}
	if len(uploaded) == 0 {
		return nil, false, validationf("at least one chapter file is required")
	}

	created := false
	container, err := s.repo.GetByKey(ctx, in.Key)
	if errors.Is(err, repository.ErrNotFound) {
		container = domain.NewContainer(in.Key)
		created = true
	} else if err != nil {
		s.cleanupObjects(uploaded)
		return nil, false, fmt.Errorf("load %s: %w", in.Key, err)
	}

	replaced := replacedFileKeys(container, subjects)
	container.Merge(subjects)
	if err := s.save(ctx, container); err != nil {
		s.cleanupObjects(uploaded)
		return nil, false, err
	}
	s.cleanupObjects(replaced)

	s.log.Info("content saved", "container", in.Key.String(), "created", created, "chapters", len(uploaded))
	return container, created, nil
}

func validateCreate(in *CreateContentInput) error {
	if err := in.Key.Validate(); err != nil {
		return validationf("%v", err)
	}
	if len(in.Subjects) == 0 {
		return validationf("at least one subject is required")
	}
	seenSubjects := map[string]bool{}
	for i := range in.Subjects {
		subj := &in.Subjects[i]
		subj.Name = strings.TrimSpace(subj.Name)
		if subj.Name == "" {
			return validationf("subject %d has no name", i)
		}
		if seenSubjects[subj.Name] {
			return validationf("subject %q is listed twice", subj.Name)
		}
		seenSubjects[subj.Name] = true

		seenChapters := map[int]bool{}
		for _, ch := range subj.Chapters {
			if ch.Number <= 0 {
				return validationf("subject %q: chapter numbers must be positive", subj.Name)
			}
			if seenChapters[ch.Number] {
				return validationf("subject %q: chapter %d is listed twice", subj.Name, ch.Number)
			}
			seenChapters[ch.Number] = true
		}
	}
	return nil
}

// processSubjects runs the upload, extraction and generation pipeline for every
// chapter concurrently. It returns the processed subjects (in request order,
// skipping chapters without a file) and the keys of every stored object.
func (s *contentService) processSubjects(ctx context.Context, in CreateContentInput) ([]domain.Subject, []string, error) {
	results := make([][]*domain.Chapter, len(in.Subjects))
	for si, subj := range in.Subjects {
		results[si] = make([]*domain.Chapter, len(subj.Chapters))
	}

	var (
		mu       sync.Mutex
		uploaded []string
	)
	eg, egCtx := errgroup.WithContext(ctx)
	for si, subj := range in.Subjects {
		for ci, upload := range subj.Chapters {
			if len(upload.Data) == 0 {
				continue
			}
			eg.Go(func() error {
				ref := ChapterRef{Key: in.Key, Subject: subj.Name, Number: upload.Number}
				file, err := s.storeFile(egCtx, ref, upload)
				if err != nil {
					return err
				}
				mu.Lock()
				uploaded = append(uploaded, file.Key)
				mu.Unlock()

				ch := s.buildChapter(egCtx, ref, upload, file, true)
				results[si][ci] = &ch
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, uploaded, err
	}

	subjects := make([]domain.Subject, 0, len(in.Subjects))
	for si, subj := range in.Subjects {
		chapters := make([]domain.Chapter, 0, len(subj.Chapters))
		for _, ch := range results[si] {
			if ch != nil {
				chapters = append(chapters, *ch)
			}
		}
		if len(chapters) > 0 {
			subjects = append(subjects, domain.Subject{Name: subj.Name, Chapters: chapters})
		}
	}
	return subjects, uploaded, nil
}

func (s *contentService) storeFile(ctx context.Context, ref ChapterRef, upload ChapterUpload) (domain.FileRef, error) {
	ext := strings.ToLower(path.Ext(upload.FileName))
	if ext == "" {
		ext = ".pdf"
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	key := fmt.Sprintf("%s/%s/%d/%s%s", ref.Key.String(), ref.Subject, ref.Number, uuid.NewString(), ext)

	url, err := s.files.PutObject(ctx, key, contentType, upload.Data)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("%w: store file for %s chapter %d: %v", ErrUpstream, ref.Subject, ref.Number, err)
	}
	return domain.FileRef{URL: url, Key: key, Name: upload.FileName}, nil
}

// buildChapter extracts text and generates the summary and, when withQuiz is
// set, the quiz concurrently. Failures degrade the chapter instead of failing.
func (s *contentService) buildChapter(ctx context.Context, ref ChapterRef, upload ChapterUpload, file domain.FileRef, withQuiz bool) domain.Chapter {
	log := s.log.With("container", ref.Key.String(), "subject", ref.Subject, "chapter", ref.Number)
	degraded := false

	text, err := extract.Extract(upload.FileName, upload.ContentType, upload.Data)
	if err != nil {
		log.Warn("text extraction failed, using placeholder", "error", err)
		text = extract.Placeholder
		degraded = true
	}

	var summary, quizText generate.Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		summary = s.generator.Generate(ctx, text, generate.ModeSummary)
	}()
	if withQuiz {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quizText = s.generator.Generate(ctx, text, generate.ModeQuiz)
		}()
	}
	wg.Wait()

	ch := domain.Chapter{
		Number:    ref.Number,
		File:      file,
		Summary:   summary.Text,
		Degraded:  degraded || summary.Degraded,
		UpdatedAt: s.now(),
	}
	if withQuiz {
		ch.Quiz = quiz.SanitizeParts(quizText.Parts)
		ch.Degraded = ch.Degraded || quizText.Degraded
	}
	if ch.Degraded {
		log.Warn("chapter content degraded", "summary_reason", summary.Reason, "quiz_reason", quizText.Reason)
	}
	return ch
}

// replacedFileKeys lists stored files of existing chapters that incoming
// chapters will overwrite.
func replacedFileKeys(c *domain.Container, incoming []domain.Subject) []string {
	var keys []string
	for _, in := range incoming {
		existing := c.Subject(in.Name)
		if existing == nil {
			continue
		}
		for _, ch := range in.Chapters {
			if cur := existing.Chapter(ch.Number); cur != nil && cur.File.Key != "" && cur.File.Key != ch.File.Key {
				keys = append(keys, cur.File.Key)
			}
		}
	}
	return keys
}

// --- Read ---

func (s *contentService) GetContent(ctx context.Context, q ContentQuery) ([]domain.Container, error) {
	filter, err := s.toFilter(q)
	if err != nil {
		return nil, err
	}
	containers, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find content: %w", err)
	}

	out := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		if narrowed, ok := narrow(c, q.Subject, q.ChapterNumber); ok {
			out = append(out, narrowed)
		}
	}
	return out, nil
}

func (s *contentService) GetQuizzes(ctx context.Context, q ContentQuery) ([]QuizPayload, error) {
	containers, err := s.GetContent(ctx, q)
	if err != nil {
		return nil, err
	}
	payloads := []QuizPayload{}
	for _, c := range containers {
		for _, subj := range c.Subjects {
			for _, ch := range subj.Chapters {
				quizList := ch.Quiz
				if quizList == nil {
					quizList = []domain.QuizQuestion{}
				}
				payloads = append(payloads, QuizPayload{
					Kind:          c.Kind,
					Exam:          c.Exam,
					Year:          c.Year,
					Branch:        c.Branch,
					Subject:       subj.Name,
					ChapterNumber: ch.Number,
					Quiz:          quizList,
				})
			}
		}
	}
	return payloads, nil
}

func (s *contentService) toFilter(q ContentQuery) (repository.ContainerFilter, error) {
	if q.Key.Kind != domain.KindExam && q.Key.Kind != domain.KindCourse {
		return repository.ContainerFilter{}, validationf("unknown content kind %q", q.Key.Kind)
	}
	if q.Skip < 0 || q.Limit < 0 || q.ChapterNumber < 0 {
		return repository.ContainerFilter{}, validationf("skip, limit and chapter number must not be negative")
	}
	limit := q.Limit
	if limit == 0 || limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	return repository.ContainerFilter{
		Kind:    q.Key.Kind,
		Exam:    q.Key.Exam,
		Year:    q.Key.Year,
		Branch:  q.Key.Branch,
		Subject: q.Subject,
		Skip:    int64(q.Skip),
		Limit:   int64(limit),
	}, nil
}

// narrow keeps only the requested subject and chapter. It reports false when
// a filter was given and nothing in c matches it.
func narrow(c domain.Container, subject string, chapter int) (domain.Container, bool) {
	if subject == "" && chapter == 0 {
		return c, true
	}
	subjects := make([]domain.Subject, 0, len(c.Subjects))
	for _, subj := range c.Subjects {
		if subject != "" && subj.Name != subject {
			continue
		}
		if chapter == 0 {
			subjects = append(subjects, subj)
			continue
		}
		if ch := subj.Chapter(chapter); ch != nil {
			subjects = append(subjects, domain.Subject{Name: subj.Name, Chapters: []domain.Chapter{*ch}})
		}
	}
	c.Subjects = subjects
	return c, len(subjects) > 0
}

func (s *contentService) GetChapter(ctx context.Context, ref ChapterRef, viewer domain.Identity) (*ChapterView, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	container, err := s.load(ctx, ref.Key)
	if err != nil {
		return nil, err
	}
	_, ch, err := locate(container, ref)
	if err != nil {
		return nil, err
	}

	view := &ChapterView{Chapter: *ch, DownloadURL: ch.File.URL}
	if ch.File.Key != "" {
		url, err := s.files.GeneratePresignedDownloadURL(ctx, ch.File.Key, s.opts.PresignExpiry)
		if err != nil {
			s.log.Warn("presign failed, returning stored url", "key", ch.File.Key, "error", err)
		} else {
			view.DownloadURL = url
		}
	}

	if viewer.UserID != "" {
		_, err := s.activities.Log(ctx, LogActivityInput{
			UserID:   viewer.UserID,
			UserName: viewer.UserName,
			Scope:    ref.Scope(),
			Type:     domain.ActivityNotesView,
		})
		if err != nil {
			s.log.Warn("notes-view not logged", "scope", ref.Scope(), "error", err)
		}
	}
	return view, nil
}

// --- Update ---

func (s *contentService) UpdateChapter(ctx context.Context, in UpdateChapterInput) (*domain.Container, error) {
	if err := in.Ref.validate(); err != nil {
		return nil, err
	}
	hasFile := in.File != nil && len(in.File.Data) > 0
	if !hasFile && in.Quiz == nil {
		return nil, validationf("nothing to update: provide a file and/or a quiz")
	}

	var replacement []domain.QuizQuestion
	if in.Quiz != nil {
		parsed, err := quiz.ParseStrict(*in.Quiz)
		if err != nil {
			return nil, validationf("invalid quiz format: %v", err)
		}
		replacement = parsed
	}

	container, err := s.load(ctx, in.Ref.Key)
	if err != nil {
		return nil, err
	}
	_, ch, err := locate(container, in.Ref)
	if err != nil {
		return nil, err
	}

	var newKey, oldKey string
	if hasFile {
		file, err := s.storeFile(ctx, in.Ref, *in.File)
		if err != nil {
			return nil, err
		}
		newKey, oldKey = file.Key, ch.File.Key

		// A new document gets a fresh quiz unless the request supplies one.
		rebuilt := s.buildChapter(ctx, in.Ref, *in.File, file, in.Quiz == nil)
		ch.File = rebuilt.File
		ch.Summary = rebuilt.Summary
		ch.Degraded = rebuilt.Degraded
		if in.Quiz == nil {
			ch.Quiz = rebuilt.Quiz
		}
	}
	if in.Quiz != nil {
		ch.Quiz = replacement
	}
	ch.UpdatedAt = s.now()

	if err := s.save(ctx, container); err != nil {
		if newKey != "" {
			s.cleanupObjects([]string{newKey})
		}
		return nil, err
	}
	if oldKey != "" && oldKey != newKey {
		s.cleanupObjects([]string{oldKey})
	}
	return container, nil
}

// --- Delete ---

func (s *contentService) DeleteChapter(ctx context.Context, ref ChapterRef) (*domain.Container, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	container, err := s.load(ctx, ref.Key)
	if err != nil {
		return nil, err
	}
	subj, _, err := locate(container, ref)
	if err != nil {
		return nil, err
	}
	removed, _ := subj.RemoveChapter(ref.Number)

	if err := s.save(ctx, container); err != nil {
		return nil, err
	}

	if removed.File.Key != "" {
		s.cleanupObjects([]string{removed.File.Key})
	}
	if n, err := s.activities.DeleteForScope(ctx, ref.Scope()); err != nil {
		s.log.Warn("activity cleanup failed", "scope", ref.Scope(), "error", err)
	} else {
		s.log.Info("activity cleanup", "scope", ref.Scope(), "deleted", n)
	}
	return container, nil
}

// --- Quiz submission ---

func (s *contentService) SubmitQuiz(ctx context.Context, in SubmitQuizInput) (*domain.Activity, error) {
	if err := in.Ref.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, validationf("userId is required")
	}
	container, err := s.load(ctx, in.Ref.Key)
	if err != nil {
		return nil, err
	}
	_, ch, err := locate(container, in.Ref)
	if err != nil {
		return nil, err
	}

	answers := in.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	score, total := quiz.Score(ch.Quiz, answers)
	return s.activities.Log(ctx, LogActivityInput{
		UserID:   in.UserID,
		UserName: in.UserName,
		Scope:    in.Ref.Scope(),
		Type:     domain.ActivityQuizSubmission,
		Result:   &domain.QuizResult{Score: score, Total: total, Answers: answers},
	})
}

// --- helpers ---

func (s *contentService) load(ctx context.Context, key domain.ContainerKey) (*domain.Container, error) {
	container, err := s.repo.GetByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("%s %s", key.Kind, describeKey(key))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return container, nil
}

func (s *contentService) save(ctx context.Context, c *domain.Container) error {
	err := s.repo.Save(ctx, c)
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, c.Key())
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", c.Key(), err)
	}
	return nil
}

func locate(c *domain.Container, ref ChapterRef) (*domain.Subject, *domain.Chapter, error) {
	subj := c.Subject(ref.Subject)
	if subj == nil {
		return nil, nil, notFoundf("subject %q", ref.Subject)
	}
	ch := subj.Chapter(ref.Number)
	if ch == nil {
		return nil, nil, notFoundf("chapter %d of subject %q", ref.Number, ref.Subject)
	}
	return subj, ch, nil
}

func describeKey(k domain.ContainerKey) string {
	if k.Kind == domain.KindCourse {
		return fmt.Sprintf("year %q branch %q", k.Year, k.Branch)
	}
	return fmt.Sprintf("%q", k.Exam)
}

// cleanupObjects deletes stored files best-effort; failures are only logged.
func (s *contentService) cleanupObjects(keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.files.DeleteObject(ctx, key); err != nil {
			s.log.Warn("file cleanup failed", "key", key, "error", err)
		}
	}
}
