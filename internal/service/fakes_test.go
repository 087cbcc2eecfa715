package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/generate"
	"studyhub/portal/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memContainerRepo stores deep copies so tests observe only saved state.
type memContainerRepo struct {
	mu       sync.Mutex
	items    map[string]domain.Container
	saveErr  error
	conflict bool
}

func newMemContainerRepo() *memContainerRepo {
	return &memContainerRepo{items: map[string]domain.Container{}}
}

func (r *memContainerRepo) GetByKey(_ context.Context, key domain.ContainerKey) (*domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[key.String()]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneContainer(c)
	return &cp, nil
}

func (r *memContainerRepo) Find(_ context.Context, f repository.ContainerFilter) ([]domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []domain.Container
	for _, k := range keys {
		c := r.items[k]
		if f.Kind != "" && c.Kind != f.Kind || f.Exam != "" && c.Exam != f.Exam ||
			f.Year != "" && c.Year != f.Year || f.Branch != "" && c.Branch != f.Branch {
			continue
		}
		if f.Subject != "" && c.Subject(f.Subject) == nil {
			continue
		}
		out = append(out, cloneContainer(c))
	}
	if f.Skip > 0 {
		if int(f.Skip) >= len(out) {
			return []domain.Container{}, nil
		}
		out = out[f.Skip:]
	}
	if f.Limit > 0 && int(f.Limit) < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memContainerRepo) Save(_ context.Context, c *domain.Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.conflict {
		return repository.ErrConflict
	}
	key := c.Key().String()
	stored, exists := r.items[key]
	if c.ID.IsZero() {
		if exists {
			return repository.ErrConflict
		}
		c.ID = primitive.NewObjectID()
		c.Version = 1
	} else {
		if !exists || stored.Version != c.Version {
			return repository.ErrConflict
		}
		c.Version++
	}
	r.items[key] = cloneContainer(*c)
	return nil
}

func (r *memContainerRepo) get(key domain.ContainerKey) (domain.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[key.String()]
	return cloneContainer(c), ok
}

func cloneContainer(c domain.Container) domain.Container {
	out := c
	out.Subjects = make([]domain.Subject, len(c.Subjects))
	for i, s := range c.Subjects {
		chapters := make([]domain.Chapter, len(s.Chapters))
		copy(chapters, s.Chapters)
		out.Subjects[i] = domain.Subject{Name: s.Name, Chapters: chapters}
	}
	return out
}

type memActivityRepo struct {
	mu        sync.Mutex
	records   []domain.Activity
	deleteErr error
}

func (r *memActivityRepo) Create(_ context.Context, a *domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = primitive.NewObjectID()
	r.records = append(r.records, *a)
	return nil
}

func (r *memActivityRepo) List(_ context.Context, userID string) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Activity{}
	for _, rec := range r.records {
		if userID == "" || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memActivityRepo) DeleteByScope(_ context.Context, scope domain.Scope) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	kept := r.records[:0]
	var n int64
	for _, rec := range r.records {
		if rec.Scope == scope {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}

type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	putErr    error
	deleteErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) PutObject(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = data
	return "https://files.test/" + key, nil
}

func (s *memStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key + "?signed=1", nil
}

func (s *memStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

// fakeGenerator returns a summary derived from the text and a fixed quiz.
type fakeGenerator struct {
	quizParts []string
	fail      bool
}

func (g *fakeGenerator) Generate(_ context.Context, text string, mode generate.Mode) generate.Result {
	if g.fail {
		if mode == generate.ModeQuiz {
			return generate.Result{Text: generate.FallbackQuiz, Parts: []string{generate.FallbackQuiz}, Degraded: true, Reason: "down"}
		}
		return generate.Result{Text: generate.FallbackSummary, Parts: []string{generate.FallbackSummary}, Degraded: true, Reason: "down"}
	}
	if mode == generate.ModeQuiz {
		return generate.Result{Text: strings.Join(g.quizParts, "\n\n"), Parts: g.quizParts}
	}
	return generate.Result{Text: "summary of " + text, Parts: []string{"summary of " + text}}
}

var errBoom = errors.New("boom")

const twoQuestionQuiz = `{"quiz":[
	{"question":"Capital of France?","options":["Paris","Berlin"],"answer":"Paris"},
	{"question":"Capital of Spain?","options":["Madrid","Berlin"],"answer":"Madrid"}]}`
