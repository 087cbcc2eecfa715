package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/repository"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestContainerRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	db, cleanup := startMongo(t, ctx)
	defer cleanup()

	if err := EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	repo := NewMongoContainerRepository(db)

	c := domain.NewContainer(domain.ExamKey("GATE"))
	c.Merge([]domain.Subject{{Name: "Physics", Chapters: []domain.Chapter{{Number: 1, Summary: "s"}}}})
	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if c.Version != 1 {
		t.Fatalf("expected version 1 after insert, got %d", c.Version)
	}

	got, err := repo.GetByKey(ctx, domain.ExamKey("GATE"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Subjects) != 1 || got.Subjects[0].Chapters[0].Summary != "s" {
		t.Fatalf("unexpected aggregate: %+v", got)
	}

	stale := *got
	got.Subjects[0].Chapters[0].Summary = "updated"
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := repo.Save(ctx, &stale); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict on stale save, got %v", err)
	}

	dup := domain.NewContainer(domain.ExamKey("GATE"))
	if err := repo.Save(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict on duplicate key, got %v", err)
	}

	course := domain.NewContainer(domain.CourseKey("2", "CSE"))
	course.Merge([]domain.Subject{{Name: "Networks", Chapters: []domain.Chapter{{Number: 1}}}})
	if err := repo.Save(ctx, course); err != nil {
		t.Fatalf("insert course: %v", err)
	}

	all, err := repo.Find(ctx, repository.ContainerFilter{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(all))
	}
	bySubject, err := repo.Find(ctx, repository.ContainerFilter{Subject: "Networks"})
	if err != nil {
		t.Fatalf("find subject: %v", err)
	}
	if len(bySubject) != 1 || bySubject[0].Kind != domain.KindCourse {
		t.Fatalf("expected the course only, got %+v", bySubject)
	}

	if _, err := repo.GetByKey(ctx, domain.ExamKey("JEE")); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActivityRepositoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	db, cleanup := startMongo(t, ctx)
	defer cleanup()

	repo := NewMongoActivityRepository(db)
	scope := domain.ExamKey("GATE").Scope("Physics", 1)
	other := domain.ExamKey("GATE").Scope("Physics", 2)
	base := time.Now().UTC().Truncate(time.Millisecond)

	records := []*domain.Activity{
		{UserID: "u1", Scope: scope, Type: domain.ActivityNotesView, CreatedAt: base},
		{UserID: "u1", Scope: scope, Type: domain.ActivityQuizSubmission, CreatedAt: base.Add(time.Second),
			Result: &domain.QuizResult{Score: 1, Total: 2, Answers: map[string]string{"0": "Paris", "1": "Berlin"}}},
		{UserID: "u2", Scope: other, Type: domain.ActivityNotesView, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	mine, err := repo.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 || mine[0].Type != domain.ActivityQuizSubmission {
		t.Fatalf("expected u1 records newest first, got %+v", mine)
	}
	if mine[0].Result == nil || mine[0].Result.Answers["1"] != "Berlin" {
		t.Fatalf("quiz result not round-tripped: %+v", mine[0].Result)
	}

	deleted, err := repo.DeleteByScope(ctx, scope)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	all, err := repo.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 || all[0].UserID != "u2" {
		t.Fatalf("expected only the other scope to remain, got %+v", all)
	}
}

func startMongo(t *testing.T, ctx context.Context) (*mongo.Database, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start mongo: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	client, err := ConnectDB(fmt.Sprintf("mongodb://%s:%s", host, port.Port()))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect: %v", err)
	}
	return client.Database("portal_test"), func() {
		_ = DisconnectDB(client)
		_ = container.Terminate(ctx)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
