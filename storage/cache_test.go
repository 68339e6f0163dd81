package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskhub-api/domain"
)

type stubBackend struct {
	listTasksFn  func(ctx context.Context, userID string) ([]domain.Task, error)
	putTaskFn    func(ctx context.Context, task domain.Task) error
	deleteTaskFn func(ctx context.Context, userID, taskID string) error
}

func (s *stubBackend) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if s.listTasksFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return s.listTasksFn(ctx, userID)
}

func (s *stubBackend) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected GetTask call")
}

func (s *stubBackend) PutTask(ctx context.Context, task domain.Task) error {
	if s.putTaskFn == nil {
		return errors.New("unexpected PutTask call")
	}
	return s.putTaskFn(ctx, task)
}

func (s *stubBackend) DeleteTask(ctx context.Context, userID, taskID string) error {
	if s.deleteTaskFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteTaskFn(ctx, userID, taskID)
}

func (s *stubBackend) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return domain.User{}, errors.New("unexpected GetUserByEmail call")
}

func (s *stubBackend) CreateUser(ctx context.Context, user domain.User) error {
	return errors.New("unexpected CreateUser call")
}

func newCacheUnderTest(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, time.Minute), mr
}

func TestCacheListTasksMissThenHit(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"
	expected := []domain.Task{{ID: "t1", UserID: userID, Title: "Write code"}}

	var calls int
	cache, mr := newCacheUnderTest(t, &stubBackend{
		listTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			if uid != userID {
				t.Fatalf("unexpected user id: %s", uid)
			}
			return append([]domain.Task(nil), expected...), nil
		},
	})

	tasks, err := cache.ListTasks(ctx, userID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(tasksCacheKey(userID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListTasks(ctx, userID)
	if err != nil {
		t.Fatalf("list cached tasks: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached tasks: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached fetch to avoid backend, calls=%d", calls)
	}
}

func TestCachePutTaskEvictsOwnersList(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	cache, mr := newCacheUnderTest(t, &stubBackend{
		listTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
		putTaskFn: func(ctx context.Context, task domain.Task) error { return nil },
	})

	if _, err := cache.ListTasks(ctx, userID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if !mr.Exists(tasksCacheKey(userID)) {
		t.Fatal("expected cache entry after list")
	}

	if err := cache.PutTask(ctx, domain.Task{ID: "t1", UserID: userID, Title: "x"}); err != nil {
		t.Fatalf("put task: %v", err)
	}
	if mr.Exists(tasksCacheKey(userID)) {
		t.Fatal("expected cache entry to be evicted after write")
	}
}

func TestCacheDeleteTaskEvictsOwnersList(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	cache, mr := newCacheUnderTest(t, &stubBackend{
		listTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1", UserID: userID}}, nil
		},
		deleteTaskFn: func(ctx context.Context, uid, taskID string) error { return nil },
	})

	if _, err := cache.ListTasks(ctx, userID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if err := cache.DeleteTask(ctx, userID, "t1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if mr.Exists(tasksCacheKey(userID)) {
		t.Fatal("expected cache entry to be evicted after delete")
	}
}

func TestCacheFailedWriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	cache, mr := newCacheUnderTest(t, &stubBackend{
		listTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
		putTaskFn: func(ctx context.Context, task domain.Task) error {
			return errors.New("table unavailable")
		},
	})

	if _, err := cache.ListTasks(ctx, userID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if err := cache.PutTask(ctx, domain.Task{ID: "t1", UserID: userID}); err == nil {
		t.Fatal("expected write error to propagate")
	}
	if !mr.Exists(tasksCacheKey(userID)) {
		t.Fatal("expected cache entry to survive a failed write")
	}
}

func TestCacheRedisDownFallsBackToBackend(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"
	expected := []domain.Task{{ID: "t1", UserID: userID}}

	var calls int
	cache, mr := newCacheUnderTest(t, &stubBackend{
		listTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			return append([]domain.Task(nil), expected...), nil
		},
	})
	mr.Close()

	tasks, err := cache.ListTasks(ctx, userID)
	if err != nil {
		t.Fatalf("expected fallback to backend, got %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if calls != 1 {
		t.Fatalf("expected backend call, got %d", calls)
	}
}

func TestCacheCorruptEntryFallsThrough(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"
	expected := []domain.Task{{ID: "t1", UserID: userID}}

	cache, mr := newCacheUnderTest(t, &stubBackend{
		listTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			return append([]domain.Task(nil), expected...), nil
		},
	})
	if err := mr.Set(tasksCacheKey(userID), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, userID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
}
