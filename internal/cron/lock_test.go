package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(RedisLockParams{Store: store, Owner: "worker-1", Logger: testLogger()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := lock.Acquire(context.Background(), "storage-gc", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = lock.Acquire(context.Background(), "storage-gc", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, ok=%v err=%v", ok, err)
	}

	lock.Release(context.Background(), "storage-gc")

	ok, err = lock.Acquire(context.Background(), "storage-gc", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected re-acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseRespectsOwner(t *testing.T) {
	store := newFakeRedisStore()
	first, err := NewRedisLock(RedisLockParams{Store: store, Owner: "worker-1", Logger: testLogger()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewRedisLock(RedisLockParams{Store: store, Owner: "worker-2", Logger: testLogger()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ok, _ := first.Acquire(context.Background(), "storage-gc", time.Minute); !ok {
		t.Fatal("expected acquire to succeed")
	}

	// a non-owner release must not free the lock
	second.Release(context.Background(), "storage-gc")

	if ok, _ := second.Acquire(context.Background(), "storage-gc", time.Minute); ok {
		t.Fatal("lock should still be held by worker-1")
	}
}
