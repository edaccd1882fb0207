package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type failingKV struct {
	err error
}

func (f failingKV) Get(context.Context, ...string) (map[string]string, error) { return nil, f.err }
func (f failingKV) SetMany(context.Context, map[string]string) error        { return f.err }
func (f failingKV) Delete(context.Context, ...string) error                 { return f.err }

func newRedisKVTest(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisKV(rdb, "test"), mr
}

func backends(t *testing.T) map[string]KV {
	t.Helper()
	dir := t.TempDir()

	redisKV, _ := newRedisKVTest(t)

	sqliteKV, err := OpenSQLiteKV(filepath.Join(dir, "creds.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteKV.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"file":   NewFileKV(filepath.Join(dir, "nested", "credentials.json")),
		"redis":  redisKV,
		"sqlite": sqliteKV,
	}
}

func TestStoreRoundTripAcrossBackends(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(kv)

			if _, ok, err := store.Load(ctx); err != nil || ok {
				t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
			}

			if err := store.Save(ctx, Credential{Token: "abc", Role: "admin"}); err != nil {
				t.Fatalf("save: %v", err)
			}
			cred, ok, err := store.Load(ctx)
			if err != nil || !ok {
				t.Fatalf("load after save: ok=%v err=%v", ok, err)
			}
			if cred.Token != "abc" || cred.Role != "admin" {
				t.Fatalf("unexpected credential %+v", cred)
			}

			if err := store.Save(ctx, Credential{Token: "def", Role: "user"}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			cred, _, _ = store.Load(ctx)
			if cred.Token != "def" || cred.Role != "user" {
				t.Fatalf("expected overwritten credential, got %+v", cred)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("second clear: %v", err)
			}
			if _, ok, err := store.Load(ctx); err != nil || ok {
				t.Fatalf("expected cleared store, ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	filePath := filepath.Join(dir, "credentials.json")
	if err := NewStore(NewFileKV(filePath)).Save(ctx, Credential{Token: "t1", Role: "user"}); err != nil {
		t.Fatalf("file save: %v", err)
	}
	cred, ok, err := NewStore(NewFileKV(filePath)).Load(ctx)
	if err != nil || !ok || cred.Token != "t1" {
		t.Fatalf("file reopen: cred=%+v ok=%v err=%v", cred, ok, err)
	}

	dbPath := filepath.Join(dir, "creds.db")
	first, err := OpenSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := NewStore(first).Save(ctx, Credential{Token: "t2", Role: "admin"}); err != nil {
		t.Fatalf("sqlite save: %v", err)
	}
	_ = first.Close()

	second, err := OpenSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer second.Close()
	cred, ok, err = NewStore(second).Load(ctx)
	if err != nil || !ok || cred.Role != "admin" {
		t.Fatalf("sqlite reopen: cred=%+v ok=%v err=%v", cred, ok, err)
	}
}

func TestStoreHalfPairIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if err := kv.SetMany(ctx, map[string]string{KeyToken: "orphan"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, ok, err := NewStore(kv).Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("token without role must be reported as absent")
	}
}

func TestStoreRejectsIncompleteSave(t *testing.T) {
	store := NewStore(NewMemoryKV())
	if err := store.Save(context.Background(), Credential{Token: "abc"}); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if err := store.Save(context.Background(), Credential{Role: "admin"}); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestStoreBackendFailureWrapsUnavailable(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	store := NewStore(failingKV{err: boom})

	_, ok, err := store.Load(ctx)
	if ok {
		t.Fatal("failed load must report absent credential")
	}
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped ErrUnavailable, got %v", err)
	}
	if err := store.Save(ctx, Credential{Token: "a", Role: "b"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on save, got %v", err)
	}
	if err := store.Clear(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on clear, got %v", err)
	}
}

func TestRedisKVUsesPrefixedKeys(t *testing.T) {
	kv, mr := newRedisKVTest(t)
	store := NewStore(kv)
	if err := store.Save(context.Background(), Credential{Token: "abc", Role: "admin"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := mr.Get("test:token"); got != "abc" {
		t.Fatalf("expected test:token=abc, got %q", got)
	}
	if got, _ := mr.Get("test:role"); got != "admin" {
		t.Fatalf("expected test:role=admin, got %q", got)
	}
}

func TestRedisKVServerDown(t *testing.T) {
	kv, mr := newRedisKVTest(t)
	mr.Close()

	_, ok, err := NewStore(kv).Load(context.Background())
	if ok || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable absent credential, ok=%v err=%v", ok, err)
	}
}

func TestFileKVCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, ok, err := NewStore(NewFileKV(path)).Load(context.Background())
	if ok || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable absent credential, ok=%v err=%v", ok, err)
	}
}

func TestFileKVPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := NewStore(NewFileKV(path)).Save(context.Background(), Credential{Token: "a", Role: "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}
