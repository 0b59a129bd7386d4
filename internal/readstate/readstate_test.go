package readstate

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/streamsync/internal/core"
)

type backendFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]backendFactory {
	t.Helper()
	out := map[string]backendFactory{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			st, err := OpenSQLite(filepath.Join(t.TempDir(), "readstate.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
		"pebble": func(t *testing.T) Store {
			st, err := OpenPebble(filepath.Join(t.TempDir(), "readstate.pebble"))
			if err != nil {
				t.Fatalf("open pebble: %v", err)
			}
			return st
		},
	}
	if addr := os.Getenv("STREAMSYNC_TEST_REDIS_ADDR"); addr != "" {
		out["redis"] = func(t *testing.T) Store {
			st, err := NewRedis(addr, "", 0)
			if err != nil {
				t.Fatalf("open redis: %v", err)
			}
			st.prefix = "streamsync:test:" + t.Name() + ":"
			t.Cleanup(func() {
				_ = st.Delete("c1")
				_ = st.Delete("c2")
			})
			return st
		}
	}
	return out
}

func TestStoreWatermarkIsMonotonic(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()

			if _, ok, err := st.LastRead("c1"); err != nil || ok {
				t.Fatalf("expected no watermark, got ok=%v err=%v", ok, err)
			}

			moved, err := st.SetLastRead("c1", 10)
			if err != nil || !moved {
				t.Fatalf("first set: moved=%v err=%v", moved, err)
			}
			moved, err = st.SetLastRead("c1", 7)
			if err != nil {
				t.Fatalf("lower set: %v", err)
			}
			if moved {
				t.Fatal("expected lower watermark to be ignored")
			}
			moved, _ = st.SetLastRead("c1", 10)
			if moved {
				t.Fatal("expected equal watermark to be ignored")
			}

			id, ok, err := st.LastRead("c1")
			if err != nil || !ok || id != 10 {
				t.Fatalf("expected 10, got %d ok=%v err=%v", id, ok, err)
			}

			if _, err := st.SetLastRead("c1", 12); err != nil {
				t.Fatalf("raise: %v", err)
			}
			id, _, _ = st.LastRead("c1")
			if id != 12 {
				t.Fatalf("expected 12, got %d", id)
			}
		})
	}
}

func TestStoreUnreadCounter(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()

			for i := 1; i <= 3; i++ {
				n, err := st.IncrementUnreadCount("c1")
				if err != nil {
					t.Fatalf("increment: %v", err)
				}
				if n != i {
					t.Fatalf("expected %d, got %d", i, n)
				}
			}
			if n, _ := st.UnreadCount("c2"); n != 0 {
				t.Fatalf("expected other conversation untouched, got %d", n)
			}

			if err := st.SetUnreadCount("c1", 5); err != nil {
				t.Fatalf("set: %v", err)
			}
			if n, _ := st.UnreadCount("c1"); n != 5 {
				t.Fatalf("expected 5, got %d", n)
			}
			if err := st.ClearUnreadCount("c1"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if n, _ := st.UnreadCount("c1"); n != 0 {
				t.Fatalf("expected 0, got %d", n)
			}
		})
	}
}

func TestStoreWatermarkSurvivesCounterWrites(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()

			if _, err := st.SetLastRead("c1", 40); err != nil {
				t.Fatalf("set: %v", err)
			}
			if _, err := st.IncrementUnreadCount("c1"); err != nil {
				t.Fatalf("increment: %v", err)
			}
			if err := st.ClearUnreadCount("c1"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			id, ok, _ := st.LastRead("c1")
			if !ok || id != 40 {
				t.Fatalf("expected watermark 40, got %d ok=%v", id, ok)
			}
		})
	}
}

func TestPebbleConcurrentIncrements(t *testing.T) {
	st, err := OpenPebble(filepath.Join(t.TempDir(), "rs.pebble"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.IncrementUnreadCount("c1"); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := st.UnreadCount("c1"); n != 20 {
		t.Fatalf("expected 20, got %d", n)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readstate.db")
	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.SetLastRead("c1", 99); err != nil {
		t.Fatalf("set: %v", err)
	}
	st.Close()

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	id, ok, _ := reopened.LastRead("c1")
	if !ok || id != 99 {
		t.Fatalf("expected 99 after reopen, got %d ok=%v", id, ok)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		cfg     core.ReadStateConfig
		want    string
		wantErr bool
	}{
		{cfg: core.ReadStateConfig{Backend: "memory"}, want: "*readstate.Memory"},
		{cfg: core.ReadStateConfig{}, want: "*readstate.Memory"},
		{cfg: core.ReadStateConfig{Backend: "sqlite", Path: filepath.Join(dir, "a.db")}, want: "*readstate.SQLite"},
		{cfg: core.ReadStateConfig{Backend: "pebble", Path: filepath.Join(dir, "b.pebble")}, want: "*readstate.Pebble"},
		{cfg: core.ReadStateConfig{Backend: "etcd"}, wantErr: true},
	}
	for _, tc := range cases {
		st, err := Open(tc.cfg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for backend %q", tc.cfg.Backend)
			}
			continue
		}
		if err != nil {
			t.Fatalf("open %q: %v", tc.cfg.Backend, err)
		}
		got := typeName(st)
		st.Close()
		if got != tc.want {
			t.Fatalf("backend %q: expected %s, got %s", tc.cfg.Backend, tc.want, got)
		}
	}
}

func typeName(st Store) string {
	switch st.(type) {
	case *Memory:
		return "*readstate.Memory"
	case *SQLite:
		return "*readstate.SQLite"
	case *Pebble:
		return "*readstate.Pebble"
	case *Redis:
		return "*readstate.Redis"
	}
	return "unknown"
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readstate.db")

	calls := make(chan struct{}, 10)
	w := NewWatcher(path, 50*time.Millisecond, func() { calls <- struct{}{} }, nil)
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Unrelated files are ignored.
	_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644)

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change callback")
	}
	select {
	case <-calls:
		t.Fatal("expected writes to be collapsed into one callback")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestListAndDelete(t *testing.T) {
	for name, open := range backends(t) {
		if name == "redis" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()

			if _, err := st.SetLastRead("c1", 5); err != nil {
				t.Fatalf("set: %v", err)
			}
			if _, err := st.IncrementUnreadCount("c2"); err != nil {
				t.Fatalf("increment: %v", err)
			}

			states, err := st.(Lister).List()
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(states) != 2 {
				t.Fatalf("expected 2 states, got %+v", states)
			}

			if err := st.(Deleter).Delete("c1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := st.LastRead("c1"); ok {
				t.Fatal("watermark survived delete")
			}
			states, _ = st.(Lister).List()
			if len(states) != 1 || states[0].ConversationID != "c2" || states[0].UnreadCount != 1 {
				t.Fatalf("after delete: %+v", states)
			}
		})
	}
}
