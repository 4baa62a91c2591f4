package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcher_ReportsSettledCSV(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	var got []string
	w := NewWatcher(dir, []string{".csv"}, func(path string) {
		mu.Lock()
		got = append(got, path)
		mu.Unlock()
	}, WithDebounce(50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	batch := filepath.Join(dir, "batch.csv")
	if err := os.WriteFile(batch, []byte("id,title\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// A non-matching extension must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("batch file was never reported")
		case <-time.After(20 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, p := range got {
		if filepath.Base(p) != "batch.csv" {
			t.Errorf("unexpected path reported: %s", p)
		}
	}
}

func TestWatcher_DebouncesRewrites(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	count := 0
	w := NewWatcher(dir, []string{".csv"}, func(path string) {
		mu.Lock()
		count++
		mu.Unlock()
	}, WithDebounce(150*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	batch := filepath.Join(dir, "batch.csv")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(batch, []byte("id,title\nrow\n"), 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected one settled callback, got %d", count)
	}
}
