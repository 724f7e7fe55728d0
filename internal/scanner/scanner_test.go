package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/lumipallolabs/indexd/internal/store"
	"github.com/lumipallolabs/indexd/internal/writer"
)

func testHandle(t *testing.T) (*writer.Handle, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w := writer.New(s, nil)
	h := w.Handle()
	t.Cleanup(h.Shutdown)
	return h, s
}

func TestScanVolumeScenarioS1(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.txt"), make([]byte, 200), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "c.txt"), make([]byte, 50), 0644); err != nil {
		t.Fatal(err)
	}

	h, s := testHandle(t)
	log := logrus.NewEntry(logrus.New())

	handle := ScanVolume(context.Background(), root, h, log)
	<-handle.Done()
	if err := handle.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	h.Flush()

	children, err := s.ListEntriesByParent(root)
	if err != nil {
		t.Fatalf("ListEntriesByParent failed: %v", err)
	}
	if len(children) != 3 {
		t.Errorf("expected 3 direct children, got %d", len(children))
	}
}

func TestScanVolumeIndexesNonExcludedFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "keep"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "keep", "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	h, s := testHandle(t)
	log := logrus.NewEntry(logrus.New())

	handle := ScanVolume(context.Background(), root, h, log)
	<-handle.Done()
	h.Flush()

	if _, err := s.GetEntry(filepath.Join(root, "keep", "f.txt")); err != nil {
		t.Errorf("expected kept file indexed: %v", err)
	}
}

func TestScanVolumeCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		if err := os.WriteFile(filepath.Join(root, string(rune('a'+i%26))+".txt"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	h, _ := testHandle(t)
	log := logrus.NewEntry(logrus.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handle := ScanVolume(ctx, root, h, log)
	<-handle.Done()
	if !handle.Cancelled() {
		t.Error("expected scan to observe cancellation")
	}
}
