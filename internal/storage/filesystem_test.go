package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.Write(context.Background(), "actors/a1/images/a1_0001.jpg", []byte("bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "actors/a1/images/a1_0001.jpg" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestFileStorePutReturnsPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := store.Put(context.Background(), "actors/a1/x.jpg", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want := filepath.Join(dir, "actors", "a1", "x.jpg")
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("object not on disk: %v", err)
	}
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Write(context.Background(), "a/b.jpg", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Delete(context.Background(), "a/b.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Second delete of the now-absent key must not error.
	if err := store.Delete(context.Background(), "a/b.jpg"); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "../escape.jpg", "a/../../escape.jpg"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	cleaned, err := sanitizeKey("./a//b.jpg")
	if err != nil {
		t.Fatalf("sanitizeKey: %v", err)
	}
	if cleaned != "a/b.jpg" {
		t.Fatalf("cleaned = %q", cleaned)
	}
}
