package storage

import (
	"bytes"
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() = %v", err)
	}
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)

	data := []byte("fake video bytes")
	info, err := store.Save("swing.mp4", "video/mp4", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if info.ID == "" {
		t.Fatal("no ID assigned")
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", info.Size, len(data))
	}
	if info.Name != "swing.mp4" || info.MimeType != "video/mp4" {
		t.Errorf("metadata = %q/%q", info.Name, info.MimeType)
	}

	got, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.ID != info.ID {
		t.Errorf("Get() ID = %q, want %q", got.ID, info.ID)
	}

	path, err := store.GetFilePath(info.ID)
	if err != nil {
		t.Fatalf("GetFilePath() = %v", err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Error("stored bytes differ from input")
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("nope"); err == nil {
		t.Error("Get() on missing id succeeded")
	}
	if _, err := store.GetFilePath("nope"); err == nil {
		t.Error("GetFilePath() on missing id succeeded")
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)

	var ids []string
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		info, err := store.SaveBytes(name, "video/mp4", []byte(name))
		if err != nil {
			t.Fatalf("SaveBytes(%s) = %v", name, err)
		}
		ids = append(ids, info.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List(2) = %d files, want 2", len(list))
	}
	if list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Error("List() not ordered newest first")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	info, _ := store.SaveBytes("swing.mp4", "video/mp4", []byte("v"))
	path, _ := store.GetFilePath(info.ID)

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := store.Get(info.ID); err == nil {
		t.Error("deleted file still registered")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("deleted file still on disk")
	}
	if err := store.Delete(info.ID); err == nil {
		t.Error("double delete succeeded")
	}
}

func TestChunkedUpload(t *testing.T) {
	store := newTestStore(t)

	chunks := [][]byte{[]byte("first-"), []byte("second-"), []byte("third")}
	for i, chunk := range chunks {
		if err := store.SaveChunk("upload-1", i, chunk); err != nil {
			t.Fatalf("SaveChunk(%d) = %v", i, err)
		}
	}

	info, err := store.CompleteChunkedUpload("upload-1", "swing.mp4", "video/mp4", len(chunks))
	if err != nil {
		t.Fatalf("CompleteChunkedUpload() = %v", err)
	}

	path, _ := store.GetFilePath(info.ID)
	assembled, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading assembled file: %v", err)
	}
	if string(assembled) != "first-second-third" {
		t.Errorf("assembled = %q, want chunks in index order", assembled)
	}
	if info.Size != int64(len(assembled)) {
		t.Errorf("Size = %d, want %d", info.Size, len(assembled))
	}
}

func TestChunkedUploadMissingChunk(t *testing.T) {
	store := newTestStore(t)

	store.SaveChunk("upload-2", 0, []byte("only"))

	if _, err := store.CompleteChunkedUpload("upload-2", "swing.mp4", "video/mp4", 2); err == nil {
		t.Error("CompleteChunkedUpload() succeeded with a missing chunk")
	}
}
