package upload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/swingai/backend/internal/models"
	"github.com/swingai/backend/internal/testutil"
)

func newTestManager(analyzer Analyzer) (*Manager, *testutil.MockStorage) {
	store := testutil.NewMockStorage()
	m := NewManager(store, analyzer, 3)
	// Fast simulated progress so pipeline tests settle quickly
	m.SetProgressSource(&SimulatedSource{Interval: time.Millisecond, MaxStep: 50})
	return m, store
}

func waitForStatus(t *testing.T, m *Manager, id string, status models.ItemStatus) models.UploadItem {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		item, ok := m.Get(id)
		if !ok {
			t.Fatalf("item %s disappeared while waiting for %s", id, status)
		}
		if item.Status == status {
			return item
		}
		time.Sleep(2 * time.Millisecond)
	}
	item, _ := m.Get(id)
	t.Fatalf("item %s stuck in %s, want %s", id, item.Status, status)
	return models.UploadItem{}
}

func TestAcceptCreatesUploadingItem(t *testing.T) {
	m, _ := newTestManager(&testutil.MockAnalyzer{})

	item, err := m.Accept("swing.mp4", 1024, "video/mp4")
	if err != nil {
		t.Fatalf("Accept() = %v", err)
	}
	if item.Status != models.ItemStatusUploading {
		t.Errorf("Status = %s, want uploading", item.Status)
	}
	if item.Progress != 0 {
		t.Errorf("Progress = %v, want 0", item.Progress)
	}
	if item.ID == "" {
		t.Error("item has no ID")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestAcceptRejectionLeavesCollectionUntouched(t *testing.T) {
	m, _ := newTestManager(&testutil.MockAnalyzer{})

	if _, err := m.Accept("good.mp4", 1024, "video/mp4"); err != nil {
		t.Fatalf("Accept() = %v", err)
	}
	before := m.List()

	_, err := m.Accept("bad.txt", 1024, "text/plain")
	if err == nil {
		t.Fatal("Accept() accepted an unsupported type")
	}

	after := m.List()
	if len(after) != len(before) {
		t.Errorf("collection changed on rejection: %d -> %d items", len(before), len(after))
	}
	if after[0].ID != before[0].ID || after[0].Status != before[0].Status {
		t.Error("existing item mutated by rejected submission")
	}
}

func TestSetProgressMonotonicAndClamped(t *testing.T) {
	m, _ := newTestManager(&testutil.MockAnalyzer{})
	item, _ := m.Accept("swing.mp4", 1024, "video/mp4")

	m.SetProgress(item.ID, 40)
	m.SetProgress(item.ID, 25) // regression must be ignored
	got, _ := m.Get(item.ID)
	if got.Progress != 40 {
		t.Errorf("Progress = %v, want 40 (regressions ignored)", got.Progress)
	}

	m.SetProgress(item.ID, 150) // exactly 100 reserved for completion
	got, _ = m.Get(item.ID)
	if got.Progress != 99.9 {
		t.Errorf("Progress = %v, want clamped to 99.9", got.Progress)
	}
	if got.Status != models.ItemStatusUploading {
		t.Errorf("Status = %s, progress alone must not change status", got.Status)
	}
}

func TestStartAnalysisFiresExactlyOnce(t *testing.T) {
	block := make(chan struct{})
	analyzer := &testutil.MockAnalyzer{
		AnalyzeVideoFunc: func(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
			<-block
			return testutil.DefaultResult(), nil
		},
	}
	m, store := newTestManager(analyzer)

	info, _ := store.SaveBytes("swing.mp4", "video/mp4", []byte("video"))
	item, _ := m.Accept("swing.mp4", 1024, "video/mp4")

	if !m.StartAnalysis(item.ID, info.ID) {
		t.Fatal("first StartAnalysis() = false")
	}
	if m.StartAnalysis(item.ID, info.ID) {
		t.Error("second StartAnalysis() = true, want no-op")
	}

	got, _ := m.Get(item.ID)
	if got.Progress != 100 {
		t.Errorf("Progress = %v, want exactly 100 on handoff", got.Progress)
	}
	if got.Status != models.ItemStatusProcessing {
		t.Errorf("Status = %s, want processing", got.Status)
	}

	close(block)
	waitForStatus(t, m, item.ID, models.ItemStatusCompleted)
	if analyzer.Calls() != 1 {
		t.Errorf("analysis calls = %d, want 1", analyzer.Calls())
	}
}

func TestPipelineCompletesWithResult(t *testing.T) {
	m, store := newTestManager(&testutil.MockAnalyzer{})

	info, _ := store.SaveBytes("swing.mp4", "video/mp4", []byte("video"))
	item, err := m.SubmitStored(info)
	if err != nil {
		t.Fatalf("SubmitStored() = %v", err)
	}

	got := waitForStatus(t, m, item.ID, models.ItemStatusCompleted)
	if got.Result == nil {
		t.Fatal("completed item has no result")
	}
	if got.Error != "" {
		t.Errorf("completed item carries error %q", got.Error)
	}
	if got.Result.Scores.Overall != 85 {
		t.Errorf("overall score = %v, want 85", got.Result.Scores.Overall)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %v, want 100", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestPipelineFailureCarriesMessage(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{
		AnalyzeVideoFunc: func(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
			return nil, errors.New("analysis service returned 503 Service Unavailable")
		},
	}
	m, store := newTestManager(analyzer)

	info, _ := store.SaveBytes("swing.mp4", "video/mp4", []byte("video"))
	item, _ := m.SubmitStored(info)

	got := waitForStatus(t, m, item.ID, models.ItemStatusError)
	if got.Result != nil {
		t.Error("failed item carries a result")
	}
	if got.Error != "analysis service returned 503 Service Unavailable" {
		t.Errorf("Error = %q, want the analyzer's message verbatim", got.Error)
	}
}

func TestConcurrentItemsAreIndependent(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{
		AnalyzeVideoFunc: func(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
			if strings.HasPrefix(fileName, "bad") {
				return nil, errors.New("model rejected the video")
			}
			return testutil.DefaultResult(), nil
		},
	}
	m, store := newTestManager(analyzer)

	goodInfo, _ := store.SaveBytes("good.mp4", "video/mp4", []byte("a"))
	badInfo, _ := store.SaveBytes("bad.mp4", "video/mp4", []byte("b"))

	good, _ := m.SubmitStored(goodInfo)
	bad, _ := m.SubmitStored(badInfo)

	gotGood := waitForStatus(t, m, good.ID, models.ItemStatusCompleted)
	gotBad := waitForStatus(t, m, bad.ID, models.ItemStatusError)

	if gotGood.Result == nil || gotGood.Error != "" {
		t.Error("successful item affected by concurrent failure")
	}
	if gotBad.Result != nil || gotBad.Error == "" {
		t.Error("failed item affected by concurrent success")
	}
}

func TestAnalysisConcurrencyCap(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	analyzer := &testutil.MockAnalyzer{
		AnalyzeVideoFunc: func(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
			started <- fileName
			select {
			case <-release:
				return testutil.DefaultResult(), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	store := testutil.NewMockStorage()
	m := NewManager(store, analyzer, 1)

	var ids []string
	for _, name := range []string{"a.mp4", "b.mp4"} {
		info, _ := store.SaveBytes(name, "video/mp4", []byte("v"))
		item, _ := m.Accept(name, 1, "video/mp4")
		m.StartAnalysis(item.ID, info.ID)
		ids = append(ids, item.ID)
	}

	<-started
	select {
	case name := <-started:
		t.Fatalf("second analysis (%s) started while first held the only slot", name)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	for _, id := range ids {
		waitForStatus(t, m, id, models.ItemStatusCompleted)
	}
}

func TestRemoveCancelsInFlightAnalysis(t *testing.T) {
	cancelled := make(chan struct{})
	analyzer := &testutil.MockAnalyzer{
		AnalyzeVideoFunc: func(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		},
	}
	m, store := newTestManager(analyzer)

	info, _ := store.SaveBytes("swing.mp4", "video/mp4", []byte("v"))
	item, _ := m.Accept("swing.mp4", 1, "video/mp4")
	m.StartAnalysis(item.ID, info.ID)

	// Let the analysis goroutine claim its slot
	time.Sleep(10 * time.Millisecond)

	fileID, ok := m.Remove(item.ID)
	if !ok {
		t.Fatal("Remove() = false")
	}
	if fileID != info.ID {
		t.Errorf("Remove() fileID = %q, want %q", fileID, info.ID)
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight analysis not cancelled on removal")
	}

	if _, exists := m.Get(item.ID); exists {
		t.Error("removed item still present")
	}
}

func TestSubmitReaderStoresAndAnalyzes(t *testing.T) {
	m, store := newTestManager(&testutil.MockAnalyzer{})

	data := bytes.Repeat([]byte("f"), 500)
	cr := NewCountingReader(bytes.NewReader(data), int64(len(data)), nil)

	item, err := m.SubmitReader("swing.mp4", int64(len(data)), "video/mp4", cr)
	if err != nil {
		t.Fatalf("SubmitReader() = %v", err)
	}

	got := waitForStatus(t, m, item.ID, models.ItemStatusCompleted)
	stored, ok := store.FileData(got.FileID)
	if !ok {
		t.Fatal("video bytes not in storage")
	}
	if !bytes.Equal(stored, data) {
		t.Error("stored bytes differ from uploaded bytes")
	}
}

func TestSubmitReaderStorageFailure(t *testing.T) {
	m, store := newTestManager(&testutil.MockAnalyzer{})
	store.SaveErr = errors.New("disk full")

	cr := NewCountingReader(bytes.NewReader([]byte("v")), 1, nil)
	item, err := m.SubmitReader("swing.mp4", 1, "video/mp4", cr)
	if err != nil {
		t.Fatalf("SubmitReader() = %v", err)
	}

	if item.Status != models.ItemStatusError {
		t.Errorf("Status = %s, want error on storage failure", item.Status)
	}
	if !strings.Contains(item.Error, "disk full") {
		t.Errorf("Error = %q, want storage failure message", item.Error)
	}
}

func TestSubmitURL(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{
		AnalyzeURLFunc: func(ctx context.Context, videoURL string) (*models.AnalysisResult, error) {
			if videoURL != "https://cdn.example.com/clips/drive.mp4" {
				return nil, errors.New("unexpected URL " + videoURL)
			}
			return testutil.DefaultResult(), nil
		},
	}
	m, _ := newTestManager(analyzer)

	item, err := m.SubmitURL("https://cdn.example.com/clips/drive.mp4")
	if err != nil {
		t.Fatalf("SubmitURL() = %v", err)
	}
	if item.FileName != "drive.mp4" {
		t.Errorf("FileName = %q, want basename of URL path", item.FileName)
	}

	got := waitForStatus(t, m, item.ID, models.ItemStatusCompleted)
	if got.Result == nil {
		t.Fatal("URL item completed without result")
	}
}

func TestSubmitURLRejectsNonHTTP(t *testing.T) {
	m, _ := newTestManager(&testutil.MockAnalyzer{})

	if _, err := m.SubmitURL("ftp://example.com/clip.mp4"); err == nil {
		t.Error("SubmitURL() accepted ftp scheme")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after rejected URL, want 0", m.Count())
	}
}

func TestListNewestFirst(t *testing.T) {
	m, _ := newTestManager(&testutil.MockAnalyzer{})

	first, _ := m.Accept("first.mp4", 1, "video/mp4")
	time.Sleep(2 * time.Millisecond)
	second, _ := m.Accept("second.mp4", 1, "video/mp4")

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List() = %d items, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Error("List() not ordered newest first")
	}
}

func TestCleanupOldItems(t *testing.T) {
	m, store := newTestManager(&testutil.MockAnalyzer{})

	info, _ := store.SaveBytes("old.mp4", "video/mp4", []byte("v"))
	done, _ := m.SubmitStored(info)
	waitForStatus(t, m, done.ID, models.ItemStatusCompleted)

	active, _ := m.Accept("active.mp4", 1, "video/mp4")

	m.CleanupOldItems(0)

	if _, ok := m.Get(done.ID); ok {
		t.Error("aged terminal item survived cleanup")
	}
	if _, ok := m.Get(active.ID); !ok {
		t.Error("non-terminal item removed by cleanup")
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	m, _ := newTestManager(&testutil.MockAnalyzer{})

	var seen []models.UploadItem
	m.SetOnChange(func(item models.UploadItem) {
		seen = append(seen, item)
	})

	item, _ := m.Accept("swing.mp4", 1, "video/mp4")
	m.SetProgress(item.ID, 50)

	if len(seen) != 2 {
		t.Fatalf("onChange fired %d times, want 2", len(seen))
	}
	if seen[0].Status != models.ItemStatusUploading || seen[1].Progress != 50 {
		t.Error("onChange snapshots do not reflect the transitions")
	}
}
