package upload

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swingai/backend/internal/models"
	"github.com/swingai/backend/internal/storage"
)

// Analyzer is the outbound interface to the swing-analysis service.
type Analyzer interface {
	AnalyzeVideo(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error)
	AnalyzeURL(ctx context.Context, videoURL string) (*models.AnalysisResult, error)
}

// History records completed analyses. Optional; a nil History disables it.
type History interface {
	Record(item *models.UploadItem) error
}

// Manager owns the upload/analysis pipeline state. All item mutation goes
// through it, keyed by item ID, so concurrent completions never interfere
// across items. Per item the lifecycle is strictly
// uploading -> processing -> completed | error.
type Manager struct {
	mu      sync.RWMutex
	items   map[string]*models.UploadItem
	cancels map[string]context.CancelFunc

	store    storage.Store
	analyzer Analyzer
	source   ProgressSource
	history  History
	onChange func(item models.UploadItem)

	// slots bounds the number of simultaneous outbound analysis calls.
	slots chan struct{}
}

// NewManager creates a pipeline manager. maxConcurrent caps simultaneous
// analysis calls; values below 1 are treated as 1.
func NewManager(store storage.Store, analyzer Analyzer, maxConcurrent int) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		items:    make(map[string]*models.UploadItem),
		cancels:  make(map[string]context.CancelFunc),
		store:    store,
		analyzer: analyzer,
		source:   &SimulatedSource{},
		slots:    make(chan struct{}, maxConcurrent),
	}
}

// SetProgressSource replaces the default simulated source.
func (m *Manager) SetProgressSource(source ProgressSource) {
	m.source = source
}

// SetHistory attaches a history recorder for completed analyses.
func (m *Manager) SetHistory(h History) {
	m.history = h
}

// SetOnChange attaches a hook invoked with an item snapshot after every
// state change. Used by the WebSocket layer to push updates.
func (m *Manager) SetOnChange(fn func(item models.UploadItem)) {
	m.onChange = fn
}

// Accept validates a candidate file and, if valid, creates its item in the
// uploading state. Validation failures are returned synchronously and leave
// the collection untouched.
func (m *Manager) Accept(name string, size int64, mimeType string) (*models.UploadItem, error) {
	if err := ValidateFile(name, size, mimeType); err != nil {
		return nil, err
	}

	item := models.NewUploadItem(uuid.New().String(), name, size, mimeType)

	m.mu.Lock()
	m.items[item.ID] = item
	snapshot := *item
	m.mu.Unlock()

	m.notify(snapshot)
	return &snapshot, nil
}

// SetProgress advances an item's upload progress. Progress is clamped to
// [0, 100), non-decreasing, and only applied while the item is uploading;
// exactly 100 is reserved for StartAnalysis.
func (m *Manager) SetProgress(id string, progress float64) {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok || item.Status != models.ItemStatusUploading {
		m.mu.Unlock()
		return
	}
	if progress >= 100 {
		progress = 99.9
	}
	if progress > item.Progress {
		item.Progress = progress
	}
	snapshot := *item
	m.mu.Unlock()

	m.notify(snapshot)
}

// StartAnalysis marks the upload finished (progress exactly 100), moves the
// item to processing, and launches its analysis call. The transition fires
// at most once per item; repeat calls are no-ops.
func (m *Manager) StartAnalysis(id, fileID string) bool {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok || item.Status != models.ItemStatusUploading {
		m.mu.Unlock()
		return false
	}
	item.Progress = 100
	item.Status = models.ItemStatusProcessing
	item.FileID = fileID

	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[id] = cancel
	snapshot := *item
	m.mu.Unlock()

	m.notify(snapshot)

	go m.runAnalysis(ctx, id, snapshot)
	return true
}

// SubmitStored runs the full pipeline for a file already in storage:
// simulated upload progress to 100, then analysis. Used by the chunked and
// WebSocket paths where the transfer finished before the item existed.
func (m *Manager) SubmitStored(info *models.FileInfo) (*models.UploadItem, error) {
	item, err := m.Accept(info.Name, info.Size, info.MimeType)
	if err != nil {
		return nil, err
	}

	go m.driveProgress(item.ID, info.ID)
	return item, nil
}

// SubmitReader saves an incoming transfer to storage while reporting real
// byte progress, then starts analysis. The returned item is already in the
// processing state.
func (m *Manager) SubmitReader(name string, size int64, mimeType string, r *CountingReader) (*models.UploadItem, error) {
	item, err := m.Accept(name, size, mimeType)
	if err != nil {
		return nil, err
	}
	r.report = func(progress float64) { m.SetProgress(item.ID, progress) }

	info, err := m.store.Save(name, mimeType, r)
	if err != nil {
		m.Fail(item.ID, fmt.Sprintf("failed to store upload: %v", err))
		current, _ := m.Get(item.ID)
		return &current, nil
	}

	m.StartAnalysis(item.ID, info.ID)
	current, _ := m.Get(item.ID)
	return &current, nil
}

// SubmitURL runs the pipeline for a remote video the analysis service will
// fetch itself. Progress is simulated since no bytes pass through here.
func (m *Manager) SubmitURL(videoURL string) (*models.UploadItem, error) {
	if !strings.HasPrefix(videoURL, "http://") && !strings.HasPrefix(videoURL, "https://") {
		return nil, &ValidationError{FileName: videoURL, Reason: "video URL must be a valid HTTP/HTTPS URL"}
	}

	name := "remote-video"
	if u, err := url.Parse(videoURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}

	item := models.NewUploadItem(uuid.New().String(), name, 0, "")
	item.VideoURL = videoURL

	m.mu.Lock()
	m.items[item.ID] = item
	snapshot := *item
	m.mu.Unlock()

	m.notify(snapshot)

	go m.driveProgress(item.ID, "")
	return &snapshot, nil
}

// driveProgress runs the progress source for an item and hands off to
// analysis when it completes. Cancelled items stop silently.
func (m *Manager) driveProgress(id, fileID string) {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if _, ok := m.items[id]; !ok {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancels[id] = cancel
	m.mu.Unlock()

	err := m.source.Run(ctx, func(progress float64) {
		if progress < 100 {
			m.SetProgress(id, progress)
		}
	})
	cancel()
	if err != nil {
		// Item was removed mid-upload; nothing to reconcile
		return
	}

	m.StartAnalysis(id, fileID)
}

// runAnalysis issues the single outbound analysis call for an item and
// reconciles the terminal result. A failed analysis never affects other
// in-flight items.
func (m *Manager) runAnalysis(ctx context.Context, id string, item models.UploadItem) {
	defer func() {
		m.mu.Lock()
		if cancel, ok := m.cancels[id]; ok {
			cancel()
			delete(m.cancels, id)
		}
		m.mu.Unlock()
	}()

	// Wait for an analysis slot; removal while queued aborts quietly
	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		return
	}

	fmt.Printf("[Item %s] Analyzing %s\n", shortID(id), item.FileName)
	start := time.Now()

	var (
		result *models.AnalysisResult
		err    error
	)
	if item.VideoURL != "" {
		result, err = m.analyzer.AnalyzeURL(ctx, item.VideoURL)
	} else {
		videoPath, perr := m.store.GetFilePath(item.FileID)
		if perr != nil {
			m.Fail(id, fmt.Sprintf("stored video unavailable: %v", perr))
			return
		}
		result, err = m.analyzer.AnalyzeVideo(ctx, videoPath, item.FileName)
	}

	if err != nil {
		if ctx.Err() == context.Canceled {
			// Removed while in flight; the item is already gone
			return
		}
		fmt.Printf("[Item %s] Analysis failed after %v: %v\n", shortID(id), time.Since(start).Round(time.Millisecond), err)
		m.Fail(id, err.Error())
		return
	}

	fmt.Printf("[Item %s] Analysis complete in %v (overall %.0f)\n",
		shortID(id), time.Since(start).Round(time.Millisecond), result.Scores.Overall)
	m.Complete(id, result)
}

// Complete transitions an item to completed with its result payload.
// Applied only to items in processing; double delivery is a no-op.
func (m *Manager) Complete(id string, result *models.AnalysisResult) {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok || item.Status != models.ItemStatusProcessing {
		m.mu.Unlock()
		return
	}
	item.Status = models.ItemStatusCompleted
	item.Result = result
	now := time.Now()
	item.CompletedAt = &now
	snapshot := *item
	m.mu.Unlock()

	m.notify(snapshot)

	if m.history != nil {
		if err := m.history.Record(&snapshot); err != nil {
			fmt.Printf("[Item %s] Warning: failed to record history: %v\n", shortID(id), err)
		}
	}
}

// Fail transitions an item to error with a message. Applied only to items
// not already terminal; it accepts uploading items too so storage failures
// surface before analysis starts.
func (m *Manager) Fail(id string, message string) {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok || item.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	item.Status = models.ItemStatusError
	item.Error = message
	now := time.Now()
	item.CompletedAt = &now
	snapshot := *item
	m.mu.Unlock()

	m.notify(snapshot)
}

// Get returns a snapshot of an item.
func (m *Manager) Get(id string) (models.UploadItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return models.UploadItem{}, false
	}
	return *item, true
}

// List returns snapshots of all items, newest first.
func (m *Manager) List() []models.UploadItem {
	m.mu.RLock()
	list := make([]models.UploadItem, 0, len(m.items))
	for _, item := range m.items {
		list = append(list, *item)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Count returns the number of items in the collection.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Remove deletes an item and cancels its in-flight work, if any. Returns
// the removed item's storage file ID so callers can clean up the video.
func (m *Manager) Remove(id string) (fileID string, ok bool) {
	m.mu.Lock()
	item, exists := m.items[id]
	if !exists {
		m.mu.Unlock()
		return "", false
	}
	fileID = item.FileID
	delete(m.items, id)
	cancel := m.cancels[id]
	delete(m.cancels, id)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return fileID, true
}

// CleanupOldItems removes terminal items older than maxAge.
func (m *Manager) CleanupOldItems(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, item := range m.items {
		if item.Status.Terminal() && item.CompletedAt != nil && item.CompletedAt.Before(cutoff) {
			delete(m.items, id)
			fmt.Printf("[Manager] Cleaned up aged item %s\n", shortID(id))
		}
	}
}

func (m *Manager) notify(item models.UploadItem) {
	if m.onChange != nil {
		m.onChange(item)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
