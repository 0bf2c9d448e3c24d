package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/swingai/backend/internal/models"
	"github.com/swingai/backend/internal/storage"
	"github.com/swingai/backend/internal/upload"
	"github.com/vmihailenco/msgpack/v5"
)

// AnalyzerProbe is the read-only slice of the analysis client the handlers
// need for health and capability proxying.
type AnalyzerProbe interface {
	Health(ctx context.Context) (*models.ServiceHealth, error)
	ModelStatus(ctx context.Context) (*models.ModelStatus, error)
}

// Handler handles API requests.
type Handler struct {
	store   storage.Store
	items   *upload.Manager
	probe   AnalyzerProbe
	history HistoryReader
	version string
}

// NewHandler creates a new API handler. probe and history may be nil.
func NewHandler(store storage.Store, items *upload.Manager, probe AnalyzerProbe, history HistoryReader, version string) *Handler {
	return &Handler{
		store:   store,
		items:   items,
		probe:   probe,
		history: history,
		version: version,
	}
}

// HandleHealth returns server health plus the analyzer's own probe result.
func (h *Handler) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}

	if h.probe != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		if health, err := h.probe.Health(ctx); err != nil {
			resp["analyzer"] = "unreachable"
		} else if health.Up() {
			resp["analyzer"] = "healthy"
		} else {
			resp["analyzer"] = health.Status
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleModels proxies the analyzer's model capability flags.
func (h *Handler) HandleModels(c echo.Context) error {
	if h.probe == nil {
		return NewInternalError("analyzer not configured", nil)
	}

	status, err := h.probe.ModelStatus(c.Request().Context())
	if err != nil {
		return NewUpstreamError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// HandleUploadVideo accepts a single video as multipart/form-data (field
// "video"), streams it to storage with byte-level progress, and starts
// analysis. Responds 202 with the item already in the processing state.
func (h *Handler) HandleUploadVideo(c echo.Context) error {
	file, err := c.FormFile("video")
	if err != nil {
		return NewBadRequestError("no video provided", err)
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = upload.MimeTypeForName(file.Filename)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	counting := upload.NewCountingReader(src, file.Size, nil)
	item, err := h.items.SubmitReader(file.Filename, file.Size, mimeType, counting)
	if err != nil {
		return err // ValidationError; mapped by ErrorHandler
	}

	return c.JSON(http.StatusAccepted, item)
}

// HandleUploadBatch accepts multiple videos in one multipart form (field
// "videos"). Rejected files are reported back as "filename: reason" strings
// and never create items.
func (h *Handler) HandleUploadBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}

	files := form.File["videos"]
	if len(files) == 0 {
		return NewValidationError("videos")
	}

	var (
		accepted []models.UploadItem
		rejected []string
	)
	for _, file := range files {
		mimeType := file.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = upload.MimeTypeForName(file.Filename)
		}

		if err := upload.ValidateFile(file.Filename, file.Size, mimeType); err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %s", file.Filename, err.Error()))
			continue
		}

		src, err := file.Open()
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: failed to read upload", file.Filename))
			continue
		}

		counting := upload.NewCountingReader(src, file.Size, nil)
		item, err := h.items.SubmitReader(file.Filename, file.Size, mimeType, counting)
		src.Close()
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %s", file.Filename, err.Error()))
			continue
		}
		accepted = append(accepted, *item)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"accepted": accepted,
		"rejected": rejected,
	})
}

// Chunked upload request types

type uploadChunkRequest struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64-encoded chunk
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	if r.ChunkIndex < 0 {
		return NewBadRequestError("chunkIndex must not be negative", nil)
	}
	return nil
}

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

// HandleUploadChunk accepts a single base64 chunk of a chunked upload.
func (h *Handler) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	if err := h.store.SaveChunk(req.UploadID, req.ChunkIndex, decoded); err != nil {
		return NewInternalError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload assembles a chunked upload, validates the result,
// and starts the analysis pipeline.
func (h *Handler) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = upload.MimeTypeForName(req.Name)
	}

	info, err := h.store.CompleteChunkedUpload(req.UploadID, req.Name, mimeType, req.TotalChunks)
	if err != nil {
		return NewInternalError("failed to assemble chunks", err)
	}

	item, err := h.items.SubmitStored(info)
	if err != nil {
		// Assembled file failed validation; drop it
		h.store.Delete(info.ID)
		return err
	}

	return c.JSON(http.StatusAccepted, item)
}

// HandleAnalyzeURL submits a remote video by URL for server-side fetch.
func (h *Handler) HandleAnalyzeURL(c echo.Context) error {
	var req struct {
		VideoURL string `json:"video_url"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.VideoURL == "" {
		return NewValidationError("video_url")
	}

	item, err := h.items.SubmitURL(req.VideoURL)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, item)
}

// HandleListItems returns all pipeline items, newest first.
func (h *Handler) HandleListItems(c echo.Context) error {
	return c.JSON(http.StatusOK, h.items.List())
}

// HandleGetItem returns one item's current state.
func (h *Handler) HandleGetItem(c echo.Context) error {
	id := c.Param("id")
	item, ok := h.items.Get(id)
	if !ok {
		return NewNotFoundError("item", id)
	}
	return c.JSON(http.StatusOK, item)
}

// HandleRemoveItem removes an item, cancelling any in-flight analysis and
// deleting its stored video.
func (h *Handler) HandleRemoveItem(c echo.Context) error {
	id := c.Param("id")
	fileID, ok := h.items.Remove(id)
	if !ok {
		return NewNotFoundError("item", id)
	}
	if fileID != "" {
		h.store.Delete(fileID)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleItemProgressStream streams an item's progress via SSE until it
// reaches a terminal state.
func (h *Handler) HandleItemProgressStream(c echo.Context) error {
	id := c.Param("id")

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if _, ok := h.items.Get(id); !ok {
		data, _ := json.Marshal(map[string]string{"error": "item not found"})
		fmt.Fprintf(c.Response(), "data: %s\n\n", data)
		c.Response().Flush()
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastProgress := -1.0
	lastStatus := models.ItemStatus("")
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			item, ok := h.items.Get(id)
			if !ok {
				data, _ := json.Marshal(map[string]string{"error": "item not found"})
				fmt.Fprintf(c.Response(), "data: %s\n\n", data)
				c.Response().Flush()
				return nil
			}

			if item.Progress != lastProgress || item.Status != lastStatus {
				lastProgress = item.Progress
				lastStatus = item.Status

				data, err := json.Marshal(item)
				if err != nil {
					continue
				}
				fmt.Fprintf(c.Response(), "data: %s\n\n", data)
				c.Response().Flush()
			}

			if item.Status.Terminal() {
				return nil
			}
		}
	}
}

// HandleItemResultMsgpack returns a completed item's result in MessagePack
// format, which is 30-50% smaller than JSON for metric-heavy payloads.
func (h *Handler) HandleItemResultMsgpack(c echo.Context) error {
	id := c.Param("id")
	item, ok := h.items.Get(id)
	if !ok {
		return NewNotFoundError("item", id)
	}
	if item.Status != models.ItemStatusCompleted || item.Result == nil {
		return NewBadRequestError("item has no result yet", nil)
	}

	data, err := msgpack.Marshal(item.Result)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleRecentFiles returns recently stored videos.
func (h *Handler) HandleRecentFiles(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}
