package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/swingai/backend/internal/models"
	"github.com/swingai/backend/internal/upload"
)

// WebSocket message types for the upload/analysis protocol
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected  = "connected"
	MsgTypeAck        = "ack"
	MsgTypeProgress   = "progress"
	MsgTypeProcessing = "processing"
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypePong       = "pong"
)

// WSMessage is the wire structure for every WebSocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// UploadInitPayload declares an incoming chunked video transfer.
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
}

// UploadChunkPayload carries one base64 chunk.
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"`
}

// UploadCompletePayload finishes a chunked transfer.
type UploadCompletePayload struct {
	UploadID string `json:"uploadId"`
}

// WSProgressPayload is pushed while an item uploads or processes.
type WSProgressPayload struct {
	ItemID   string  `json:"itemId"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// WSResultPayload is pushed when an item settles.
type WSResultPayload struct {
	Item models.UploadItem `json:"item"`
}

// wsUploadSession tracks an in-progress chunked transfer over one socket.
type wsUploadSession struct {
	ID          string
	ItemID      string
	FileName    string
	MimeType    string
	TotalChunks int
	TotalSize   int64
	Chunks      [][]byte
	Received    map[int]bool
	CreatedAt   time.Time
}

// wsConn serializes writes; progress watchers and the read loop both send.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg WSMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Write error: %v\n", err)
	}
}

// WebSocketHandler manages WebSocket connections for video uploads with
// live pipeline progress pushes.
type WebSocketHandler struct {
	handler    *Handler
	upgrader   websocket.Upgrader
	sessions   map[string]*wsUploadSession
	sessionsMu sync.RWMutex
}

// NewWebSocketHandler creates a new WebSocket upload handler.
func NewWebSocketHandler(h *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Dev servers connect cross-origin
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		sessions: make(map[string]*wsUploadSession),
	}
}

// HandleWebSocket upgrades the connection and runs the upload protocol.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	raw, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer raw.Close()

	ws := &wsConn{conn: raw}

	fmt.Println("[WebSocket] Client connected for upload")
	ws.send(WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	for {
		var msg WSMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			ws.send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeUploadInit:
			wsh.handleUploadInit(ws, msg)
		case MsgTypeUploadChunk:
			wsh.handleUploadChunk(ws, msg)
		case MsgTypeUploadComplete:
			wsh.handleUploadComplete(ws, msg)
		default:
			wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	fmt.Println("[WebSocket] Client disconnected")
	return nil
}

// handleUploadInit validates the declared file and creates its pipeline
// item. Rejected files never create an item or a session.
func (wsh *WebSocketHandler) handleUploadInit(ws *wsConn, msg WSMessage) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = upload.MimeTypeForName(payload.FileName)
	}

	item, err := wsh.handler.items.Accept(payload.FileName, payload.TotalSize, mimeType)
	if err != nil {
		wsh.sendError(ws, fmt.Sprintf("%s: %s", payload.FileName, err.Error()), "FILE_REJECTED")
		return
	}

	sessionID := uuid.New().String()
	session := &wsUploadSession{
		ID:          sessionID,
		ItemID:      item.ID,
		FileName:    payload.FileName,
		MimeType:    mimeType,
		TotalChunks: payload.TotalChunks,
		TotalSize:   payload.TotalSize,
		Chunks:      make([][]byte, payload.TotalChunks),
		Received:    make(map[int]bool),
		CreatedAt:   time.Now(),
	}

	wsh.sessionsMu.Lock()
	wsh.sessions[sessionID] = session
	wsh.sessionsMu.Unlock()

	ws.send(WSMessage{
		Type:      MsgTypeAck,
		ID:        sessionID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(map[string]string{"itemId": item.ID}),
	})

	fmt.Printf("[WebSocket] Upload initialized: %s -> item %s (%d chunks, %d bytes)\n",
		sessionID[:8], item.ID[:8], payload.TotalChunks, payload.TotalSize)
}

// handleUploadChunk stores a chunk and advances the item's real progress.
func (wsh *WebSocketHandler) handleUploadChunk(ws *wsConn, msg WSMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	wsh.sessionsMu.Lock()
	session, exists := wsh.sessions[payload.UploadID]
	wsh.sessionsMu.Unlock()
	if !exists {
		wsh.sendError(ws, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	if payload.ChunkIndex < 0 || payload.ChunkIndex >= session.TotalChunks {
		wsh.sendError(ws, fmt.Sprintf("Chunk index %d out of range", payload.ChunkIndex), "INVALID_CHUNK")
		return
	}

	chunkData, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		wsh.sendError(ws, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	session.Received[payload.ChunkIndex] = true
	session.Chunks[payload.ChunkIndex] = chunkData

	received := len(session.Received)
	progress := float64(received) / float64(session.TotalChunks) * 100
	wsh.handler.items.SetProgress(session.ItemID, progress)

	ws.send(WSMessage{
		Type:      MsgTypeProgress,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressPayload{
			ItemID:   session.ItemID,
			Status:   string(models.ItemStatusUploading),
			Progress: progress,
			Message:  fmt.Sprintf("Received chunk %d/%d", received, session.TotalChunks),
		}),
	})
}

// handleUploadComplete assembles the video, starts analysis, and watches
// the item until it settles.
func (wsh *WebSocketHandler) handleUploadComplete(ws *wsConn, msg WSMessage) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	wsh.sessionsMu.Lock()
	session, exists := wsh.sessions[payload.UploadID]
	if exists {
		delete(wsh.sessions, payload.UploadID)
	}
	wsh.sessionsMu.Unlock()
	if !exists {
		wsh.sendError(ws, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	if len(session.Received) != session.TotalChunks {
		wsh.handler.items.Fail(session.ItemID, fmt.Sprintf("missing chunks: got %d, expected %d",
			len(session.Received), session.TotalChunks))
		wsh.sendError(ws, fmt.Sprintf("Missing chunks: got %d, expected %d",
			len(session.Received), session.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}

	totalSize := 0
	for _, chunk := range session.Chunks {
		totalSize += len(chunk)
	}

	// The size declared at init is client-supplied; the assembled bytes
	// are what count against the cap.
	if err := upload.ValidateFile(session.FileName, int64(totalSize), session.MimeType); err != nil {
		wsh.handler.items.Fail(session.ItemID, err.Error())
		wsh.sendError(ws, fmt.Sprintf("%s: %s", session.FileName, err.Error()), "FILE_REJECTED")
		return
	}

	assembled := make([]byte, 0, totalSize)
	for _, chunk := range session.Chunks {
		assembled = append(assembled, chunk...)
	}

	info, err := wsh.handler.store.SaveBytes(session.FileName, session.MimeType, assembled)
	if err != nil {
		wsh.handler.items.Fail(session.ItemID, "failed to store upload: "+err.Error())
		wsh.sendError(ws, "Failed to save video: "+err.Error(), "SAVE_ERROR")
		return
	}

	wsh.handler.items.StartAnalysis(session.ItemID, info.ID)

	ws.send(WSMessage{
		Type:      MsgTypeProcessing,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressPayload{
			ItemID:   session.ItemID,
			Status:   string(models.ItemStatusProcessing),
			Progress: 100,
			Message:  "Video stored, analysis started",
		}),
	})

	go wsh.watchItem(ws, session.ItemID)
}

// watchItem pushes the item's state until it reaches a terminal status.
func (wsh *WebSocketHandler) watchItem(ws *wsConn, itemID string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		item, ok := wsh.handler.items.Get(itemID)
		if !ok {
			return
		}
		if !item.Status.Terminal() {
			continue
		}

		msgType := MsgTypeComplete
		if item.Status == models.ItemStatusError {
			msgType = MsgTypeError
		}
		ws.send(WSMessage{
			Type:      msgType,
			ID:        itemID,
			Timestamp: time.Now().UnixMilli(),
			Payload:   mustJSON(WSResultPayload{Item: item}),
		})
		return
	}
}

// CleanupStaleSessions drops chunked transfers that never completed.
func (wsh *WebSocketHandler) CleanupStaleSessions(maxAge time.Duration) {
	wsh.sessionsMu.Lock()
	defer wsh.sessionsMu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, session := range wsh.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(wsh.sessions, id)
		}
	}
}

func (wsh *WebSocketHandler) sendError(ws *wsConn, message, code string) {
	ws.send(WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(map[string]string{"message": message, "code": code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
