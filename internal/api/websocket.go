package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/upload"
)

// WebSocket message types for upload protocol
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
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypeProcessing = "processing"
	MsgTypePong       = "pong"
)

const defaultJobPollInterval = 200 * time.Millisecond

// WSMessage is the envelope of every frame in both directions
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// UploadInitPayload announces a chunked upload
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
	Encoding    string `json:"encoding,omitempty"` // "gzip", "binary-gzip", "none"
	SessionID   string `json:"sessionId,omitempty"`
}

// UploadChunkPayload carries one base64 encoded chunk
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"`
}

// UploadCompletePayload finishes an upload. Zero fields fall back to the init values.
type UploadCompletePayload struct {
	UploadID       string `json:"uploadId"`
	OriginalSize   int64  `json:"originalSize,omitempty"`
	CompressedSize int64  `json:"compressedSize,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
}

// WSProgressResponse reports upload or processing progress
type WSProgressResponse struct {
	Type     string  `json:"type"`
	UploadID string  `json:"uploadId,omitempty"`
	JobID    string  `json:"jobId,omitempty"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// WSCompleteResponse carries the processed file
type WSCompleteResponse struct {
	Type     string                `json:"type"`
	UploadID string                `json:"uploadId,omitempty"`
	JobID    string                `json:"jobId,omitempty"`
	FileInfo *models.FileInfo      `json:"fileInfo,omitempty"`
	Metadata *models.AudioMetadata `json:"metadata,omitempty"`
}

// WSErrorResponse describes a failed request
type WSErrorResponse struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId,omitempty"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// wsUpload tracks an in-progress upload of one connection
type wsUpload struct {
	ID             string
	FileName       string
	TotalChunks    int
	ReceivedChunks map[int]bool
	OriginalSize   int64
	Encoding       string
	SessionID      string
	CreatedAt      time.Time
}

// WebSocketHandler accepts chunked audio uploads over a WebSocket. Chunks go
// to the same store as the HTTP chunk route and completion starts an upload job.
type WebSocketHandler struct {
	store          storage.Store
	uploads        *upload.Manager
	audioExts      []string
	upgrader       websocket.Upgrader
	maxMessageSize int64
	pollInterval   time.Duration
}

// NewWebSocketHandler creates a new WebSocket upload handler
func NewWebSocketHandler(deps *Dependencies) *WebSocketHandler {
	return &WebSocketHandler{
		store:     deps.Store,
		uploads:   deps.Uploads,
		audioExts: deps.audioExts(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// CORS is enforced by middleware
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxMessageSize: deps.WSMaxMessageSize,
		pollInterval:   defaultJobPollInterval,
	}
}

// HandleWebSocket upgrades the connection and runs the upload protocol until
// the client goes away. Unfinished uploads of the connection are discarded.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	if wsh.maxMessageSize > 0 {
		ws.SetReadLimit(wsh.maxMessageSize)
	}

	fmt.Println("[WebSocket] Client connected for upload")

	pending := make(map[string]*wsUpload)
	defer func() {
		for id := range pending {
			if err := wsh.store.DiscardChunks(id); err != nil {
				fmt.Printf("[WebSocket] Warning: could not discard chunks of %s: %v\n", shortID(id), err)
			}
		}
	}()

	wsh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeUploadInit:
			wsh.handleUploadInit(ws, pending, msg)
		case MsgTypeUploadChunk:
			wsh.handleUploadChunk(ws, pending, msg)
		case MsgTypeUploadComplete:
			wsh.handleUploadComplete(ws, pending, msg)
		default:
			wsh.sendError(ws, "", "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	fmt.Println("[WebSocket] Client disconnected")
	return nil
}

func (wsh *WebSocketHandler) handleUploadInit(ws *websocket.Conn, pending map[string]*wsUpload, msg WSMessage) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "", "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if payload.FileName == "" || payload.TotalChunks <= 0 {
		wsh.sendError(ws, "", "fileName and a positive totalChunks are required", "INVALID_PAYLOAD")
		return
	}
	if !hasExtension(payload.FileName, wsh.audioExts) {
		wsh.sendError(ws, "", "Unsupported file format: "+payload.FileName, "UNSUPPORTED_FORMAT")
		return
	}

	up := &wsUpload{
		ID:             uuid.New().String(),
		FileName:       payload.FileName,
		TotalChunks:    payload.TotalChunks,
		ReceivedChunks: make(map[int]bool),
		OriginalSize:   payload.TotalSize,
		Encoding:       payload.Encoding,
		SessionID:      payload.SessionID,
		CreatedAt:      time.Now(),
	}
	pending[up.ID] = up

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeAck,
		ID:        up.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(map[string]string{"uploadId": up.ID}),
	})

	fmt.Printf("[WebSocket] Upload initialized: %s (%s, %d chunks)\n", shortID(up.ID), up.FileName, up.TotalChunks)
}

func (wsh *WebSocketHandler) handleUploadChunk(ws *websocket.Conn, pending map[string]*wsUpload, msg WSMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "", "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	up, ok := pending[payload.UploadID]
	if !ok {
		wsh.sendError(ws, payload.UploadID, "Upload not found: "+payload.UploadID, "UPLOAD_NOT_FOUND")
		return
	}
	if payload.ChunkIndex < 0 || payload.ChunkIndex >= up.TotalChunks {
		wsh.sendError(ws, up.ID, fmt.Sprintf("Chunk index %d out of range", payload.ChunkIndex), "INVALID_CHUNK")
		return
	}

	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		wsh.sendError(ws, up.ID, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}
	if err := wsh.store.SaveChunk(up.ID, payload.ChunkIndex, bytes.NewReader(data)); err != nil {
		wsh.sendError(ws, up.ID, "Failed to save chunk: "+err.Error(), "SAVE_ERROR")
		return
	}
	up.ReceivedChunks[payload.ChunkIndex] = true

	received := len(up.ReceivedChunks)
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeProgress,
		ID:        up.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressResponse{
			Type:     MsgTypeProgress,
			UploadID: up.ID,
			Progress: float64(received) / float64(up.TotalChunks) * 100,
			Stage:    "uploading",
			Message:  fmt.Sprintf("Received chunk %d/%d", received, up.TotalChunks),
		}),
	})
}

// handleUploadComplete starts the upload job and relays its progress until it
// finishes. The connection reads nothing else meanwhile.
func (wsh *WebSocketHandler) handleUploadComplete(ws *websocket.Conn, pending map[string]*wsUpload, msg WSMessage) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "", "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	up, ok := pending[payload.UploadID]
	if !ok {
		wsh.sendError(ws, payload.UploadID, "Upload not found: "+payload.UploadID, "UPLOAD_NOT_FOUND")
		return
	}
	if len(up.ReceivedChunks) != up.TotalChunks {
		wsh.sendError(ws, up.ID, fmt.Sprintf("Missing chunks: got %d, expected %d",
			len(up.ReceivedChunks), up.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}
	if wsh.uploads == nil {
		wsh.sendError(ws, up.ID, "upload processing is not available", "SERVICE_UNAVAILABLE")
		return
	}

	req := upload.Request{
		UploadID:       up.ID,
		FileName:       up.FileName,
		TotalChunks:    up.TotalChunks,
		OriginalSize:   up.OriginalSize,
		CompressedSize: payload.CompressedSize,
		Encoding:       up.Encoding,
		SessionID:      up.SessionID,
	}
	if payload.OriginalSize > 0 {
		req.OriginalSize = payload.OriginalSize
	}
	if payload.Encoding != "" {
		req.Encoding = payload.Encoding
	}
	if payload.SessionID != "" {
		req.SessionID = payload.SessionID
	}

	// The job owns the chunks from here on
	delete(pending, up.ID)
	job := wsh.uploads.StartJob(req)

	ticker := time.NewTicker(wsh.pollInterval)
	defer ticker.Stop()
	lastStage := ""
	for range ticker.C {
		current, ok := wsh.uploads.GetJob(job.ID)
		if !ok {
			wsh.sendError(ws, up.ID, "Upload job disappeared", "JOB_NOT_FOUND")
			return
		}

		switch current.Status {
		case upload.StatusComplete:
			wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeComplete,
				ID:        up.ID,
				Timestamp: time.Now().UnixMilli(),
				Payload: mustJSON(WSCompleteResponse{
					Type:     MsgTypeComplete,
					UploadID: up.ID,
					JobID:    current.ID,
					FileInfo: current.FileInfo,
					Metadata: current.Metadata,
				}),
			})
			fmt.Printf("[WebSocket] Upload complete: %s -> %s\n", shortID(up.ID), current.FileInfo.StoredFilename)
			return
		case upload.StatusError:
			wsh.sendError(ws, up.ID, current.Error, "PROCESSING_ERROR")
			return
		}

		if current.Stage != lastStage {
			lastStage = current.Stage
			wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeProcessing,
				ID:        up.ID,
				Timestamp: time.Now().UnixMilli(),
				Payload: mustJSON(WSProgressResponse{
					Type:     MsgTypeProcessing,
					UploadID: up.ID,
					JobID:    current.ID,
					Progress: current.Progress,
					Stage:    string(current.Status),
					Message:  current.Stage,
				}),
			})
		}
	}
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, uploadID, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		ID:        uploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:     MsgTypeError,
			UploadID: uploadID,
			Message:  message,
			Code:     code,
		}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
