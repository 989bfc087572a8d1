package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"streambridge/internal/domain"
	"streambridge/internal/service"
	"streambridge/internal/swarm"
)

// Handler wires HTTP routes to the stream service.
type Handler struct {
	service   service.StreamService
	manager   swarm.Manager
	jwtSecret string
	logger    *logrus.Logger
}

func NewHandler(svc service.StreamService, manager swarm.Manager, jwtSecret string, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		service:   svc,
		manager:   manager,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := api.Group("")
	if h.jwtSecret != "" {
		authed.Use(authMiddleware(h.jwtSecret))
	}
	{
		authed.GET("/transport", h.getTransport)
		authed.POST("/resolve", h.resolve)
		authed.POST("/sessions", h.createSession)
		authed.GET("/sessions", h.listSessions)
		authed.GET("/sessions/:infoHash", h.getSession)
		authed.DELETE("/sessions/:infoHash", h.deleteSession)
		authed.GET("/sessions/:infoHash/files/*filepath", h.streamFile)
		authed.POST("/transcode", h.submitTranscode)
		authed.POST("/uploads", h.uploadFile)
		authed.GET("/ws/sessions", h.sessionsSocket)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) getTransport(c *gin.Context) {
	support := h.service.TransportSupport(c.Request.Context())
	c.JSON(http.StatusOK, TransportResponse{
		Supported: support.Supported,
		Reason:    support.Reason,
	})
}

type resolveRequest struct {
	Input string `json:"input" binding:"required"`
}

// resolve accepts either a JSON body with a magnet/URL input or a multipart
// form with a "descriptor" torrent file.
func (h *Handler) resolve(c *gin.Context) {
	summary, ok := h.resolveFromRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summaryToResponse(summary))
}

func (h *Handler) resolveFromRequest(c *gin.Context) (domain.ContentSummary, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("descriptor")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "descriptor file is required"})
			return domain.ContentSummary{}, false
		}
		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return domain.ContentSummary{}, false
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return domain.ContentSummary{}, false
		}
		summary, err := h.service.ResolveDescriptor(raw)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return domain.ContentSummary{}, false
		}
		return summary, true
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.ContentSummary{}, false
	}
	summary, err := h.service.Resolve(req.Input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return domain.ContentSummary{}, false
	}
	return summary, true
}

func (h *Handler) createSession(c *gin.Context) {
	summary, ok := h.resolveFromRequest(c)
	if !ok {
		return
	}

	snap, err := h.service.StartSession(c.Request.Context(), summary)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, sessionToResponse(snap))
}

func (h *Handler) listSessions(c *gin.Context) {
	snaps := h.manager.Sessions()
	resp := make([]SessionResponse, len(snaps))
	for i := range snaps {
		resp[i] = sessionToResponse(snaps[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getSession(c *gin.Context) {
	snap, err := h.manager.Session(c.Param("infoHash"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(snap))
}

func (h *Handler) deleteSession(c *gin.Context) {
	infoHash := c.Param("infoHash")
	if err := h.manager.StopSession(infoHash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": infoHash})
}

// streamFile serves the bridged playback bytes for one session file. Complete
// sources support range requests; partial sources return the bytes received
// so far.
func (h *Handler) streamFile(c *gin.Context) {
	infoHash := c.Param("infoHash")
	filePath := strings.TrimPrefix(c.Param("filepath"), "/")

	src, err := h.manager.FileSource(infoHash, filePath)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	reader, complete := src.Reader()
	c.Header("Content-Type", src.MimeType())
	if complete {
		http.ServeContent(c.Writer, c.Request, src.Entry().Name, time.Time{}, reader)
		return
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

type transcodeRequest struct {
	Input      string `json:"input" binding:"required"`
	Title      string `json:"title"`
	StaticCopy bool   `json:"static_copy"`
}

func (h *Handler) submitTranscode(c *gin.Context) {
	var req transcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.Resolve(req.Input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.SubmitForTranscode(c.Request.Context(), summary, domain.TranscodeOptions{
		Title:      req.Title,
		StaticCopy: req.StaticCopy,
	})
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resultToResponse(result))
}

func (h *Handler) uploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	result, err := h.service.UploadLocalFile(c.Request.Context(), f, fileHeader.Size, title, nil)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resultToResponse(result))
}

// statusForError maps the error taxonomy onto HTTP statuses so callers can
// tell bad input from degraded-but-progressing from permanently failed.
func statusForError(err error) int {
	var processingErr *domain.ProcessingError
	var uploadErr *domain.UploadError
	var transportErr *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProcessingTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &processingErr), errors.As(err, &uploadErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type TransportResponse struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}

type FileResponse struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Kind      string `json:"kind"`
	StreamRef string `json:"stream_ref,omitempty"`
}

type SummaryResponse struct {
	Kind      string         `json:"kind"`
	InfoHash  string         `json:"info_hash,omitempty"`
	Title     string         `json:"title"`
	TotalSize int64          `json:"total_size"`
	Category  string         `json:"category"`
	Trackers  []string       `json:"trackers,omitempty"`
	Files     []FileResponse `json:"files,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
}

type SessionResponse struct {
	InfoHash     string         `json:"info_hash"`
	Magnet       string         `json:"magnet"`
	Name         string         `json:"name"`
	Category     string         `json:"category"`
	Progress     float64        `json:"progress"`
	DownloadRate int64          `json:"download_rate"`
	UploadRate   int64          `json:"upload_rate"`
	Peers        int            `json:"peers"`
	Ready        bool           `json:"ready"`
	Recoveries   int            `json:"recoveries"`
	StartedAt    string         `json:"started_at"`
	Files        []FileResponse `json:"files"`
}

type TranscodeResponse struct {
	AssetID     string `json:"asset_id"`
	PlaybackID  string `json:"playback_id"`
	PlaybackURL string `json:"playback_url"`
	DownloadURL string `json:"download_url,omitempty"`
}

func summaryToResponse(s domain.ContentSummary) SummaryResponse {
	resp := SummaryResponse{
		Kind:      string(s.Kind),
		InfoHash:  s.InfoHash,
		Title:     s.Title,
		TotalSize: s.TotalSize,
		Category:  string(s.Category),
		Trackers:  s.Trackers,
		SourceURL: s.SourceURL,
		Files:     make([]FileResponse, len(s.Files)),
	}
	for i, f := range s.Files {
		resp.Files[i] = FileResponse{
			Name: f.Name,
			Path: f.Path,
			Size: f.Size,
			Kind: string(f.Kind),
		}
	}
	return resp
}

func sessionToResponse(snap domain.SessionSnapshot) SessionResponse {
	resp := SessionResponse{
		InfoHash:     snap.InfoHash,
		Magnet:       snap.MagnetURI,
		Name:         snap.Name,
		Category:     string(snap.Category),
		Progress:     snap.Progress,
		DownloadRate: snap.DownloadRate,
		UploadRate:   snap.UploadRate,
		Peers:        snap.Peers,
		Ready:        snap.Ready,
		Recoveries:   snap.Recoveries,
		StartedAt:    snap.StartedAt.Format(time.RFC3339),
		Files:        make([]FileResponse, len(snap.Files)),
	}
	for i, f := range snap.Files {
		resp.Files[i] = FileResponse{
			Name:      f.Name,
			Path:      f.Path,
			Size:      f.Size,
			Kind:      string(f.Kind),
			StreamRef: f.StreamRef,
		}
	}
	return resp
}

func resultToResponse(r *domain.TranscodeResult) TranscodeResponse {
	return TranscodeResponse{
		AssetID:     r.AssetID,
		PlaybackID:  r.PlaybackID,
		PlaybackURL: r.PlaybackURL,
		DownloadURL: r.DownloadURL,
	}
}
