package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/snaporm/internal/library"
	"github.com/MarcoPoloResearchLab/snaporm/internal/orm"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

var errMissingLibraryService = errors.New("library service dependency required")

// LibraryService is the catalog surface exposed over HTTP.
type LibraryService interface {
	ListAuthors(ctx context.Context) ([]library.AuthorView, error)
	CreateAuthor(ctx context.Context, name string) (library.AuthorView, error)
	AddBook(ctx context.Context, authorID string, input library.NewBook) (library.BookView, error)
	RenameBook(ctx context.Context, bookID, title string) (library.BookView, error)
	TagBook(ctx context.Context, bookID, label string) (library.BookView, error)
	DeleteBook(ctx context.Context, bookID string) error
}

type Dependencies struct {
	Library           LibraryService
	Logger            *zap.Logger
	Realtime          *RealtimeDispatcher
	HeartbeatInterval time.Duration
	Clock             func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Library == nil {
		return nil, errMissingLibraryService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		library:   deps.Library,
		logger:    logger,
		realtime:  realtime,
		heartbeat: heartbeat,
		clock:     clock,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/authors", handler.handleListAuthors)
	router.POST("/authors", handler.handleCreateAuthor)
	router.POST("/authors/:id/books", handler.handleAddBook)
	router.PATCH("/books/:id", handler.handleRenameBook)
	router.POST("/books/:id/tags", handler.handleTagBook)
	router.DELETE("/books/:id", handler.handleDeleteBook)
	router.GET("/events", handler.handleEventStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	library   LibraryService
	logger    *zap.Logger
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	clock     func() time.Time
}

type createAuthorRequest struct {
	Name string `json:"name"`
}

type renameBookRequest struct {
	Title string `json:"title"`
}

type tagBookRequest struct {
	Label string `json:"label"`
}

type authorsResponse struct {
	Authors []library.AuthorView `json:"authors"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleListAuthors(c *gin.Context) {
	authors, err := h.library.ListAuthors(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, authorsResponse{Authors: authors})
}

func (h *httpHandler) handleCreateAuthor(c *gin.Context) {
	var request createAuthorRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	author, err := h.library.CreateAuthor(c.Request.Context(), request.Name)
	if err != nil {
		h.respondError(c, "create_author_failed", err)
		return
	}
	h.publish(RealtimeEventAuthorChanged, author.ID)
	c.JSON(http.StatusCreated, author)
}

func (h *httpHandler) handleAddBook(c *gin.Context) {
	var request library.NewBook
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	book, err := h.library.AddBook(c.Request.Context(), c.Param("id"), request)
	if err != nil {
		h.respondError(c, "add_book_failed", err)
		return
	}
	h.publish(RealtimeEventBookChanged, book.ID)
	c.JSON(http.StatusCreated, book)
}

func (h *httpHandler) handleRenameBook(c *gin.Context) {
	var request renameBookRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	book, err := h.library.RenameBook(c.Request.Context(), c.Param("id"), request.Title)
	if err != nil {
		h.respondError(c, "rename_book_failed", err)
		return
	}
	h.publish(RealtimeEventBookChanged, book.ID)
	c.JSON(http.StatusOK, book)
}

func (h *httpHandler) handleTagBook(c *gin.Context) {
	var request tagBookRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	book, err := h.library.TagBook(c.Request.Context(), c.Param("id"), request.Label)
	if err != nil {
		h.respondError(c, "tag_book_failed", err)
		return
	}
	h.publish(RealtimeEventBookChanged, book.ID)
	c.JSON(http.StatusOK, book)
}

func (h *httpHandler) handleDeleteBook(c *gin.Context) {
	bookID := c.Param("id")
	if err := h.library.DeleteBook(c.Request.Context(), bookID); err != nil {
		h.respondError(c, "delete_book_failed", err)
		return
	}
	h.publish(RealtimeEventBookChanged, bookID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) publish(eventType string, ids ...string) {
	h.realtime.Publish(RealtimeMessage{
		EventType: eventType,
		IDs:       ids,
		Timestamp: h.clock().UTC(),
	})
}

// respondError maps library and orm failures onto HTTP statuses. Unknown
// failures become 500 with fallback as the error label.
func (h *httpHandler) respondError(c *gin.Context, fallback string, err error) {
	status, label := classifyError(err)
	if label == "" {
		label = fallback
	}
	payload := gin.H{"error": label}

	var serviceErr *library.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	var validationErr *orm.ValidationBatchError
	if errors.As(err, &validationErr) {
		payload["invalid"] = validationErr.Invalid
		payload["entity"] = validationErr.Entity
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("library request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Warn("library request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, payload)
}

func classifyError(err error) (int, string) {
	var validationErr *orm.ValidationBatchError
	switch {
	case errors.Is(err, library.ErrAuthorNotFound):
		return http.StatusNotFound, "author_not_found"
	case errors.Is(err, library.ErrBookNotFound):
		return http.StatusNotFound, "book_not_found"
	case errors.Is(err, library.ErrInvalidName):
		return http.StatusBadRequest, "invalid_name"
	case errors.Is(err, library.ErrInvalidTitle):
		return http.StatusBadRequest, "invalid_title"
	case errors.Is(err, library.ErrInvalidLabel):
		return http.StatusBadRequest, "invalid_label"
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, orm.ErrStaleRecord):
		return http.StatusConflict, "stale_record"
	default:
		return http.StatusInternalServerError, ""
	}
}
