package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dolr-ai/videohash-indexer/internal/audit"
	"github.com/dolr-ai/videohash-indexer/internal/coordinator"
	"github.com/dolr-ai/videohash-indexer/pkg/models"
)

// Handler wires the coordinator to the HTTP/websocket surface. The
// core (internal/coordinator, internal/mih, internal/registry,
// internal/hashcode) has no dependency on this package or on gin.
type Handler struct {
	coord *coordinator.Coordinator
	wsHub *Hub
	audit *audit.Sink
}

// SetupRouter builds the gin engine: the CORS middleware, the core
// search/delete endpoints, the health endpoint, and the
// observability-only websocket stream.
func SetupRouter(coord *coordinator.Coordinator, wsHub *Hub, auditSink *audit.Sink, apiAuthToken string) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var.
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Assign each request a correlation id, stored in the gin context
	// under "request_id"; it is not written to the request log.
	r.Use(func(c *gin.Context) {
		c.Set("request_id", uuid.New().String())
		c.Next()
	})

	handler := &Handler{coord: coord, wsHub: wsHub, audit: auditSink}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", handler.handleSearch)
		v1.DELETE("/hash/:video_id", handler.handleDelete)

		// /health reports audit-sink connectivity, so it is gated behind
		// the same bearer token as the stream whenever one is configured;
		// /search and /hash/:video_id implement the core contract itself
		// and carry no auth requirement of their own.
		observability := v1.Group("")
		observability.Use(AuthMiddleware(apiAuthToken))
		observability.GET("/health", handler.handleHealth)

		// The verdict stream additionally gets a rate limiter: it is the
		// one surface where an unauthenticated, unbounded number of
		// subscribers would be a real resource concern.
		observability.Use(NewRateLimiter(30, 5).Middleware())
		observability.GET("/stream", wsHub.Subscribe)
	}

	return r
}

func (h *Handler) handleSearch(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body, expected {video_id, hash}"})
		return
	}

	verdict, err := h.coord.SearchOrInsert(req.VideoID, req.Hash)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: errorMessage(err, req.VideoID)})
		return
	}

	resp := models.SearchResponse{
		MatchFound: verdict.MatchFound,
		HashAdded:  verdict.HashAdded,
	}

	event := models.StreamEvent{VideoID: req.VideoID}
	if verdict.MatchFound {
		resp.MatchDetails = &models.MatchDetails{
			VideoID:              verdict.MatchDetails.MatchedVideoID,
			SimilarityPercentage: verdict.MatchDetails.SimilarityPercentage,
			IsDuplicate:          verdict.MatchDetails.IsDuplicate,
		}
		event.Type = "match_found"
		event.MatchedVideoID = verdict.MatchDetails.MatchedVideoID
		event.SimilarityPercentage = verdict.MatchDetails.SimilarityPercentage
		event.IsDuplicate = verdict.MatchDetails.IsDuplicate
	} else {
		event.Type = "inserted"
	}

	h.wsHub.Publish(event)
	h.recordAudit(c.Request.Context(), event)

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleDelete(c *gin.Context) {
	videoID := c.Param("video_id")

	if err := h.coord.Delete(videoID); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: fmt.Sprintf("Hash with video_id %s not found", videoID),
		})
		return
	}

	event := models.StreamEvent{Type: "deleted", VideoID: videoID}
	h.wsHub.Publish(event)
	h.recordAudit(c.Request.Context(), event)

	c.JSON(http.StatusOK, models.DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("Hash with video_id %s successfully deleted", videoID),
	})
}

// handleHealth returns service status for service discovery: index
// population and audit-sink connectivity.
func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "operational",
		"service":      "videohash-indexer",
		"population":   h.coord.Len(),
		"auditEnabled": h.audit.Enabled(),
	})
}

func (h *Handler) recordAudit(ctx context.Context, e models.StreamEvent) {
	if !h.audit.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.audit.Record(ctx, audit.Event{
			VideoID:        e.VideoID,
			Operation:      e.Type,
			MatchedVideoID: e.MatchedVideoID,
			Similarity:     e.SimilarityPercentage,
			IsDuplicate:    e.IsDuplicate,
		}); err != nil {
			log.Printf("audit: failed to record %s event for %s: %v", e.Type, e.VideoID, err)
		}
	}()
}

func errorMessage(err error, videoID string) string {
	switch {
	case errors.Is(err, coordinator.ErrInvalidHash):
		return err.Error()
	case errors.Is(err, coordinator.ErrDuplicateIdentifier):
		return fmt.Sprintf("video_id %s is already indexed", videoID)
	default:
		return err.Error()
	}
}
