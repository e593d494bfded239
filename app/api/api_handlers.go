package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/runner"
)

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.ListFeeds(c.Request.Context(), false)
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]feedJSON, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, toFeedJSON(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": out,
		"total": len(out),
	})
}

func (h *Handler) APIGetFeed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return
	}

	f, err := h.feedRepo.GetFeed(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	c.JSON(http.StatusOK, toFeedJSON(*f))
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	ctx := c.Request.Context()

	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if err := validateFeedURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, created, err := h.feedRepo.AddFeed(ctx, req.URL, strings.TrimSpace(req.Category))
	if err != nil {
		slog.Error("Failed to add feed", "feed", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add feed"})
		return
	}

	f, err := h.feedRepo.GetFeed(ctx, id)
	if err != nil || f == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feed"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created, "feed": toFeedJSON(*f)})
}

func (h *Handler) APIUpdateFeed(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return
	}

	var req updateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if req.URL != nil {
		*req.URL = strings.TrimSpace(*req.URL)
		if err := validateFeedURL(*req.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	existing, err := h.feedRepo.GetFeed(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	update := database.FeedUpdate{URL: req.URL, Category: req.Category, Enabled: req.Enabled}
	if err := h.feedRepo.UpdateFeed(ctx, id, update); err != nil {
		slog.Error("Failed to update feed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update feed", "details": err.Error()})
		return
	}

	f, err := h.feedRepo.GetFeed(ctx, id)
	if err != nil || f == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feed"})
		return
	}
	c.JSON(http.StatusOK, toFeedJSON(*f))
}

func (h *Handler) APIDeleteFeed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return
	}

	if err := h.feedRepo.DeleteFeed(c.Request.Context(), id); err != nil {
		slog.Error("Failed to delete feed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete feed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIListRecipients(c *gin.Context) {
	recipients, err := h.recipientRepo.ListRecipients(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_recipients", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	emails := make([]string, 0, len(recipients))
	for _, r := range recipients {
		emails = append(emails, r.Email)
	}
	c.JSON(http.StatusOK, gin.H{"recipients": emails, "total": len(emails)})
}

func (h *Handler) APISetRecipients(c *gin.Context) {
	var req recipientsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	n, err := h.recipientRepo.SetRecipients(c.Request.Context(), req.Emails)
	if err != nil {
		if errors.Is(err, database.ErrInvalidEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to save recipients", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}

func (h *Handler) APIAddRecipient(c *gin.Context) {
	var req recipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	added, err := h.recipientRepo.AddRecipient(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrInvalidEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add recipient"})
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added})
}

func (h *Handler) APIDeleteRecipient(c *gin.Context) {
	if err := h.recipientRepo.DeleteRecipient(c.Request.Context(), c.Param("email")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete recipient"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIGetIntro(c *gin.Context) {
	intro, err := h.settingsRepo.GetSetting(c.Request.Context(), runner.IntroSettingKey, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intro": intro})
}

func (h *Handler) APISetIntro(c *gin.Context) {
	var req introRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	intro := strings.TrimSpace(req.Intro)
	if err := h.settingsRepo.SetSetting(c.Request.Context(), runner.IntroSettingKey, intro); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save intro"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intro": intro})
}

func (h *Handler) APIListDigests(c *gin.Context) {
	index, err := h.archive.Prune()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load digest index"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"digests": entryOrEmpty(index), "total": len(index)})
}

func (h *Handler) APIGetStats(c *gin.Context) {
	ctx := c.Request.Context()

	feeds, err := h.feedRepo.GetFeedCount(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	total, unsent, err := h.articleRepo.GetArticleStats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	recipients, err := h.recipientRepo.ListRecipients(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds":      feeds,
		"articles":   gin.H{"total": total, "unsent": unsent},
		"recipients": len(recipients),
	})
}

func (h *Handler) APIRunDigest(c *gin.Context) {
	if err := h.scheduler.RunDigest("api"); err != nil {
		slog.Error("Failed to enqueue digest run", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to start run", "details": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}
