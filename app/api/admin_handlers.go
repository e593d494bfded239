package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/runner"
)

var recipientSeparators = regexp.MustCompile(`[,\s]+`)

func (h *Handler) AdminIndex(c *gin.Context) {
	ctx := c.Request.Context()

	feeds, err := h.feedRepo.ListFeeds(ctx, false)
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	recipients, err := h.recipientRepo.ListRecipients(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_recipients", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	intro, err := h.settingsRepo.GetSetting(ctx, runner.IntroSettingKey, "")
	if err != nil {
		slog.Warn("Failed to read digest intro", "error", err)
	}

	digests, err := h.archive.Prune()
	if err != nil {
		slog.Warn("Failed to load digest index", "error", err)
	}

	data := gin.H{
		"Title":      h.title,
		"Flash":      popFlash(c),
		"Feeds":      feeds,
		"Recipients": recipients,
		"Intro":      intro,
		"Digests":    digests,
	}
	if total, unsent, err := h.articleRepo.GetArticleStats(ctx); err == nil {
		data["Total"] = total
		data["Unsent"] = unsent
	}

	c.HTML(http.StatusOK, "admin.html", data)
}

func (h *Handler) AdminAddFeed(c *gin.Context) {
	url := strings.TrimSpace(c.PostForm("url"))
	category := strings.TrimSpace(c.PostForm("category"))

	if url == "" {
		redirectWithFlash(c, "error", "Feed URL required")
		return
	}
	if err := validateFeedURL(url); err != nil {
		redirectWithFlash(c, "error", err.Error())
		return
	}

	_, created, err := h.feedRepo.AddFeed(c.Request.Context(), url, category)
	if err != nil {
		slog.Error("Failed to add feed", "feed", url, "error", err)
		redirectWithFlash(c, "error", "Failed to add feed: "+err.Error())
		return
	}

	if !created {
		redirectWithFlash(c, "info", "Feed already registered")
		return
	}
	slog.Info("Feed added", "feed", url)
	redirectWithFlash(c, "success", "Feed added")
}

func (h *Handler) AdminDeleteFeed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		redirectWithFlash(c, "error", "Invalid feed id")
		return
	}

	if err := h.feedRepo.DeleteFeed(c.Request.Context(), id); err != nil {
		slog.Error("Failed to delete feed", "id", id, "error", err)
		redirectWithFlash(c, "error", "Failed to delete feed: "+err.Error())
		return
	}

	slog.Info("Feed deleted", "id", id)
	redirectWithFlash(c, "success", "Feed deleted")
}

func (h *Handler) AdminToggleFeed(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c)
	if !ok {
		redirectWithFlash(c, "error", "Invalid feed id")
		return
	}

	f, err := h.feedRepo.GetFeed(ctx, id)
	if err != nil || f == nil {
		redirectWithFlash(c, "error", "Feed not found")
		return
	}

	enabled := !f.Enabled
	if err := h.feedRepo.UpdateFeed(ctx, id, database.FeedUpdate{Enabled: &enabled}); err != nil {
		slog.Error("Failed to toggle feed", "id", id, "error", err)
		redirectWithFlash(c, "error", "Failed to update feed: "+err.Error())
		return
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	redirectWithFlash(c, "success", "Feed "+state)
}

func (h *Handler) AdminSetFeedCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		redirectWithFlash(c, "error", "Invalid feed id")
		return
	}

	category := strings.TrimSpace(c.PostForm("category"))
	if err := h.feedRepo.UpdateFeed(c.Request.Context(), id, database.FeedUpdate{Category: &category}); err != nil {
		slog.Error("Failed to set feed category", "id", id, "error", err)
		redirectWithFlash(c, "error", "Failed to update feed: "+err.Error())
		return
	}

	redirectWithFlash(c, "success", "Category updated")
}

// AdminSaveRecipients replaces the list with the addresses in the textarea,
// separated by commas or whitespace.
func (h *Handler) AdminSaveRecipients(c *gin.Context) {
	emails := recipientSeparators.Split(strings.TrimSpace(c.PostForm("recipients")), -1)

	n, err := h.recipientRepo.SetRecipients(c.Request.Context(), emails)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidEmail) {
			slog.Error("Failed to save recipients", "error", err)
		}
		redirectWithFlash(c, "error", "Failed saving recipients: "+err.Error())
		return
	}

	redirectWithFlash(c, "success", fmt.Sprintf("Recipients updated (%d)", n))
}

func (h *Handler) AdminAddRecipient(c *gin.Context) {
	added, err := h.recipientRepo.AddRecipient(c.Request.Context(), c.PostForm("email"))
	if err != nil {
		redirectWithFlash(c, "error", "Failed to add recipient: "+err.Error())
		return
	}
	if !added {
		redirectWithFlash(c, "info", "Recipient already present")
		return
	}
	redirectWithFlash(c, "success", "Recipient added")
}

func (h *Handler) AdminDeleteRecipient(c *gin.Context) {
	if err := h.recipientRepo.DeleteRecipient(c.Request.Context(), c.PostForm("email")); err != nil {
		slog.Error("Failed to delete recipient", "error", err)
		redirectWithFlash(c, "error", "Failed to delete recipient: "+err.Error())
		return
	}
	redirectWithFlash(c, "success", "Recipient removed")
}

func (h *Handler) AdminSaveIntro(c *gin.Context) {
	intro := strings.TrimSpace(c.PostForm("intro"))
	if err := h.settingsRepo.SetSetting(c.Request.Context(), runner.IntroSettingKey, intro); err != nil {
		slog.Error("Failed to save digest intro", "error", err)
		redirectWithFlash(c, "error", "Failed to save intro: "+err.Error())
		return
	}
	redirectWithFlash(c, "success", "Intro saved")
}

func (h *Handler) AdminRunDigest(c *gin.Context) {
	slog.Info("Admin initiated digest run")

	if err := h.scheduler.RunDigest("admin"); err != nil {
		slog.Error("Failed to enqueue digest run", "error", err)
		redirectWithFlash(c, "error", "Failed to start run: "+err.Error())
		return
	}
	redirectWithFlash(c, "success", "Digest run started, check the archive shortly")
}

func (h *Handler) AdminViewDigest(c *gin.Context) {
	name := c.Param("filename")
	if _, err := h.archive.Path(name); err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.HTML(http.StatusOK, "admin_digest.html", gin.H{
		"Title":    h.title,
		"Filename": name,
	})
}
