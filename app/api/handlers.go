package api

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/archive"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
)

func NewHandler(deps Deps) *Handler {
	return &Handler{
		feedRepo:      deps.FeedRepo,
		articleRepo:   deps.ArticleRepo,
		recipientRepo: deps.RecipientRepo,
		settingsRepo:  deps.SettingsRepo,
		archive:       deps.Archive,
		configCache:   deps.ConfigCache,
		scheduler:     deps.Scheduler,
		generator:     feed.NewGenerator(),
		baseURL:       deps.BaseURL,
		version:       deps.Version,
		title:         cmp.Or(deps.FromName, "RSS Digest"),
	}
}

func (h *Handler) GetLatest(c *gin.Context) {
	latest, err := h.archive.Latest()
	if err != nil {
		slog.Error("Failed to load digest index", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "public.html", gin.H{
		"Title":  h.title,
		"Latest": latest,
	})
}

func (h *Handler) GetArchive(c *gin.Context) {
	index, err := h.archive.Prune()
	if err != nil {
		slog.Error("Failed to load digest index", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "archive.html", gin.H{
		"Title":   h.title,
		"Digests": index,
	})
}

// GetDigest serves an archived digest file as is.
func (h *Handler) GetDigest(c *gin.Context) {
	path, err := h.archive.Path(c.Param("filename"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Content-Security-Policy", "script-src 'none'; object-src 'none'")
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.File(path)
}

// GetDigestFeed publishes the archive as an RSS 2.0 feed.
func (h *Handler) GetDigestFeed(c *gin.Context) {
	index, err := h.archive.Prune()
	if err != nil {
		slog.Error("Failed to load digest index", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	base := h.publicBase(c)

	items := make([]feed.ChannelItem, 0, len(index))
	for _, e := range index {
		published, _ := e.Time()
		link := base + "/digests/" + url.PathEscape(e.Filename)
		items = append(items, feed.ChannelItem{
			GUID:        link,
			Title:       e.Subject,
			Link:        link,
			Description: fmt.Sprintf("%d items", e.ItemCount),
			Published:   published,
		})
	}

	rss, err := h.generator.Run(feed.Channel{
		Title:       h.title,
		Link:        base + "/",
		Description: "Archived email digests",
		SelfLink:    base + "/feed.xml",
		Generator:   "rss-digest " + h.version,
	}, items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := gin.H{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	feedCount, err := h.feedRepo.GetFeedCount(ctx)
	if err != nil {
		slog.Error("Health check failed", "error", err)
		health["status"] = "error"
		health["error"] = "database unavailable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["feeds"] = feedCount

	if total, unsent, err := h.articleRepo.GetArticleStats(ctx); err == nil {
		health["articles"] = gin.H{"total": total, "unsent": unsent}
	}

	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}

	if index, err := h.archive.Index(); err == nil {
		health["digests"] = len(index)
	}

	c.JSON(http.StatusOK, health)
}

// publicBase is BASE_URL, or the scheme and host of the current request.
func (h *Handler) publicBase(c *gin.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

var errInvalidFeedURL = errors.New("feed URL must be an absolute http or https URL")

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errInvalidFeedURL
	}
	return nil
}

func toFeedJSON(f database.Feed) feedJSON {
	out := feedJSON{
		ID:       f.ID,
		URL:      f.URL,
		Title:    f.Title,
		Category: f.Category,
		Enabled:  f.Enabled,
		AddedAt:  f.AddedAt.UTC().Format(time.RFC3339),
	}
	if f.LastFetchedAt != nil {
		s := f.LastFetchedAt.UTC().Format(time.RFC3339)
		out.LastFetchedAt = &s
	}
	return out
}

func entryOrEmpty(index []archive.Entry) []archive.Entry {
	if index == nil {
		return []archive.Entry{}
	}
	return index
}
