package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const flashCookie = "flash"

type flash struct {
	Kind    string
	Message string
}

func setFlash(c *gin.Context, kind, message string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, kind+":"+message, 60, "/admin", "", false, true)
}

// popFlash reads and clears the pending message.
func popFlash(c *gin.Context) *flash {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	c.SetCookie(flashCookie, "", -1, "/admin", "", false, true)

	kind, message, ok := strings.Cut(raw, ":")
	if !ok {
		return nil
	}
	return &flash{Kind: kind, Message: message}
}

func redirectWithFlash(c *gin.Context, kind, message string) {
	setFlash(c, kind, message)
	c.Redirect(http.StatusSeeOther, "/admin")
}
