package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
	"github.com/idlesign/sitemessage/internal/subscription"
)

// pixelGIF is a 1x1 transparent GIF served by the tracking endpoint.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// registerRoutes sets up all recipient-facing routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/messages/unsubscribe/:message_id/:dispatch_id/:sig", handleUnsubscribe(opts))
	router.GET("/messages/ping/:message_id/:dispatch_id/:sig", handlePing(opts))
	router.GET("/preferences/:user", handleGetPreferences(opts.DB))
	router.POST("/preferences/:user", handleSetPreferences(opts.DB))
}

// signedDispatch parses and authenticates the tracking URL parameters,
// returning the addressed dispatch with its message preloaded.
func signedDispatch(c *gin.Context, opts StartOpts) (*models.Dispatch, bool) {
	messageID, err1 := strconv.ParseUint(c.Param("message_id"), 10, 32)
	dispatchID, err2 := strconv.ParseUint(c.Param("dispatch_id"), 10, 32)
	if err1 != nil || err2 != nil {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	if !Verify(opts.SignKey, uint(messageID), uint(dispatchID), c.Param("sig")) {
		c.Status(http.StatusNotFound)
		return nil, false
	}

	var d models.Dispatch
	err := opts.DB.Preload("Message").
		Where("id = ? AND message_id = ?", dispatchID, messageID).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
		} else {
			c.Status(http.StatusInternalServerError)
		}
		return nil, false
	}
	return &d, true
}

func handleUnsubscribe(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := signedDispatch(c, opts)
		if !ok {
			return
		}

		err := subscription.Unsubscribe(opts.DB, d.Address, d.Message.Cls, d.Messenger)
		if err != nil && !errors.Is(err, delivery.ErrConfiguration) {
			c.Status(http.StatusInternalServerError)
			return
		}

		if opts.BaseURL != "" {
			c.Redirect(http.StatusFound, opts.BaseURL)
			return
		}
		c.String(http.StatusOK, "You have been unsubscribed.")
	}
}

func handlePing(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := signedDispatch(c, opts)
		if !ok {
			return
		}

		if err := delivery.MarkRead(opts.DB, d.ID); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "image/gif", pixelGIF)
	}
}

func handleGetPreferences(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefs, err := subscription.PreferencesFor(db, c.Param("user"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}

func handleSetPreferences(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var prefs []subscription.Preference
		if err := c.ShouldBindJSON(&prefs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := subscription.SetPreferences(db, c.Param("user"), prefs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
