package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/traffic-sign/internal/auth"
	"github.com/example/traffic-sign/internal/classifier"
	"github.com/example/traffic-sign/internal/imageprocessor"
	"github.com/example/traffic-sign/internal/labels"
	"github.com/example/traffic-sign/internal/ui"
	"github.com/example/traffic-sign/internal/usecase"
)

// MaxUploadSize is the default limit for uploaded images.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 1 << 20

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
}

// Deps collects everything the routes need.
type Deps struct {
	Classify    *usecase.ClassificationUseCase
	Preferences *usecase.PreferencesUseCase
	Page        *ui.Page
	Session     gin.HandlerFunc
	Metrics     http.Handler
	// MaxUploadBytes defaults to MaxUploadSize.
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = MaxUploadSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Session == nil {
		deps.Session = func(c *gin.Context) { c.Next() }
	}
	logger := deps.Logger.Named("handlers")

	router.Use(static.Serve("/static", ui.StaticFS()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	router.GET("/labels", func(c *gin.Context) {
		set := deps.Classify.Labels()
		c.JSON(http.StatusOK, gin.H{
			"name":      set.Name(),
			"labels":    set.Names(),
			"threshold": deps.Classify.Threshold(),
		})
	})

	withSession := router.Group("/", deps.Session)

	withSession.GET("/", func(c *gin.Context) {
		sessionID, _ := auth.GetSessionID(c.Request.Context())
		state, err := deps.Preferences.State(c.Request.Context(), sessionID)
		if err != nil {
			logger.Warn("failed to load session state, using defaults", zap.Error(err))
			state = ui.AppState{Theme: ui.ThemeLight}
		}
		var buf bytes.Buffer
		if err := deps.Page.Render(&buf, state); err != nil {
			logger.Error("failed to render page", zap.Error(err))
			c.String(http.StatusInternalServerError, "failed to render page")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	})

	withSession.POST("/theme", func(c *gin.Context) {
		sessionID, _ := auth.GetSessionID(c.Request.Context())
		state, err := deps.Preferences.ToggleTheme(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update theme"})
			return
		}
		if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
			c.JSON(http.StatusOK, gin.H{"theme": state.Theme})
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	})

	withSession.POST("/classify", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, deps.MaxUploadBytes+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > deps.MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		if _, ok := allowedContentTypes[file.Header.Get("Content-Type")]; !ok {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only JPEG and PNG images are accepted"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		sessionID, _ := auth.GetSessionID(c.Request.Context())
		outcome, err := deps.Classify.Classify(c.Request.Context(), sessionID, data)
		if err != nil {
			status, message := classifyError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": outcome.RequestID,
			"format":     outcome.Format,
			"elapsed_ms": outcome.Elapsed.Milliseconds(),
			"result":     outcome.Result,
		})
	})
}

// classifyError maps pipeline failures to a status and a message safe to show users.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, imageprocessor.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "Please upload a colour JPEG or PNG photo of a traffic sign."
	case errors.Is(err, imageprocessor.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "The image resolution is too large, please upload a smaller photo."
	case errors.Is(err, imageprocessor.ErrInvalidImage):
		return http.StatusBadRequest, "The uploaded file could not be read as an image."
	case errors.Is(err, usecase.ErrSessionBusy):
		return http.StatusConflict, "An image is already being analyzed, please wait."
	case errors.Is(err, classifier.ErrShapeMismatch), errors.Is(err, labels.ErrLabelIndexOutOfRange):
		return http.StatusInternalServerError, "The classifier is misconfigured."
	default:
		return http.StatusInternalServerError, "Classification failed."
	}
}
