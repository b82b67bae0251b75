// Package api exposes the webhook over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/ingest"
	"github.com/betbot/traderelay/pkg/logger"
)

const defaultMaxBodyBytes = 1 << 20

type Config struct {
	// Production hides error details from responses.
	Production   bool
	MaxBodyBytes int64
}

type Server struct {
	rec ingest.Reconciler
	cfg Config
}

func New(rec ingest.Reconciler, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{rec: rec, cfg: cfg}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLogger())

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, tradeResponse{
			Error: &errorBody{Kind: "MethodNotAllowed", Message: "method " + c.Request.Method + " not allowed"},
		})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, tradeResponse{Error: &errorBody{Kind: "NotFound", Message: "no such route"}})
	})

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	api := r.Group("/api")
	api.POST("/trade", s.handleTrade)

	return r
}

type tradeResponse struct {
	OK                 bool       `json:"ok"`
	Outcome            string     `json:"outcome,omitempty"`
	OrderID            int64      `json:"orderId,omitempty"`
	NotificationHandle string     `json:"notificationHandle,omitempty"`
	RecordHandle       string     `json:"recordHandle,omitempty"`
	Error              *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) handleTrade(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, tradeResponse{
				Error: &errorBody{Kind: string(domain.KindInvalidEvent), Message: "request body too large"},
			})
			return
		}
		s.fail(c, domain.NewError(domain.KindInvalidEvent, "read body", err))
		return
	}

	ev, err := ingest.Decode(body)
	if err != nil {
		s.fail(c, err)
		return
	}

	// a client that hangs up must not cut a reconcile between send and persist
	ctx := context.WithoutCancel(c.Request.Context())
	out, err := s.rec.Reconcile(ctx, ev)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, tradeResponse{
		OK:                 true,
		Outcome:            string(out.Kind),
		OrderID:            out.OrderID,
		NotificationHandle: out.NotificationHandle,
		RecordHandle:       out.RecordHandle,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	body := &errorBody{Kind: string(kind), Message: publicMessage(kind, err)}
	if !s.cfg.Production {
		body.Detail = err.Error()
	}
	_ = c.Error(err)
	c.JSON(StatusFor(kind), tradeResponse{Error: body})
}

// StatusFor maps an error kind to the HTTP status of the webhook response.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidAction, domain.KindInvalidEvent:
		return http.StatusBadRequest
	case domain.KindNotificationError:
		return http.StatusBadGateway
	case domain.KindLookupError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(kind domain.Kind, err error) string {
	switch kind {
	case domain.KindInvalidAction, domain.KindInvalidEvent:
		var de *domain.Error
		if errors.As(err, &de) && de.Err != nil {
			return de.Err.Error()
		}
		return "invalid event"
	case domain.KindNotificationError:
		return "notification could not be sent"
	case domain.KindLookupError:
		return "record store unavailable"
	case domain.KindWriteError:
		return "record could not be saved"
	default:
		return "internal error"
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)

		c.Next()

		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		entry := logger.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Errorf("http request failed: %s", c.Errors.String())
		case status >= 400:
			entry.Warnf("http request rejected: %s", c.Errors.String())
		default:
			entry.Info("http request")
		}
	}
}
