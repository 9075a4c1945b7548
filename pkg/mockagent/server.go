package mockagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sameehj/agenteval/pkg/logging"
	"github.com/sameehj/agenteval/pkg/metrics"
)

const QuestionRoute = "/agent/transcript/question"

// Server stands in for the agent service during local evaluation runs.
type Server struct {
	answers *Answers
	logger  *slog.Logger
	metrics metrics.ServerRecorder
	prom    *metrics.ServerProm
	engine  *gin.Engine
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics and exposes them on /metrics.
func WithMetrics(p *metrics.ServerProm) Option {
	return func(s *Server) {
		if p != nil {
			s.metrics = p
			s.prom = p
		}
	}
}

func New(answers *Answers, opts ...Option) *Server {
	if answers == nil {
		answers = &Answers{DefaultAnswer: defaultAnswer}
	}
	s := &Server{
		answers: answers,
		logger:  logging.Discard(),
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery(), cors.Default(), s.observe())

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.prom != nil {
		g.GET("/metrics", gin.WrapH(s.prom.Handler()))
	}
	agent := g.Group("/agent")
	agent.POST("/transcript/question", s.question)
	agent.GET("/transcript/:userId/:transcriptId", s.transcript)
	return g
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.metrics.ObserveRequest(c.Request.Method, route, status, time.Since(start).Seconds())
		s.logger.Debug("mock agent request", "method", c.Request.Method, "route", route, "status", status)
	}
}

// flexID accepts an identifier sent either as a JSON string or a JSON number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("identifier must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}

type questionRequest struct {
	UserID       flexID `json:"user_id" binding:"required"`
	TranscriptID flexID `json:"transcript_id" binding:"required"`
	Question     string `json:"question" binding:"required,min=1,max=500"`
}

func (s *Server) question(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	answer := s.answers.Lookup(req.Question)
	s.logger.Info("answered question", "user_id", string(req.UserID), "transcript_id", string(req.TranscriptID))
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (s *Server) transcript(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId must be an integer"})
		return
	}
	transcriptID, err := strconv.Atoi(c.Param("transcriptId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcriptId must be an integer"})
		return
	}
	onlyTranscript := false
	if raw := c.Query("onlyTranscript"); raw != "" {
		onlyTranscript, err = strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "onlyTranscript must be a boolean"})
			return
		}
	}

	t, ok := s.answers.Transcript(userID, transcriptID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcript not found"})
		return
	}
	if onlyTranscript {
		c.JSON(http.StatusOK, gin.H{"transcript": t.Content})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": t.Content, "summary": t.Summary})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
