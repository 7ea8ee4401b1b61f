package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core"
	"github.com/agenthands/ftmresolve/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrPathOutsideRoot rejects request paths that leave the served root.
var ErrPathOutsideRoot = errors.New("path outside server root")

type Server struct {
	Pipeline *core.Pipeline
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Host     string
	Port     int
	// Root is the absolute directory every request path is confined to.
	Root     string
}

func NewServer(p *core.Pipeline, cfg config.ServerConfig, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server root: %w", err)
	}
	return &Server{
		Pipeline: p,
		Metrics:  m,
		Logger:   logger,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Root:     root,
	}, nil
}

// Run serves the API until the listener fails.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	s.Logger.Info("Starting server", "addr", addr, "root", s.Root)
	return s.SetupRouter().Run(addr)
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.POST("/infer", s.Infer)
	r.POST("/dedup", s.Dedup)
	r.POST("/graph", s.LoadGraph)
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	return r
}

type InferRequest struct {
	Factual string `json:"factual" binding:"required"`
	Out     string `json:"out" binding:"required"`
}

type DedupRequest struct {
	In  string `json:"in" binding:"required"`
	Out string `json:"out" binding:"required"`
}

type GraphRequest struct {
	Path string `json:"path" binding:"required"`
}

// JobResponse reports one finished run.
type JobResponse struct {
	JobID string      `json:"job_id"`
	Stats interface{} `json:"stats"`
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Infer(c *gin.Context) {
	var req InferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	factual, ok := s.resolve(c, req.Factual)
	if !ok {
		return
	}
	out, ok := s.resolve(c, req.Out)
	if !ok {
		return
	}

	jobID := uuid.NewString()
	stats, err := s.Pipeline.Infer(c.Request.Context(), factual, out)
	if err != nil {
		s.fail(c, jobID, "infer", err)
		return
	}
	c.JSON(http.StatusOK, JobResponse{JobID: jobID, Stats: stats})
}

func (s *Server) Dedup(c *gin.Context) {
	var req DedupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	in, ok := s.resolve(c, req.In)
	if !ok {
		return
	}
	out, ok := s.resolve(c, req.Out)
	if !ok {
		return
	}

	jobID := uuid.NewString()
	stats, err := s.Pipeline.Dedup(c.Request.Context(), in, out)
	if err != nil {
		s.fail(c, jobID, "dedup", err)
		return
	}
	c.JSON(http.StatusOK, JobResponse{JobID: jobID, Stats: stats})
}

func (s *Server) LoadGraph(c *gin.Context) {
	var req GraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	path, ok := s.resolve(c, req.Path)
	if !ok {
		return
	}

	jobID := uuid.NewString()
	stats, err := s.Pipeline.LoadGraph(c.Request.Context(), path)
	if err != nil {
		s.fail(c, jobID, "graph", err)
		return
	}
	c.JSON(http.StatusOK, JobResponse{JobID: jobID, Stats: stats})
}

// resolve maps a request path into Root. Relative paths are joined to Root.
// It answers 400 and reports false when the result lies outside Root.
func (s *Server) resolve(c *gin.Context, path string) (string, bool) {
	p, err := confine(s.Root, path)
	if err != nil {
		s.Logger.Warn("Rejected request path", "path", path, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return p, true
}

func confine(root, path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}
	return p, nil
}

func (s *Server) fail(c *gin.Context, jobID, stage string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("Run failed", "job_id", jobID, "stage", stage, "error", err)
	} else {
		s.Logger.Warn("Run rejected", "job_id", jobID, "stage", stage, "error", err)
	}
	c.JSON(status, gin.H{"job_id": jobID, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInputNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoGraph):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
