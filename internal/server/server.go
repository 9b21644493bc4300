package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/internal/chart"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/service"
)

const (
	msgNoSymbols    = "Please enter at least one stock symbol."
	msgNoMarketData = "Could not fetch data for any of the provided symbols. Please try again later."
	msgReportFailed = "Error generating report. Please try again with different symbols or wait a few minutes before retrying."
)

// Server exposes report generation, price history and charts over HTTP.
type Server struct {
	addr   string
	svc    *service.Service
	router *gin.Engine
	logger *zap.Logger
}

type Config struct {
	Addr   string
	Svc    *service.Service
	Logger *zap.Logger
}

type reportRequest struct {
	Symbols []string `json:"symbols"`
	Save    bool     `json:"save"`
}

type reportResponse struct {
	ID          string             `json:"id"`
	Report      string             `json:"report"`
	Performance models.Performance `json:"performance"`
	Warnings    []models.Warning   `json:"warnings"`
	SavedPath   string             `json:"saved_path,omitempty"`
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Svc == nil {
		return nil, errors.New("http server requires a report service")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{addr: cfg.Addr, svc: cfg.Svc, router: router, logger: cfg.Logger}
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/chart", s.handleChart)

	api := router.Group("/api")
	api.POST("/report", s.handleReport)
	api.GET("/history/:symbol", s.handleHistory)
	api.GET("/reports", s.handleListReports)
	api.GET("/reports/file", s.handleReadReport)

	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("http server listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	symbols := models.ParseSymbols(strings.Join(req.Symbols, ","))
	report, err := s.svc.Generate(c.Request.Context(), symbols)
	if err != nil {
		if errors.Is(err, models.ErrNoSymbols) {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgNoSymbols})
			return
		}
		s.logger.Error("report request failed", zap.Strings("symbols", symbols), zap.Error(err))
		if errors.Is(err, models.ErrNoMarketData) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msgNoMarketData})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msgReportFailed})
		return
	}

	resp := reportResponse{
		ID:          report.ID,
		Report:      report.Final,
		Performance: report.Performance,
		Warnings:    report.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []models.Warning{}
	}
	if req.Save {
		path, err := s.svc.Archive().Save(report)
		if err != nil {
			s.logger.Warn("saving report failed", zap.String("id", report.ID), zap.Error(err))
		} else {
			resp.SavedPath = path
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c *gin.Context) {
	symbol := models.NormalizeSymbol(c.Param("symbol"))
	history, err := s.svc.History(c.Request.Context(), symbol)
	if err != nil {
		s.logger.Warn("history request failed", zap.String("symbol", symbol), zap.Error(err))
		if errors.Is(err, models.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no price data found for " + symbol})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch price data, please try again later"})
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) handleChart(c *gin.Context) {
	symbols := models.ParseSymbols(c.Query("symbols"))
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query parameter is required"})
		return
	}
	src, err := s.svc.HistorySource(c.Query("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sma, _ := strconv.Atoi(c.DefaultQuery("sma", "0"))

	histories, warnings := service.Histories(c.Request.Context(), src, symbols)
	for _, w := range warnings {
		s.logger.Warn(w.Message, zap.String("symbol", w.Symbol), zap.String("stage", w.Stage))
	}
	if len(histories) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not generate performance chart."})
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderLine(&buf, histories, chart.Options{
		Title:     "Stock Performance",
		Subtitle:  strings.Join(symbols, ", "),
		SMAPeriod: sma,
	}); err != nil {
		s.logger.Error("chart render failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate performance chart."})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleListReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	page, err := s.svc.Archive().List(c.Query("cursor"), limit)
	if err != nil {
		c.JSON(archiveStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleReadReport(c *gin.Context) {
	report, err := s.svc.Archive().Read(c.Query("path"))
	if err != nil {
		c.JSON(archiveStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func archiveStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidReportPath), errors.Is(err, service.ErrUnknownCursor):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrReportNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
