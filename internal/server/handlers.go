package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"book-rag/internal/models"

	"github.com/labstack/echo/v4"
)

type chatRequest struct {
	Message      string `json:"message"`
	SelectedText string `json:"selected_text"`
	SessionID    string `json:"session_id"`
}

func (s *Server) postChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.chat.Chat(c.Request().Context(), models.Turn{
		Message:      req.Message,
		SelectedText: req.SelectedText,
		SessionID:    req.SessionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

type embedRequest struct {
	SourcePath     string `json:"source_path"`
	CollectionName string `json:"collection_name"`
}

func (s *Server) postEmbed(c echo.Context) error {
	var req embedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	path := strings.TrimSpace(req.SourcePath)
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source_path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Source path does not exist: "+path)
	}
	if !info.IsDir() {
		return echo.NewHTTPError(http.StatusBadRequest, "Source path is not a directory: "+path)
	}
	if root := s.opts.SourceRoot; root != "" {
		if !within(root, path) {
			s.logger.Warn("rejected source path outside the book directory", "source_path", path, "root", root)
			return echo.NewHTTPError(http.StatusBadRequest, "source_path must be inside the book directory")
		}
	} else {
		s.logger.Warn("indexing a source path with no configured book directory", "source_path", path)
	}
	if req.CollectionName != "" && s.opts.Collection != "" && req.CollectionName != s.opts.Collection {
		return echo.NewHTTPError(http.StatusBadRequest, "collection_name must be "+s.opts.Collection)
	}

	job, err := s.index.Start(c.Request().Context(), path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, job)
}

// within reports whether path is root or lies below it, after resolving
// symlinks on both sides
func within(root, path string) bool {
	r, err := resolve(root)
	if err != nil {
		return false
	}
	p, err := resolve(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func (s *Server) getJob(c echo.Context) error {
	job, err := s.index.Job(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) getCount(c echo.Context) error {
	count, err := s.index.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":           count,
		"collection_name": s.opts.Collection,
		"timestamp":       time.Now().Unix(),
	})
}

func (s *Server) getLogs(c echo.Context) error {
	q := models.LogQuery{Mode: c.QueryParam("mode"), Limit: models.DefaultLogLimit}

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > models.MaxLogLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 100")
		}
		q.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		q.Offset = n
	}

	page, err := s.chat.Logs(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	deps := make(map[string]string, len(s.opts.Checks))
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			deps[name] = "unavailable"
			status = "degraded"
			continue
		}
		deps[name] = "connected"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status":       status,
		"timestamp":    time.Now().Unix(),
		"dependencies": deps,
	})
}
