package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sofatutor/imagegen-proxy/internal/history"
	"go.uber.org/zap"
)

func (s *Server) handleHistoryList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	cursor := c.Query("cursor")
	if cursor == "" {
		cursor = c.Query("offset")
	}

	page, err := s.store.List(c.Request.Context(), limit, cursor)
	if err != nil {
		s.logger.Error("Failed to list history", zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error(), errTypeStorage, 0)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleHistoryStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to compute history stats", zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error(), errTypeStorage, 0)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHistoryDelete(c *gin.Context) {
	s.deleteHistory(c, c.Param("id"))
}

type deleteRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleHistoryDeleteBody(c *gin.Context) {
	var body deleteRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.ID) == "" {
		writeValidationError(c, "id is required")
		return
	}
	s.deleteHistory(c, body.ID)
}

func (s *Server) deleteHistory(c *gin.Context, id string) {
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		s.logger.Error("Failed to delete history record", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleHistoryExport(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" {
		writeValidationError(c, fmt.Sprintf("unsupported export format %q (want json or csv)", format))
		return
	}

	records, err := s.store.Records(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to export history", zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error(), errTypeStorage, 0)
		return
	}

	var buf bytes.Buffer
	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv; charset=utf-8"
		err = history.WriteCSV(&buf, records)
	} else {
		err = history.WriteJSON(&buf, records)
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error(), errTypeStorage, 0)
		return
	}

	filename := fmt.Sprintf("history-%s.%s", s.now().UTC().Format("2006-01-02"), format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
