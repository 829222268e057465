package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"euromillions/internal/extract"
	"euromillions/internal/fetcher"
	"euromillions/internal/models"
	"euromillions/internal/services"
	"euromillions/internal/store"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the draw service.
type HTTPHandler struct {
	service *services.DrawService
	version string
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.DrawService, version string) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		version: version,
	}
}

// RegisterPublicRoutes registers the read-only routes.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRoutes) {
	router.GET("/", h.ShowIndex)
	router.GET("/api/draws", h.ListDraws)
	router.GET("/api/draws/year/:year", h.ListDrawsByYear)
	router.GET("/api/draws/:date", h.GetDraw)
	router.GET("/api/latest", h.GetLatest)
	router.GET("/api/health", h.Health)
	router.GET("/api/export.csv", h.ExportDrawsCSV)
}

// RegisterSyncRoutes registers the routes that reach the source or write to the store.
func (h *HTTPHandler) RegisterSyncRoutes(router gin.IRoutes) {
	router.GET("/api/sync", h.SyncLatest)
	router.POST("/api/sync", h.SyncLatest)
	router.GET("/api/sync_date", h.SyncDate)
	router.POST("/api/import", h.ImportDrawsCSV)
}

// ShowIndex lists the available endpoints.
func (h *HTTPHandler) ShowIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to Euromillions API",
		"version": h.version,
		"endpoints": gin.H{
			"draws":         "/api/draws?year={year}&limit={limit}",
			"draws_by_year": "/api/draws/year/{year}",
			"draw_by_date":  "/api/draws/{YYYY-MM-DD}",
			"latest":        "/api/latest",
			"sync":          "/api/sync",
			"sync_date":     "/api/sync_date?date={YYYY-MM-DD}",
			"import":        "/api/import",
			"export":        "/api/export.csv",
			"health":        "/api/health",
		},
	})
}

// ListDraws returns stored draws, newest first. Unparseable year and limit
// values are ignored.
func (h *HTTPHandler) ListDraws(c *gin.Context) {
	h.listDraws(c, optionalInt(c.Query("year")), optionalInt(c.Query("limit")))
}

// ListDrawsByYear returns the stored draws of one year.
func (h *HTTPHandler) ListDrawsByYear(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year <= 0 {
		h.writeError(c, fmt.Errorf("%w: year %q", services.ErrInvalidInput, c.Param("year")), nil)
		return
	}
	h.listDraws(c, year, optionalInt(c.Query("limit")))
}

func (h *HTTPHandler) listDraws(c *gin.Context, year, limit int) {
	draws, err := h.service.Draws(c.Request.Context(), year, limit)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": draws, "count": len(draws)})
}

// GetDraw returns the stored draw for a date.
func (h *HTTPHandler) GetDraw(c *gin.Context) {
	d, err := h.service.Draw(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

// GetLatest returns the most recent stored draw.
func (h *HTTPHandler) GetLatest(c *gin.Context) {
	d, err := h.service.Latest(c.Request.Context())
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

// SyncLatest fetches, extracts and stores the latest draw.
func (h *HTTPHandler) SyncLatest(c *gin.Context) {
	report, err := h.service.SyncLatest(c.Request.Context())
	h.writeSync(c, report, err)
}

// SyncDate fetches, extracts and stores the draw of the date query parameter.
func (h *HTTPHandler) SyncDate(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		h.writeError(c, fmt.Errorf("%w: missing date parameter", services.ErrInvalidInput), nil)
		return
	}
	date, err := extract.ParseDate(raw)
	if err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err), nil)
		return
	}
	report, err := h.service.SyncDate(c.Request.Context(), date)
	h.writeSync(c, report, err)
}

func (h *HTTPHandler) writeSync(c *gin.Context, report *models.SyncReport, err error) {
	if err != nil {
		h.writeError(c, err, report)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"upserted": report.Draw.DrawDate,
		"draw":     report.Draw,
		"report":   report,
	})
}

// Health reports store reachability and the last sync.
func (h *HTTPHandler) Health(c *gin.Context) {
	status := h.service.Health(c.Request.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

var csvHeader = []string{"draw_date", "n1", "n2", "n3", "n4", "n5", "s1", "s2", "jackpot"}

// ExportDrawsCSV handles the request to download the stored draws as a CSV file.
func (h *HTTPHandler) ExportDrawsCSV(c *gin.Context) {
	draws, err := h.service.Draws(c.Request.Context(), optionalInt(c.Query("year")), 0)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=euromillions_draws.csv")

	w := csv.NewWriter(c.Writer)
	if err := w.Write(csvHeader); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	for _, d := range draws {
		if err := w.Write(drawRecord(d)); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}

func drawRecord(d models.Draw) []string {
	row := []string{d.DrawDate}
	for _, n := range d.Numbers {
		row = append(row, strconv.Itoa(n))
	}
	for _, s := range d.Stars {
		row = append(row, strconv.Itoa(s))
	}
	jackpot := ""
	if d.Jackpot != nil {
		jackpot = strconv.FormatInt(*d.Jackpot, 10)
	}
	return append(row, jackpot)
}

// ImportDrawsCSV loads historical draws from an uploaded CSV file (form
// field "file") or a raw CSV body in the export layout. Malformed rows are
// skipped.
func (h *HTTPHandler) ImportDrawsCSV(c *gin.Context) {
	var src io.Reader = c.Request.Body
	// Only multipart bodies are parsed as a form; anything else is the CSV.
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			h.writeError(c, fmt.Errorf("%w: reading upload: %v", services.ErrInvalidInput, err), nil)
			return
		}
		defer file.Close()
		src = file
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	var (
		draws     []models.Draw
		malformed int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.writeError(c, fmt.Errorf("%w: reading CSV: %v", services.ErrInvalidInput, err), nil)
			return
		}
		if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), csvHeader[0]) {
			continue
		}
		d, err := parseDrawRecord(record)
		if err != nil {
			logger.Infof("Skipping malformed CSV record %v: %v", record, err)
			malformed++
			continue
		}
		draws = append(draws, d)
	}

	imported, skipped, err := h.service.ImportDraws(c.Request.Context(), draws)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "skipped": skipped + malformed})
}

func parseDrawRecord(record []string) (models.Draw, error) {
	if len(record) < 1+models.MainCount+models.StarCount {
		return models.Draw{}, fmt.Errorf("expected at least %d fields, got %d", 1+models.MainCount+models.StarCount, len(record))
	}
	d := models.Draw{DrawDate: strings.TrimSpace(record[0])}
	ints := make([]int, 0, models.MainCount+models.StarCount)
	for _, field := range record[1 : 1+models.MainCount+models.StarCount] {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return models.Draw{}, fmt.Errorf("invalid number %q", field)
		}
		ints = append(ints, n)
	}
	d.Numbers = ints[:models.MainCount]
	d.Stars = ints[models.MainCount:]
	if len(record) > 1+models.MainCount+models.StarCount {
		if v := strings.TrimSpace(record[1+models.MainCount+models.StarCount]); v != "" {
			j, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return models.Draw{}, fmt.Errorf("invalid jackpot %q", v)
			}
			d.Jackpot = &j
		}
	}
	return d, nil
}

// writeError maps an error to its HTTP status and kind. Sync failures carry
// the diagnostic report.
func (h *HTTPHandler) writeError(c *gin.Context, err error, report *models.SyncReport) {
	code, kind := classify(err)
	body := gin.H{"error": kind, "message": err.Error()}
	if report != nil {
		body["report"] = report
		body["attempts"] = report.Attempts
		if report.Draw != nil {
			body["draw"] = report.Draw
		}
	}
	if code >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "bad_input"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, fetcher.ErrFetch):
		return http.StatusBadGateway, "fetch_failed"
	case errors.Is(err, extract.ErrDateNotFound):
		return http.StatusUnprocessableEntity, "date_not_found"
	case errors.Is(err, extract.ErrIncompleteExtraction):
		return http.StatusUnprocessableEntity, "incomplete_extraction"
	case errors.Is(err, extract.ErrValidation), errors.Is(err, models.ErrInvalidDraw):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, store.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failed"
	case errors.Is(err, services.ErrNoSources):
		return http.StatusInternalServerError, "not_configured"
	}
	return http.StatusInternalServerError, "internal"
}

// optionalInt parses a query value, treating anything invalid as absent.
func optionalInt(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
