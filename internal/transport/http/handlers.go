package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quorum/internal/pkg/circuit"
	"quorum/internal/report"
	"quorum/internal/scheduler"
	"quorum/internal/store"
	storemodel "quorum/internal/store/model"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const decideSchemaJSON = `{
  "type": "object",
  "required": ["instrument"],
  "additionalProperties": false,
  "properties": {
    "instrument": {"type": "string", "minLength": 1}
  }
}`

var decideSchema = mustCompileSchema(decideSchemaJSON)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		panic(err)
	}
	return schema
}

type handlers struct {
	pipeline Pipeline
	store    store.Store
	breaker  *circuit.Breaker
}

func (h *handlers) handleDecide(c *gin.Context) {
	var body any
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := decideSchema.Validate(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	instrument := body.(map[string]any)["instrument"].(string)

	result, err := h.pipeline.RunDecisionCycle(c.Request.Context(), instrument)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) handleDecisions(c *gin.Context) {
	q := store.DecisionQuery{Instrument: c.Query("instrument")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		q.Limit = limit
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		q.Since = since
	}
	recs, err := h.store.ListDecisions(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
}

func (h *handlers) reportPeriod(c *gin.Context) (time.Duration, bool) {
	raw := c.DefaultQuery("period", "1d")
	period, ok := scheduler.ParseIntervalDuration(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must look like 30m, 4h or 1d"})
		return 0, false
	}
	return period, true
}

func (h *handlers) handleShadowReport(c *gin.Context) {
	period, ok := h.reportPeriod(c)
	if !ok {
		return
	}
	rep, err := h.pipeline.ShadowReport(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) buildReportHTML(c *gin.Context) ([]byte, bool) {
	period, ok := h.reportPeriod(c)
	if !ok {
		return nil, false
	}
	rep, err := h.pipeline.ShadowReport(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	closed, err := h.store.ListShadowTrades(c.Request.Context(), store.ShadowQuery{
		Status: storemodel.ShadowStatusClosed,
		Since:  time.Now().Add(-period),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	html, err := report.BuildHTML(report.Input{
		Title:  "Shadow report " + rep.Period,
		Report: rep,
		Closed: closed,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return html, true
}

func (h *handlers) handleShadowReportHTML(c *gin.Context) {
	html, ok := h.buildReportHTML(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (h *handlers) handleShadowReportPNG(c *gin.Context) {
	html, ok := h.buildReportHTML(c)
	if !ok {
		return
	}
	if err := report.EnsureHeadlessAvailable(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	png, err := report.RenderPNG(c.Request.Context(), html)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handlers) handleBreakerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.breaker.Snapshot())
}

func (h *handlers) handleBreakerReset(c *gin.Context) {
	cleared := h.breaker.Reset()
	c.JSON(http.StatusOK, gin.H{
		"reset": cleared,
		"state": h.breaker.Snapshot(),
	})
}
