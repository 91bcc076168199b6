package api

import (
	"context"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/infra/metrics"
	"github.com/ChaseRain/slidegen/internal/service/delivery"
	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/internal/service/orchestrator"
	"github.com/ChaseRain/slidegen/internal/service/preview"
	"github.com/ChaseRain/slidegen/pkg/errors"
	"github.com/gin-gonic/gin"
)

// GenerationClient is the Request Client used by the JSON API.
type GenerationClient interface {
	Generate(ctx context.Context, req generation.Request) generation.Result
	Health(ctx context.Context) (map[string]any, error)
}

type Handler struct {
	orchestrator *orchestrator.Orchestrator
	client       GenerationClient
	logger       *logger.Logger
	opts         Options
}

func NewHandler(orch *orchestrator.Orchestrator, client GenerationClient, log *logger.Logger, opts Options) *Handler {
	return &Handler{
		orchestrator: orch,
		client:       client,
		logger:       log,
		opts:         opts,
	}
}

func (h *Handler) Index(c *gin.Context) {
	s := h.orchestrator.Session(sessionID(c))
	view := s.View()

	_, err := h.orchestrator.Result(c.Request.Context(), s)
	page := indexPage{
		Banner:     toBannerView(view.Banner),
		Downloads:  toDownloadLinks(view.Downloads),
		Submitting: view.State == orchestrator.StateSubmitting,
		MaxText:    generation.MaxTextLength,
		MinSlides:  generation.MinSlides,
		MaxSlides:  generation.MaxSlides,
		Slides:     generation.DefaultSlideCount,
		HasResult:  err == nil,
	}
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "index.html", page)
}

// Generate handles the entry form. Browsers get a redirect back to the entry
// view, where the banner and the download anchor are rendered; JSON callers
// get the result directly.
func (h *Handler) Generate(c *gin.Context) {
	s := h.orchestrator.Session(sessionID(c))

	var req GenerateRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("invalid generate request", "error", err)
		if !wantsJSON(c) {
			h.orchestrator.Reject(s, orchestrator.MsgInvalidForm)
			c.Redirect(http.StatusSeeOther, "/")
			return
		}
		h.respondError(c, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request"))
		return
	}

	result, err := h.orchestrator.Submit(c.Request.Context(), s, req.toGeneration())

	if !wantsJSON(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResult(c, result)
}

func (h *Handler) Preview(c *gin.Context) {
	s := h.orchestrator.Session(sessionID(c))
	rec, err := h.orchestrator.Result(c.Request.Context(), s)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			// nothing to preview: back to the entry view
			c.Redirect(http.StatusFound, "/")
			return
		}
		h.respondError(c, err)
		return
	}

	index, _ := strconv.Atoi(c.Query("slide"))
	page := preview.Build(rec.Artifact.Structure, index, c.Query("key"))

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "preview.html", previewPage{
		Filename:  rec.Artifact.Filename,
		IsPDF:     strings.HasSuffix(strings.ToLower(rec.Artifact.Filename), ".pdf"),
		Slide:     page.Slide,
		Topic:     page.Topic,
		Index:     page.Index,
		Number:    page.Number,
		Total:     page.Total,
		HasPrev:   page.HasPrev,
		HasNext:   page.HasNext,
		Prev:      page.Prev,
		Next:      page.Next,
		Empty:     page.Empty,
		Downloads: toDownloadLinks(s.View().Downloads),
	})
}

// Redownload queues another download anchor for the stored artifact and
// returns to the same preview slide, where the anchor is activated.
func (h *Handler) Redownload(c *gin.Context) {
	s := h.orchestrator.Session(sessionID(c))
	if _, err := h.orchestrator.Redeliver(c.Request.Context(), s); err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) && !wantsJSON(c) {
			c.Redirect(http.StatusFound, "/")
			return
		}
		h.respondError(c, err)
		return
	}
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	slide, _ := strconv.Atoi(c.PostForm("slide"))
	c.Redirect(http.StatusSeeOther, "/preview?slide="+strconv.Itoa(slide))
}

// Download serves the stored artifact as an attachment for browsers without scripts.
func (h *Handler) Download(c *gin.Context) {
	s := h.orchestrator.Session(sessionID(c))
	rec, err := h.orchestrator.Result(c.Request.Context(), s)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) && !wantsJSON(c) {
			c.Redirect(http.StatusFound, "/")
			return
		}
		h.respondError(c, err)
		return
	}

	data, err := delivery.Decode(rec.Artifact.FileBase64)
	if err != nil {
		h.respondError(c, err)
		return
	}

	metrics.DownloadsTotal.WithLabelValues("attachment").Inc()
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(rec.Artifact.Filename, `"`, "")+`"`)
	c.Data(http.StatusOK, rec.Artifact.ContentType, data)
}

// Reset is "start over": drop the stored result and go back to the entry view.
func (h *Handler) Reset(c *gin.Context) {
	s := h.orchestrator.Session(sessionID(c))
	if err := h.orchestrator.Reset(c.Request.Context(), s); err != nil {
		h.respondError(c, err)
		return
	}
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// APIGenerate exposes the Request Client without the browser flow.
func (h *Handler) APIGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request"))
		return
	}

	genReq := req.toGeneration()
	if err := genReq.Validate(); err != nil {
		metrics.ValidationRejectsTotal.Inc()
		h.respondError(c, err)
		return
	}

	result := h.client.Generate(c.Request.Context(), genReq)
	if result.OK() {
		delivery.Normalize(result.Artifact, genReq.Type)
	}
	h.respondResult(c, result)
}

func (h *Handler) UpstreamHealth(c *gin.Context) {
	out, err := h.client.Health(c.Request.Context())
	if err != nil {
		h.logger.Warn("upstream health check failed", "error", err)
		c.JSON(statusFor(errors.CodeOf(err)), UpstreamHealthResponse{
			Status:  "unavailable",
			Message: errors.MessageOf(err),
		})
		return
	}
	c.JSON(http.StatusOK, UpstreamHealthResponse{Status: "ok", Upstream: out})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) respondResult(c *gin.Context, result generation.Result) {
	if !result.OK() {
		c.JSON(statusFor(result.Failure.Kind), GenerateResponse{
			Status:  StatusError,
			Code:    result.Failure.Kind,
			Message: result.Failure.Message,
		})
		return
	}
	a := result.Artifact
	c.JSON(http.StatusOK, GenerateResponse{
		Status:      StatusSuccess,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		FileBase64:  a.FileBase64,
		Structure:   a.Structure,
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, GenerateResponse{
		Status:  StatusError,
		Code:    code,
		Message: errors.MessageOf(err),
	})
}

func toBannerView(b *orchestrator.Banner) *bannerView {
	if b == nil {
		return nil
	}
	return &bannerView{Kind: string(b.Kind), Message: b.Message, Millis: b.Timeout.Milliseconds()}
}

func statusFor(code string) int {
	switch code {
	case errors.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeInProgress:
		return http.StatusConflict
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeTransport, errors.ErrCodeRemote:
		return http.StatusBadGateway
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") ||
		strings.HasPrefix(c.ContentType(), "application/json")
}

func toDownloadLinks(links []delivery.Link) []downloadLink {
	out := make([]downloadLink, 0, len(links))
	for _, l := range links {
		// href is built by delivery.DataURI, never taken from the request
		out = append(out, downloadLink{Href: template.URL(l.Href), Filename: l.Filename})
	}
	return out
}
