package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/httpclient"
	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/infra/metrics"
	"github.com/ChaseRain/slidegen/pkg/errors"
)

const (
	generatePath = "/generate"
	healthPath   = "/health"

	// maxResponseBytes bounds a single response; artifacts arrive base64-encoded.
	maxResponseBytes = 64 << 20

	MsgTimeout       = "Request timed out. Please try again with less text or fewer slides."
	MsgGenericFailed = "Generation failed"
)

// response is the flat wire shape returned by POST /generate. Error bodies
// from the upstream framework may carry "detail" instead of "message".
type response struct {
	Status      string          `json:"status"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"contentType"`
	FileBase64  string          `json:"fileBase64"`
	Structure   *Structure      `json:"structure"`
	Message     string          `json:"message"`
	Detail      json.RawMessage `json:"detail"`
}

type Client struct {
	baseURL    string
	httpClient *httpclient.Client
	logger     *logger.Logger
}

func New(baseURL string, client *httpclient.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     log.Named("generation"),
	}
}

// Generate performs one POST {base}/generate and classifies the outcome.
// It never returns an error: every failure is folded into Result.Failure.
func (c *Client) Generate(ctx context.Context, req Request) Result {
	start := time.Now()
	result := c.generate(ctx, req)

	outcome := metrics.OutcomeSuccess
	if !result.OK() {
		outcome = result.Failure.Kind
	}
	elapsed := time.Since(start)
	metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
	metrics.GenerationDuration.Observe(elapsed.Seconds())

	if result.OK() {
		c.logger.Info("generation succeeded",
			"filename", result.Artifact.Filename,
			"content_type", result.Artifact.ContentType,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		c.logger.Warn("generation failed",
			"kind", result.Failure.Kind,
			"message", result.Failure.Message,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return result
}

func (c *Client) generate(ctx context.Context, req Request) Result {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return failure(errors.ErrCodeInternal, "failed to encode request")
	}

	resp, cancel, err := c.httpClient.PostJSON(ctx, c.baseURL+generatePath, bodyBytes)
	if err != nil {
		return transportFailure(err)
	}
	defer cancel()
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(err)
	}

	// transport status first, then the body discriminant
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("generation service returned non-2xx", "status", resp.StatusCode)
		msg := remoteMessage(respBody)
		if msg == "" {
			msg = fmt.Sprintf("%s (HTTP %d)", MsgGenericFailed, resp.StatusCode)
		}
		return failure(errors.ErrCodeRemote, msg)
	}

	var body response
	if err := json.Unmarshal(respBody, &body); err != nil {
		c.logger.Error("failed to parse generation response", "error", err)
		return failure(errors.ErrCodeRemote, MsgGenericFailed)
	}

	switch {
	case body.Status == "error":
		return failure(errors.ErrCodeRemote, firstNonEmpty(body.Message, detailMessage(body.Detail), MsgGenericFailed))
	case (body.Status == "" || body.Status == "success") && body.FileBase64 != "":
		return success(&Artifact{
			Filename:    body.Filename,
			ContentType: body.ContentType,
			FileBase64:  body.FileBase64,
			Structure:   body.Structure,
		})
	default:
		return failure(errors.ErrCodeRemote, firstNonEmpty(body.Message, MsgGenericFailed))
	}
}

// Health probes GET {base}/health and returns its opaque JSON body.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, cancel, err := c.httpClient.Get(ctx, c.baseURL+healthPath)
	if err != nil {
		if httpclient.IsTimeout(err) {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "health check timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "health check failed")
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeRemote, fmt.Sprintf("health check returned %d", resp.StatusCode))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemote, "failed to parse health response")
	}
	return out, nil
}

func transportFailure(err error) Result {
	if httpclient.IsTimeout(err) {
		return failure(errors.ErrCodeTimeout, MsgTimeout)
	}
	msg := err.Error()
	if msg == "" {
		msg = MsgGenericFailed
	}
	return failure(errors.ErrCodeTransport, msg)
}

func remoteMessage(body []byte) string {
	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return firstNonEmpty(parsed.Message, detailMessage(parsed.Detail))
}

// detailMessage accepts a plain string or a list of {"msg": ...} objects.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
