package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

type ClientConfig struct {
	BaseURL       string
	Mode          string
	Timeout       time.Duration
	UploadTimeout time.Duration
	HTTPClient    *http.Client
}

// Client is the REST side of the analysis server. It performs no retries.
type Client struct {
	baseURL       string
	routes        Routes
	http          *http.Client
	uploadTimeout time.Duration
	timeout       time.Duration
	logger        *zap.Logger
}

var _ port.AnalysisAPI = (*Client)(nil)

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		routes:        RoutesFor(cfg.Mode),
		http:          httpClient,
		uploadTimeout: cfg.UploadTimeout,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
}

func (c *Client) Routes() Routes { return c.routes }

func (c *Client) SocketURL(path string) string {
	return BuildSocketURL(c.baseURL, path)
}

func (c *Client) RecordedStreamURL(videoID string) string {
	return c.SocketURL(expand(c.routes.RecordedStream, videoID))
}

func (c *Client) LiveStreamURL() string {
	return c.SocketURL(c.routes.LiveStream)
}

type uploadResponse struct {
	VideoID string           `json:"video_id"`
	ID      string           `json:"id"`
	Status  entity.JobStatus `json:"status"`
	Action  *json.RawMessage `json:"action"`
}

func (c *Client) Upload(ctx context.Context, req port.UploadRequest, onProgress port.ProgressFunc) (*entity.ServerJobHandle, error) {
	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	gate := newProgressGate(onProgress)
	defer gate.settle()

	src, err := req.File.Open()
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeMultipart(mw, req, &countingReader{r: src, total: req.File.Size, gate: gate}))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.routes.Upload, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	body, err := c.do(httpReq, "upload")
	pr.Close()
	if err != nil {
		return nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	handle := &entity.ServerJobHandle{VideoID: resp.VideoID, Status: resp.Status}
	if handle.VideoID == "" {
		handle.VideoID = resp.ID
	}
	if handle.VideoID == "" {
		handle.VideoID = req.VideoID
	}

	if resp.Action != nil {
		var result entity.AnalysisResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode synchronous result: %w", err)
		}
		if result.VideoID == "" {
			result.VideoID = handle.VideoID
		}
		handle.Result = &result
		handle.Status = entity.JobStatusCompleted
	}

	c.logger.Debug("upload accepted",
		zap.String("video_id", handle.VideoID),
		zap.Bool("synchronous", handle.Result != nil),
	)
	return handle, nil
}

func (c *Client) writeMultipart(mw *multipart.Writer, req port.UploadRequest, content io.Reader) error {
	if req.VideoID != "" {
		if err := mw.WriteField("video_id", req.VideoID); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.routes.UploadField, req.File.Name))
	header.Set("Content-Type", req.File.ContentType())
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) TriggerTeamAnalysis(ctx context.Context, videoID string, params entity.TeamAnalysisParams) error {
	if c.routes.TeamTrigger == "" {
		return fmt.Errorf("team analysis is not available in this mode")
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode team params: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+expand(c.routes.TeamTrigger, videoID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build team trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, "trigger team analysis")
	return err
}

func (c *Client) GetStatus(ctx context.Context, videoID string) (*entity.StatusReport, error) {
	var report entity.StatusReport
	if err := c.getJSON(ctx, expand(c.routes.Status, videoID), "get status", &report); err != nil {
		return nil, err
	}
	if report.VideoID == "" {
		report.VideoID = videoID
	}
	return &report, nil
}

func (c *Client) GetResult(ctx context.Context, videoID string) (*entity.AnalysisResult, error) {
	var result entity.AnalysisResult
	if err := c.getJSON(ctx, expand(c.routes.Result, videoID), "get result", &result); err != nil {
		return nil, err
	}
	if result.VideoID == "" {
		result.VideoID = videoID
	}
	return &result, nil
}

// GetHistory treats a missing or unimplemented endpoint as an empty history.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]entity.HistoricalData, error) {
	path := c.routes.History
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var raw json.RawMessage
	err := c.getJSON(ctx, path, "get history", &raw)
	var httpErr *entity.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
			return []entity.HistoricalData{}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	var items []entity.HistoricalData
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			History []entity.HistoricalData `json:"history"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		items = wrapped.History
	}
	if items == nil {
		items = []entity.HistoricalData{}
	}
	return items, nil
}

func (c *Client) Health(ctx context.Context) (*entity.HealthReport, error) {
	var report entity.HealthReport
	if err := c.getJSON(ctx, c.routes.Health, "health", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) getJSON(ctx context.Context, path, op string, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, &entity.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, parseHTTPError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.NetworkError{Op: op, Err: err}
	}
	return body, nil
}

type errorPayload struct {
	Code        string   `json:"code"`
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// parseHTTPError understands {code,message,suggestions}, {error,message} and
// the {"detail": ...} envelope, where detail is a string or one of the former.
func parseHTTPError(status int, body []byte) *entity.HTTPError {
	httpErr := &entity.HTTPError{StatusCode: status, Body: body}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		errorPayload
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return httpErr
	}

	payload := envelope.errorPayload
	if len(envelope.Detail) > 0 {
		var detailText string
		if err := json.Unmarshal(envelope.Detail, &detailText); err == nil {
			payload.Message = detailText
		} else {
			_ = json.Unmarshal(envelope.Detail, &payload)
		}
	}

	httpErr.Code = payload.Code
	httpErr.Message = payload.Message
	switch {
	case httpErr.Message == "":
		httpErr.Message = payload.Error
	case httpErr.Code == "":
		httpErr.Code = payload.Error
	}
	httpErr.Suggestions = payload.Suggestions
	return httpErr
}
