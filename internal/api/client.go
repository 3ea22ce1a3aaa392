// Package api is a typed HTTP client for the task-runner backend: the tool
// registry, task lifecycle and output, and the file store.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPageSize is the number of output records requested per poll.
const DefaultPageSize = 200

// DefaultRequestIDHeader carries the per-request correlation id.
const DefaultRequestIDHeader = "X-Request-ID"

// ResponseError is returned for any non-2xx response.
type ResponseError struct {
	Code int
	Body string
}

func (e *ResponseError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *ResponseError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Config configures a Client.
type Config struct {
	// BaseURL is the backend origin, e.g. http://127.0.0.1:8080.
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token string
	// Timeout bounds each request. Zero leaves requests unbounded.
	Timeout time.Duration
	// RequestIDHeader names the correlation header. Defaults to X-Request-ID.
	RequestIDHeader string
	// UserAgent defaults to "runtask".
	UserAgent string
	// HTTPClient overrides the transport (tests). Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the task-runner backend.
type Client struct {
	base            *url.URL
	token           string
	requestIDHeader string
	userAgent       string
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewClient validates the base URL and returns a client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	header := cfg.RequestIDHeader
	if header == "" {
		header = DefaultRequestIDHeader
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "runtask"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:            base,
		token:           cfg.Token,
		requestIDHeader: header,
		userAgent:       ua,
		httpClient:      httpClient,
		logger:          logger,
	}, nil
}

// BaseURL returns the backend origin the client was built with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ListTools returns the tool registry.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	if err := c.getJSON(ctx, "list tools", "/api/task/config/list", nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// FindTool returns the tool registered for taskType, or nil.
func (c *Client) FindTool(ctx context.Context, taskType string) (*Tool, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tools {
		if tools[i].TaskType == taskType {
			return &tools[i], nil
		}
	}
	return nil, nil
}

// CreateTask submits a new task. A response carrying both a task id and an
// error means the task exists but failed to start; it is returned without
// an error so the caller can still follow it.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*CreateTaskResponse, error) {
	var resp CreateTaskResponse
	if err := c.postJSON(ctx, "create task", "/api/task/create", nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("create task: %s", resp.Error)
		}
		return nil, fmt.Errorf("create task: response carried no task_id")
	}
	return &resp, nil
}

// TaskDetail fetches the current snapshot of a task. A missing task yields
// a synthetic task with status unknown rather than an error.
func (c *Client) TaskDetail(ctx context.Context, taskID ID) (*Task, error) {
	q := url.Values{"task_id": {taskID.String()}}
	body, err := c.getRaw(ctx, "task detail", "/api/task/detail", q)
	if err != nil {
		if IsNotFound(err) {
			return NotFoundTask(taskID), nil
		}
		return nil, err
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return NotFoundTask(taskID), nil
	}

	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("task detail: parse response: %w", err)
	}
	if task.Status == "" {
		task.Status = StatusUnknown
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// TaskOutput returns up to pageSize output records with id > lastID, in
// ascending id order.
func (c *Client) TaskOutput(ctx context.Context, taskID ID, lastID int64, pageSize int) ([]OutputRecord, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{
		"last_id":   {strconv.FormatInt(lastID, 10)},
		"page_size": {strconv.Itoa(pageSize)},
	}
	var records []OutputRecord
	if err := c.getJSON(ctx, "task output", "/api/task/output/"+taskID.String(), q, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// TaskInput returns the decoded parameter bag a task was created with.
func (c *Client) TaskInput(ctx context.Context, taskID ID) (map[string]any, error) {
	input := map[string]any{}
	if err := c.getJSON(ctx, "task input", "/api/task/input/"+taskID.String(), nil, &input); err != nil {
		return nil, err
	}
	return input, nil
}

// ListTasks returns one page of the task history, newest first.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) (*TaskPage, error) {
	page, size := opts.Page, opts.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	q := url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(size)},
	}
	if opts.TaskType != "" {
		q.Set("task_type", opts.TaskType)
	}
	var out TaskPage
	if err := c.getJSON(ctx, "list tasks", "/api/task/list", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes a task and its output.
func (c *Client) DeleteTask(ctx context.Context, taskID ID) error {
	q := url.Values{"task_id": {taskID.String()}}
	return c.postJSON(ctx, "delete task", "/api/task/delete", q, nil, nil)
}

// ListFiles returns every stored file.
func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var out fileListOutput
	if err := c.getJSON(ctx, "list files", "/api/file/list", nil, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("list files: %s", out.Message)
	}
	return out.Files, nil
}

// FindFile returns the stored file whose relative or absolute path is name,
// or nil.
func (c *Client) FindFile(ctx context.Context, name string) (*FileInfo, error) {
	files, err := c.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	rel := strings.TrimPrefix(name, "/")
	for i := range files {
		if files[i].IsDir {
			continue
		}
		if files[i].RelativePath == rel || files[i].Path == name {
			return &files[i], nil
		}
	}
	return nil, nil
}

// UploadFile stores the content of r under name.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("upload file: read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	resp, err := c.do(ctx, "upload file", http.MethodPost, "/api/upload", nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out UploadResult
	if err := decode(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("upload file: parse response: %w", err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("upload file: %s", out.Message)
	}
	return &out, nil
}

// DownloadFile streams the file at path into w and returns the bytes written.
// The backend serves files by their absolute Path as reported by ListFiles.
func (c *Client) DownloadFile(ctx context.Context, path string, w io.Writer) (int64, error) {
	if path == "" {
		return 0, fmt.Errorf("download file: path is required")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := c.do(ctx, "download file", http.MethodGet, "/api/file/get"+path, nil, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download file: %w", err)
	}
	return n, nil
}

// DeleteFile removes a file by its path relative to the storage root.
func (c *Client) DeleteFile(ctx context.Context, relativePath string) error {
	if relativePath == "" {
		return fmt.Errorf("delete file: relative path is required")
	}
	q := url.Values{"relative_path": {relativePath}}
	var out codeOutput
	if err := c.postJSON(ctx, "delete file", "/api/file/delete", q, nil, &out); err != nil {
		return err
	}
	if out.Code != 0 {
		return fmt.Errorf("delete file %s: %s", relativePath, out.Message)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	body, err := c.getRaw(ctx, op, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("api_parse_error", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: parse response: %w", op, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, op, http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, query url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, op, http.MethodPost, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decode(resp.Body, out); err != nil {
		c.logger.Warn("api_parse_error", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: parse response: %w", op, err)
	}
	return nil
}

// do sends one request. Non-2xx responses are drained, closed and returned as
// *ResponseError wrapped with op.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	start := time.Now()
	target := c.endpoint(path, query)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(c.requestIDHeader, requestID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("api_request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", target),
		zap.String("request_id", requestID),
	)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api_network_error",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}

	c.logger.Debug("api_response",
		zap.String("op", op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Warn("api_bad_status",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%s: %w", op, &ResponseError{Code: resp.StatusCode, Body: errorBody(data)})
	}
	return resp, nil
}

// errorBody prefers the "error" or "message" field of a JSON error envelope.
func errorBody(data []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return string(data)
}

func decode(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}
