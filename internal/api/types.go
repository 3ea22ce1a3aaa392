package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Task statuses reported by the backend.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusReady   = "ready"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// MessageTaskNotFound is the message of the synthetic task returned for
// a detail lookup that finds nothing.
const MessageTaskNotFound = "task not found"

// ID is an opaque task identifier. The backend emits numeric ids; strings
// are accepted as well.
type ID string

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as numbers so the backend can bind them.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseUint(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Task is a snapshot of one unit of backend-executed work.
type Task struct {
	ID          ID        `json:"id"`
	TaskType    string    `json:"task_type"`
	Input       string    `json:"input"`
	CreateTime  time.Time `json:"create_time"`
	RunEndpoint string    `json:"run_endpoint,omitempty"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// IsRunning reports whether the task is still in progress. Only running and
// ready continue polling; every other status, pending included, is terminal.
func (t *Task) IsRunning() bool {
	return IsContinuation(t.Status)
}

// IsSuccess returns true if the task finished successfully.
func (t *Task) IsSuccess() bool {
	return t.Status == StatusSuccess
}

// IsContinuation reports whether status keeps a polling session alive.
func IsContinuation(status string) bool {
	return status == StatusRunning || status == StatusReady
}

// NotFoundTask is the placeholder returned when the backend has no such task.
func NotFoundTask(id ID) *Task {
	return &Task{ID: id, Status: StatusUnknown, Message: MessageTaskNotFound}
}

// OutputRecord is one line of task output. IDs increase per task and act as
// the resume cursor.
type OutputRecord struct {
	ID         int64     `json:"id"`
	TaskID     ID        `json:"task_id,omitempty"`
	Output     string    `json:"output"`
	CreateTime time.Time `json:"create_time,omitempty"`
}

// Tool is an entry of the tool registry: a task type and the form describing
// its input.
type Tool struct {
	TaskType    string `json:"task_type"`
	Title       string `json:"title"`
	Form        string `json:"form"`
	RunEndpoint string `json:"run_endpoint"`
}

// DisplayTitle falls back to the task type when no title is configured.
func (t Tool) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.TaskType
}

// CreateTaskRequest is the body of POST /api/task/create.
type CreateTaskRequest struct {
	TaskType    string `json:"task_type"`
	Input       string `json:"input"`
	RunEndpoint string `json:"run_endpoint"`
}

// CreateTaskResponse carries the new task id. Error is set when the task was
// stored but the run endpoint could not be started; the task then ends in
// the error status.
type CreateTaskResponse struct {
	TaskID ID     `json:"task_id"`
	Error  string `json:"error,omitempty"`
}

// TaskPage is one page of the task history.
type TaskPage struct {
	Tasks []Task `json:"tasks"`
	Total int64  `json:"total"`
}

// ListTasksOptions filters and paginates the task history.
type ListTasksOptions struct {
	TaskType string
	Page     int
	PageSize int
}

// FileInfo describes a file held by the file-storage backend.
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mod_time"`
	IsDir        bool      `json:"is_dir"`
	RelativePath string    `json:"relative_path"`
	DownloadURL  string    `json:"download_url"`
}

// UploadResult is the response of a file upload.
type UploadResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
	URL     string `json:"url"`
}

// fileListOutput wraps the file list response: {"code", "message", "files", "total"}.
type fileListOutput struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Files   []FileInfo `json:"files"`
	Total   int        `json:"total"`
}

// codeOutput is the envelope of file mutations.
type codeOutput struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
