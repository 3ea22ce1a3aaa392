package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/pengelbrecht/runtask/internal/api"
	"github.com/pengelbrecht/runtask/internal/poller"
	"github.com/pengelbrecht/runtask/internal/terminal"
)

func loadFixture(t *testing.T) []string {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", "e2e_output.txt")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

// liveTask emulates a task that produces two lines per status check and
// reports success once every line has been fetched.
type liveTask struct {
	mu        sync.Mutex
	lines     []string
	produced  int
	delivered int
	pageSizes []string
}

func (lt *liveTask) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/task/output/9", func(w http.ResponseWriter, r *http.Request) {
		lastID, _ := strconv.Atoi(r.URL.Query().Get("last_id"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

		lt.mu.Lock()
		defer lt.mu.Unlock()
		lt.pageSizes = append(lt.pageSizes, r.URL.Query().Get("page_size"))

		records := []api.OutputRecord{}
		for id := lastID + 1; id <= lt.produced && len(records) < pageSize; id++ {
			records = append(records, api.OutputRecord{ID: int64(id), Output: lt.lines[id-1]})
			lt.delivered = id
		}
		_ = json.NewEncoder(w).Encode(records)
	})
	mux.HandleFunc("/api/task/detail", func(w http.ResponseWriter, r *http.Request) {
		lt.mu.Lock()
		defer lt.mu.Unlock()

		task := api.Task{ID: "9", TaskType: "ping", Status: api.StatusRunning}
		if lt.delivered == len(lt.lines) {
			task.Status = api.StatusSuccess
			task.Result = "3/3 packets received"
		}
		lt.produced = min(lt.produced+2, len(lt.lines))
		_ = json.NewEncoder(w).Encode(task)
	})
	return mux
}

func TestFollowTaskToCompletion(t *testing.T) {
	lines := loadFixture(t)
	lt := &liveTask{lines: lines}
	srv := httptest.NewServer(lt.handler())
	defer srv.Close()

	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var out bytes.Buffer
	w := terminal.NewWriter(false)
	w.SetWriter(&out)
	w.SetColor(false)

	p := poller.New(client, w, poller.Options{
		Interval: 5 * time.Millisecond,
		PageSize: 2,
		Host:     "runner.local:8080",
		Logger:   zaptest.NewLogger(t),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := p.Start(ctx, "9")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	outcome, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	w.Outcome(outcome)

	if !outcome.Success() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if s.LastOutputID() != int64(len(lines)) {
		t.Errorf("expected cursor %d, got %d", len(lines), s.LastOutputID())
	}

	var want strings.Builder
	want.WriteString("Task 9 is running, output follows --->\n")
	for _, l := range lines {
		want.WriteString(strings.ReplaceAll(l, poller.HostPlaceholder, "runner.local:8080") + "\n")
	}
	want.WriteString("\n<--- end of task output\n")
	want.WriteString("Task status: success\n")
	want.WriteString("Task succeeded: 3/3 packets received\n")
	want.WriteString("[COMPLETE] task 9: success\n")

	if got := out.String(); got != want.String() {
		t.Errorf("unexpected output:\n--- got ---\n%s\n--- want ---\n%s", got, want.String())
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	for _, size := range lt.pageSizes {
		if size != "2" {
			t.Errorf("expected page_size=2 on every output request, got %q", size)
		}
	}
}

func TestFollowMissingTask(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/task/output/404", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/api/task/detail", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := api.NewClient(api.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var out bytes.Buffer
	w := terminal.NewWriter(true)
	w.SetWriter(&out)

	p := poller.New(client, w, poller.Options{Interval: 5 * time.Millisecond})
	s, err := p.Start(context.Background(), "404")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-s.Done()

	outcome := s.Outcome()
	if outcome.Status != api.StatusUnknown {
		t.Errorf("expected status unknown, got %q", outcome.Status)
	}
	if outcome.Message != api.MessageTaskNotFound {
		t.Errorf("expected message %q, got %q", api.MessageTaskNotFound, outcome.Message)
	}
	if !strings.Contains(out.String(), `"text":"Task errored: task not found"`) {
		t.Errorf("expected errored line in JSON Lines output:\n%s", out.String())
	}
}
