package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// apiStub — минимальный сервер, отвечающий в конвертах API.
type apiStub struct {
	mu       sync.Mutex
	requests []string
	bodies   []map[string]any
	handlers map[string]http.HandlerFunc
}

func newAPIStub(t *testing.T) (*apiStub, *Client) {
	t.Helper()
	stub := &apiStub{handlers: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(srv.Close)
	return stub, NewClient(srv.URL)
}

func (s *apiStub) on(pattern string, h http.HandlerFunc) {
	s.handlers[pattern] = h
}

func (s *apiStub) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, key+"?"+r.URL.RawQuery)
	s.bodies = append(s.bodies, body)
	h, ok := s.handlers[key]
	s.mu.Unlock()

	if !ok {
		writeStub(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "no route " + key},
		})
		return
	}
	h(w, r)
}

func (s *apiStub) last() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.requests)
	return s.requests[n-1], s.bodies[n-1]
}

func writeStub(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func dataReply(status int, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStub(w, status, map[string]any{"data": data})
	}
}

func listReply(data any, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStub(w, http.StatusOK, map[string]any{"data": data, "total": total})
	}
}

// --- Client Tests ---

func TestClient_ListTasksQuery(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("GET /api/v1/tasks", listReply([]map[string]any{
		{"id": 1, "name": "login", "status": "failed", "url": "https://example.com"},
	}, 1))

	tasks, err := client.ListTasks(ListTasksOpts{Status: "failed", Offset: 10, Limit: 5})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "login" {
		t.Fatalf("tasks = %+v", tasks)
	}

	req, _ := stub.last()
	for _, want := range []string{"status=failed", "offset=10", "limit=5"} {
		if !strings.Contains(req, want) {
			t.Errorf("request %q missing %q", req, want)
		}
	}
}

func TestClient_ExecuteTaskSendsForceRestart(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/tasks/7/execute", dataReply(http.StatusAccepted, map[string]any{
		"execution_id": "abc", "status": "started", "total_tasks": 1,
	}))

	res, err := client.ExecuteTask(7, true)
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if res.ExecutionID != "abc" || res.Status != "started" {
		t.Errorf("res = %+v", res)
	}

	_, body := stub.last()
	if body["force_restart"] != true {
		t.Errorf("force_restart = %v", body["force_restart"])
	}
}

func TestClient_APIError(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/tasks/3/execute", func(w http.ResponseWriter, r *http.Request) {
		writeStub(w, http.StatusConflict, map[string]any{
			"error": map[string]string{"code": "CONFLICT", "message": "task is already running"},
		})
	})

	_, err := client.ExecuteTask(3, false)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "CONFLICT" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if err.Error() != "CONFLICT: task is already running" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClient_APIErrorWithoutBody(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("DELETE /api/v1/tasks/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.DeleteTask(1)
	if err == nil || err.Error() != "API error: HTTP 502" {
		t.Errorf("error = %v", err)
	}
}

func TestClient_DeleteNoContent(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("DELETE /api/v1/automation/steps/4", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteStep(4); err != nil {
		t.Errorf("DeleteStep: %v", err)
	}
}

func TestClient_StatusIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"pending", false},
		{"running", false},
		{"completed", true},
		{"failed", true},
		{"cancelled", true},
	}
	for _, tt := range tests {
		if got := (StatusResponse{Status: tt.status}).IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClient_ConvertRecording(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/editor/sessions/s-1/convert", dataReply(http.StatusCreated, map[string]any{
		"session_id": "s-1", "task_id": 9, "step_count": 4,
	}))

	n, err := client.ConvertRecording("s-1", 9)
	if err != nil {
		t.Fatalf("ConvertRecording: %v", err)
	}
	if n != 4 {
		t.Errorf("step_count = %d, want 4", n)
	}
	_, body := stub.last()
	if body["task_id"] != float64(9) {
		t.Errorf("task_id = %v", body["task_id"])
	}
}

// --- Command Tests ---

func runCmd(t *testing.T, client *Client, jsonMode bool, build func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(jsonMode, &stdout, &stderr)

	cmd := build(func() *Client { return client }, func() *Output { return out })
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTaskCmd_ListTable(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("GET /api/v1/tasks", listReply([]map[string]any{
		{"id": 1, "name": "login", "status": "completed", "priority": 2, "url": "https://a.test", "execution_count": 3, "success_count": 3},
	}, 1))

	stdout, _, err := runCmd(t, client, false, NewTaskCmd, "list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stdout, "NAME") || !strings.Contains(stdout, "login") || !strings.Contains(stdout, "https://a.test") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestTaskCmd_ListJSON(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("GET /api/v1/tasks", listReply([]map[string]any{{"id": 5, "name": "x"}}, 1))

	stdout, _, err := runCmd(t, client, true, NewTaskCmd, "list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var tasks []TaskResponse
	if err := json.Unmarshal([]byte(stdout), &tasks); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if len(tasks) != 1 || tasks[0].ID != 5 {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestTaskCmd_CreateWithParams(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/tasks", dataReply(http.StatusCreated, map[string]any{"id": 11, "name": "search", "status": "pending"}))

	_, stderr, err := runCmd(t, client, false, NewTaskCmd,
		"create", "--name", "search", "--url", "https://s.test", "--param", "query=go")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stderr, "Task created: 11") {
		t.Errorf("stderr = %q", stderr)
	}

	_, body := stub.last()
	params, _ := body["parameters"].(map[string]any)
	if params["query"] != "go" {
		t.Errorf("parameters = %v", body["parameters"])
	}
}

func TestTaskCmd_CreateRejectsBadParam(t *testing.T) {
	_, client := newAPIStub(t)

	_, _, err := runCmd(t, client, false, NewTaskCmd,
		"create", "--name", "n", "--url", "u", "--param", "broken")
	if err == nil || !strings.Contains(err.Error(), "KEY=VALUE") {
		t.Errorf("error = %v", err)
	}
}

func TestTaskCmd_UpdateSendsOnlyChanged(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("PUT /api/v1/tasks/2", dataReply(http.StatusOK, map[string]any{"id": 2, "name": "new"}))

	if _, _, err := runCmd(t, client, false, NewTaskCmd, "update", "2", "--name", "new"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	_, body := stub.last()
	if body["name"] != "new" {
		t.Errorf("name = %v", body["name"])
	}
	if _, ok := body["url"]; ok {
		t.Errorf("url must not be sent: %v", body)
	}
}

func TestTaskCmd_InvalidID(t *testing.T) {
	_, client := newAPIStub(t)

	_, _, err := runCmd(t, client, false, NewTaskCmd, "show", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid id") {
		t.Errorf("error = %v", err)
	}
}

func TestTaskCmd_RunWait(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/tasks/4/execute", dataReply(http.StatusAccepted, map[string]any{"execution_id": "e-4", "status": "started"}))

	var mu sync.Mutex
	polls := 0
	stub.on("GET /api/v1/tasks/4/status", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()

		status := "running"
		if n >= 2 {
			status = "completed"
		}
		writeStub(w, http.StatusOK, map[string]any{"data": map[string]any{
			"task_id": 4, "status": status, "progress": 100, "total_steps": 2, "current_step_index": 1,
		}})
	})

	stdout, _, err := runCmd(t, client, false, NewTaskCmd, "run", "4", "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stdout, "completed") {
		t.Errorf("stdout = %q", stdout)
	}
	mu.Lock()
	defer mu.Unlock()
	if polls < 2 {
		t.Errorf("polls = %d, want >= 2", polls)
	}
}

func TestTaskCmd_RunWaitFailed(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/tasks/4/execute", dataReply(http.StatusAccepted, map[string]any{"execution_id": "e-4", "status": "started"}))
	stub.on("GET /api/v1/tasks/4/status", dataReply(http.StatusOK, map[string]any{
		"task_id": 4, "status": "failed", "error_message": "boom",
	}))

	_, _, err := runCmd(t, client, false, NewTaskCmd, "run", "4", "--wait", "--interval", "10ms")
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Errorf("error = %v", err)
	}
}

func TestTaskCmd_Batch(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/tasks/batch/execute", dataReply(http.StatusAccepted, map[string]any{
		"execution_id": "batch_1_abcd", "status": "started", "total_tasks": 2,
	}))

	_, stderr, err := runCmd(t, client, false, NewTaskCmd, "batch", "1", "2")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stderr, "batch_1_abcd") {
		t.Errorf("stderr = %q", stderr)
	}

	_, body := stub.last()
	ids, _ := body["task_ids"].([]any)
	if len(ids) != 2 {
		t.Errorf("task_ids = %v", body["task_ids"])
	}
}

func TestStepCmd_Import(t *testing.T) {
	stub, client := newAPIStub(t)

	var mu sync.Mutex
	next := int64(0)
	stub.on("POST /api/v1/automation/steps", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		next++
		id := next
		mu.Unlock()
		writeStub(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": id, "task_id": 3}})
	})

	path := filepath.Join(t.TempDir(), "steps.yaml")
	content := `
- step_name: open
  action_type: navigate
  target_url: https://example.com
- step_name: go
  action_type: click
  target_selector: "#submit"
  step_order: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runCmd(t, client, false, NewStepCmd, "import", "3", "--file", path)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stderr, "Imported 2 steps into task 3") {
		t.Errorf("stderr = %q", stderr)
	}

	_, body := stub.last()
	if body["target_selector"] != "#submit" || body["step_order"] != float64(5) || body["task_id"] != float64(3) {
		t.Errorf("last body = %v", body)
	}
}

func TestReadStepsFile_JSONDefaultsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.json")
	if err := os.WriteFile(path, []byte(`[{"step_name":"a","action_type":"wait","wait_time":1}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	reqs, err := readStepsFile(path)
	if err != nil {
		t.Fatalf("readStepsFile: %v", err)
	}
	if len(reqs) != 1 || reqs[0].ActionType != "wait" || reqs[0].WaitTime != 1 {
		t.Errorf("reqs = %+v", reqs)
	}
}

func TestReadStepsFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := readStepsFile(path); err == nil {
		t.Error("expected error for empty steps file")
	}
}

func TestSessionCmd_LaunchHeadlessOnlyWhenSet(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("POST /api/v1/automation/browser/launch", dataReply(http.StatusCreated, map[string]any{
		"session_id": "s-9", "browser_type": "chromium", "status": "launched",
	}))

	if _, _, err := runCmd(t, client, false, NewSessionCmd, "launch", "--browser", "chromium"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	_, body := stub.last()
	if _, ok := body["headless"]; ok {
		t.Errorf("headless must not be sent: %v", body)
	}

	if _, _, err := runCmd(t, client, false, NewSessionCmd, "launch", "--headless=false"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	_, body = stub.last()
	if body["headless"] != false {
		t.Errorf("headless = %v", body["headless"])
	}
}

func TestExecutionCmd_ListBatchProgress(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("GET /api/v1/executions", listReply([]map[string]any{
		{"execution_id": "batch_1_x", "kind": "batch", "task_ids": []int{1, 2, 3}, "status": "running",
			"total_tasks": 3, "completed_tasks": 1, "failed_tasks": 1},
	}, 1))

	stdout, _, err := runCmd(t, client, false, NewExecutionCmd, "list", "--limit", "5")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stdout, "1,2,3") || !strings.Contains(stdout, "1+1/3") {
		t.Errorf("stdout = %q", stdout)
	}
	req, _ := stub.last()
	if !strings.Contains(req, "limit=5") {
		t.Errorf("request = %q", req)
	}
}

func TestEditorCmd_ExportPrintsJSON(t *testing.T) {
	stub, client := newAPIStub(t)
	stub.on("GET /api/v1/editor/sessions/s-1/export", dataReply(http.StatusOK, map[string]any{
		"format": "automation", "steps": []any{},
	}))

	stdout, _, err := runCmd(t, client, false, NewEditorCmd, "export", "s-1", "--format", "automation")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(stdout, `"format": "automation"`) {
		t.Errorf("stdout = %q", stdout)
	}
	req, _ := stub.last()
	if !strings.Contains(req, "format=automation") {
		t.Errorf("request = %q", req)
	}
}

// --- Output Tests ---

func TestOutput_TableEmpty(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, &bytes.Buffer{})

	out.Table([]string{"ID", "NAME"}, nil)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 || lines[2] != "(none)" {
		t.Errorf("table = %q", stdout.String())
	}
}

func TestOutput_ErrorToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	out.Error("boom")

	if stdout.Len() != 0 {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "Error: boom\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}
