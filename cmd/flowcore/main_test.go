package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func decodeDemo(t *testing.T, out string) demoSummary {
	t.Helper()
	var s demoSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode demo output: %v\n%s", err, out)
	}
	return s
}

func TestDemoRunsBothJobs(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error", "demo", "--metrics")
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	s := decodeDemo(t, out)
	if len(s.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(s.Jobs))
	}
	if s.Jobs[0].Status != "COMPLETED" || len(s.Jobs[0].Stacktrace) != 0 {
		t.Fatalf("first job = %+v", s.Jobs[0])
	}
	if s.Jobs[1].Status != "FAILED" || len(s.Jobs[1].Stacktrace) != 1 || !strings.Contains(s.Jobs[1].Stacktrace[0], "refusing to compute") {
		t.Fatalf("second job = %+v", s.Jobs[1])
	}
	if v, ok := s.OutputValue.(float64); !ok || v != 42 {
		t.Fatalf("output value = %#v", s.OutputValue)
	}
	if !strings.Contains(strings.Join(s.Metrics, ","), "flowcore_operations_total") {
		t.Fatalf("metrics = %v", s.Metrics)
	}
}

func TestKindsListsManagers(t *testing.T) {
	out, err := execute(t, "--config", "", "kinds")
	if err != nil {
		t.Fatalf("kinds: %v", err)
	}
	for _, want := range []string{"cycle", "data", "job", "scenario", "sequence", "submission", "task"} {
		if !strings.Contains(out, want+"\n") {
			t.Fatalf("kinds output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "extension") {
		t.Fatalf("no extension expected by default:\n%s", out)
	}
}

func TestPersistentStorageAcrossCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, strings.Join([]string{
		"storage:",
		"  driver: sqlite",
		"  sqlite_path: " + filepath.Join(dir, "flowcore.db"),
		"blob:",
		"  driver: fs",
		"  fs_root: " + filepath.Join(dir, "blobs"),
		"extensions:",
		"  extended_edition: true",
		"log:",
		"  level: error",
		"",
	}, "\n"))

	out, err := execute(t, "--config", cfg, "demo")
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	s := decodeDemo(t, out)
	if len(s.Jobs) != 2 {
		t.Fatalf("jobs = %d", len(s.Jobs))
	}

	for _, args := range [][]string{
		{"job", "show", s.Jobs[1].ID},
		{"job", "show", "--archived", s.Jobs[1].ID},
	} {
		out, err := execute(t, append([]string{"--config", cfg}, args...)...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		var job struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(out), &job); err != nil {
			t.Fatalf("%v: decode: %v\n%s", args, err, out)
		}
		if job.ID != s.Jobs[1].ID || job.Status != "FAILED" {
			t.Fatalf("%v: job = %+v", args, job)
		}
	}

	out, err = execute(t, "--config", cfg, "datanode", "show", s.OutputID)
	if err != nil {
		t.Fatalf("datanode show: %v", err)
	}
	var node struct {
		ID             string           `json:"id"`
		Value          float64          `json:"value"`
		EditInProgress bool             `json:"edit_in_progress"`
		Edits          []map[string]any `json:"edits"`
	}
	if err := json.Unmarshal([]byte(out), &node); err != nil {
		t.Fatalf("decode node: %v\n%s", err, out)
	}
	if node.ID != s.OutputID || node.Value != 42 || node.EditInProgress || len(node.Edits) != 1 {
		t.Fatalf("node = %+v", node)
	}
	if node.Edits[0]["job_id"] != s.Jobs[0].ID {
		t.Fatalf("edit = %v, want job %s", node.Edits[0], s.Jobs[0].ID)
	}

	out, err = execute(t, "--config", cfg, "kinds")
	if err != nil {
		t.Fatalf("kinds: %v", err)
	}
	if !strings.Contains(out, "extension jobarchive") {
		t.Fatalf("kinds output:\n%s", out)
	}
}

func TestCommandErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  string
		args []string
	}{
		{"unknown job", "", []string{"job", "show", "JOB_missing"}},
		{"missing arg", "", []string{"datanode", "show"}},
		{"bad storage", "storage:\n  driver: cassandra\n", []string{"kinds"}},
		{"bad yaml", "storage: [\n", []string{"kinds"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := ""
			if tc.cfg != "" {
				path = writeConfig(t, tc.cfg)
			}
			if _, err := execute(t, append([]string{"--config", path}, tc.args...)...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cases := []struct {
		level, format string
		wantDebug     bool
		wantJSON      bool
	}{
		{"debug", "json", true, true},
		{"info", "text", false, false},
		{"", "", false, false},
		{"WARN", "JSON", false, true},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		l := newLogger(tc.level, tc.format, &buf)
		if got := l.Enabled(context.Background(), slog.LevelDebug); got != tc.wantDebug {
			t.Fatalf("%s: debug enabled = %v", tc.level, got)
		}
		l.Error("boom")
		if got := strings.HasPrefix(buf.String(), "{"); got != tc.wantJSON {
			t.Fatalf("%s/%s: json = %v (%q)", tc.level, tc.format, got, buf.String())
		}
	}
}

func TestMainExitsOnError(t *testing.T) {
	oldExit, oldArgs := exitFunc, os.Args
	defer func() { exitFunc, os.Args = oldExit, oldArgs }()
	code := -1
	exitFunc = func(c int) { code = c }
	os.Args = []string{"flowcore", "--config", "", "job", "show", "JOB_missing"}
	main()
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
