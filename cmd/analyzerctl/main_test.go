package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"interview-analyzer/internal/analysis"
	"interview-analyzer/internal/bootstrap"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/shared/config"
	"interview-analyzer/internal/shared/server/respond"
)

const testBucket = "media"

func newTestApp(t *testing.T, keys ...string) *bootstrap.App {
	t.Helper()
	base := t.TempDir()
	for _, key := range keys {
		path := filepath.Join(base, testBucket, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("video-bytes"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	app, err := bootstrap.Build(context.Background(), config.Config{
		Env:             "dev",
		ObjectStoreType: "local",
		LocalStoreDir:   base,
		S3Bucket:        testBucket,
		TempDir:         t.TempDir(),
		LLMProvider:     "keywords",
		ScanMaxAttempts: 1,
	}, bootstrap.RoleCLI)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return app
}

func runCLI(t *testing.T, app *bootstrap.App, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(func(context.Context) (*bootstrap.App, error) { return app, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobsCommandEmpty(t *testing.T) {
	app := newTestApp(t)

	out, err := runCLI(t, app, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "No jobs recorded") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestAnalyzeCommandCompletesUnit(t *testing.T) {
	app := newTestApp(t, "u1/Q1/answer.mp4")

	out, err := runCLI(t, app, "--json", "analyze", "u1", "Q1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var body struct {
		Job jobs.Job `json:"job"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if body.Job.Status != jobs.StatusCompleted || body.Job.SessionTag != jobs.SessionManual {
		t.Fatalf("unexpected job: %+v", body.Job)
	}

	out, err = runCLI(t, app, "jobs", "--owner", "u1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, body.Job.AnalysisID) || !strings.Contains(out, "completed") {
		t.Fatalf("jobs table missing analysis: %s", out)
	}
}

func TestAnalyzeCommandUnknownUnit(t *testing.T) {
	app := newTestApp(t, "u1/Q1/answer.mp4")

	if _, err := runCLI(t, app, "analyze", "u1", "Q9"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
	if _, err := runCLI(t, newTestApp(t), "analyze", "u1"); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestScanCommandRunsPassAndCommentary(t *testing.T) {
	app := newTestApp(t, "u1/Q1/a.mp4", "u1/Q2/b.webm")
	lockPath := filepath.Join(t.TempDir(), "scan.lock")

	out, err := runCLI(t, app, "--lock-file", lockPath, "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "Discovered") || !strings.Contains(out, "processed") {
		t.Fatalf("unexpected scan output: %s", out)
	}

	out, err = runCLI(t, app, "evaluations", "u1")
	if err != nil {
		t.Fatalf("evaluations: %v", err)
	}
	if !strings.Contains(out, "Q1") || !strings.Contains(out, "Q2") {
		t.Fatalf("expected evaluations for both units: %s", out)
	}
}

func TestInventoryCommand(t *testing.T) {
	app := newTestApp(t, "u2/Q1/a.mp4", "u1/Q1/a.mp4", "u1/Q2/a.mp4")

	out, err := runCLI(t, app, "inventory")
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if strings.Index(out, "u1") > strings.Index(out, "u2") {
		t.Fatalf("owners not sorted: %s", out)
	}
	if !strings.Contains(out, "Q1, Q2") {
		t.Fatalf("expected unit list: %s", out)
	}
}

func TestEnqueueRequiresQueue(t *testing.T) {
	app := newTestApp(t)

	_, err := runCLI(t, app, "enqueue", "u1", "Q1")
	if err == nil || !strings.Contains(err.Error(), "RA_SQS_QUEUE_URL") {
		t.Fatalf("expected queue configuration error, got %v", err)
	}
}

func TestBuilderErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	cmd := newRootCommand(func(context.Context) (*bootstrap.App, error) { return nil, boom })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"jobs"})
	if err := cmd.Execute(); !errors.Is(err, boom) {
		t.Fatalf("expected builder error, got %v", err)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Owner", "Count"}, [][]string{{"u1"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "Owner") || !strings.Contains(out, "u1") {
		t.Fatalf("unexpected table: %s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("expected empty render without headers")
	}
}

func TestMigrateCommandValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	app := newTestApp(t)

	if _, err := runCLI(t, app, "migrate", "sideways"); err == nil {
		t.Fatalf("expected invalid argument error")
	}
	_, err := runCLI(t, app, "migrate", "status")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestDrainCommandTriggersServerQueue(t *testing.T) {
	app := newTestApp(t, "u1/Q1/answer.mp4")
	runCtx, cancel := context.WithCancel(context.Background())
	app.Orchestrator.Start(runCtx)
	t.Cleanup(func() {
		cancel()
		app.Orchestrator.Wait()
	})
	if _, err := app.Orchestrator.AnalyzeUnit(runCtx, "u1", "Q1", ""); err != nil {
		t.Fatalf("AnalyzeUnit: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	analysis.NewHandler(app.Orchestrator).RegisterRoutes(r.Group("/api/v1"))
	srv := httptest.NewServer(r)
	defer srv.Close()

	out, err := runCLI(t, app, "drain", "--api", srv.URL)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !strings.Contains(out, "pending=1") {
		t.Fatalf("unexpected output: %q", out)
	}
	app.Batch.Wait()
	if _, err := app.EvalRepo.Get(context.Background(), "u1", "Q1"); err != nil {
		t.Fatalf("evaluation after remote drain: %v", err)
	}

	out, err = runCLI(t, app, "--json", "drain", "--api", srv.URL+"/")
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	var body drainResponse
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if body.PendingCount != 0 || body.Started {
		t.Fatalf("unexpected response for empty queue: %+v", body)
	}
}

func TestDrainCommandReportsServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/batch/drain", func(c *gin.Context) {
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "server is shutting down", nil)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, err := runCLI(t, newTestApp(t), "drain", "--api", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "server is shutting down") {
		t.Fatalf("expected server error, got %v", err)
	}
}
