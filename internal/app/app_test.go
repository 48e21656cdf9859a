package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dt-go/internal/config"
	"dt-go/internal/database"
	"dt-go/internal/dt"
	"dt-go/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LogDir:  filepath.Join(dir, "log"),
		History: config.HistoryConfig{Type: "sqlite", DataDir: filepath.Join(dir, "db")},
		Archive: config.VaultConfig{Type: "none"},
		Deployments: []config.Deployment{
			{
				Name:      "production",
				LocalDir:  "build",
				RemoteDir: "/var/www/app",
				Targets: []config.TargetOverride{
					{Remote: ptr("web01")},
					{Remote: ptr("web02")},
				},
			},
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *DTApp {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = testutil.FixedClock()
	}
	a, err := NewDTApp(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("NewDTApp() error = %v", err)
	}
	return a
}

func TestDTApp_DeployRecordsHistory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	fleet := testutil.NewFakeFleet()
	v := testutil.NewTestVault()

	a := newTestApp(t, cfg, Options{Deployment: "production", Operation: dt.OpDeploy, Dialer: fleet, Transferer: fleet, Vault: v, IDs: testutil.NewStubIDGenerator()})
	results, err := a.Deploy(ctx)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Deploy() returned %d results, want 2", len(results))
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	version, err := v.GetMetadataVersion(ArchiveNamespace, ArchiveName)
	if err != nil || version != 1 {
		t.Errorf("archived version = %d (err %v), want 1", version, err)
	}

	logData, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFile))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(logData), "\trun-1\tcreated release") {
		t.Errorf("log does not carry the run id:\n%s", logData)
	}

	reader := newTestApp(t, cfg, Options{Operation: "history", Vault: v})
	defer reader.Close()

	runs, err := reader.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("History() returned %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Deployment != "production" || run.Operation != dt.OpDeploy || run.Status != dt.StatusSuccess || run.FinishedAt == nil {
		t.Errorf("run = %+v", run)
	}

	records, err := reader.RunResults(run.ID)
	if err != nil {
		t.Fatalf("RunResults() error = %v", err)
	}
	if len(records) != 2 || records[0].Host != "web01" || records[0].Release == "" {
		t.Errorf("records = %+v", records)
	}
}

func TestDTApp_FailedDeployIsRecorded(t *testing.T) {
	cfg := testConfig(t)
	fleet := testutil.NewFakeFleet()
	fleet.Remote("web01").TransferErr = errors.New("connection reset")

	a := newTestApp(t, cfg, Options{Deployment: "production", Operation: dt.OpDeploy, Dialer: fleet, Transferer: fleet})
	if _, err := a.Deploy(context.Background()); err == nil {
		t.Fatal("Deploy() expected error")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reader := newTestApp(t, cfg, Options{Operation: "history"})
	defer reader.Close()
	runs, _ := reader.History(10)
	if len(runs) != 1 || runs[0].Status != dt.StatusError {
		t.Fatalf("runs = %+v, want one failed run", runs)
	}
	records, _ := reader.RunResults(runs[0].ID)
	if len(records) != 2 || records[0].Error == "" || records[1].Error != "" {
		t.Errorf("records = %+v, want web01 failed and web02 succeeded", records)
	}
}

func TestDTApp_ListIsNotRecorded(t *testing.T) {
	cfg := testConfig(t)
	fleet := testutil.NewFakeFleet()
	v := testutil.NewTestVault()

	a := newTestApp(t, cfg, Options{Deployment: "production", Operation: dt.OpList, Dialer: fleet, Transferer: fleet, Vault: v})
	if _, err := a.List(context.Background()); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	a.Close()

	if version, _ := v.GetMetadataVersion(ArchiveNamespace, ArchiveName); version != 0 {
		t.Errorf("history was archived after a read-only command (version %d)", version)
	}
	reader := newTestApp(t, cfg, Options{Operation: "history"})
	defer reader.Close()
	if runs, _ := reader.History(10); len(runs) != 0 {
		t.Errorf("runs = %+v, want none", runs)
	}
}

func TestDTApp_ArchiveAhead(t *testing.T) {
	cfg := testConfig(t)
	v := testutil.NewTestVault()
	if err := v.PutMetadata(ArchiveNamespace, ArchiveName, bytes.NewReader([]byte("x")), 1, 5); err != nil {
		t.Fatal(err)
	}

	if _, err := NewDTApp(context.Background(), cfg, Options{Operation: dt.OpDeploy, Vault: v}); err == nil {
		t.Error("NewDTApp() expected error when the archive is ahead of the local history")
	}
}

func TestDTApp_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History = config.HistoryConfig{Type: "none"}
	fleet := testutil.NewFakeFleet()

	a := newTestApp(t, cfg, Options{Deployment: "production", Operation: dt.OpDeploy, Dialer: fleet, Transferer: fleet})
	defer a.Close()

	if _, err := a.Deploy(context.Background()); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if _, err := a.History(10); !errors.Is(err, errHistoryDisabled) {
		t.Errorf("History() error = %v, want errHistoryDisabled", err)
	}
}

func TestDTApp_NoDeployment(t *testing.T) {
	a := newTestApp(t, testConfig(t), Options{Operation: "history"})
	defer a.Close()

	if _, err := a.Deploy(context.Background()); !errors.Is(err, errNoDeployment) {
		t.Errorf("Deploy() error = %v, want errNoDeployment", err)
	}
}

func TestDTApp_UnknownDeployment(t *testing.T) {
	_, err := NewDTApp(context.Background(), testConfig(t), Options{Deployment: "staging", Operation: dt.OpDeploy})
	if err == nil {
		t.Error("NewDTApp() expected error for an unknown deployment")
	}
}

func TestDTApp_BranchesStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Deployments[0].Strategy = "branches"
	cfg.Deployments[0].BaseDomain = "preview.example.com"
	fleet := testutil.NewFakeFleet()

	a := newTestApp(t, cfg, Options{
		Deployment: "production",
		Operation:  dt.OpDeploy,
		Dialer:     fleet,
		Transferer: fleet,
		Git:        &testutil.StubGit{Branch: "Feature/Checkout"},
	})
	defer a.Close()

	results, err := a.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if results[0].Release != "feature-checkout" {
		t.Errorf("release = %q, want feature-checkout", results[0].Release)
	}
	if !fleet.Remote("web02").Exists("/var/www/app/index/index.html") {
		t.Error("index page was not generated")
	}
}

func TestRestoreHistory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	fleet := testutil.NewFakeFleet()
	v := testutil.NewTestVault()

	a := newTestApp(t, cfg, Options{Deployment: "production", Operation: dt.OpDeploy, Dialer: fleet, Transferer: fleet, Vault: v})
	if _, err := a.Deploy(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(cfg.History.DataDir, database.HistoryFile)); err != nil {
		t.Fatal(err)
	}

	version, err := RestoreHistory(ctx, cfg, v)
	if err != nil {
		t.Fatalf("RestoreHistory() error = %v", err)
	}
	if version != 1 {
		t.Errorf("restored version = %d, want 1", version)
	}

	reader := newTestApp(t, cfg, Options{Operation: "history", Vault: v})
	defer reader.Close()
	runs, err := reader.History(10)
	if err != nil || len(runs) != 1 {
		t.Errorf("History() after restore = %+v (err %v), want one run", runs, err)
	}
}

func TestRestoreHistory_EmptyArchive(t *testing.T) {
	if _, err := RestoreHistory(context.Background(), testConfig(t), testutil.NewTestVault()); err == nil {
		t.Error("RestoreHistory() expected error for an empty archive")
	}
}
