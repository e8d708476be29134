package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/metric"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/config"
	"github.com/c360studio/semtypes/export"
	catalogapi "github.com/c360studio/semtypes/processor/catalog-api"
	"github.com/c360studio/semtypes/storage"
)

func modelJSON(id string) string {
	return `{"id":"` + id + `","name":"` + id + `","description":"","graph":{"nodes":[
	  {"columnName":"age","userSemanticTypes":[
	    {"domain":{"uri":"http://x.org/Person"},"type":{"uri":"http://x.org/age"}}]}]}}`
}

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = storage.BackendMemory
	return cfg
}

func TestComponentConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Buckets.Models = "OTHER_MODELS"
	cfg.Search.IndexDir = "/tmp/idx"

	raw, err := componentConfig(cfg)
	if err != nil {
		t.Fatalf("componentConfig: %v", err)
	}
	var got catalogapi.Config
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Backend != "memory" || got.ModelsBucket != "OTHER_MODELS" || got.IndexDir != "/tmp/idx" {
		t.Errorf("unexpected component config: %+v", got)
	}
}

func TestNewMux_HealthMetricsAndAPI(t *testing.T) {
	metricsRegistry := metric.NewMetricsRegistry()
	api, err := createCatalogAPI(memoryConfig(), component.Dependencies{MetricsRegistry: metricsRegistry})
	if err != nil {
		t.Fatalf("createCatalogAPI: %v", err)
	}

	srv := httptest.NewServer(newMux(api, "/semtypes/", metricsRegistry))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before start, got %d", resp.StatusCode)
	}

	if err := api.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer api.Stop(time.Second)

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after start, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/semtypes/models", "application/json", strings.NewReader(modelJSON("m1")))
	if err != nil {
		t.Fatalf("POST models: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`semtypes_catalog_requests_total{operation="models",status="201"} 1`,
		`semtypes_catalog_ingested_total{kind="type",outcome="created"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestImportFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"a.json":          modelJSON("a"),
		"nested/b.json":   modelJSON("b"),
		"nested/dup.json": modelJSON("a"),
	} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	cat, err := catalog.New(catalog.Buckets{
		Types:   storage.NewMemoryBucket(storage.BucketTypes),
		Columns: storage.NewMemoryBucket(storage.BucketColumns),
		Models:  storage.NewMemoryBucket(storage.BucketModels),
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	var out bytes.Buffer
	summary, err := importFiles(ctx, cat, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "nested", "*.json"),
	}, &out)
	if err != nil {
		t.Fatalf("importFiles: %v", err)
	}
	if summary.Imported != 2 || summary.Skipped != 1 {
		t.Errorf("summary = %+v\n%s", summary, out.String())
	}
	if !strings.Contains(out.String(), "skipped") {
		t.Errorf("output does not report the skipped file:\n%s", out.String())
	}

	if _, err := importFiles(ctx, cat, []string{filepath.Join(dir, "missing", "*.json")}, io.Discard); err == nil {
		t.Error("expected error when nothing matches")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"id":"x"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := importFiles(ctx, cat, []string{bad}, io.Discard); err == nil {
		t.Error("expected error for an invalid model")
	}
}

func TestModelImportCommand_Bolt(t *testing.T) {
	home, work := t.TempDir(), t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvBackend, "")
	t.Setenv(config.EnvNATSURL, "")
	t.Setenv(config.EnvNATSURLShared, "")
	t.Chdir(work)

	dbPath := filepath.Join(work, "catalog.db")
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = storage.BackendBolt
	cfg.Storage.BoltPath = dbPath
	if err := cfg.SaveToFile(filepath.Join(work, config.ProjectConfigFile)); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(work, "m.json"), []byte(modelJSON("m")), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	run := func() string {
		var out bytes.Buffer
		cmd := rootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"model", "import", "--log-level", "error", "*.json"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("model import: %v", err)
		}
		return out.String()
	}

	if out := run(); !strings.Contains(out, "1 imported, 0 skipped") {
		t.Errorf("first import output:\n%s", out)
	}
	// The model persisted in the bolt file.
	if out := run(); !strings.Contains(out, "0 imported, 1 skipped") {
		t.Errorf("second import output:\n%s", out)
	}
}

func TestExportCatalog(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.New(catalog.Buckets{
		Types:   storage.NewMemoryBucket(storage.BucketTypes),
		Columns: storage.NewMemoryBucket(storage.BucketColumns),
		Models:  storage.NewMemoryBucket(storage.BucketModels),
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	var out bytes.Buffer
	if err := exportCatalog(ctx, cat, export.FormatNTriples, exportOptions{withColumns: true}, &out); err != nil {
		t.Fatalf("export empty catalog: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no triples, got:\n%s", out.String())
	}

	if _, err := cat.IngestModel(ctx, []byte(modelJSON("m"))); err != nil {
		t.Fatalf("IngestModel: %v", err)
	}

	out.Reset()
	if err := exportCatalog(ctx, cat, export.FormatNTriples, exportOptions{withColumns: true, withRows: true}, &out); err != nil {
		t.Fatalf("export: %v", err)
	}
	got := out.String()
	for _, want := range []string{export.ClassSemanticType, export.ClassColumn, export.PredicateRowCount} {
		if !strings.Contains(got, want) {
			t.Errorf("export missing %q:\n%s", want, got)
		}
	}

	out.Reset()
	if err := exportCatalog(ctx, cat, export.FormatNTriples, exportOptions{namespaces: []string{"http://other.org/"}}, &out); err != nil {
		t.Fatalf("filtered export: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("namespace filter should exclude every type, got:\n%s", out.String())
	}
}
