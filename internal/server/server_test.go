package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/patchguard/internal/audit"
	"github.com/ppiankov/patchguard/internal/logging"
	"github.com/ppiankov/patchguard/internal/model"
)

const markupDiff = "--- a/src/view.js\n+++ b/src/view.js\n@@ -1,0 +1,1 @@\n+element.innerHTML = userInput;\n"

// writeConfig writes a config whose catalog paths point at missing files so
// built-in tables are used.
func writeConfig(t *testing.T, threshold float64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`reject_threshold: %.2f
whitelist_path: %s
patterns_path: %s
cache:
  backend: memory
`, threshold, filepath.Join(dir, "whitelist.yaml"), filepath.Join(dir, "patterns.yaml"))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// testServer spins up an in-process gRPC server on a random port and returns
// a connection to it.
func testServer(t *testing.T, configPath string) (*Server, *grpc.ClientConn) {
	t.Helper()

	srv, err := New(Config{ConfigPath: configPath}, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		srv.Close()
	})
	return srv, conn
}

func validate(t *testing.T, conn *grpc.ClientConn, req ValidateRequest) *model.SandboxExecutionResult {
	t.Helper()
	in, err := EncodeStruct(req)
	if err != nil {
		t.Fatalf("EncodeStruct: %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), ValidateMethod, in, out); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res := &model.SandboxExecutionResult{}
	if err := DecodeStruct(out, res); err != nil {
		t.Fatalf("DecodeStruct: %v", err)
	}
	return res
}

func TestValidateAccepts(t *testing.T) {
	_, conn := testServer(t, writeConfig(t, 0.8))

	res := validate(t, conn, ValidateRequest{
		Patch:   model.PatchPlan{Diff: markupDiff, BaselineRisk: 0.1},
		Context: model.ValidationContext{Scenario: "default"},
	})
	if !res.Success {
		t.Fatalf("expected acceptance, got errors %v", res.Errors)
	}
	if len(res.Security.Violations) == 0 || res.Security.Violations[0].Type != model.ViolationXSS {
		t.Errorf("expected xss finding, got %+v", res.Security.Violations)
	}
	if res.CacheKey == "" || res.ExecutionTime <= 0 {
		t.Errorf("result fields lost in transit: %+v", res)
	}
}

func TestValidateRejectsEval(t *testing.T) {
	_, conn := testServer(t, writeConfig(t, 0.8))

	res := validate(t, conn, ValidateRequest{
		Patch: model.PatchPlan{Diff: "--- a/a.js\n+++ b/a.js\n@@ -1,0 +1,1 @@\n+eval(input);\n"},
	})
	if res.Success {
		t.Fatal("eval patch must be rejected")
	}
	if !strings.Contains(res.RejectionMessage, "## Patch rejected") {
		t.Errorf("missing rejection message: %q", res.RejectionMessage)
	}
}

func TestValidateInvalidRequest(t *testing.T) {
	_, conn := testServer(t, writeConfig(t, 0.8))

	in, err := structpb.NewStruct(map[string]any{"patch": "not an object"})
	if err != nil {
		t.Fatal(err)
	}
	err = conn.Invoke(context.Background(), ValidateMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	_, conn := testServer(t, writeConfig(t, 0.8))

	in, _ := EncodeStruct(ExplainRequest{Type: string(model.ViolationUnsafeEval)})
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), ExplainMethod, in, out); err != nil {
		t.Fatalf("Explain: %v", err)
	}
	var content model.EducationalContent
	if err := DecodeStruct(out, &content); err != nil {
		t.Fatalf("DecodeStruct: %v", err)
	}
	if content.Type != model.ViolationUnsafeEval || content.Title == "" || content.Explanation == "" {
		t.Errorf("unexpected content %+v", content)
	}
}

func TestExplainUnknownType(t *testing.T) {
	_, conn := testServer(t, writeConfig(t, 0.8))

	in, _ := EncodeStruct(ExplainRequest{Type: "no-such-thing"})
	err := conn.Invoke(context.Background(), ExplainMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestConcurrentValidations(t *testing.T) {
	_, conn := testServer(t, writeConfig(t, 0.8))

	var wg sync.WaitGroup
	keys := make([]string, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, _ := EncodeStruct(ValidateRequest{Patch: model.PatchPlan{Diff: markupDiff, BaselineRisk: 0.1}})
			out := new(structpb.Struct)
			if err := conn.Invoke(context.Background(), ValidateMethod, in, out); err != nil {
				t.Errorf("Validate: %v", err)
				return
			}
			keys[i] = out.Fields["cache_key"].GetStringValue()
		}(i)
	}
	wg.Wait()

	for i, k := range keys {
		if k == "" || k != keys[0] {
			t.Errorf("request %d cache key %q differs from %q", i, k, keys[0])
		}
	}
}

func TestReloadConfigChange(t *testing.T) {
	path := writeConfig(t, 0.8)
	srv, conn := testServer(t, path)
	req := ValidateRequest{Patch: model.PatchPlan{Diff: markupDiff, BaselineRisk: 0.1}}

	if res := validate(t, conn, req); !res.Success {
		t.Fatalf("expected acceptance before reload, got %v", res.Errors)
	}
	before := srv.ConfigHash()

	if err := os.WriteFile(path, []byte("reject_threshold: 0.5\n"+
		"whitelist_path: "+filepath.Join(filepath.Dir(path), "whitelist.yaml")+"\n"+
		"patterns_path: "+filepath.Join(filepath.Dir(path), "patterns.yaml")+"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := srv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if srv.ConfigHash() == before {
		t.Error("config hash should change after reload")
	}
	if res := validate(t, conn, req); res.Success {
		t.Errorf("expected rejection at threshold 0.5, risk %.2f", res.Security.RiskScore)
	}
}

func TestReloadSharesAuditChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	auditPath := filepath.Join(dir, "audit.jsonl")
	writeAuditConfig := func(threshold float64) {
		t.Helper()
		content := fmt.Sprintf("reject_threshold: %.2f\naudit_log: %s\nwhitelist_path: %s\npatterns_path: %s\n",
			threshold, auditPath, filepath.Join(dir, "whitelist.yaml"), filepath.Join(dir, "patterns.yaml"))
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	writeAuditConfig(0.8)

	srv, err := New(Config{ConfigPath: path}, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	plan := model.PatchPlan{Diff: markupDiff, BaselineRisk: 0.1}

	// Hold a request on the first validator across the reload.
	old := srv.acquire()
	before := srv.ConfigHash()

	writeAuditConfig(0.5)
	reloaded := make(chan error, 1)
	go func() { reloaded <- srv.Reload() }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.ConfigHash() == before {
		if time.Now().After(deadline) {
			t.Fatal("reload did not swap the validator")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cur := srv.acquire()
	cur.v.Validate(ctx, plan, model.ValidationContext{Scenario: "after"})
	cur.inflight.Done()

	old.v.Validate(ctx, plan, model.ValidationContext{Scenario: "before"})
	old.inflight.Done()

	if err := <-reloaded; err != nil {
		t.Fatalf("Reload: %v", err)
	}
	srv.cur.v.Validate(ctx, plan, model.ValidationContext{Scenario: "last"})
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if r := audit.Verify(auditPath); !r.Valid || r.Lines != 3 {
		t.Fatalf("audit chain broken across reload: %+v", r)
	}
}

func TestReloadKeepsValidatorOnError(t *testing.T) {
	path := writeConfig(t, 0.8)
	srv, conn := testServer(t, path)
	before := srv.ConfigHash()

	if err := os.WriteFile(path, []byte("reject_threshold: 7\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := srv.Reload(); err == nil {
		t.Fatal("expected reload error for invalid threshold")
	}
	if srv.ConfigHash() != before {
		t.Error("failed reload must keep the previous configuration")
	}
	if res := validate(t, conn, ValidateRequest{Patch: model.PatchPlan{Diff: markupDiff, BaselineRisk: 0.1}}); !res.Success {
		t.Errorf("previous validator should still serve: %v", res.Errors)
	}
}

func TestWatchPaths(t *testing.T) {
	path := writeConfig(t, 0.8)
	srv, _ := testServer(t, path)

	paths := srv.WatchPaths()
	if len(paths) != 3 || paths[0] != path || !strings.HasSuffix(paths[1], "whitelist.yaml") {
		t.Errorf("unexpected watch paths %v", paths)
	}
}

func TestReloaderPicksUpWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := writeConfig(t, 0.8)
	srv, err := New(Config{ConfigPath: path}, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()
	before := srv.ConfigHash()

	r, err := NewReloader(srv, srv.WatchPaths())
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	if len(r.Paths()) != 1 {
		t.Fatalf("only the config file exists, watched %v", r.Paths())
	}
	r.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	data, _ := os.ReadFile(path)
	if err := os.WriteFile(path, append(data, []byte("seed: 7\n")...), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for srv.ConfigHash() == before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if srv.ConfigHash() == before {
		t.Error("reloader did not apply the config change")
	}
}

func TestNewReloaderSkipsMissing(t *testing.T) {
	srv, err := New(Config{ConfigPath: writeConfig(t, 0.8)}, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	r, err := NewReloader(srv, []string{"", filepath.Join(t.TempDir(), "missing.yaml")})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	if len(r.Paths()) != 0 {
		t.Errorf("expected no watched paths, got %v", r.Paths())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Errorf("Run: %v", err)
	}
}
