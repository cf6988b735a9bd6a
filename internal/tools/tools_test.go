package tools

import (
	"context"
	"testing"
	"time"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	r.Register(NewStubTool("dns_enum", 0, map[string]any{"records": []string{"A 1.2.3.4"}}))

	tool, ok := r.Get("dns_enum")
	if !ok {
		t.Fatal("Expected dns_enum to be registered")
	}
	if tool.Name() != "dns_enum" {
		t.Errorf("Expected name dns_enum, got %s", tool.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Expected lookup miss for unregistered tool")
	}
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()

	r.Register(NewStubTool("probe", 0, map[string]any{"version": 1}))
	r.Register(NewStubTool("probe", 0, map[string]any{"version": 2}))

	if r.Count() != 1 {
		t.Fatalf("Expected 1 registration, got %d", r.Count())
	}

	tool, _ := r.Get("probe")
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out["version"] != 2 {
		t.Errorf("Expected latest registration to win, got %v", out["version"])
	}
}

func TestStubEchoesReplanFlags(t *testing.T) {
	tool := NewStubTool("http_probe", 0, map[string]any{"status": 200})

	out, err := tool.Execute(context.Background(), map[string]any{
		"target":     "example.com",
		"unexpected": true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out["unexpected"] != true {
		t.Error("Expected unexpected flag to be echoed")
	}
	if out["target"] != "example.com" {
		t.Errorf("Expected target echoed, got %v", out["target"])
	}
}

func TestStubHonorsContext(t *testing.T) {
	tool := NewStubTool("slow", time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tool.Execute(ctx, nil)
	if err == nil {
		t.Fatal("Expected context error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Tool did not return promptly on cancellation")
	}
}

func TestFailingTool(t *testing.T) {
	tool := NewFailingTool("broken")

	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Error("Expected failure")
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	for _, name := range []string{"dns_enum", "port_scan", "tls_audit", "http_probe", "header_audit", "cred_check"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("Expected default tool %s", name)
		}
	}
}
