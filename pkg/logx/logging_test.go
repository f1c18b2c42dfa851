package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// A Logger value captured before a sink swap keeps working against the new
// sink after Service.Apply — the root indirection (Service.current()) means
// swapping sinks never invalidates a previously handed-out Logger.
func TestLoggerSurvivesSinkSwap(t *testing.T) {
	dir := t.TempDir()
	firstPath := filepath.Join(dir, "first.log")
	secondPath := filepath.Join(dir, "second.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: firstPath}})
	defer svc.Close()

	log.Info("before swap")

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: secondPath}})

	// The captured `log` value predates the Apply call above.
	log.Info("after swap")

	first, err := os.ReadFile(firstPath)
	if err != nil {
		t.Fatalf("read first sink: %v", err)
	}
	if !strings.Contains(string(first), "before swap") {
		t.Fatalf("first sink missing pre-swap record: %q", first)
	}
	if strings.Contains(string(first), "after swap") {
		t.Fatalf("first sink unexpectedly has post-swap record: %q", first)
	}

	second, err := os.ReadFile(secondPath)
	if err != nil {
		t.Fatalf("read second sink: %v", err)
	}
	if !strings.Contains(string(second), "after swap") {
		t.Fatalf("second sink missing post-swap record written through the old Logger value: %q", second)
	}
}

// ErrorRateLimit throttles Error-level writes across every sink and counts
// (rather than silently drops) what it discards.
func TestErrorRateLimitThrottlesAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	svc, log := New(Config{
		Level:          "info",
		File:           FileConfig{Enabled: true, Path: path},
		ErrorRateLimit: 1,
	})
	defer svc.Close()

	for i := 0; i < 10; i++ {
		log.Error("boom")
	}

	if got := svc.DroppedErrors(); got == 0 {
		t.Fatal("expected some Error-level writes to be counted as dropped")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Count(string(data), "boom") >= 10 {
		t.Fatalf("expected throttling to reduce write count below 10, got %d", strings.Count(string(data), "boom"))
	}
}

// Disabling ErrorRateLimit via Apply (0 == unlimited) must take effect for
// Logger values captured beforehand, same as the sink-swap property above.
func TestErrorRateLimitCanBeDisabledLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	svc, log := New(Config{
		Level:          "info",
		File:           FileConfig{Enabled: true, Path: path},
		ErrorRateLimit: 0.001,
	})
	defer svc.Close()

	for i := 0; i < 5; i++ {
		log.Error("throttled")
	}
	throttledDrops := svc.DroppedErrors()
	if throttledDrops == 0 {
		t.Fatal("expected the near-zero rate limit to drop at least one record")
	}

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})

	for i := 0; i < 5; i++ {
		log.Error("unthrottled")
	}
	if got := svc.DroppedErrors(); got != throttledDrops {
		t.Fatalf("DroppedErrors grew to %d after disabling the limit, want unchanged %d", got, throttledDrops)
	}
}
