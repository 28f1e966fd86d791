package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/lavacaster/broadcaster/internal/models"
)

func TestSpawnLaunchFailureIsProcessLaunchError(t *testing.T) {
	_, err := Spawn(context.Background(), []string{"/no/such/binary-xyz"}, StdoutDiscard)
	if err == nil {
		t.Fatal("expected an error")
	}
	var launchErr *models.ProcessLaunchError
	if !isProcessLaunchError(err, &launchErr) {
		t.Fatalf("expected ProcessLaunchError, got %T: %v", err, err)
	}
}

func isProcessLaunchError(err error, target **models.ProcessLaunchError) bool {
	if e, ok := err.(*models.ProcessLaunchError); ok {
		*target = e
		return true
	}
	return false
}

func TestSpawnAndWaitReportsExitCode(t *testing.T) {
	h, err := Spawn(context.Background(), []string{"sh", "-c", "exit 7"}, StdoutDiscard)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	code, err := h.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestLineStreamYieldsTrimmedLines(t *testing.T) {
	h, err := Spawn(context.Background(), []string{"sh", "-c", "echo one; echo two"}, StdoutLineStream)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line, ok := <-h.Lines():
			if !ok {
				t.Fatalf("channel closed early, got %v", got)
			}
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected lines: %v", got)
	}
	h.Wait()
}

func TestStopTerminatesChildWithinGrace(t *testing.T) {
	h, err := Spawn(context.Background(), []string{"sleep", "30"}, StdoutDiscard)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	start := time.Now()
	Stop(h, 200*time.Millisecond)
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Stop took too long: %v", time.Since(start))
	}
	if h.Running() {
		t.Fatal("child still running after Stop returned")
	}
}

func TestCollectReturnsFullOutput(t *testing.T) {
	h, err := Spawn(context.Background(), []string{"sh", "-c", "echo hello"}, StdoutCollect)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	data, err := h.Collected()
	if err != nil {
		t.Fatalf("collected: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected output: %q", data)
	}
}
