package flog

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// TestDispatchStartupLogMessage tests the actual log message format the
// dispatcher emits once the connection pools are filled and listeners
// started, before the first request is sent.
func TestDispatchStartupLogMessage(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	SetLevel(int(Info))
	time.Sleep(50 * time.Millisecond)

	numServers := 3
	totalConns := 12
	numReqs := 1000

	Infof("dispatch started: %d servers, %d connections, %d requests planned", numServers, totalConns, numReqs)

	time.Sleep(100 * time.Millisecond)

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	io.Copy(&buf, r)
	output := buf.String()

	t.Logf("Captured log output:\n%s", output)

	expectedParts := []string{
		"[INFO]",
		"dispatch started:",
		"3 servers",
		"12 connections",
		"1000 requests planned",
	}

	for _, part := range expectedParts {
		if !strings.Contains(output, part) {
			t.Errorf("Log output missing expected part: %q\nFull output: %s", part, output)
		}
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 1 {
		t.Errorf("Expected 1 log line, got %d lines. This indicates message truncation.\nLines: %v", len(lines), lines)
	}
}

// TestDispatchTerminationLogMessage tests the shutdown log line emitted
// after the terminator flows have been written and every listener has
// exited.
func TestDispatchTerminationLogMessage(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	SetLevel(int(Info))
	time.Sleep(50 * time.Millisecond)

	unfinished := 4

	Infof("dispatch complete: %d requests unfinished", unfinished)

	time.Sleep(100 * time.Millisecond)

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	io.Copy(&buf, r)
	output := buf.String()

	expectedParts := []string{
		"dispatch complete:",
		"4 requests unfinished",
	}
	for _, part := range expectedParts {
		if !strings.Contains(output, part) {
			t.Errorf("Log output missing expected part: %q\nFull output: %s", part, output)
		}
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 1 {
		t.Errorf("Expected 1 log line, got %d lines.", len(lines))
	}
}
