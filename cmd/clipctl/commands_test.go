package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clip-splitter/internal/retention"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func makeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)

	uploads := filepath.Join(dir, "uploads")
	project := filepath.Join(dir, "clips", "project 1")
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]int{
		filepath.Join(uploads, "1700000000000-old.mp4"): 400,
		filepath.Join(uploads, "1700000000001-new.mp4"): 100,
		filepath.Join(project, "part1.mp4"):             500,
	}
	for path, size := range files {
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, path := range []string{filepath.Join(uploads, "1700000000000-old.mp4"), project} {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPlanCmd(t *testing.T) {
	out, err := run(t, "plan", "250", "--length", "2m")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if !strings.Contains(out, "3 segments of up to 2m0s") {
		t.Errorf("missing header in:\n%s", out)
	}
	for _, want := range []string{"part1.mp4", "part2.mp4", "part3.mp4", "240.000", "10.000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanCmdInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"not a number", []string{"plan", "abc"}},
		{"zero duration", []string{"plan", "0"}},
		{"negative", []string{"plan", "--", "-5"}},
		{"missing argument", []string{"plan"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUsageCmd(t *testing.T) {
	dir := makeTree(t)

	out, err := run(t, "usage", "--data-dir", dir, "--uploads", "uploads", "--clips", "clips", "--quota", "1KiB")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	for _, want := range []string{"Uploads:  2", "Projects: 1", "Used:     1000 B of 1.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "usage", "--data-dir", dir, "--quota", "0")
	if err != nil {
		t.Fatalf("usage unlimited: %v", err)
	}
	if !strings.Contains(out, "of unlimited") {
		t.Errorf("unlimited quota not reported:\n%s", out)
	}
}

func TestUsageCmdBadQuota(t *testing.T) {
	_, err := run(t, "usage", "--data-dir", t.TempDir(), "--quota", "lots")
	if err == nil || !strings.Contains(err.Error(), "--quota") {
		t.Errorf("err = %v", err)
	}
}

func TestSweepCmd(t *testing.T) {
	dir := makeTree(t)

	out, err := run(t, "sweep", "--data-dir", dir, "--window", "5m", "--json")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	var res retention.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Deleted != 2 || res.BytesFreed != 900 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}

	if _, err := os.Stat(filepath.Join(dir, "uploads", "1700000000001-new.mp4")); err != nil {
		t.Errorf("recent upload removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "clips", "project 1")); !os.IsNotExist(err) {
		t.Errorf("expired project still present: %v", err)
	}
}

func TestSweepCmdRejectsZeroWindow(t *testing.T) {
	if _, err := run(t, "sweep", "--data-dir", t.TempDir(), "--window", "0s"); err == nil {
		t.Error("expected error for zero window")
	}
}

func TestLogLevelFlag(t *testing.T) {
	if _, err := run(t, "--log-level", "verbose", "plan", "10"); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "clipctl ") {
		t.Errorf("output = %q", out)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("CLIPCTL_TEST_WINDOW", "90s")
	if got := envDuration("CLIPCTL_TEST_WINDOW", time.Minute); got != 90*time.Second {
		t.Errorf("envDuration = %v", got)
	}
	t.Setenv("CLIPCTL_TEST_WINDOW", "soon")
	if got := envDuration("CLIPCTL_TEST_WINDOW", time.Minute); got != time.Minute {
		t.Errorf("envDuration invalid = %v", got)
	}
}
