package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_ConsoleOnly(t *testing.T) {
	logger, closer, err := New(false, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer()

	if logger == nil {
		t.Fatal("nil logger")
	}
	logger.Info("hello")
}

func TestNew_WritesDailyLogFile(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := New(true, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("pipeline started")
	logger.Debug("debug detail")
	closer()

	name := filepath.Join(dir, fmt.Sprintf("jaffle_%s.log", time.Now().Format("20060102")))
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(b)
	if !strings.Contains(content, "pipeline started") {
		t.Fatalf("log file missing info entry: %q", content)
	}
	if !strings.Contains(content, "debug detail") {
		t.Fatalf("log file should capture debug entries: %q", content)
	}
}

func TestNew_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	logger, closer, err := New(false, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("x")
	closer()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
}
