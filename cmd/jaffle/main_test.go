package main

import (
	"strings"
	"testing"
)

// Failures must surface as returned errors so main's deferred cleanup (metrics
// flush, log sync) runs before the process exits.
func TestRun_InvalidConfigReturnsError(t *testing.T) {
	t.Setenv("EXTRACT__WORKERS", "eight")

	err := run(nil)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !strings.Contains(err.Error(), "EXTRACT__WORKERS") {
		t.Fatalf("err=%v want EXTRACT__WORKERS mention", err)
	}
}

func TestRun_BadFlagReturnsError(t *testing.T) {
	if err := run([]string{"-no-such-flag"}); err == nil {
		t.Fatal("expected flag parse error")
	}
}
