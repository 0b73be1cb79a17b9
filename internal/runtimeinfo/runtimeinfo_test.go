package runtimeinfo

import (
	"context"
	"os"
	"testing"
)

func TestDetectDefaultEnvironment(t *testing.T) {
	for _, key := range managedRuntimeVars {
		if os.Getenv(key) != "" {
			t.Skipf("running inside a managed runtime (%s set)", key)
		}
	}

	caps := Detect()
	if !caps.CanHandleSignals {
		t.Error("plain process should allow signal handlers")
	}
	if !caps.HasProcessEnv {
		t.Error("plain process should have a writable environment")
	}
}

func TestDetectManagedRuntime(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-fn")

	caps := Detect()
	if caps.CanHandleSignals {
		t.Error("managed runtime must not install signal handlers")
	}
}

func TestDescribeAlwaysHasProcessFacts(t *testing.T) {
	facts := Describe(context.Background())

	if facts.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", facts.PID, os.Getpid())
	}
	if facts.GoVersion == "" {
		t.Error("go version missing")
	}
	if facts.OS == "" {
		t.Error("os missing")
	}
}
