// Package runtimeinfo classifies the hosting execution environment. The
// engine branches on capability flags, never on the name of a particular
// platform.
package runtimeinfo

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// Capabilities describes what lifecycle hooks the engine may install.
type Capabilities struct {
	// CanHandleSignals reports whether process-level signal handlers are
	// meaningful. Serverless runtimes own the process lifecycle, so
	// installing handlers there would never fire before teardown.
	CanHandleSignals bool

	// HasProcessEnv reports whether a writable process environment surface
	// is available.
	HasProcessEnv bool
}

// Env vars that identify managed runtimes where the platform, not the
// process, controls shutdown.
var managedRuntimeVars = []string{
	"AWS_LAMBDA_FUNCTION_NAME", // AWS Lambda
	"FUNCTION_TARGET",          // Google Cloud Functions
	"K_SERVICE",                // Cloud Run / Knative
	"WEBSITE_INSTANCE_ID",      // Azure App Service
}

// Detect probes the current environment and reports its capabilities.
func Detect() Capabilities {
	caps := Capabilities{CanHandleSignals: true}

	for _, key := range managedRuntimeVars {
		if os.Getenv(key) != "" {
			caps.CanHandleSignals = false
			break
		}
	}

	probe := "TREEBEARD_ENV_PROBE"
	if err := os.Setenv(probe, "1"); err == nil {
		os.Unsetenv(probe)
		caps.HasProcessEnv = true
	}

	return caps
}

// Facts are host-level details attached to outgoing batches.
type Facts struct {
	Hostname  string `json:"hostname,omitempty"`
	Platform  string `json:"platform,omitempty"`
	OS        string `json:"os,omitempty"`
	PID       int    `json:"pid"`
	Process   string `json:"process,omitempty"`
	GoVersion string `json:"go_version"`
}

// Describe collects host facts. Failures degrade to partial facts rather
// than errors; telemetry provenance is best effort.
func Describe(ctx context.Context) Facts {
	facts := Facts{
		PID:       os.Getpid(),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		facts.Hostname = info.Hostname
		facts.Platform = info.Platform
	} else if name, err := os.Hostname(); err == nil {
		facts.Hostname = name
	}

	if proc, err := process.NewProcess(int32(facts.PID)); err == nil {
		if name, err := proc.NameWithContext(ctx); err == nil {
			facts.Process = name
		}
	}

	return facts
}
