package treebeard

import (
	"fmt"

	"github.com/treebeardhq/treebeard-go/internal/exporter"
)

// ConfigurationError reports a missing or malformed configuration key. It is
// returned only by Init; every other entry point degrades to a no-op or a
// diagnostic instead of failing into application code.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("treebeard configuration: %s: %s", e.Key, e.Reason)
}

// DeliveryError reports a batch dropped after the bounded retry policy was
// exhausted. It surfaces on the diagnostic channel and from explicit Flush
// calls, never from Log.
type DeliveryError = exporter.DeliveryError
