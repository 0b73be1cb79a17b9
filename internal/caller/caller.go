// Package caller resolves the source location that invoked the logging API.
package caller

import (
	"runtime"
	"strings"
)

// Frame is a best-effort source location.
type Frame struct {
	File     string
	Line     int
	Function string
}

// Unknown is substituted when stack information is unavailable.
var Unknown = Frame{File: "unknown", Function: "unknown"}

// Resolve returns the frame skip levels above the caller of Resolve itself.
// A skip of 0 is the immediate caller. It never panics; when the stack
// cannot be inspected it returns Unknown.
func Resolve(skip int) Frame {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Unknown
	}

	frame := Frame{File: file, Line: line, Function: "unknown"}
	if fn := runtime.FuncForPC(pc); fn != nil {
		frame.Function = shortFuncName(fn.Name())
	}
	return frame
}

// shortFuncName trims the package path from a fully qualified function name,
// keeping "pkg.Type.Method" style names readable.
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
