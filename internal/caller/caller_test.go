package caller

import (
	"strings"
	"testing"
)

func TestResolveImmediateCaller(t *testing.T) {
	frame := Resolve(0)

	if !strings.HasSuffix(frame.File, "caller_test.go") {
		t.Errorf("file = %q, want caller_test.go", frame.File)
	}
	if frame.Line <= 0 {
		t.Errorf("line = %d, want > 0", frame.Line)
	}
	if !strings.Contains(frame.Function, "TestResolveImmediateCaller") {
		t.Errorf("function = %q", frame.Function)
	}
}

func resolveThroughHelper() Frame {
	return Resolve(1)
}

func TestResolveSkipsHelperFrames(t *testing.T) {
	frame := resolveThroughHelper()
	if !strings.Contains(frame.Function, "TestResolveSkipsHelperFrames") {
		t.Errorf("skip did not land on the caller: %q", frame.Function)
	}
}

func TestResolveAbsurdSkipReturnsUnknown(t *testing.T) {
	frame := Resolve(10000)
	if frame != Unknown {
		t.Errorf("expected Unknown frame, got %+v", frame)
	}
}

func TestShortFuncName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"github.com/acme/pkg.Func", "pkg.Func"},
		{"github.com/acme/pkg.(*Type).Method", "pkg.(*Type).Method"},
		{"main.main", "main.main"},
	}
	for _, tt := range tests {
		if got := shortFuncName(tt.in); got != tt.want {
			t.Errorf("shortFuncName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
