//go:build darwin

package wrapper

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/gourd-go/gourd/internal/osexec"
)

// verifyArch shells out to lipo -archs, since macOS fat binaries can't be
// checked with a single ELF-style header read.
func verifyArch(binary string) error {
	out, err := osexec.Execute("lipo", []string{"-archs", binary}, nil)
	if err != nil {
		return fmt.Errorf("lipo -archs %s: %w", binary, err)
	}

	want := lipoArch[runtime.GOARCH]
	if want == "" {
		return nil
	}

	for _, arch := range strings.Fields(string(out)) {
		if arch == want {
			return nil
		}
	}

	return fmt.Errorf("%s has no slice for %s (lipo reports: %s)", binary, want, strings.TrimSpace(string(out)))
}

var lipoArch = map[string]string{
	"amd64": "x86_64",
	"arm64": "arm64",
}
