// Package testfixture builds the scripted fakeagent binary used by the
// client/session/reactive integration tests in place of the real external
// agent process.
package testfixture

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

// BuildFakeAgent compiles cmd/fakeagent once per test binary run and returns
// the path to the resulting executable. Safe for concurrent use from
// multiple tests.
func BuildFakeAgent() (string, error) {
	buildOnce.Do(func() {
		_, thisFile, _, ok := runtime.Caller(0)
		if !ok {
			buildErr = fmt.Errorf("testfixture: could not determine caller for module root")
			return
		}
		moduleRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")

		dir, err := os.MkdirTemp("", "fakeagent-bin-")
		if err != nil {
			buildErr = err
			return
		}
		out := filepath.Join(dir, "fakeagent")
		if runtime.GOOS == "windows" {
			out += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", out, "./cmd/fakeagent")
		cmd.Dir = moduleRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("testfixture: building fakeagent: %w\n%s", err, output)
			return
		}
		binPath = out
	})
	return binPath, buildErr
}
