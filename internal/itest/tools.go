//go:build integration

package itest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const modulePath = "github.com/forPelevin/clipscout"

// toolPath resolves an external binary the same way the CLI does: from env,
// falling back to the bare name on PATH.
func toolPath(env, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return def
}

// probeDurationSeconds asks ffprobe for the container duration, independent
// of the adapter under test.
func probeDurationSeconds(ctx context.Context, media string) (float64, error) {
	bin := toolPath("FFPROBE_PATH", "ffprobe")
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		media,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("%s: %w\n%s", bin, err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

// findModuleRoot returns CLIPSCOUT_ROOT when set, otherwise the nearest
// ancestor whose go.mod declares this module. A go.mod of another module
// (a vendored example, a nested tool) is skipped.
func findModuleRoot() (string, error) {
	if root := os.Getenv("CLIPSCOUT_ROOT"); root != "" {
		if declaresModule(filepath.Join(root, "go.mod")) {
			return root, nil
		}
		return "", fmt.Errorf("CLIPSCOUT_ROOT=%s has no go.mod for %s", root, modulePath)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if declaresModule(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod for %s above the working directory", modulePath)
		}
		dir = parent
	}
}

func declaresModule(goMod string) bool {
	f, err := os.Open(goMod)
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`) == modulePath
		}
	}
	return false
}
