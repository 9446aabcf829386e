package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BundleResult is what a bundler reports for one build
type BundleResult struct {
	Success bool
	Outputs []string // Written files, relative to the output directory
	Logs    []string // Diagnostics, one per line
}

// Bundler compiles a single entry into an output directory
type Bundler interface {
	Bundle(ctx context.Context, entry, outDir string) (*BundleResult, error)
}

// BundleError carries the diagnostics of a failed bundle
type BundleError struct {
	Logs []string
	Err  error
}

func (e *BundleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrBundle, e.Err)
	}
	return fmt.Sprintf("%v: %d diagnostic(s)", ErrBundle, len(e.Logs))
}

func (e *BundleError) Is(target error) bool { return target == ErrBundle }

func (e *BundleError) Unwrap() error { return e.Err }

// GoBundler builds the entry package into a single stripped, reproducible binary
// named for the serverless custom runtime.
type GoBundler struct {
	GoCmd  string   // Defaults to "go"
	Dir    string   // Module root, defaults to the working directory
	GOOS   string   // Defaults to linux
	GOARCH string   // Defaults to arm64
	Binary string   // Defaults to bootstrap
	Tags   []string // Build tags
}

// Bundle runs go build. A compile failure is reported through BundleResult;
// the error return is for failures to run the toolchain at all.
func (g *GoBundler) Bundle(ctx context.Context, entry, outDir string) (*BundleResult, error) {
	goCmd := orDefault(g.GoCmd, "go")
	binary := orDefault(g.Binary, "bootstrap")

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return nil, err
	}

	args := []string{
		"build",
		"-trimpath",
		"-buildvcs=false",
		"-ldflags", "-s -w -buildid=",
		"-o", filepath.Join(absOut, binary),
	}
	if len(g.Tags) > 0 {
		args = append(args, "-tags", strings.Join(g.Tags, ","))
	}
	args = append(args, entry)

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, goCmd, args...)
	cmd.Dir = g.Dir
	cmd.Env = append(os.Environ(),
		"GOOS="+orDefault(g.GOOS, "linux"),
		"GOARCH="+orDefault(g.GOARCH, "arm64"),
		"CGO_ENABLED=0",
	)
	cmd.Stdout = &output
	cmd.Stderr = &output

	err = cmd.Run()
	logs := splitLines(output.String())

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &BundleResult{Success: false, Logs: logs}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", goCmd, err)
	}

	return &BundleResult{Success: true, Outputs: []string{binary}, Logs: logs}, nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
