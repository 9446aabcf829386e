package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Step errors. Every step failure aborts the run.
var (
	ErrClean   = errors.New("clear output failed")
	ErrBundle  = errors.New("bundle failed")
	ErrCopy    = errors.New("copy manifest failed")
	ErrArchive = errors.New("archive failed")
)

// Options fixes the inputs and outputs of one run
type Options struct {
	OutDir      string // Recreated on every run
	Entry       string // Package handed to the bundler
	ManifestSrc string // Copied byte for byte into OutDir
	ManifestDst string // Name inside OutDir, defaults to the source base name
	ArchivePath string // Zip of OutDir, must live outside it; empty skips archiving
}

// Result lists what a successful run produced
type Result struct {
	Outputs  []string // Bundle outputs, relative to OutDir
	Manifest string
	Archive  string
	Files    []string // Archived files, relative to OutDir
}

// Pipeline clears, bundles, copies the manifest and archives, in that order
type Pipeline struct {
	opts    Options
	bundler Bundler
	logger  *zap.Logger
}

// New creates a pipeline
func New(opts Options, bundler Bundler, logger *zap.Logger) *Pipeline {
	if opts.ManifestDst == "" && opts.ManifestSrc != "" {
		opts.ManifestDst = filepath.Base(opts.ManifestSrc)
	}
	return &Pipeline{
		opts:    opts,
		bundler: bundler,
		logger:  logger,
	}
}

// Run executes the steps sequentially and stops at the first failure
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res, err := p.run(ctx)
	if err != nil {
		p.logger.Error("Build failed", zap.Error(err))
		return nil, err
	}

	p.logger.Info("Build success",
		zap.String("out_dir", p.opts.OutDir),
		zap.Strings("outputs", res.Outputs),
		zap.String("archive", res.Archive),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	res := &Result{}

	// Step 1: clear output
	if err := p.step(ctx, "clean", func() error { return p.clean() }); err != nil {
		return nil, err
	}

	// Step 2: bundle
	if err := p.step(ctx, "bundle", func() error {
		outputs, err := p.bundle(ctx)
		res.Outputs = outputs
		return err
	}); err != nil {
		return nil, err
	}

	// Step 3: copy manifest
	if err := p.step(ctx, "copy_manifest", func() error {
		dst := filepath.Join(p.opts.OutDir, p.opts.ManifestDst)
		if err := copyFile(p.opts.ManifestSrc, dst); err != nil {
			return fmt.Errorf("%w: %w", ErrCopy, err)
		}
		res.Manifest = dst
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 4: archive (optional)
	if p.opts.ArchivePath == "" {
		p.logger.Debug("Skipping archive")
		return res, nil
	}
	if err := p.step(ctx, "archive", func() error {
		files, err := archiveDir(p.opts.OutDir, p.opts.ArchivePath)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrArchive, err)
		}
		res.Archive = p.opts.ArchivePath
		res.Files = files
		return nil
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// step runs fn unless ctx is already done and logs its outcome
func (p *Pipeline) step(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("step %s not started: %w", name, err)
	}

	p.logger.Debug("Running step", zap.String("step", name))
	if err := fn(); err != nil {
		p.logger.Error("Step failed", zap.String("step", name), zap.Error(err))
		return err
	}
	p.logger.Info("Step done", zap.String("step", name))
	return nil
}

func (p *Pipeline) validate() error {
	if p.bundler == nil {
		return errors.New("no bundler configured")
	}
	if p.opts.OutDir == "" || p.opts.Entry == "" || p.opts.ManifestSrc == "" {
		return errors.New("OutDir, Entry and ManifestSrc are required")
	}
	if p.opts.ArchivePath != "" && within(p.opts.OutDir, p.opts.ArchivePath) {
		return fmt.Errorf("archive %s must be outside the output directory %s", p.opts.ArchivePath, p.opts.OutDir)
	}
	return nil
}

// clean removes the output directory and any previous archive
func (p *Pipeline) clean() error {
	if err := os.RemoveAll(p.opts.OutDir); err != nil {
		return fmt.Errorf("%w: %w", ErrClean, err)
	}
	if p.opts.ArchivePath != "" {
		if err := os.Remove(p.opts.ArchivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrClean, err)
		}
	}
	return nil
}

// bundle runs the bundler and reports every diagnostic on failure
func (p *Pipeline) bundle(ctx context.Context) ([]string, error) {
	result, err := p.bundler.Bundle(ctx, p.opts.Entry, p.opts.OutDir)
	if err != nil {
		return nil, &BundleError{Err: err}
	}

	if !result.Success {
		for _, message := range result.Logs {
			p.logger.Error("Bundler diagnostic", zap.String("message", message))
		}
		return nil, &BundleError{Logs: result.Logs}
	}

	for _, message := range result.Logs {
		p.logger.Warn("Bundler diagnostic", zap.String("message", message))
	}
	return result.Outputs, nil
}

// within reports whether path is dir or lies below it
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
