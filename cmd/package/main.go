package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"echobot/internal/logger"
	"echobot/internal/pipeline"
)

const (
	outDir      = ".out"
	entry       = "./cmd/webhook"
	manifestSrc = "deploy/function.json"
	archivePath = "function.zip"
)

func main() {
	appLogger, err := logger.New("info", "console")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundler := &pipeline.GoBundler{Tags: []string{"lambda.norpc"}}
	p := pipeline.New(pipeline.Options{
		OutDir:      outDir,
		Entry:       entry,
		ManifestSrc: manifestSrc,
		ArchivePath: archivePath,
	}, bundler, appLogger.Named("package"))

	res, err := p.Run(ctx)
	if err != nil {
		stop()
		appLogger.Sync()
		os.Exit(1)
	}

	appLogger.Info("Deployment package ready",
		zap.String("archive", res.Archive),
		zap.Int("files", len(res.Files)),
	)
}
