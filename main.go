package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shandysiswandi/otpgate/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	<-application.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Stop(ctx)
}
