package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/sonido-mood/cmd"
	"github.com/RyanBlaney/sonido-mood/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx, app.New(), os.Args[1:])
	stop()
	os.Exit(code)
}
