// Command treebeard-demo is a small instrumented HTTP service showing the
// intended wiring: configure from the environment, initialize once, wrap
// handlers with the middleware, and shut down gracefully.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	treebeard "github.com/treebeardhq/treebeard-go"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

func main() {
	cfg, err := treebeard.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read treebeard configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = "treebeard-demo"
	}

	core, err := treebeard.Init(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize treebeard: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		treebeard.Register(ctx, User{ID: "u-1042", Email: "demo@example.com", Plan: "free"})
		treebeard.Info(ctx, "saying hello", treebeard.Fields{"greeting": "hello"})

		// Background work inherits the request's trace scope.
		if tc, ok := treebeard.TraceContextFrom(ctx); ok {
			treebeard.RunAsync(context.Background(), tc.Child("audit-write"), func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				treebeard.Debug(ctx, "audit record written")
				return nil
			})
		}

		fmt.Fprintln(w, "hello")
	})

	srv := &http.Server{
		Addr:    ":8080",
		Handler: treebeard.Middleware(mux),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			treebeard.Error(context.Background(), "server stopped", treebeard.Fields{"error": err.Error()})
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = core.Shutdown(ctx)
}
