package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
)

// ServeEnv carries the environment overrides of serve mode.
type ServeEnv struct {
	// Addr overrides the listen address from the command line.
	Addr string `envconfig:"ADDR"`
	// WebhookToken, when set, is required as a bearer token on hook calls.
	WebhookToken string `envconfig:"WEBHOOK_TOKEN"`
}

// pushHook is the JSON body of a push notification.
type pushHook struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

// serve runs the webhook server until ctx is canceled. Each push event
// starts a pipeline run; a newer push for the same branch supersedes the
// in-flight run for that branch.
func (a *App) serve(ctx context.Context) error {
	var env ServeEnv
	if err := envconfig.Process("conveyor", &env); err != nil {
		return fmt.Errorf("reading serve environment: %w", err)
	}
	addr := a.cfg.ListenAddr
	if env.Addr != "" {
		addr = env.Addr
	}

	runs := &branchRuns{active: make(map[string]*runHandle)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", a.handleHealthz)
	r.Post("/hooks/push", a.handlePush(ctx, runs, env.WebhookToken))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("🩺 Webhook server starting.", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		runs.cancelAll()
		runs.wait()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// handlePush accepts a push notification and schedules a pipeline run.
func (a *App) handlePush(runCtx context.Context, runs *branchRuns, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var hook pushHook
		if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if hook.Branch == "" {
			http.Error(w, "branch is required", http.StatusBadRequest)
			return
		}

		event := config.Event{Branch: hook.Branch, Commit: hook.Commit}
		a.logger.Info("Push hook accepted.", "branch", event.Branch, "commit", event.Commit)
		runs.start(runCtx, event.Branch, func(ctx context.Context) {
			ctx = ctxlog.WithLogger(ctx, a.logger.With("branch", event.Branch))
			if err := a.runPipelines(ctx, event); err != nil {
				a.logger.Error("Pipeline run failed.", "branch", event.Branch, "error", err)
			}
		})

		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "accepted")
	}
}

// branchRuns tracks the in-flight run per branch so that a newer push can
// supersede an older one.
type branchRuns struct {
	mu     sync.Mutex
	active map[string]*runHandle
	wg     sync.WaitGroup
}

type runHandle struct {
	cancel context.CancelFunc
}

// start cancels the branch's current run, if any, and launches fn in its
// place.
func (b *branchRuns) start(parent context.Context, branch string, fn func(context.Context)) {
	b.mu.Lock()
	if h, ok := b.active[branch]; ok {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	handle := &runHandle{cancel: cancel}
	b.active[branch] = handle
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			if b.active[branch] == handle {
				delete(b.active, branch)
			}
			b.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	}()
}

// cancelAll cancels every in-flight run.
func (b *branchRuns) cancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for branch, h := range b.active {
		h.cancel()
		delete(b.active, branch)
	}
}

// wait blocks until every launched run has returned.
func (b *branchRuns) wait() {
	b.wg.Wait()
}
