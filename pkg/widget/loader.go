package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/embedmeet/embedmeet/pkg/log"
)

// LoadError reports a failure to make the widget factory available for a
// server domain. Retryable: a later EnsureLoaded for the same or a different
// domain starts a fresh load.
type LoadError struct {
	Domain string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load widget script from %s: %v", e.Domain, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ScriptURL returns the location of the widget script on a server.
func ScriptURL(domain string) string {
	return "https://" + domain + "/external_api.js"
}

// Loader makes the widget factory available for a server domain exactly once.
// Concurrent calls for the same domain share a single in-flight load; a
// failed load is forgotten so the next call retries cleanly.
type Loader struct {
	env   Environment
	grace time.Duration // wait after script load before re-checking the factory

	mu       sync.Mutex
	inflight map[string]*pendingLoad
}

type pendingLoad struct {
	done chan struct{}
	err  error
}

// NewLoader creates a script loader over the given page environment.
func NewLoader(env Environment, grace time.Duration) *Loader {
	return &Loader{
		env:      env,
		grace:    grace,
		inflight: make(map[string]*pendingLoad),
	}
}

// EnsureLoaded resolves once the widget factory for domain is present on the
// environment, injecting the script if needed. The factory may register
// asynchronously after script execution, so a short grace period passes
// between script load and the availability re-check.
func (l *Loader) EnsureLoaded(ctx context.Context, domain string) error {
	for {
		if l.env.FactoryPresent(domain) {
			log.Debugf("Widget factory already present for %s", domain)
			return nil
		}

		l.mu.Lock()
		p, waiting := l.inflight[domain]
		if !waiting {
			p = &pendingLoad{done: make(chan struct{})}
			l.inflight[domain] = p
			l.mu.Unlock()

			p.err = l.load(ctx, domain)

			l.mu.Lock()
			delete(l.inflight, domain)
			l.mu.Unlock()
			close(p.done)

			return p.err
		}
		l.mu.Unlock()

		select {
		case <-p.done:
			if !isContextErr(p.err) {
				return p.err
			}
			// The load's owner was torn down mid-flight; its cancellation
			// says nothing about this caller, so go around and load again.
			if err := ctx.Err(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (l *Loader) load(ctx context.Context, domain string) error {
	url := ScriptURL(domain)
	log.Infof("Injecting widget script: %s", url)

	if err := l.env.InjectScript(url); err != nil {
		return &LoadError{Domain: domain, Err: err}
	}

	// The script registers the factory asynchronously after execution.
	timer := time.NewTimer(l.grace)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	if !l.env.FactoryPresent(domain) {
		return &LoadError{Domain: domain, Err: fmt.Errorf("factory still absent %s after script load", l.grace)}
	}

	log.Infof("Widget factory confirmed for %s", domain)
	return nil
}
