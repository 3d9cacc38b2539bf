package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/bookwise-api/internal/common"
)

var draining atomic.Bool

// SetReady flips the process readiness. The API marks itself not ready while
// shutting down so load balancers stop routing to it.
func SetReady(ready bool) { draining.Store(!ready) }

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Handler exposes liveness and readiness endpoints.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is serving requests.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, report{Status: "ok"})
}

// Ready runs every probe concurrently, each bounded by Timeout.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, report{Status: "shutting_down"})
		return
	}
	checks := h.run(r.Context())
	status, code := "ok", http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status, code = "unavailable", http.StatusServiceUnavailable
			break
		}
	}
	common.JSON(w, code, report{Status: status, Checks: checks})
}

func (h Handler) run(ctx context.Context) map[string]string {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	checks := make(map[string]string, len(names))
	var g errgroup.Group
	for _, name := range names {
		probe := h.Probes[name]
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			result := "ok"
			if err := probe(pctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}
