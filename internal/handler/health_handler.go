package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout は依存先1件あたりの疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// HealthChecker は依存先の疎通確認インターフェース。
// *sql.DB はこのインターフェースを満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthCheckerFunc は関数をHealthCheckerとして扱うアダプタ。
type HealthCheckerFunc func(ctx context.Context) error

// PingContext はfを呼び出す。
func (f HealthCheckerFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler は全依存先の疎通を確認するハンドラーを返す。
// GET /health
// 1件でも失敗した場合は503を返す。
func NewHealthHandler(checkers map[string]HealthChecker) http.Handler {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := checkers[name].PingContext(ctx)
			cancel()

			if err != nil {
				slog.Error("health check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		writeJSON(w, status, resp)
	})
}
