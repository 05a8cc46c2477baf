package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/farmchef/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	PostCreateRate  rate.Limit    // 投稿作成のレート（req/sec）
	PostCreateBurst int           // 投稿作成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は1分あたりのリクエスト数をrate.Limitに変換する。
func PerMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、投稿作成 10 req/min（いずれも利用者ごと）。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     PerMinute(120),
		GeneralBurst:    120,
		PostCreateRate:  PerMinute(10),
		PostCreateBurst: 10,
		CleanupInterval: 5 * time.Minute,
	}
}

// principalLimiter は利用者ごとのレートリミッターとアクセス時刻を保持する。
type principalLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同一設定のリミッターを利用者IDごとに管理する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*principalLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*principalLimiter),
	}
}

// get は利用者のリミッターを取得または作成する。
func (s *limiterSet) get(principalID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	pl, ok := s.limiters[principalID]
	if !ok {
		pl = &principalLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[principalID] = pl
	}
	pl.lastAccess = now
	return pl.limiter
}

// len は管理中のエントリ数を返す。
func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict は最終アクセスがttlより古いエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pl := range s.limiters {
		if now.Sub(pl.lastAccess) > ttl {
			delete(s.limiters, id)
		}
	}
}

// middleware は認証主体ごとにレート制限を行うミドルウェアを返す。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !s.get(principal.ID, time.Now()).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("principal_id", principal.ID),
					slog.String("limit_type", s.name),
				)
				writeRateLimitResponse(w, s.limit)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter は利用者ごとのレート制限を管理する。
// API全般と投稿作成の2種類のリミッターは独立に動作する。
type RateLimiter struct {
	config     RateLimiterConfig
	general    *limiterSet
	postCreate *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:     config,
		general:    newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		postCreate: newLimiterSet("post_create", config.PostCreateRate, config.PostCreateBurst),
		stopCh:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// セッションミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// PostCreateMiddleware は投稿作成専用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) PostCreateMiddleware() func(next http.Handler) http.Handler {
	return rl.postCreate.middleware()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// PostCreateLimiterCount は現在管理されている投稿作成リミッターのエントリ数を返す。
func (rl *RateLimiter) PostCreateLimiterCount() int {
	return rl.postCreate.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.postCreate.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, rateLimitedError())
}
