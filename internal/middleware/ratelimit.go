package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	SubmitRate      rate.Limit    // フォーム送信のレート（req/sec）
	SubmitBurst     int           // フォーム送信のバーストサイズ
	RefreshRate     rate.Limit    // 学習ウィジェット再生成のレート（req/sec）
	RefreshBurst    int           // 学習ウィジェット再生成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// フォーム送信 submitPerMinute req/min、再生成 10 req/min（クライアントごと）。
func DefaultRateLimiterConfig(submitPerMinute int) RateLimiterConfig {
	if submitPerMinute <= 0 {
		submitPerMinute = 30
	}
	return RateLimiterConfig{
		SubmitRate:      rate.Limit(float64(submitPerMinute) / 60.0),
		SubmitBurst:     submitPerMinute,
		RefreshRate:     rate.Limit(10.0 / 60.0),
		RefreshBurst:    10,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同じ設定のリミッターをクライアントキーごとに保持する。
type limiterSet struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, limiters: make(map[string]*clientLimiter)}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl, ok := s.limiters[key]; ok {
		cl.lastAccess = time.Now()
		return cl.limiter
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &clientLimiter{limiter: l, lastAccess: time.Now()}
	return l
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// prune は最終アクセス時刻がttlを超えたエントリを削除する。
func (s *limiterSet) prune(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はクライアントごとのレート制限を管理する。
// フォーム送信と学習ウィジェット再生成の2種類を独立に制限する。
// クライアントはログイン済みならユーザーID、未ログインならリモートIPで識別する。
type RateLimiter struct {
	config  RateLimiterConfig
	submit  *limiterSet
	refresh *limiterSet
	logger  *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		submit:  newLimiterSet(config.SubmitRate, config.SubmitBurst),
		refresh: newLimiterSet(config.RefreshRate, config.RefreshBurst),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// SubmitMiddleware はフォーム送信のレート制限ミドルウェアを返す。
func (rl *RateLimiter) SubmitMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.submit, "submit")
}

// RefreshMiddleware は学習ウィジェット再生成のレート制限ミドルウェアを返す。
func (rl *RateLimiter) RefreshMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.refresh, "refresh")
}

// SubmitLimiterCount は現在管理されているフォーム送信リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) SubmitLimiterCount() int { return rl.submit.len() }

// RefreshLimiterCount は現在管理されている再生成リミッターのエントリ数を返す。
func (rl *RateLimiter) RefreshLimiterCount() int { return rl.refresh.len() }

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !set.get(key).Allow() {
				writeRateLimitResponse(w, set.limit)
				rl.logger.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("limit_type", limitType),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey はレート制限の単位となるキーを返す。
func clientKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.submit.prune(now, ttl)
	rl.refresh.prune(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	http.Error(w, "Too many requests. Please wait a moment and try again.", http.StatusTooManyRequests)
}
