package fallback

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/dotsite/internal/metrics"
)

// URLValidator は送信前にURLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ProbeRecorder は疎通確認結果の記録先。
type ProbeRecorder interface {
	RecordImageProbe(result string)
}

// HTTPProber はHEADリクエストで画像URLの疎通を確認するProber。
// 結果はTTL付きでキャッシュし、同一URLへの同時確認は1回にまとめる。
type HTTPProber struct {
	client    *http.Client
	validator URLValidator
	cache     *ttlcache.Cache[string, bool]
	group     singleflight.Group
	timeout   time.Duration
	recorder  ProbeRecorder
	logger    *slog.Logger
}

// NewHTTPProber はHTTPProberを生成する。
// clientにはSSRF対策済みのクライアントを渡すこと。validator・recorderはnil可。
func NewHTTPProber(client *http.Client, validator URLValidator, timeout, ttl time.Duration, recorder ProbeRecorder, logger *slog.Logger) *HTTPProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProber{
		client:    client,
		validator: validator,
		cache: ttlcache.New[string, bool](
			ttlcache.WithTTL[string, bool](ttl),
			ttlcache.WithCapacity[string, bool](10000),
			ttlcache.WithDisableTouchOnHit[string, bool](),
		),
		timeout:  timeout,
		recorder: recorder,
		logger:   logger,
	}
}

// Start は期限切れエントリの削除ループを開始する。Stopまでブロックする。
func (p *HTTPProber) Start() { p.cache.Start() }

// Stop は削除ループを停止する。
func (p *HTTPProber) Stop() { p.cache.Stop() }

// Probe はurlが画像として読み込めるかを返す。
// data: URIは確認せず読み込み可能とみなす。
func (p *HTTPProber) Probe(ctx context.Context, url string) bool {
	url = strings.TrimSpace(url)
	if strings.HasPrefix(url, "data:image/") {
		return true
	}
	if item := p.cache.Get(url); item != nil {
		p.record(metrics.ResultCached)
		return item.Value()
	}

	// 確認は呼び出し元のキャンセルと切り離して最後まで行い、結果をキャッシュする。
	// 呼び出し元が先に終了した場合は待たずにfalseを返す。
	bg := context.WithoutCancel(ctx)
	ch := p.group.DoChan(url, func() (any, error) {
		ok := p.probe(bg, url)
		p.cache.Set(url, ok, ttlcache.DefaultTTL)
		return ok, nil
	})
	var ok bool
	select {
	case res := <-ch:
		ok = res.Val.(bool)
	case <-ctx.Done():
		return false
	}
	if ok {
		p.record(metrics.ResultSuccess)
	} else {
		p.record(metrics.ResultBroken)
	}
	return ok
}

func (p *HTTPProber) probe(ctx context.Context, url string) bool {
	if p.validator != nil {
		if err := p.validator.ValidateURL(url); err != nil {
			p.logger.Debug("画像URLの検証に失敗しました", slog.String("url", url), slog.String("error", err.Error()))
			return false
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodHead, url)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp, err = p.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		p.logger.Debug("画像URLに接続できませんでした", slog.String("url", url), slog.String("error", err.Error()))
		return false
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	ct := resp.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(strings.ToLower(ct), "image/")
}

func (p *HTTPProber) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

func (p *HTTPProber) record(result string) {
	if p.recorder != nil {
		p.recorder.RecordImageProbe(result)
	}
}
