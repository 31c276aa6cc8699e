// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService は投稿された画像URLをサーバー側から確認する際のSSRF対策。
type SSRFGuardService interface {
	// NewSafeClient は接続先IPを検証するHTTPクライアントを生成する。
	// リダイレクトは最大maxRedirects回まで追従し、各リダイレクト先もValidateURLで検証する。
	NewSafeClient(timeout time.Duration, maxRedirects int) *http.Client

	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error
}

// Policy は外部へのリクエストを許可する条件。
type Policy struct {
	Schemes      []string
	Ports        []int
	BlockedHosts []string
	BlockedCIDRs []string
}

// DefaultPolicy は画像の疎通確認用の既定ポリシーを返す。
// CIDRはプライベート(RFC 1918)、ループバック、リンクローカル(メタデータIPを含む)、
// CGNAT、カレントネットワークとIPv6の対応範囲。
func DefaultPolicy() Policy {
	return Policy{
		Schemes:      []string{"http", "https"},
		Ports:        []int{80, 443},
		BlockedHosts: []string{"localhost", "metadata.google.internal"},
		BlockedCIDRs: []string{
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
			"127.0.0.0/8",
			"169.254.0.0/16",
			"100.64.0.0/10",
			"0.0.0.0/8",
			"::1/128",
			"fe80::/10",
			"fc00::/7",
		},
	}
}

// GuardOption はssrfGuardの設定を変更する。
type GuardOption func(*Policy)

// WithPolicy はポリシー全体を差し替える。
func WithPolicy(p Policy) GuardOption {
	return func(dst *Policy) { *dst = p }
}

type ssrfGuard struct {
	policy   Policy
	networks []*net.IPNet
}

// NewSSRFGuard はSSRFGuardServiceを生成する。不正なCIDRはプログラムの誤りとしてpanicする。
func NewSSRFGuard(opts ...GuardOption) *ssrfGuard {
	policy := DefaultPolicy()
	for _, opt := range opts {
		opt(&policy)
	}
	return &ssrfGuard{policy: policy, networks: mustParseNetworks(policy.BlockedCIDRs)}
}

func mustParseNetworks(cidrs []string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("security: invalid CIDR %q: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// NewSafeClient はsafeurlのクライアントを返す。
// safeurlはDialerのControlフックでDNS解決後のIPを検証するため、DNS再バインディングも防げる。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, maxRedirects int) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.policy.Schemes...).
		SetAllowedPorts(g.policy.Ports...).
		Build()

	client := safeurl.Client(config).Client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return g.ValidateURL(req.URL.String())
	}
	return client
}

// ValidateURL はスキーム、ポート、ホスト名、IPリテラルを検証する。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(g.policy.Schemes, scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, g.policy.Schemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || !slices.Contains(g.policy.Ports, port) {
			return fmt.Errorf("disallowed port: %s", p)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if g.blockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip)
		}
		return nil
	}
	if g.blockedHost(host) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func (g *ssrfGuard) blockedIP(ip net.IP) bool {
	for _, network := range g.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHost はサブドメインと末尾のドットも含めて一致を判定する。
func (g *ssrfGuard) blockedHost(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range g.policy.BlockedHosts {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}
