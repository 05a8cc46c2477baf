package security

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strings"
)

// LinkValidatorService は利用者が入力したURLとメールアドレスの検証機能を定義する。
// プロフィールのウェブサイトと投稿の外部リンクの保存前に使用される。
type LinkValidatorService interface {
	// ValidateLink はURLがhttp/httpsスキームで、空でないホストを持つことを検証する。
	// 閲覧者を内部ネットワークへ誘導しないよう、プライベートIPとlocalhostを拒否する。
	ValidateLink(rawURL string) error

	// ValidateEmail はメールアドレスの書式を検証する。表示名付きの形式は拒否する。
	ValidateEmail(address string) error
}

// allowedSchemes は許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はリンク先として拒否するネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927)
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// linkValidator はLinkValidatorServiceの実装。
type linkValidator struct{}

// NewLinkValidator はLinkValidatorServiceの新しいインスタンスを生成する。
func NewLinkValidator() *linkValidator {
	return &linkValidator{}
}

// ValidateLink はURLを静的に検証する。DNS解決は行わない。
func (v *linkValidator) ValidateLink(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// ValidateEmail はメールアドレスの書式を検証する。
func (v *linkValidator) ValidateEmail(address string) error {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	if parsed.Address != address || parsed.Name != "" {
		return fmt.Errorf("invalid email address: %s", address)
	}
	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
