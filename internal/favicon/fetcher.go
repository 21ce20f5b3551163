// Package favicon はストーリーのリンク先ホストのfavicon取得を提供する。
// フィード一覧でホスト名の横に表示するための補助機能であり、
// 取得失敗は空の結果として扱い、一覧表示を妨げない。
package favicon

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// maxFaviconSize はfaviconの最大サイズ（2MB）。
const maxFaviconSize = 2 * 1024 * 1024

// maxPageSize はfavicon探索で読み込むHTMLの最大サイズ（1MB）。
const maxPageSize = 1 * 1024 * 1024

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
// ストーリーのリンク先はユーザー入力由来の信頼できないホストであるため、
// favicon取得は必ずこのガードを経由する。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// cacheEntry はホストごとのfaviconキャッシュエントリ。
// 取得失敗もネガティブキャッシュとして保持し、TTL内の再試行を抑止する。
type cacheEntry struct {
	data      []byte
	mimeType  string
	fetchedAt time.Time
}

// Fetcher はホストごとのfavicon取得とインメモリキャッシュを提供する。
type Fetcher struct {
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	timeout   time.Duration
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, logger *slog.Logger, timeout, ttl time.Duration) *Fetcher {
	return &Fetcher{
		ssrfGuard: ssrfGuard,
		logger:    logger,
		timeout:   timeout,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

// Get はホストのfaviconを返す。
// TTL内のキャッシュがあればそれを返し、なければ取得してキャッシュする。
// 取得できない場合はnilデータと空MIMEを返す（エラーは返さない）。
func (f *Fetcher) Get(ctx context.Context, host string) ([]byte, string) {
	if host == "" {
		return nil, ""
	}

	f.mu.Lock()
	entry, ok := f.cache[host]
	f.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < f.ttl {
		return entry.data, entry.mimeType
	}

	data, mimeType := f.fetch(ctx, host)

	f.mu.Lock()
	f.cache[host] = cacheEntry{data: data, mimeType: mimeType, fetchedAt: time.Now()}
	f.mu.Unlock()

	return data, mimeType
}

// fetch はホストのfaviconを取得する。
// まずトップページの<link rel="icon">を探索し、見つからなければ
// /favicon.ico を試行する。
func (f *Fetcher) fetch(ctx context.Context, host string) ([]byte, string) {
	siteURL := "https://" + host + "/"

	if err := f.ssrfGuard.ValidateURL(siteURL); err != nil {
		f.logger.Warn("favicon取得: SSRFブロック", "host", host, "error", err)
		return nil, ""
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout)

	// トップページの<link rel="icon">からfavicon URLを探索
	if iconURL := f.discoverIconURL(ctx, client, siteURL); iconURL != "" {
		if data, mimeType := f.fetchImage(ctx, client, iconURL); data != nil {
			return data, mimeType
		}
	}

	// フォールバック: /favicon.ico
	return f.fetchImage(ctx, client, "https://"+host+"/favicon.ico")
}

// discoverIconURL はトップページのHTMLから<link rel="icon">のURLを探索する。
// 見つからない場合は空文字列を返す。
func (f *Fetcher) discoverIconURL(ctx context.Context, client *http.Client, siteURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "Storyman/1.0 Story Client")

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Warn("favicon探索: トップページの取得に失敗しました", "url", siteURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return ""
	}

	return parseIconLinkFromHTML(body, siteURL)
}

// fetchImage は指定URLから画像を取得する。
// 画像でないレスポンスやサイズ超過はnilとして扱う。
func (f *Fetcher) fetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string) {
	if err := f.ssrfGuard.ValidateURL(imageURL); err != nil {
		f.logger.Warn("favicon取得: SSRFブロック", "url", imageURL, "error", err)
		return nil, ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, ""
	}
	req.Header.Set("User-Agent", "Storyman/1.0 Story Client")

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Warn("favicon取得: HTTPリクエスト失敗", "url", imageURL, "error", err)
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFaviconSize+1))
	if err != nil {
		return nil, ""
	}
	if int64(len(body)) > maxFaviconSize {
		f.logger.Warn("favicon取得: サイズ超過", "url", imageURL, "size", len(body))
		return nil, ""
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		return nil, ""
	}

	return body, mimeType
}

// parseIconLinkFromHTML はHTMLのheadタグから<link rel="icon">のURLを解析する。
// 相対URLはbaseURLを基準に絶対URLに解決される。
func parseIconLinkFromHTML(htmlBody []byte, baseURL string) string {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}

			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return ""
			}

			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			// link要素の属性を解析
			var rel, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			// rel="icon" または rel="shortcut icon" のリンクのみ対象
			if href == "" || !isIconRel(rel) {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return baseU.ResolveReference(ref).String()

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return ""
			}
		}
	}
}

// isIconRel はrel属性値がfaviconを指すかを判定する。
func isIconRel(rel string) bool {
	for _, part := range strings.Fields(rel) {
		if part == "icon" {
			return true
		}
	}
	return false
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	imageTypes := []string{
		"image/png",
		"image/jpeg",
		"image/gif",
		"image/svg+xml",
		"image/x-icon",
		"image/vnd.microsoft.icon",
		"image/webp",
		"image/bmp",
		"image/ico",
	}
	for _, t := range imageTypes {
		if mimeType == t {
			return true
		}
	}
	return false
}
