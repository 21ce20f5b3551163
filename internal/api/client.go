// Package api はリモートストーリー共有サービスのHTTPクライアントを提供する。
// ストーリーの取得・投稿・削除、アカウント登録・ログイン、
// お気に入りの追加・削除のエンドポイント呼び出しを含む。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hitoshi/storyman/internal/model"
)

const (
	// userAgent は全リクエストに付与するUser-Agentヘッダー。
	userAgent = "Storyman/1.0 Story Client"
	// maxResponseSize はレスポンスボディの最大サイズ（5MB）。
	maxResponseSize = 5 * 1024 * 1024
	// maxErrorDetailLen はエラーメッセージに含めるレスポンス断片の最大長。
	maxErrorDetailLen = 200
)

// MetricsRecorder はAPI呼び出しメトリクスの記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordAPIRequest(operation string, statusCode int, duration time.Duration)
	RecordBreakerStateChange(from, to string)
}

// ClientConfig はClientの設定。
type ClientConfig struct {
	BaseURL   string        // 例: https://hack-or-snooze-v3.herokuapp.com
	Timeout   time.Duration // 1リクエストのタイムアウト
	RateLimit int           // 自主規制レート（req/sec）
	RateBurst int           // バーストサイズ
}

// Client はストーリー共有サービスAPIのクライアント。
// 外部サービスへの呼び出しをレートリミッターで自主規制し、
// サーキットブレーカーで障害時の連続呼び出しを遮断する。
// トークンは不透明な文字列として扱い、中身を解釈しない。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    MetricsRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsにnilを渡した場合、メトリクスは記録しない。
func NewClient(cfg ClientConfig, logger *slog.Logger, metrics MetricsRecorder) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		metrics:    metrics,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "story-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if c.metrics != nil {
				c.metrics.RecordBreakerStateChange(from.String(), to.String())
			}
		},
	})

	return c
}

// apiResult はブレーカー内部を通過するレスポンスの要約。
type apiResult struct {
	statusCode int
	body       []byte
}

// do はJSONリクエストを送信し、ステータスコードとレスポンスボディを返す。
// トランスポート障害と5xxはサーキットブレーカーの失敗としてカウントされ、
// model.NewNetworkError / model.NewServiceError にマップされる。
// 4xxはブレーカーの成功として扱い、呼び出し元がステータスに応じてマップする。
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, reqBody any) (int, []byte, error) {
	start := time.Now()

	// 外部サービスへの自主規制レート制限
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("レート制限の待機が中断されました: %w", err)
	}

	// リクエストURL構築
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	// リクエストボディのエンコード
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", uuid.New().String())
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// ブレーカー経由でリクエスト実行。
	// トランスポート障害と5xxのみを失敗としてカウントする。
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, fmt.Errorf("HTTPリクエストに失敗しました: %w", model.NewNetworkError(doErr.Error()))
		}
		defer resp.Body.Close()

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if readErr != nil {
			return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", model.NewNetworkError(readErr.Error()))
		}

		if resp.StatusCode >= 500 {
			return apiResult{statusCode: resp.StatusCode, body: respBody},
				model.NewServiceError(resp.StatusCode, errorDetail(respBody))
		}

		return apiResult{statusCode: resp.StatusCode, body: respBody}, nil
	})

	duration := time.Since(start)

	if err != nil {
		// ブレーカー開放中は即座に失敗する（リクエストは送信されない）
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("サーキットブレーカーが開いています: %w", model.NewNetworkError("circuit breaker open"))
		}

		statusCode := 0
		if res, ok := result.(apiResult); ok {
			statusCode = res.statusCode
		}

		c.logger.Error("APIリクエストに失敗しました",
			slog.String("operation", operation),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", statusCode),
			slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
			slog.String("error", err.Error()),
		)
		if c.metrics != nil {
			c.metrics.RecordAPIRequest(operation, statusCode, duration)
		}
		return statusCode, nil, err
	}

	res := result.(apiResult)

	c.logger.Info("APIリクエスト完了",
		slog.String("operation", operation),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", res.statusCode),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
	)
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(operation, res.statusCode, duration)
	}

	return res.statusCode, res.body, nil
}

// decode はレスポンスボディをJSONデコードする。
func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// errorDetail はエラーレスポンスのボディからメッセージ断片を取り出す。
// サービスは {"error": {"message": "..."}} 形式を返すことが多いが、
// 形式が異なる場合は生のボディ断片を返す。
func errorDetail(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	detail := string(body)
	if len(detail) > maxErrorDetailLen {
		detail = detail[:maxErrorDetailLen]
	}
	return detail
}
