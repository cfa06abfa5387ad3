package middleware

import (
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger は1リクエスト1行の構造化ログと、HTTPメトリクスを記録する。
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// echo.HTTPError などをレスポンスに変換してからステータスを読む
				c.Error(err)
			}

			latency := time.Since(start)
			status := c.Response().Status
			// ルートのパターンで集計（/cart/:id など）
			path := c.Path()
			if path == "" {
				path = "unknown"
			}

			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(latency.Seconds())

			ownerKind := "none"
			if owner, ok := c.Get(CtxOwnerKey).(model.Owner); ok {
				ownerKind = string(owner.Kind())
			}

			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("owner_kind", ownerKind),
			}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}

			return nil
		}
	}
}
