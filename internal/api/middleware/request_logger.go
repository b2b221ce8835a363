package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
)

// RequestLogger はリクエストごとに1行の構造化ログを出力するミドルウェア
// 座席の競合(409)は info、その他の4xxは warn、5xxは error で出力する
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.String("path", req.URL.Path),
				zap.Int("status", res.Status),
				zap.Int64("size", res.Size),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if q := req.URL.RawQuery; q != "" {
				fields = append(fields, zap.String("query", q))
			}
			if caller, ok := c.Get(callerKey).(string); ok {
				fields = append(fields, zap.String("caller", caller))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case err != nil || res.Status >= 500:
				logger.Error("request failed", fields...)
			case res.Status >= 400 && res.Status != 409:
				logger.Warn("request rejected", fields...)
			default:
				logger.Info("request completed", fields...)
			}
			return err
		}
	}
}

// RequestIDMiddleware は X-Request-ID をリクエストとレスポンスの両方に揃える
// クライアントが付与していなければ UUID を採番する
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
				c.Request().Header.Set(echo.HeaderXRequestID, id)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}
