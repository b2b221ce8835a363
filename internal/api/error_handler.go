package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// echo.HTTPError 以外のエラーはドメインエラーからステータスを決める
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := statusOf(err)

	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{Error: message, Code: code}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, http.StatusText(he.Code)
	}

	switch {
	case errors.Is(err, reservation.ErrTransactionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, reservation.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, reservation.ErrAlreadyTerminal):
		return http.StatusConflict, err.Error()
	case errors.Is(err, reservation.ErrStorageFault):
		return http.StatusServiceUnavailable, "一時的に処理できません"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)
	}
	return http.StatusInternalServerError, "内部サーバーエラー"
}
