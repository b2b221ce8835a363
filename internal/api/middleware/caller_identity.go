package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// HeaderUserID は認証なしで呼び出し元を伝えるヘッダー
const HeaderUserID = "X-User-ID"

// GuestCaller は呼び出し元が分からない場合の識別子
const GuestCaller = "guest"

const callerKey = "caller_id"

// CallerIdentity は呼び出し元を特定してコンテキストに保存するミドルウェア
// secret が設定されている場合は Authorization: Bearer の HS256 トークンを検証し、
// id または sub クレームを呼び出し元とする。不正なトークンは 401 を返す。
// secret が空の場合は X-User-ID ヘッダーをそのまま使う。
func CallerIdentity(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := GuestCaller
			if secret == "" {
				if id := strings.TrimSpace(c.Request().Header.Get(HeaderUserID)); id != "" {
					caller = id
				}
				SetCallerID(c, caller)
				return next(c)
			}

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth != "" {
				id, err := parseCaller(auth, secret)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "トークンが無効です")
				}
				caller = id
			}
			SetCallerID(c, caller)
			return next(c)
		}
	}
}

// SetCallerID は呼び出し元をコンテキストに保存する
func SetCallerID(c echo.Context, id string) {
	c.Set(callerKey, id)
}

// CallerID はミドルウェアが保存した呼び出し元を返す
func CallerID(c echo.Context) string {
	if id, ok := c.Get(callerKey).(string); ok && id != "" {
		return id
	}
	return GuestCaller
}

func parseCaller(header, secret string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", jwt.ErrTokenMalformed
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", jwt.ErrTokenInvalidClaims
}
