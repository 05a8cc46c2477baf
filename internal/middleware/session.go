// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/farmchef/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	adminContextKey     = contextKey("is_admin")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証主体と管理者フラグをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil || session.Principal.ID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithPrincipal(r.Context(), session.Principal, session.IsAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin はセッション発行時に管理者と判定された利用者のみを通すミドルウェア。
// セッションミドルウェアの後に配置する。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := PrincipalFromContext(r.Context())
		if err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !IsAdminFromContext(r.Context()) {
			slog.Warn("admin access denied",
				slog.String("principal_id", principal.ID),
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromContext はリクエストコンテキストから認証主体を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || principal.ID == "" {
		return model.Principal{}, fmt.Errorf("principal not found in context")
	}
	return principal, nil
}

// IsAdminFromContext はリクエストコンテキストの管理者フラグを返す。
func IsAdminFromContext(ctx context.Context) bool {
	isAdmin, _ := ctx.Value(adminContextKey).(bool)
	return isAdmin
}

// ContextWithPrincipal はコンテキストに認証主体と管理者フラグを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
// ログミドルウェアのホルダーがあれば認証主体IDを記録する。
func ContextWithPrincipal(ctx context.Context, principal model.Principal, isAdmin bool) context.Context {
	if holder, ok := ctx.Value(principalIDHolderKey).(*principalIDHolder); ok {
		holder.id = principal.ID
	}
	ctx = context.WithValue(ctx, principalContextKey, principal)
	return context.WithValue(ctx, adminContextKey, isAdmin)
}
