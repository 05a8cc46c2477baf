// Package auth はOAuth認証フロー、セッション管理、管理者判定を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/repository"
)

// DefaultAdminEmail は管理者メールアドレスのデフォルト値。
const DefaultAdminEmail = "italiacrafts@gmail.com"

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、認証主体を返す。
	ExchangeCode(ctx context.Context, code string) (*model.Principal, error)
}

// Capabilities は認証主体に付与される権限を判定する。
type Capabilities struct {
	// AdminEmail は管理者として扱う唯一のメールアドレス。
	AdminEmail string
}

// IsAdministrator は認証主体のメールアドレスが管理者メールアドレスと一致するかを返す。
// 大文字小文字を区別しない。
func (c Capabilities) IsAdministrator(principal model.Principal) bool {
	admin := strings.TrimSpace(c.AdminEmail)
	if admin == "" || principal.Email == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(principal.Email), admin)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	Capabilities  Capabilities
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 管理者判定はこの時点で1回だけ行い、セッションに保持する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	principal, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	session, err := s.createSession(ctx, *principal)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("principal_id", principal.ID),
		slog.Bool("is_admin", session.IsAdmin),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentSession はセッションIDに対応する有効なセッションを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}
	return session, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, principal model.Principal) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		Principal: principal,
		IsAdmin:   s.config.Capabilities.IsAdministrator(principal),
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
