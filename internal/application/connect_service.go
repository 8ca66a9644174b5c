package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/ports"
)

// authStateTTL bounds how long a consent round-trip may take.
const authStateTTL = 10 * time.Minute

// ConnectService drives the OAuth2 connect flow against Visma.net and
// answers status and connectivity questions about the link.
type ConnectService struct {
	auth   ports.AuthManager
	states ports.AuthStateStore
	visma  ports.VismaClient
	logger zerolog.Logger
}

// NewConnectService wires a connect service.
func NewConnectService(auth ports.AuthManager, states ports.AuthStateStore, visma ports.VismaClient, logger zerolog.Logger) *ConnectService {
	return &ConnectService{
		auth:   auth,
		states: states,
		visma:  visma,
		logger: logger.With().Str("service", "connect").Logger(),
	}
}

// BeginAuthorization mints a consent URL and parks its CSRF state in
// the state store until the callback arrives.
func (s *ConnectService) BeginAuthorization(ctx context.Context) (string, error) {
	url, state, err := s.auth.AuthorizationURL("")
	if err != nil {
		return "", fmt.Errorf("build authorization url: %w", err)
	}
	if err := s.states.SaveAuthState(ctx, state, authStateTTL); err != nil {
		return "", fmt.Errorf("save auth state: %w", err)
	}
	s.logger.Info().Msg("authorization flow started")
	return url, nil
}

// CompleteAuthorization validates the callback state and exchanges the
// code for a session. The state is consumed either way, so a replayed
// callback fails.
func (s *ConnectService) CompleteAuthorization(ctx context.Context, state, code string) error {
	if state == "" || code == "" {
		return &domain.AuthError{Message: "callback is missing state or code"}
	}
	known, err := s.states.ConsumeAuthState(ctx, state)
	if err != nil {
		return fmt.Errorf("consume auth state: %w", err)
	}
	if !known {
		return &domain.AuthError{Message: "unknown or expired authorization state"}
	}
	if err := s.auth.ExchangeCode(ctx, code); err != nil {
		return err
	}
	s.logger.Info().Msg("visma connection established")
	return nil
}

// Disconnect drops the OAuth session. Idempotent.
func (s *ConnectService) Disconnect() {
	s.auth.Clear()
	s.logger.Info().Msg("visma connection cleared")
}

// Status reports the current session state without touching the remote.
func (s *ConnectService) Status() domain.AuthStatus {
	return s.auth.Status()
}

// TestConnection proves the link end to end by fetching the company
// record through the authenticated client.
func (s *ConnectService) TestConnection(ctx context.Context) (map[string]any, error) {
	company, err := s.visma.CompanyInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch company info: %w", err)
	}
	return company, nil
}

// VATCategories lists the VAT categories configured in the company.
func (s *ConnectService) VATCategories(ctx context.Context) ([]domain.VATCategory, error) {
	categories, err := s.visma.VATCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vat categories: %w", err)
	}
	return categories, nil
}

// ItemClasses lists the item classes configured in the company.
func (s *ConnectService) ItemClasses(ctx context.Context) ([]domain.ItemClass, error) {
	classes, err := s.visma.ItemClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch item classes: %w", err)
	}
	return classes, nil
}
