package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/copperbear/storefront/internal/constants"
	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/otel"
)

// Handler is notified on session edges. OnSignIn fires once per
// guest-to-authenticated transition, OnSignOut once per sign-out.
type Handler struct {
	OnSignIn  func(c context.Context, userID uuid.UUID, token string)
	OnSignOut func(c context.Context)
}

// Manager owns the agent's authentication state. The UI hands it a bearer
// token issued by the accounts service; the manager verifies it and drives
// the registered handlers on state edges only, never on repeated sign-ins
// of the same user.
type Manager struct {
	mu            sync.Mutex
	secretKey     string
	userID        uuid.UUID
	token         string
	authenticated bool
	handlers      []Handler
}

func NewManager(secretKey string) *Manager {
	return &Manager{secretKey: secretKey}
}

func (m *Manager) Register(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) Current() (uuid.UUID, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.token, m.authenticated
}

func (m *Manager) SignIn(c context.Context, rawToken string) (uuid.UUID, error) {
	c, span := otel.Tracer.Start(c, "Manager SignIn")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager SignIn").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "verifying token").Logger()
	logger.Info().Msg("verifying token")
	userID, err := m.verifyToken(c, rawToken)
	if err != nil {
		err = fmt.Errorf("failed verifying token with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, err
	}
	logger = logger.With().Str(log.KeyUserID, userID.String()).Logger()
	logger.Info().Msg("verified token")

	m.mu.Lock()
	if m.authenticated && m.userID == userID {
		m.token = rawToken
		m.mu.Unlock()
		logger.Info().Msg("session already authenticated for user, refreshed token only")
		return userID, nil
	}
	alreadySignedIn := m.authenticated
	m.userID = userID
	m.token = rawToken
	m.authenticated = true
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	if alreadySignedIn {
		logger = logger.With().Str(log.KeyProcess, "switching user").Logger()
		logger.Info().Msg("signing out previous user before sign-in edge")
		for _, h := range handlers {
			if h.OnSignOut != nil {
				h.OnSignOut(c)
			}
		}
	}

	logger = logger.With().Str(log.KeyProcess, "notifying sign-in handlers").Logger()
	logger.Info().Msg("notifying sign-in handlers")
	for _, h := range handlers {
		if h.OnSignIn != nil {
			h.OnSignIn(c, userID, rawToken)
		}
	}
	logger.Info().Msg("notified sign-in handlers")

	return userID, nil
}

func (m *Manager) SignOut(c context.Context) {
	c, span := otel.Tracer.Start(c, "Manager SignOut")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager SignOut").
		Logger()

	m.mu.Lock()
	if !m.authenticated {
		m.mu.Unlock()
		logger.Info().Msg("no authenticated session, sign-out is a no-op")
		return
	}
	m.userID = uuid.Nil
	m.token = ""
	m.authenticated = false
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	logger = logger.With().Str(log.KeyProcess, "notifying sign-out handlers").Logger()
	logger.Info().Msg("notifying sign-out handlers")
	for _, h := range handlers {
		if h.OnSignOut != nil {
			h.OnSignOut(c)
		}
	}
	logger.Info().Msg("notified sign-out handlers")
}

func (m *Manager) verifyToken(c context.Context, token string) (uuid.UUID, error) {
	c, span := otel.Tracer.Start(c, "Manager verifyToken")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager verifyToken").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "parsing claims").Logger()
	logger.Trace().Msg("parsing claims")
	jwtToken, err := jwt.ParseWithClaims(token,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return []byte(m.secretKey), nil
		},
		jwt.WithAudience(constants.AudienceStore),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(constants.IssuerAccounts),
	)
	if err != nil {
		err = fmt.Errorf("failed parsing claims with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, err
	}
	logger.Trace().Msg("parsed claims")

	if !jwtToken.Valid {
		err = fmt.Errorf("failed validating token with error=%w", inErrors.ErrTokenInvalid)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, inErrors.ErrTokenInvalid
	}

	logger = logger.With().Str(log.KeyProcess, "parsing subject").Logger()
	logger.Trace().Msg("parsing subject")
	subject, err := jwtToken.Claims.GetSubject()
	if err != nil {
		err = fmt.Errorf("failed getting subject from token with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, err
	}
	if subject == "" {
		otel.RecordError(inErrors.ErrEmptySubject, span)
		logger.Error().Err(inErrors.ErrEmptySubject).Msg(inErrors.ErrEmptySubject.Error())
		return uuid.Nil, inErrors.ErrEmptySubject
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		err = fmt.Errorf("failed parsing subject=%s with error=%w", subject, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, err
	}
	logger = logger.With().Str(log.KeyUserID, userID.String()).Logger()
	logger.Trace().Msg("parsed subject as userId")

	return userID, nil
}
