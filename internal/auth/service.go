package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Session is a freshly issued access/refresh token pair for a user.
type Session struct {
	User             PublicUser
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterInput holds the fields accepted when creating an account.
// Specialty applies to doctors and BirthDate to patients.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Role      Role
	Specialty string
	BirthDate string
}

// UserUpdate holds optional changes to an account. Nil fields are left
// untouched. Role may be supplied but must equal the current role.
type UserUpdate struct {
	Email     *string
	Name      *string
	Password  *string
	Role      *Role
	Specialty *string
	BirthDate *string
}

// ServiceDeps holds the collaborators of a Service.
type ServiceDeps struct {
	Users  UserRepository
	Tokens TokenRepository
	Signer *TokenService
	Hasher *PasswordHasher
	Events EventSink    // optional
	Logger *slog.Logger // optional
}

// Service orchestrates registration, login, refresh and logout.
//
// Store writes that make up a session run on a context detached from the
// request's cancellation, so a client disconnect cannot leave a half-issued
// or half-rotated session behind.
type Service struct {
	users  UserRepository
	tokens TokenRepository
	signer *TokenService
	hasher *PasswordHasher
	events EventSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an auth Service.
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		users:  deps.Users,
		tokens: deps.Tokens,
		signer: deps.Signer,
		hasher: deps.Hasher,
		events: deps.Events,
		logger: deps.Logger,
		now:    time.Now,
	}
	if s.events == nil {
		s.events = nopSink{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Register creates an account with its role side record and issues a
// session for it. A taken email fails with ErrEmailTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	s.emit(ctx, EventRegistered, user)
	return session, nil
}

// CreateUser creates an account on behalf of an administrator. No session
// is issued.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput) (*User, error) {
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.Role)
	s.emit(ctx, EventUserCreated, user)
	return user, nil
}

func (s *Service) createUser(ctx context.Context, in RegisterInput) (*User, error) {
	if !IsValidRole(in.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, in.Role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
	}
	switch in.Role {
	case RoleDoctor:
		user.Doctor = &DoctorProfile{Specialty: in.Specialty}
	case RolePatient:
		user.Patient = &PatientProfile{BirthDate: in.BirthDate}
	}

	if err := s.users.Create(context.WithoutCancel(ctx), user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a session. An unknown email and a
// wrong password both fail with ErrInvalidCredentials after similar work.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.VerifyAbsent(password)
		s.emitFailure(ctx, EventLoginFailed, Event{Email: email, Reason: "unknown_email"})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.emitFailure(ctx, EventLoginFailed, Event{UserID: user.ID, Email: email, Role: user.Role, Reason: "bad_password"})
		return nil, ErrInvalidCredentials
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "user_id", user.ID)
	s.emit(ctx, EventLoginSucceeded, user)
	return session, nil
}

// VerifyRefreshToken validates the envelope of a presented refresh token.
// It does not consult the store; Refresh does that.
func (s *Service) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.signer.VerifyRefreshToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	return claims, nil
}

// Refresh exchanges a stored, unexpired refresh token for a new session.
// The presented token is consumed in the same transaction that stores its
// replacement; once Refresh succeeds the old token can never refresh again.
func (s *Service) Refresh(ctx context.Context, userID, presented string) (*Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		s.rejectRefresh(ctx, userID, "user_missing")
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	session, record, err := s.mint(user)
	if err != nil {
		return nil, err
	}

	err = s.tokens.Rotate(context.WithoutCancel(ctx), userID, HashToken(presented), record)
	if errors.Is(err, ErrInvalidRefreshToken) {
		s.rejectRefresh(ctx, userID, err.Error())
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	s.logger.Info("session refreshed", "user_id", user.ID, "token_id", record.ID)
	s.emit(ctx, EventRefreshed, user)
	return session, nil
}

func (s *Service) rejectRefresh(ctx context.Context, userID, reason string) {
	s.logger.Warn("refresh rejected", "user_id", userID, "reason", reason)
	s.emitFailure(ctx, EventRefreshRejected, Event{UserID: userID, Reason: reason})
}

// Logout deletes the stored refresh token matching userID and presented.
// A missing row is not an error, so Logout is idempotent.
func (s *Service) Logout(ctx context.Context, userID, presented string) error {
	if presented != "" {
		if _, err := s.tokens.DeleteByUserAndHash(context.WithoutCancel(ctx), userID, HashToken(presented)); err != nil {
			return err
		}
	}

	s.logger.Info("logged out", "user_id", userID)
	s.events.Emit(ctx, Event{Type: EventLoggedOut, Outcome: OutcomeSuccess, UserID: userID, At: s.now().UTC()})
	return nil
}

// Authenticate resolves an access token to its user. Every failure wraps
// ErrUnauthenticated; a token for a deleted user also wraps ErrUserNotFound.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.signer.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// GetUser returns the account with id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers returns a page of accounts and the total match count.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	return s.users.List(ctx, filter)
}

// UpdateUser applies upd to the account with id. A Role differing from the
// stored role fails with ErrRoleImmutable. A password change also deletes
// every refresh token the user holds.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Role != nil && *upd.Role != user.Role {
		return nil, ErrRoleImmutable
	}

	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if upd.Specialty != nil && user.Doctor != nil {
		user.Doctor.Specialty = *upd.Specialty
	}
	if upd.BirthDate != nil && user.Patient != nil {
		user.Patient.BirthDate = *upd.BirthDate
	}

	var hash string
	if upd.Password != nil {
		if hash, err = s.hasher.Hash(*upd.Password); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(context.WithoutCancel(ctx), user, hash); err != nil {
		return nil, err
	}

	if hash != "" {
		s.logger.Info("password changed, sessions revoked", "user_id", user.ID)
		s.emit(ctx, EventPasswordChanged, user)
	}

	return user, nil
}

// DeleteUser removes the account with id. An actor cannot delete their own
// account.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDeletion
	}
	return s.users.Delete(context.WithoutCancel(ctx), id)
}

// issueSession mints a token pair for user and stores the refresh record.
func (s *Service) issueSession(ctx context.Context, user *User) (*Session, error) {
	session, record, err := s.mint(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(context.WithoutCancel(ctx), record); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return session, nil
}

// mint signs a new token pair. The refresh record ID is chosen up front so
// the signed token can reference it and be stored in a single write.
func (s *Service) mint(user *User) (*Session, *RefreshToken, error) {
	access, accessExp, err := s.signer.SignAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, err
	}

	recordID := NewTokenID()
	refresh, refreshExp, err := s.signer.SignRefreshToken(user.ID, recordID)
	if err != nil {
		return nil, nil, err
	}

	record := &RefreshToken{
		ID:        recordID,
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		ExpiresAt: refreshExp,
	}
	session := &Session{
		User:             user.Public(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}
	return session, record, nil
}

func (s *Service) emit(ctx context.Context, typ EventType, user *User) {
	s.events.Emit(ctx, Event{
		Type:    typ,
		Outcome: OutcomeSuccess,
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		At:      s.now().UTC(),
	})
}

func (s *Service) emitFailure(ctx context.Context, typ EventType, e Event) {
	e.Type = typ
	e.Outcome = OutcomeFailure
	e.At = s.now().UTC()
	s.events.Emit(ctx, e)
}
