package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avoronov/jwt-auth/internal/common"
	"github.com/avoronov/jwt-auth/internal/dbx"
	"github.com/avoronov/jwt-auth/internal/logging"
	"github.com/avoronov/jwt-auth/internal/server/auth"
	"github.com/avoronov/jwt-auth/internal/server/models"
	refreshtokensrepo "github.com/avoronov/jwt-auth/internal/server/repositories/refreshtokens"
	usersrepo "github.com/avoronov/jwt-auth/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newAuthService(t *testing.T, db *sql.DB, rm *fakeRepoManager) *AuthService {
	t.Helper()
	issuer := auth.NewTokenIssuer([]byte("k"), time.Hour, 2*time.Hour)
	return NewAuthService(db, rm, issuer, auth.NewPasswordHasher(4), testLogger())
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.NewPasswordHasher(4).Hash(password)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	return h
}

type fakeUsersRepo struct {
	getByEmailOut *models.User
	getByEmailErr error

	getByIDOut *models.User
	getByIDErr error

	createErr error
	created   []*models.User
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = int64(len(f.created) + 1)
	f.created = append(f.created, u)
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	return f.getByEmailOut, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	return f.getByIDOut, nil
}

type fakeRefreshRepo struct {
	getOut string
	getErr error

	createErr   error
	createCalls []string

	updateErr   error
	updateCalls []string
}

func (f *fakeRefreshRepo) Get(ctx context.Context, userID int64) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.getOut, nil
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID int64, token string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createCalls = append(f.createCalls, token)
	return nil
}

func (f *fakeRefreshRepo) Update(ctx context.Context, userID int64, token string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls = append(f.updateCalls, token)
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository {
	return m.r
}

// --- Login ---

func TestLogin_Success_ReplacesStoredToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailOut: &models.User{ID: 1, Email: "a@x.com", PasswordHash: hashOf(t, "pw1")}},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	pair, err := s.Login(context.Background(), "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair, got %+v", pair)
	}
	if len(rm.r.updateCalls) != 1 || rm.r.updateCalls[0] != pair.RefreshToken {
		t.Fatalf("expected one Update with the new token, got %v", rm.r.updateCalls)
	}
	if len(rm.r.createCalls) != 0 {
		t.Fatalf("Create must not be called when a row exists, got %v", rm.r.createCalls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

func TestLogin_FirstLogin_FallsBackToInsert(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailOut: &models.User{ID: 1, Email: "a@x.com", PasswordHash: hashOf(t, "pw1")}},
		r: &fakeRefreshRepo{updateErr: common.ErrRefreshTokenNotFound},
	}
	s := newAuthService(t, db, rm)

	pair, err := s.Login(context.Background(), "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if len(rm.r.createCalls) != 1 || rm.r.createCalls[0] != pair.RefreshToken {
		t.Fatalf("expected fallback Create with the new token, got %v", rm.r.createCalls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailErr: common.ErrUserNotFound},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	_, err := s.Login(context.Background(), "ghost@x.com", "pw1")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

func TestLogin_WrongPassword_NoWrites(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailOut: &models.User{ID: 1, Email: "a@x.com", PasswordHash: hashOf(t, "pw1")}},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	_, err := s.Login(context.Background(), "a@x.com", "wrong")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("want ErrInvalidPassword, got %v", err)
	}
	if len(rm.r.updateCalls) != 0 || len(rm.r.createCalls) != 0 {
		t.Fatalf("no token writes expected on wrong password")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

func TestLogin_UnexpectedErrorPropagates(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("db down")
	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailErr: boom},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	_, err := s.Login(context.Background(), "a@x.com", "pw1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected the storage error to propagate, got %v", err)
	}
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	// lookup scope rolls back on the expected not-found, insert scope commits
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailErr: common.ErrUserNotFound},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	user, err := s.Register(context.Background(), "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID != 1 || user.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !auth.NewPasswordHasher(4).Check("pw1", user.PasswordHash) {
		t.Fatalf("stored hash must verify the original password")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailOut: &models.User{ID: 1, Email: "a@x.com"}},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	_, err := s.Register(context.Background(), "a@x.com", "pw1")
	if !errors.Is(err, ErrUserAlreadyRegistered) {
		t.Fatalf("want ErrUserAlreadyRegistered, got %v", err)
	}
	if len(rm.u.created) != 0 {
		t.Fatalf("no insert expected for a duplicate registration")
	}
}

func TestRegister_RaceLosesToUniqueIndex(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailErr: common.ErrUserNotFound, createErr: common.ErrUserAlreadyExists},
		r: &fakeRefreshRepo{},
	}
	s := newAuthService(t, db, rm)

	_, err := s.Register(context.Background(), "a@x.com", "pw1")
	if !errors.Is(err, ErrUserAlreadyRegistered) {
		t.Fatalf("want ErrUserAlreadyRegistered, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

// --- CheckRefreshToken ---

func TestCheckRefreshToken_Match(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{getOut: "tok-1"}}
	s := newAuthService(t, db, rm)

	if err := s.CheckRefreshToken(context.Background(), 1, "tok-1"); err != nil {
		t.Fatalf("CheckRefreshToken error: %v", err)
	}
}

func TestCheckRefreshToken_Mismatch(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{getOut: "tok-1"}}
	s := newAuthService(t, db, rm)

	err := s.CheckRefreshToken(context.Background(), 1, "tok-2")
	if !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("mismatch must look like not-found, got %v", err)
	}
}

func TestCheckRefreshToken_Absent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{getErr: common.ErrRefreshTokenNotFound}}
	s := newAuthService(t, db, rm)

	err := s.CheckRefreshToken(context.Background(), 1, "tok-1")
	if !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("want ErrRefreshTokenNotFound, got %v", err)
	}
}

// --- RefreshTokens ---

func TestRefreshTokens_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{}}
	s := newAuthService(t, db, rm)

	pair, err := s.RefreshTokens(context.Background(), 1)
	if err != nil {
		t.Fatalf("RefreshTokens error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair")
	}
	if len(rm.r.updateCalls) != 1 || rm.r.updateCalls[0] != pair.RefreshToken {
		t.Fatalf("expected Update with the rotated token, got %v", rm.r.updateCalls)
	}
}

func TestRefreshTokens_NoStoredToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{updateErr: common.ErrRefreshTokenNotFound}}
	s := newAuthService(t, db, rm)

	_, err := s.RefreshTokens(context.Background(), 1)
	if !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("want ErrRefreshTokenNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tx expectations: %v", err)
	}
}

// --- UserService ---

func TestGetUser_Found(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{u: &fakeUsersRepo{getByIDOut: &models.User{ID: 1, Email: "a@x.com"}}, r: &fakeRefreshRepo{}}
	s := NewUserService(db, rm, testLogger())

	user, err := s.GetUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if user.ID != 1 || user.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{u: &fakeUsersRepo{getByIDErr: common.ErrUserNotFound}, r: &fakeRefreshRepo{}}
	s := NewUserService(db, rm, testLogger())

	_, err := s.GetUser(context.Background(), 99)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}
