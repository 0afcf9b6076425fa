package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	viper.Set("jwt.refresh_expiry_hours", 168)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	service := NewAuthService(db, nil)

	t.Run("successful registration", func(t *testing.T) {
		req := RegisterRequest{
			Username:      "alice",
			Email:         "Alice@Example.com",
			Password:      "password123",
			InitialAmount: 100,
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Username, "alice@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), req.InitialAmount).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), 1, sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var user models.User
		json.Unmarshal(w.Body.Bytes(), &user)
		assert.Equal(t, 1, user.ID)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, int64(100), user.InitialAmount)
		assert.NotContains(t, w.Body.String(), "password")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username or email", func(t *testing.T) {
		req := RegisterRequest{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "password123",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{Username: "bob", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Contains(t, resp.Details, "Email")
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	service := NewAuthService(db, nil)

	userColumns := []string{"id", "username", "email", "account_id", "initial_amount", "password"}

	t.Run("successful login with username", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, username, email, account_id, initial_amount, password FROM users").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "alice", "alice@example.com", "1234567890", 100, hashedPassword))
		mock.ExpectExec("UPDATE users SET is_active").
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.NotEmpty(t, response.RefreshToken)
		assert.Equal(t, "alice", response.User.Username)
		assert.True(t, response.User.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, email, account_id, initial_amount, password FROM users").
			WithArgs("nobody").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Username: "nobody", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "Invalid credentials", resp.Error)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, username, email, account_id, initial_amount, password FROM users").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "alice", "alice@example.com", "1234567890", 100, hashedPassword))

		body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "wrongpassword"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "Incorrect password", resp.Error)
	})
}

func TestAuthService_Logout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("blacklists token and clears session", func(t *testing.T) {
		token, err := generateJWT(1)
		assert.NoError(t, err)

		redisMock.ExpectSet("blacklist:"+token, "1", 24*time.Hour).SetVal("OK")
		redisMock.ExpectDel("session:1").SetVal(1)

		r := httptest.NewRequest("POST", "/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		r = r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, 1))
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Logout successful")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("second logout still succeeds", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/logout", nil)
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()
	service := NewAuthService(db, nil)

	t.Run("valid refresh token", func(t *testing.T) {
		refreshToken, err := generateRefreshJWT(7)
		assert.NoError(t, err)

		body, _ := json.Marshal(RefreshRequest{Refresh: refreshToken})
		r := httptest.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Refresh(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.NotEmpty(t, resp["token"])

		userID, err := middleware.ValidateToken(resp["token"])
		assert.NoError(t, err)
		assert.Equal(t, 7, userID)
	})

	t.Run("access token rejected", func(t *testing.T) {
		accessToken, err := generateJWT(7)
		assert.NoError(t, err)

		body, _ := json.Marshal(RefreshRequest{Refresh: accessToken})
		r := httptest.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Refresh(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		body, _ := json.Marshal(RefreshRequest{Refresh: "not-a-token"})
		r := httptest.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Refresh(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)
	assert.NotContains(t, hashed, password)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}

func TestGenerateAccountID(t *testing.T) {
	id := generateAccountID()
	assert.Len(t, id, 10)
	for _, c := range id {
		assert.True(t, c >= '0' && c <= '9')
	}
}
