package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskpost/database"
	"taskpost/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuthDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-for-auth")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(testDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	prev := database.DB
	database.DB = testDB
	t.Cleanup(func() { database.DB = prev })
	return testDB
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestRegisterLoginRefresh(t *testing.T) {
	testDB := setupAuthDB(t)

	w := postJSON(t, RegisterHandler, "/v1/auth/register",
		`{"name":"Dana","email":"dana@example.com","password":"hunter22","confirm_password":"hunter22"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var user models.User
	if err := testDB.Where("email = ?", "dana@example.com").First(&user).Error; err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if user.Password == "hunter22" {
		t.Error("password stored in plaintext")
	}

	// duplicate email
	w = postJSON(t, RegisterHandler, "/v1/auth/register",
		`{"name":"Dana","email":"dana@example.com","password":"hunter22","confirm_password":"hunter22"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", w.Code)
	}

	// wrong password
	w = postJSON(t, LoginHandler, "/v1/auth/login",
		`{"email":"dana@example.com","password":"wrongpass"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", w.Code)
	}

	w = postJSON(t, LoginHandler, "/v1/auth/login",
		`{"email":"dana@example.com","password":"hunter22"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var loginResp struct {
		Success bool `json:"success"`
		Data    struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.Data.AccessToken == "" || loginResp.Data.RefreshToken == "" {
		t.Fatalf("missing tokens in %s", w.Body.String())
	}

	// rotate the refresh token
	w = postJSON(t, RefreshHandler, "/v1/auth/refresh",
		fmt.Sprintf(`{"refresh_token":"%s"}`, loginResp.Data.RefreshToken))
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var refreshResp struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &refreshResp); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if refreshResp.Data.RefreshToken == loginResp.Data.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// the old refresh token is revoked after rotation
	w = postJSON(t, RefreshHandler, "/v1/auth/refresh",
		fmt.Sprintf(`{"refresh_token":"%s"}`, loginResp.Data.RefreshToken))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	setupAuthDB(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad email", `{"name":"Dana","email":"not-an-email","password":"hunter22","confirm_password":"hunter22"}`},
		{"short password", `{"name":"Dana","email":"dana@example.com","password":"abc","confirm_password":"abc"}`},
		{"mismatched confirm", `{"name":"Dana","email":"dana@example.com","password":"hunter22","confirm_password":"hunter23"}`},
		{"missing name", `{"email":"dana@example.com","password":"hunter22","confirm_password":"hunter22"}`},
	}
	for _, tc := range cases {
		w := postJSON(t, RegisterHandler, "/v1/auth/register", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}
