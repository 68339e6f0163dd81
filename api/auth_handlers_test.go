package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var testIssuer = NewTokenIssuer([]byte("test-secret"), "")

func TestRegisterUser(t *testing.T) {
	store := newMemStore()
	c, rec := newTestContext(http.MethodPost, "/auth/register", `{"email":"U1@Example.com","password":"hunter2","name":"Ada"}`)

	if err := registerUser(store, testIssuer, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp authResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.User.Email != "u1@example.com" {
		t.Fatalf("expected normalized email, got %q", resp.User.Email)
	}
	if resp.User.UserID == "" || resp.User.Name != "Ada" {
		t.Fatalf("unexpected user summary: %#v", resp.User)
	}

	stored, err := store.GetUserByEmail(context.Background(), "u1@example.com")
	if err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if stored.PasswordHash == "hunter2" {
		t.Fatal("password stored in clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter2")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	auth := NewLocalAuth([]byte("test-secret"), "")
	identity, err := auth.IdentityFromAuthHeader("Bearer " + resp.Token)
	if err != nil {
		t.Fatalf("issued token failed verification: %v", err)
	}
	if identity.UserID != resp.User.UserID {
		t.Fatalf("token subject %q does not match user %q", identity.UserID, resp.User.UserID)
	}
}

func TestRegisterUserMissingFields(t *testing.T) {
	bodies := map[string]string{
		"no email":    `{"password":"hunter2"}`,
		"no password": `{"email":"u1@example.com"}`,
		"empty":       `{}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			c, rec := newTestContext(http.MethodPost, "/auth/register", body)

			if err := registerUser(store, testIssuer, log.New())(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if len(store.users) != 0 {
				t.Fatal("expected no user to be persisted")
			}
		})
	}
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	store := newMemStore()

	c, rec := newTestContext(http.MethodPost, "/auth/register", `{"email":"u1@example.com","password":"hunter2"}`)
	if err := registerUser(store, testIssuer, log.New())(c); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("first register: expected 200 got %d", rec.Code)
	}

	c, rec = newTestContext(http.MethodPost, "/auth/register", `{"email":"u1@example.com","password":"other"}`)
	if err := registerUser(store, testIssuer, log.New())(c); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 on duplicate email, got %d", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error != "email already registered" {
		t.Fatalf("unexpected error body: %q", resp.Error)
	}
}

func TestLoginUser(t *testing.T) {
	store := newMemStore()
	c, _ := newTestContext(http.MethodPost, "/auth/register", `{"email":"u1@example.com","password":"hunter2"}`)
	if err := registerUser(store, testIssuer, log.New())(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"u1@example.com","password":"hunter2"}`)
	if err := loginUser(store, testIssuer, log.New())(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp authResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Token == "" || resp.User.Email != "u1@example.com" {
		t.Fatalf("unexpected login response: %#v", resp)
	}
}

func TestLoginUserBadCredentials(t *testing.T) {
	store := newMemStore()
	c, _ := newTestContext(http.MethodPost, "/auth/register", `{"email":"u1@example.com","password":"hunter2"}`)
	if err := registerUser(store, testIssuer, log.New())(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := map[string]string{
		"wrong password": `{"email":"u1@example.com","password":"wrong"}`,
		"unknown email":  `{"email":"nobody@example.com","password":"hunter2"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, rec := newTestContext(http.MethodPost, "/auth/login", body)
			if err := loginUser(store, testIssuer, log.New())(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401 got %d", rec.Code)
			}
			var resp errorResponse
			if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Error != "invalid credentials" {
				t.Fatalf("expected uniform error body, got %q", resp.Error)
			}
		})
	}
}
