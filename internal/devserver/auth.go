package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type userKey struct{}

func userFrom(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, validationIssue{Loc: []string{"body"}, Msg: "invalid JSON body", Type: "value_error.json"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	var issues []validationIssue
	if !strings.Contains(req.Email, "@") {
		issues = append(issues, validationIssue{Loc: []string{"body", "email"}, Msg: "value is not a valid email address", Type: "value_error.email"})
	}
	if req.Password == "" {
		issues = append(issues, validationIssue{Loc: []string{"body", "password"}, Msg: "field required", Type: "value_error.missing"})
	}
	if len(issues) > 0 {
		writeValidation(w, issues...)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Password cannot be used")
		return
	}
	u, err := s.repo.CreateUser(r.Context(), req.Email, hash)
	if errors.Is(err, ErrEmailTaken) {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		slog.Error("create user", "email", req.Email, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not create user")
		return
	}
	slog.Info("user registered", "id", u.ID, "email", u.Email)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeValidation(w, validationIssue{Loc: []string{"body"}, Msg: "invalid form body", Type: "value_error"})
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if email == "" || password == "" {
		writeValidation(w, validationIssue{Loc: []string{"body", "username"}, Msg: "field required", Type: "value_error.missing"})
		return
	}

	u, err := s.repo.UserByEmail(r.Context(), email)
	if err != nil || !u.IsActive || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	tok, err := s.issueToken(u.Email, time.Now())
	if err != nil {
		slog.Error("sign token", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.opts.TokenTTL.Seconds()),
	})
}

func (s *Server) issueToken(email string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.JWTSecret)
}

func (s *Server) parseToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.opts.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// requireUser resolves the bearer token to a user and rejects the request
// with 401 otherwise.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		email, err := s.parseToken(raw)
		if err != nil {
			slog.Debug("reject token", "err", err)
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		u, err := s.repo.UserByEmail(r.Context(), email)
		if err != nil || !u.IsActive {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}
