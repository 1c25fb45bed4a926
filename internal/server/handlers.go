package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/fusion/internal/auth"
	"github.com/mesh-intelligence/fusion/internal/uow"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

const (
	defaultListLimit = 100
	tokenTypeBearer  = "bearer"
)

// userResponse is the public view of a registered user.
type userResponse struct {
	ID       types.UserID `json:"id"`
	Email    string       `json:"email"`
	Username string       `json:"username"`
	FullName *string      `json:"full_name"`
	IsActive bool         `json:"is_active"`
}

func newUserResponse(u *types.User) userResponse {
	r := userResponse{ID: u.ID, Email: u.Email, Username: u.Username, IsActive: u.IsActive}
	if u.FullName != "" {
		name := u.FullName
		r.FullName = &name
	}
	return r
}

type meResponse struct {
	ID       types.UserID `json:"id"`
	Username string       `json:"username"`
	Email    string       `json:"email"`
	IsActive bool         `json:"is_active"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondValidation(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
		"error":   "Validation error",
		"details": strings.TrimPrefix(err.Error(), auth.ErrValidation.Error()+": "),
	})
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondError(w, http.StatusUnauthorized, msg)
}

// respondStorageError answers a failed storage call: 503 for transient
// failures, 500 otherwise.
func (s *Server) respondStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, types.ErrUnavailable) {
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("storage unavailable")
		respondError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("storage failure")
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": s.settings.Environment,
		"database":    s.engine.Probe(r.Context()),
		"app_name":    s.settings.App.Name,
		"app_version": s.settings.App.Version,
		"mode":        s.settings.Mode,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	unit := unitFrom(r)

	var reg auth.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "Validation error",
			"details": "request body must be a JSON object",
		})
		return
	}

	user, err := s.auth.Register(r.Context(), unit, reg)
	switch {
	case errors.Is(err, types.ErrDuplicateUser):
		respondError(w, http.StatusBadRequest, "Email or username already registered")
		return
	case errors.Is(err, auth.ErrValidation):
		respondValidation(w, err)
		return
	case err != nil:
		s.respondStorageError(w, r, err)
		return
	}
	if err := unit.Commit(); err != nil {
		s.respondStorageError(w, r, err)
		return
	}

	s.log.Info().Str("username", user.Username).Str("id", user.ID.String()).Msg("user registered")
	respondJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	unit := unitFrom(r)

	req, err := readLogin(r)
	if err != nil {
		respondValidation(w, err)
		return
	}

	user, err := s.auth.Authenticate(r.Context(), unit, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		respondUnauthorized(w, "Incorrect username or password")
		return
	case errors.Is(err, auth.ErrInactiveUser):
		respondError(w, http.StatusForbidden, "User account is inactive")
		return
	case err != nil:
		s.respondStorageError(w, r, err)
		return
	}

	token, err := s.auth.CreateAccessToken(user.Username, 0)
	if err != nil {
		s.log.Error().Err(err).Msg("sign access token")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

// readLogin accepts the OAuth2 password form or a JSON body.
func readLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("request body must be a JSON object")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, errors.New("malformed form body")
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}
	if req.Username == "" || req.Password == "" {
		return req, errors.New("username and password are required")
	}
	return req, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticated(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, meResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		IsActive: user.IsActive,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticated(w, r); !ok {
		return
	}

	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		respondValidation(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		respondValidation(w, err)
		return
	}

	users, err := unitFrom(r).List(r.Context(), skip, limit)
	if err != nil {
		s.respondStorageError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, newUserResponse(&users[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// authenticated resolves the bearer token to a user, answering 401 itself
// when it cannot.
func (s *Server) authenticated(w http.ResponseWriter, r *http.Request) (*types.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		respondUnauthorized(w, "Not authenticated")
		return nil, false
	}
	user, err := s.auth.CurrentUser(r.Context(), unitFrom(r), token)
	if errors.Is(err, auth.ErrInvalidToken) {
		respondUnauthorized(w, "Could not validate credentials")
		return nil, false
	}
	if err != nil {
		s.respondStorageError(w, r, err)
		return nil, false
	}
	return user, true
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// unitFrom returns the unit of work installed by the unitOfWork middleware.
func unitFrom(r *http.Request) types.UnitOfWork {
	unit, ok := uow.FromContext(r.Context())
	if !ok {
		panic("server: handler reached without a unit of work")
	}
	return unit
}
