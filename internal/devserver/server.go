package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aranyahq/aranya-go/internal/config"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// contextKey is a private type for request-context values.
type contextKey string

const contextKeyUserID contextKey = "user_id"

// Server serves the backend REST contract over sqlite storage.
type Server struct {
	cfg    config.DevServer
	store  *Store
	issuer *TokenIssuer
	log    zerolog.Logger
	mux    *http.ServeMux
}

// New wires the routes. The caller owns the store's lifecycle.
func New(cfg config.DevServer, store *Store, log zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		issuer: NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL),
		log:    log,
		mux:    http.NewServeMux(),
	}
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.mux.HandleFunc("POST /auth/login/", s.handleLogin)
	s.mux.HandleFunc("POST /auth/register/", s.handleRegister)
	s.mux.HandleFunc("POST /auth/token/refresh/", s.handleRefresh)
	s.mux.HandleFunc("GET /auth/user", s.requireAuth(s.handleCurrentUser))

	s.mux.HandleFunc("GET /journal/", s.requireAuth(s.handleJournalList))
	s.mux.HandleFunc("POST /journal/", s.requireAuth(s.handleJournalCreate))
	s.mux.HandleFunc("PUT /journal/{id}/", s.requireAuth(s.handleJournalUpdate))
	s.mux.HandleFunc("DELETE /journal/{id}/", s.requireAuth(s.handleJournalDelete))

	s.mux.HandleFunc("GET /knowledge-hub/", s.handleHubs)
	s.mux.HandleFunc("GET /articles", s.handleArticles)
	s.mux.HandleFunc("GET /discovery_questions", s.handleQuestions)
	s.mux.HandleFunc("POST /user_responses_api/", s.requireAuth(s.handleResponses))
}

// Handler returns the server wrapped with CORS for browser clients.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(s.mux)
}

// requireAuth validates the bearer token and injects the user ID into the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.errorJSON(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			s.errorJSON(w, http.StatusUnauthorized, "Invalid Authorization header")
			return
		}

		userID, err := s.issuer.ParseUserID(parts[1])
		if err != nil {
			s.errorJSON(w, http.StatusUnauthorized, "Token is invalid or expired")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
		next(w, r.WithContext(ctx))
	}
}

func userIDFrom(r *http.Request) string {
	userID, _ := r.Context().Value(contextKeyUserID).(string)
	return userID
}

func profileJSON(user *User) map[string]any {
	displayName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	return map[string]any{
		"username":     user.Username,
		"email":        user.Email,
		"display_name": displayName,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.store.UserByLogin(r.Context(), body.Username)
	if err != nil {
		s.errorJSON(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		s.errorJSON(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	access, err := s.issuer.IssueAccessToken(user.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	refresh, err := NewRefreshToken()
	if err != nil {
		s.internalError(w, err)
		return
	}
	if err := s.store.SaveRefreshToken(r.Context(), refresh, user.ID, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		s.internalError(w, err)
		return
	}

	s.log.Info().Str("username", user.Username).Msg("user signed in")
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":   access,
		"refresh": refresh,
		"user":    profileJSON(user),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		Gender          string `json:"gender"`
		YearOfBirth     int    `json:"year_of_birth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		s.errorJSON(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	if body.Password != body.ConfirmPassword {
		s.errorJSON(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(w, err)
		return
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: string(passwordHash),
		FirstName:    body.FirstName,
		LastName:     body.LastName,
		Gender:       body.Gender,
		YearOfBirth:  body.YearOfBirth,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			s.errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, err)
		return
	}

	s.log.Info().Str("username", user.Username).Msg("user registered")
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Registration successful. You can now log in.",
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh == "" {
		s.errorJSON(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	userID, err := s.store.RefreshTokenUser(r.Context(), body.Refresh, time.Now())
	if err != nil {
		s.errorJSON(w, http.StatusUnauthorized, "Refresh token is invalid or expired")
		return
	}

	access, err := s.issuer.IssueAccessToken(userID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.log.Debug().Str("user_id", userID).Msg("access token refreshed")
	s.writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), userIDFrom(r))
	if err != nil {
		s.errorJSON(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	s.writeJSON(w, http.StatusOK, profileJSON(user))
}

func (s *Server) handleJournalList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.EntriesByUser(r.Context(), userIDFrom(r), r.URL.Query().Get("search"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleJournalCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mood    string `json:"mood"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		s.errorJSON(w, http.StatusBadRequest, "mood and content are required")
		return
	}

	entry, err := s.store.CreateEntry(r.Context(), userIDFrom(r), body.Mood, body.Content)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleJournalUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.errorJSON(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	var body struct {
		Mood    string `json:"mood"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := s.store.UpdateEntry(r.Context(), userIDFrom(r), id, body.Mood, body.Content)
	if errors.Is(err, ErrEntryNotFound) {
		s.errorJSON(w, http.StatusNotFound, "Journal entry not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleJournalDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.errorJSON(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	err = s.store.DeleteEntry(r.Context(), userIDFrom(r), id)
	if errors.Is(err, ErrEntryNotFound) {
		s.errorJSON(w, http.StatusNotFound, "Journal entry not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHubs(w http.ResponseWriter, r *http.Request) {
	hubs, err := s.store.Hubs(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hubs)
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	var hubID int64
	if raw := r.URL.Query().Get("k_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.errorJSON(w, http.StatusBadRequest, "invalid k_id")
			return
		}
		hubID = parsed
	}

	articles, err := s.store.Articles(r.Context(), hubID, r.URL.Query().Get("search"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.store.Questions(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, questions)
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Responses []Response `json:"responses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Responses) == 0 {
		s.errorJSON(w, http.StatusBadRequest, "responses are required")
		return
	}

	if err := s.store.SaveResponses(r.Context(), userIDFrom(r), body.Responses); err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"message": "Responses recorded"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.log.Error().Err(err).Msg("encoding response failed")
		}
	}
}

func (s *Server) errorJSON(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("internal error")
	s.errorJSON(w, http.StatusInternalServerError, "An internal server error occurred")
}
