package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"herbal-store/internal/csrf"
	"herbal-store/internal/fingerprint"
	"herbal-store/internal/lockout"
	"herbal-store/internal/observability"
	"herbal-store/internal/tokens"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service          *Service
	tokens           *tokens.Manager
	cookies          Cookies
	validate         *validator.Validate
	refreshThreshold int
	logger           *observability.Logger
}

func NewHandler(service *Service, manager *tokens.Manager, cookies Cookies, refreshThresholdMinutes int, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handler{
		service:          service,
		tokens:           manager,
		cookies:          cookies,
		validate:         validator.New(),
		refreshThreshold: refreshThresholdMinutes,
		logger:           logger,
	}
}

// Register mounts the auth routes. Refresh and logout mutate session state
// and sit behind the CSRF guard; login sits behind the per-IP limiter.
func (h *Handler) Register(mux *http.ServeMux, guard *csrf.Service, limiter *LoginRateLimiter) {
	login := http.Handler(http.HandlerFunc(h.Login))
	if limiter != nil {
		login = limiter.Middleware(login)
	}

	mux.Handle("POST /auth/login", login)
	mux.Handle("POST /auth/refresh", guard.Middleware(SessionID, http.HandlerFunc(h.Refresh)))
	mux.Handle("POST /auth/logout", guard.Middleware(SessionID, http.HandlerFunc(h.Logout)))
	mux.HandleFunc("GET /auth/csrf", h.StartSession)
	mux.HandleFunc("GET /auth/lockout", h.Lockout)
	mux.HandleFunc("GET /auth/remembered-email", h.RememberedEmail)
	mux.Handle("GET /auth/session", Middleware(h.tokens, h.refreshThreshold, http.HandlerFunc(h.CurrentSession)))
}

type deviceRequest struct {
	UserAgent        string `json:"user_agent" validate:"max=512"`
	ScreenResolution string `json:"screen_resolution" validate:"max=32"`
	Timezone         string `json:"timezone" validate:"max=64"`
	Platform         string `json:"platform" validate:"max=64"`
	Language         string `json:"language" validate:"max=35"`
}

type loginRequest struct {
	Email      string        `json:"email" validate:"required,email,max=254"`
	Password   string        `json:"password" validate:"required,min=6,max=200"`
	RememberMe bool          `json:"remember_me"`
	Device     deviceRequest `json:"device"`
}

type refreshRequest struct {
	RefreshToken string        `json:"refresh_token" validate:"required"`
	Device       deviceRequest `json:"device"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}

	browserID := h.cookies.BrowserID(w, r)
	session, err := h.service.Login(r.Context(), LoginInput{
		BrowserID:  browserID,
		ClientIP:   observability.ClientIP(r),
		Email:      body.Email,
		Password:   body.Password,
		RememberMe: body.RememberMe,
		Device:     deviceAttributes(body.Device, r),
	})
	if err != nil {
		var warning RateLimitWarning
		if errors.As(err, &warning) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":              "invalid credentials",
				"attempts_remaining": warning.AttemptsRemaining,
			})
			return
		}
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var lockedErr ErrLoginLocked
		if errors.As(err, &lockedErr) {
			writeLocked(w, lockedErr)
			return
		}

		h.logger.Error("login_error", map[string]any{"error": err.Error()})
		observability.CaptureError(err, map[string]any{"route": "login"})
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	h.cookies.SetSession(w, session.SessionID)
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decode(w, r, &body) {
		return
	}

	pair, err := h.service.Refresh(r.Context(), body.RefreshToken, deviceAttributes(body.Device, r))
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		observability.CaptureError(err, map[string]any{"route": "refresh"})
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), SessionID(r)); err != nil {
		observability.CaptureError(err, map[string]any{"route": "logout"})
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	h.cookies.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	sessionID, token, err := h.service.StartSession(r.Context())
	if err != nil {
		observability.CaptureError(err, map[string]any{"route": "csrf"})
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	h.cookies.SetSession(w, sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) Lockout(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.LockoutStatus(r.Context(), h.cookies.BrowserID(w, r))
	if err != nil {
		observability.CaptureError(err, map[string]any{"route": "lockout"})
		writeError(w, http.StatusInternalServerError, "failed to read lockout status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) RememberedEmail(w http.ResponseWriter, r *http.Request) {
	email, err := h.service.RememberedEmail(r.Context(), h.cookies.BrowserID(w, r))
	if err != nil {
		observability.CaptureError(err, map[string]any{"route": "remembered_email"})
		writeError(w, http.StatusInternalServerError, "failed to read remembered email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email})
}

func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	payload, ok := PayloadFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": Identity{
			ID:    payload.Subject,
			Email: payload.Email,
			Role:  payload.Role,
		},
		"session_id":     payload.SessionID,
		"expires_in":     int64(h.tokens.TimeUntilExpiration(payload.ExpiresAt) / time.Second),
		"should_refresh": w.Header().Get(RefreshHintHeader) == "true",
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeError(w, http.StatusBadRequest, strings.ToLower(fieldErrs[0].Field())+" is invalid")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}

	return true
}

func deviceAttributes(d deviceRequest, r *http.Request) fingerprint.Attributes {
	userAgent := d.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	language := d.Language
	if language == "" {
		language = strings.TrimSpace(strings.Split(r.Header.Get("Accept-Language"), ",")[0])
	}

	return fingerprint.Attributes{
		UserAgent:        userAgent,
		ScreenResolution: d.ScreenResolution,
		Timezone:         d.Timezone,
		Platform:         d.Platform,
		Language:         language,
	}
}

func writeLocked(w http.ResponseWriter, lockedErr ErrLoginLocked) {
	retryAfter := int((lockedErr.Remaining + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":          "account locked",
		"locked_until":   lockedErr.Until.UTC(),
		"time_remaining": lockout.FormatRemaining(lockedErr.Remaining),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
