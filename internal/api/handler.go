package api

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notes-bin/promptgallery/internal/auth"
	"github.com/notes-bin/promptgallery/internal/config"
	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/generator"
	"github.com/notes-bin/promptgallery/internal/repository"
	"github.com/notes-bin/promptgallery/internal/service"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	config            *config.Config
	auth              *auth.Auth
	images            service.ImageService
	profiles          service.ProfileService
	checks            map[string]HealthCheck
	generationLimiter *clientLimiter
}

func NewHandler(config *config.Config, auth *auth.Auth, images service.ImageService, profiles service.ProfileService, checks map[string]HealthCheck) *Handler {
	return &Handler{
		config:            config,
		auth:              auth,
		images:            images,
		profiles:          profiles,
		checks:            checks,
		generationLimiter: newClientLimiter(config.GenerationRateLimit.Requests, config.GenerationRateLimit.Duration),
	}
}

func SetupRouter(config *config.Config, h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, http.StatusNotFound, "Page not found.")
	})
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(config.RateLimit.Requests, config.RateLimit.Duration))
		r.Use(h.SessionMiddleware)

		r.Get("/", h.Home)
		r.With(h.GenerationRateLimit).Post("/", h.SubmitPrompt)
		r.Get("/gallery/", h.Gallery)
		r.Get("/images/{id}", h.GetImage)

		r.Group(func(r chi.Router) {
			r.Use(h.RedirectAuthenticated)
			r.Get("/login/", h.LoginPage)
			r.Post("/login/", h.Login)
			r.Get("/register/", h.RegisterPage)
			r.Post("/register/", h.Register)
		})
		r.Get("/logout/", h.Logout)
		r.Post("/logout/", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/profile/", h.Profile)
			r.Get("/profile/picture/", h.ProfilePicture)
			r.Get("/profile/edit/", h.EditProfilePage)
			r.Post("/profile/edit/", h.EditProfile)
		})
	})

	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			slog.Error("Health check failed", "dependency", name, "error", err)
			respondError(w, http.StatusServiceUnavailable, name+" unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "home.html", &pageData{
		Title: "Generate",
		Form:  map[string]string{"is_public": "on"},
	})
}

// isPublicFromForm reads the checkbox. Without the hidden marker field the
// form did not render the checkbox, so the default applies.
func isPublicFromForm(r *http.Request) bool {
	value := strings.ToLower(r.PostFormValue("is_public"))
	if r.PostFormValue("is_public_present") == "" && value == "" {
		return true
	}
	switch value {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func (h *Handler) SubmitPrompt(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Malformed form data.")
		return
	}
	prompt := r.PostFormValue("prompt")
	isPublic := isPublicFromForm(r)

	_, err := h.images.Submit(r.Context(), viewerID(r), prompt, isPublic)
	var vErr *form.ValidationError
	var genErr *generator.Error
	switch {
	case err == nil:
		redirect(w, r, "/gallery/", "Image generated successfully!")
	case errors.As(err, &vErr):
		checked := ""
		if isPublic {
			checked = "on"
		}
		h.render(w, r, http.StatusBadRequest, "home.html", &pageData{
			Title:  "Generate",
			Errors: vErr,
			Form:   map[string]string{"prompt": prompt, "is_public": checked},
		})
	case errors.As(err, &genErr):
		slog.Warn("Image generation failed", "provider", genErr.Provider, "error", genErr.Message)
		h.renderError(w, r, http.StatusBadGateway, genErr.Error())
	case errors.Is(err, auth.ErrNoSession):
		http.Redirect(w, r, "/login/?next=/", http.StatusSeeOther)
	default:
		slog.Error("Failed to submit prompt", "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Something went wrong while saving your image.")
	}
}

func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = service.DefaultGalleryLimit
	}
	if limit > service.MaxGalleryLimit {
		limit = service.MaxGalleryLimit
	}

	images, err := h.images.Gallery(r.Context(), viewerID(r), offset, limit)
	if err != nil {
		slog.Error("Failed to load gallery", "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Could not load the gallery.")
		return
	}
	popular, err := h.images.Popular(r.Context())
	if err != nil {
		slog.Warn("Failed to load popular images", "error", err)
	}

	prev := offset - limit
	if prev < 0 {
		prev = 0
	}
	h.render(w, r, http.StatusOK, "gallery.html", &pageData{
		Title:      "Gallery",
		Images:     images,
		Popular:    popular,
		HasPrev:    offset > 0,
		PrevOffset: prev,
		HasNext:    len(images) == limit && offset+limit <= service.MaxGalleryOffset,
		NextOffset: offset + limit,
		Form:       map[string]string{"limit": strconv.Itoa(limit)},
	})
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "Image not found.")
		return
	}
	img, rc, err := h.images.Open(r.Context(), id, viewerID(r))
	if errors.Is(err, repository.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Image not found.")
		return
	}
	if err != nil {
		slog.Error("Failed to open image", "image_id", id, "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Could not load the image.")
		return
	}
	defer rc.Close()

	cacheControl := "private, no-cache"
	if img.IsPublic {
		cacheControl = "public, max-age=86400"
	}
	serveBlob(w, rc, cacheControl)
}

func serveBlob(w http.ResponseWriter, rc io.Reader, cacheControl string) {
	br := bufio.NewReaderSize(rc, 512)
	head, _ := br.Peek(512)
	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, br); err != nil {
		slog.Error("Failed to stream blob", "error", err)
	}
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register.html", &pageData{Title: "Register"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Malformed form data.")
		return
	}
	values := map[string]string{
		"username": r.PostFormValue("username"),
		"email":    r.PostFormValue("email"),
	}
	reg, err := form.ValidateRegistration(values["username"], values["email"], r.PostFormValue("password1"), r.PostFormValue("password2"))
	var vErr *form.ValidationError
	if errors.As(err, &vErr) {
		h.render(w, r, http.StatusBadRequest, "register.html", &pageData{Title: "Register", Errors: vErr, Form: values})
		return
	}

	created, err := h.auth.Register(r.Context(), reg)
	if errors.As(err, &vErr) {
		h.render(w, r, http.StatusBadRequest, "register.html", &pageData{Title: "Register", Errors: vErr, Form: values})
		return
	}
	if err != nil {
		slog.Error("Failed to register user", "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Registration failed. Please try again.")
		return
	}

	s, err := h.auth.StartSession(r.Context(), created)
	if err != nil {
		slog.Error("Failed to start session", "user_id", created.ID, "error", err)
		redirect(w, r, "/login/", "Registration successful! Please log in.")
		return
	}
	h.setSessionCookie(w, s)
	slog.Info("User registered", "user_id", created.ID)
	redirect(w, r, "/", "Registration successful!")
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login.html", &pageData{Title: "Log in", Next: safeNext(r.URL.Query().Get("next"))})
}

// safeNext only allows local absolute paths as redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Malformed form data.")
		return
	}
	next := safeNext(r.PostFormValue("next"))
	values := map[string]string{"username": r.PostFormValue("username")}

	creds, err := form.ValidateLogin(values["username"], r.PostFormValue("password"))
	var vErr *form.ValidationError
	if errors.As(err, &vErr) {
		h.render(w, r, http.StatusBadRequest, "login.html", &pageData{Title: "Log in", Errors: vErr, Form: values, Next: next})
		return
	}

	s, err := h.auth.Login(r.Context(), creds.Username, creds.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.render(w, r, http.StatusUnauthorized, "login.html", &pageData{
			Title:   "Log in",
			Message: "Invalid username or password.",
			Form:    values,
			Next:    next,
		})
		return
	}
	if err != nil {
		slog.Error("Failed to log in", "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}
	h.setSessionCookie(w, s)
	redirect(w, r, next, "Welcome back, "+s.Username+"!")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := h.auth.Logout(r.Context(), c.Value); err != nil {
			slog.Error("Failed to revoke session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	redirect(w, r, "/", "You have been logged out.")
}

func (h *Handler) loadProfile(w http.ResponseWriter, r *http.Request) (*service.ProfileView, bool) {
	s := sessionFromContext(r.Context())
	view, err := h.profiles.Get(r.Context(), s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		h.clearSessionCookie(w)
		http.Redirect(w, r, "/login/", http.StatusSeeOther)
		return nil, false
	}
	if err != nil {
		slog.Error("Failed to load profile", "user_id", s.UserID, "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Could not load your profile.")
		return nil, false
	}
	return view, true
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "profile.html", &pageData{Title: "Profile", Profile: view})
}

func (h *Handler) ProfilePicture(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	rc, err := h.profiles.OpenPicture(r.Context(), s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "No profile picture.")
		return
	}
	if err != nil {
		slog.Error("Failed to open profile picture", "user_id", s.UserID, "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Could not load the picture.")
		return
	}
	defer rc.Close()
	serveBlob(w, rc, "private, no-cache")
}

func (h *Handler) EditProfilePage(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "edit_profile.html", &pageData{
		Title:   "Edit profile",
		Profile: view,
		Form:    map[string]string{"bio": view.Profile.Bio},
	})
}

func (h *Handler) EditProfile(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	renderInvalid := func(vErr *form.ValidationError, bio string) {
		h.render(w, r, http.StatusBadRequest, "edit_profile.html", &pageData{
			Title:   "Edit profile",
			Profile: view,
			Errors:  vErr,
			Form:    map[string]string{"bio": bio},
		})
	}

	// room for the other fields on top of the picture itself
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			renderInvalid(form.NewValidationError("profile_picture", "File too large."), view.Profile.Bio)
			return
		}
		h.renderError(w, r, http.StatusBadRequest, "Malformed form data.")
		return
	}
	bio := r.PostFormValue("bio")

	// a nil reader keeps the current picture
	var upload io.Reader
	file, _, err := r.FormFile("profile_picture")
	switch {
	case err == nil:
		defer file.Close()
		upload = file
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.renderError(w, r, http.StatusBadRequest, "Malformed upload.")
		return
	}

	_, err = h.profiles.Update(r.Context(), view.User.ID, bio, upload)
	var vErr *form.ValidationError
	if errors.As(err, &vErr) {
		renderInvalid(vErr, bio)
		return
	}
	if err != nil {
		slog.Error("Failed to update profile", "user_id", view.User.ID, "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "Could not update your profile.")
		return
	}
	redirect(w, r, "/profile/", "Profile updated successfully!")
}
