package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/auth"
	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/ingest"
	"github.com/david/grant-matcher/internal/learn"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Matcher     *MatchService
	Learner     *learn.Runner
	Echo        *echo.Echo
	Log         *zap.Logger

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

// NewServer wires the store, auth, matcher, and learner behind the HTTP
// surface. rdb may be nil; matching then runs uncached.
func NewServer(pool *pgxpool.Pool, rdb *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	store := db.NewStore(pool)

	strategy := match.Strategy(os.Getenv("MATCH_STRATEGY"))
	engine := match.NewEngine(
		match.WithStrategy(strategy),
		match.WithLogger(log.Named("engine")),
	)

	var cacheStore *cache.Store
	if rdb != nil {
		cacheStore = cache.NewStore(rdb, log.Named("cache"))
	}

	s := &Server{
		Store:       store,
		AuthService: auth.NewService(store),
		Matcher:     NewMatchService(store, engine, cacheStore, log.Named("matcher")),
		Learner:     learn.NewRunner(store, store, log.Named("learner")),
		Echo:        e,
		Log:         log,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)

	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Authenticated routes
	user := api.Group("")
	user.Use(auth.Middleware)
	user.GET("/profile", s.handleGetProfile)
	user.PUT("/profile", s.handleSaveProfile)
	user.GET("/match", s.handleMatch)
	user.POST("/match/invalidate", s.handleInvalidate)
	user.POST("/actions/:action/:id", s.handleAction)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/ingest/csv", s.handleIngestCSV)
	admin.POST("/recompute-preferences/:user_id", s.handleRecomputePreferences)
	admin.GET("/job/:id", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	params := db.ListParams{
		Query:  c.QueryParam("q"),
		Agency: c.QueryParam("agency"),
		Type:   c.QueryParam("type"),
		Limit:  20,
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	params.OnlyOpen = !strings.EqualFold(c.QueryParam("include_closed"), "true")

	result, err := s.Store.ListOpportunities(c.Request().Context(), params)
	if err != nil {
		s.Log.Error("list opportunities failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}
	opp, err := s.Store.GetOpportunity(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, opp)
}

func (s *Server) handleGetProfile(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	profile, err := s.Store.GetProfile(c.Request().Context(), userID)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No profile yet"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleSaveProfile(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	var profile models.RequesterProfile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	profile.UserID = userID.String()
	if err := s.Store.SaveProfile(c.Request().Context(), userID, &profile); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// The profile hash changed, so the old result set is dead weight.
	s.Matcher.Invalidate(c.Request().Context(), userID.String())
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleMatch(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	profile, err := s.Store.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusPreconditionFailed, map[string]string{"error": "Complete your profile before matching"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	refresh := strings.EqualFold(c.QueryParam("refresh"), "true")
	entry, cached, err := s.Matcher.Results(ctx, profile, refresh)
	if err != nil {
		var cfgErr *match.ConfigurationError
		if errors.As(err, &cfgErr) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": cfgErr.Error()})
		}
		s.Log.Error("matching failed", zap.String("user_id", userID.String()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Matching failed"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"matched":   entry.Matched(),
		"total":     len(entry.All),
		"cached":    cached,
		"cached_at": entry.CachedAt,
	})
}

func (s *Server) handleInvalidate(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	s.Matcher.Invalidate(c.Request().Context(), userID.String())
	return c.JSON(http.StatusOK, map[string]string{"status": "invalidated"})
}

// handleAction records a save/pass/apply with a snapshot of the
// opportunity, then refreshes learned preferences in the background so
// the next scoring pass sees the new behavior.
func (s *Server) handleAction(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	action := c.Param("action")
	if action != models.ActionSave && action != models.ActionPass && action != models.ActionApply {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown action"})
	}
	oppID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	opp, err := s.Store.GetOpportunity(ctx, oppID)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	ev := &models.ActionEvent{
		UserID:        userID.String(),
		Action:        action,
		OpportunityID: oppID.String(),
		Snapshot:      opp,
	}
	if err := s.Store.InsertActionEvent(ctx, ev); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if _, err := s.Learner.Recompute(bgCtx, userID.String()); err != nil {
			s.Log.Warn("preference recompute after action failed",
				zap.String("user_id", userID.String()), zap.Error(err))
			return
		}
		s.Matcher.Invalidate(bgCtx, userID.String())
	}()

	return c.JSON(http.StatusOK, map[string]string{"status": action})
}

// handleIngestCSV loads a grants/contracts CSV export from the request
// body and upserts it into the opportunity store.
func (s *Server) handleIngestCSV(c echo.Context) error {
	ctx := c.Request().Context()

	body := c.Request().Body
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Cannot open upload"})
		}
		defer f.Close()
		body = f
	}

	opps, err := ingest.LoadCSV(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	count, err := s.Store.UpsertOpportunities(ctx, opps)
	if err != nil {
		s.Log.Error("csv ingest failed", zap.Int("written", count), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.Log.Info("csv ingest complete", zap.Int("rows", count))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Ingestion complete",
		"count":   count,
	})
}

func (s *Server) handleRecomputePreferences(c echo.Context) error {
	targetUser := c.Param("user_id")
	if _, err := uuid.Parse(targetUser); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid user ID"})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A recompute job is already running",
			"job_id": job.ID,
		})
	}

	// context.WithoutCancel detaches from the HTTP lifecycle but keeps
	// trace values; the timeout bounds the job on its own.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 10*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		prefs, err := s.Learner.Recompute(jobCtx, targetUser)
		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.Log.Error("recompute job failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		s.Matcher.Invalidate(jobCtx, targetUser)
		job.Status = "completed"
		job.Result = map[string]interface{}{
			"saved":         len(prefs.SavedOpportunityIDs),
			"passed":        len(prefs.PassedOpportunityIDs),
			"applied":       len(prefs.AppliedOpportunityIDs),
			"save_keywords": prefs.SavePatterns.Keywords,
			"save_agencies": prefs.SavePatterns.Agencies,
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Recompute job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token == secret {
			return next(c)
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}
