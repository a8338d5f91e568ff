package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relayd-dev/relayd/internal/auth"
	appconfig "github.com/relayd-dev/relayd/internal/config"
	"github.com/relayd-dev/relayd/internal/models"
)

// newTestServer builds a Server over an in-memory database with a router
// that fakes authentication via the given session
func newTestServer(t *testing.T, session *auth.SessionData) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	validate := validator.New()
	require.NoError(t, validate.RegisterValidation("cronexpr", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		return validCronExpr(value)
	}))

	s := &Server{
		db:        db,
		config:    &appconfig.Config{},
		logger:    zerolog.Nop(),
		validator: validate,
	}

	router := gin.New()
	router.POST("/api/setup", s.setupFirstAdmin)
	router.POST("/api/auth/login", s.login)

	api := router.Group("/api")
	api.Use(func(c *gin.Context) {
		if session != nil {
			setSession(c, session)
		}
		c.Next()
	})
	api.GET("/config", s.getConfig)
	api.PATCH("/config", s.updateConfig)
	api.GET("/conversations", s.listConversations)
	api.POST("/conversations", s.createConversation)
	api.GET("/conversations/:id", s.getConversation)
	api.GET("/runs/:id", s.getRun)
	api.POST("/runs/:id/cancel", s.cancelRun)

	return s, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupThenLogin(t *testing.T) {
	_, router := newTestServer(t, nil)

	w := doJSON(t, router, "POST", "/api/setup", SetupRequest{
		Email:    "admin@example.com",
		Password: "password123",
		Name:     "Admin",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var setupResp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &setupResp))
	require.NotEmpty(t, setupResp.Token)
	require.True(t, setupResp.User.IsAdmin)

	// Second setup attempt is rejected
	w = doJSON(t, router, "POST", "/api/setup", SetupRequest{
		Email:    "other@example.com",
		Password: "password123",
		Name:     "Other",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Login with the created credentials
	w = doJSON(t, router, "POST", "/api/auth/login", LoginRequest{
		Email:    "admin@example.com",
		Password: "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Wrong password gets the same message as unknown user
	w = doJSON(t, router, "POST", "/api/auth/login", LoginRequest{
		Email:    "admin@example.com",
		Password: "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// seedUser inserts a user and returns its session
func seedUser(t *testing.T, db *gorm.DB, email string, isAdmin bool) (*models.User, *auth.SessionData) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{Email: email, PasswordHash: string(hash), Name: "Test", IsAdmin: isAdmin}
	require.NoError(t, db.Create(user).Error)

	return user, &auth.SessionData{UserID: user.ID, Email: user.Email, IsAdmin: isAdmin, AuthMethod: "header"}
}

func TestAuthorizeConversationAccess(t *testing.T) {
	s, _ := newTestServer(t, nil)
	owner, ownerSession := seedUser(t, s.db, "owner@example.com", false)
	_, intruderSession := seedUser(t, s.db, "intruder@example.com", false)
	_, adminSession := seedUser(t, s.db, "admin@example.com", true)

	conv := &models.Conversation{Title: "Private", OwnerID: owner.ID, Status: models.ConversationActive}
	require.NoError(t, s.db.Create(conv).Error)

	require.NoError(t, s.authorizeConversationAccess(ownerSession, conv.ID))
	require.NoError(t, s.authorizeConversationAccess(adminSession, conv.ID))
	require.ErrorIs(t, s.authorizeConversationAccess(intruderSession, conv.ID), ErrConversationForbidden)
	require.ErrorIs(t, s.authorizeConversationAccess(intruderSession, "no-such-conversation"), gorm.ErrRecordNotFound)
}

func TestConversationOwnership(t *testing.T) {
	// Server authenticated as the intruder, data owned by someone else
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	owner := &models.User{Email: "owner@example.com", PasswordHash: "x", Name: "Owner"}
	require.NoError(t, db.Create(owner).Error)
	conv := &models.Conversation{Title: "Private", OwnerID: owner.ID, Status: models.ConversationActive}
	require.NoError(t, db.Create(conv).Error)

	s, router := newTestServer(t, &auth.SessionData{UserID: "someone-else", Email: "i@example.com"})
	s.db = db

	w := doJSON(t, router, "GET", "/api/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Admins see everything
	sAdmin, adminRouter := newTestServer(t, &auth.SessionData{UserID: "admin-id", Email: "a@example.com", IsAdmin: true})
	sAdmin.db = db

	w = doJSON(t, adminRouter, "GET", "/api/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndListConversations(t *testing.T) {
	seedServer, _ := newTestServer(t, nil)
	user, session := seedUser(t, seedServer.db, "user@example.com", false)

	s, router := newTestServer(t, session)
	s.db = seedServer.db

	w := doJSON(t, router, "POST", "/api/conversations", CreateConversationRequest{Title: "My thread"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, user.ID, created.OwnerID)
	require.Equal(t, models.ConversationActive, created.Status)

	w = doJSON(t, router, "GET", "/api/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
}

func TestUpdateConfigValidation(t *testing.T) {
	s, router := newTestServer(t, &auth.SessionData{UserID: "admin-id", Email: "a@example.com", IsAdmin: true})
	require.NoError(t, s.db.Create(&models.Config{JWTSecret: "secret", DefaultModel: "relay-large", FallbackModel: "relay-small", BreakerFailureThreshold: 5, BreakerCooldownSeconds: 30, MaxRunAgeDays: 30}).Error)

	// Bad cron expression is rejected
	bad := "not a cron"
	w := doJSON(t, router, "PATCH", "/api/config", UpdateConfigRequest{CostRollupSchedule: &bad})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Valid update applies
	good := "0 2 * * *"
	threshold := 10
	w = doJSON(t, router, "PATCH", "/api/config", UpdateConfigRequest{
		CostRollupSchedule:      &good,
		BreakerFailureThreshold: &threshold,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Config
	require.NoError(t, s.db.First(&updated).Error)
	require.Equal(t, "0 2 * * *", updated.CostRollupSchedule)
	require.Equal(t, 10, updated.BreakerFailureThreshold)
	require.Nil(t, updated.NextRollupAt)
}

func TestUpdateConfigRequiresAdmin(t *testing.T) {
	s, router := newTestServer(t, &auth.SessionData{UserID: "user-id", Email: "u@example.com", IsAdmin: false})
	require.NoError(t, s.db.Create(&models.Config{JWTSecret: "secret"}).Error)

	model := "relay-large"
	w := doJSON(t, router, "PATCH", "/api/config", UpdateConfigRequest{DefaultModel: &model})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCancelRun(t *testing.T) {
	s, _ := newTestServer(t, nil)
	user, session := seedUser(t, s.db, "user@example.com", false)

	s2, router := newTestServer(t, session)
	s2.db = s.db

	conv := &models.Conversation{Title: "Thread", OwnerID: user.ID, Status: models.ConversationActive}
	require.NoError(t, s.db.Create(conv).Error)
	msg := &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: "hi"}
	require.NoError(t, s.db.Create(msg).Error)
	run := &models.AgentRun{ConversationID: conv.ID, MessageID: msg.ID, Supervisor: "supervisor", Status: models.RunRunning}
	require.NoError(t, s.db.Create(run).Error)

	w := doJSON(t, router, "POST", "/api/runs/"+run.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.AgentRun
	require.NoError(t, models.FindByID(s.db, run.ID, &stored))
	require.Equal(t, models.RunCanceled, stored.Status)

	// Canceling a finished run conflicts
	w = doJSON(t, router, "POST", "/api/runs/"+run.ID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	// A run no worker picked up yet is finalized by the handler itself
	pending := &models.AgentRun{ConversationID: conv.ID, MessageID: msg.ID, Supervisor: "supervisor", Status: models.RunPending}
	require.NoError(t, s.db.Create(pending).Error)
	w = doJSON(t, router, "POST", "/api/runs/"+pending.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored = models.AgentRun{} // fresh dest, gorm reuses a populated primary key as a condition
	require.NoError(t, models.FindByID(s.db, pending.ID, &stored))
	require.Equal(t, models.RunCanceled, stored.Status)
	require.NotNil(t, stored.FinishedAt)
}

func TestValidCronExpr(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"0 2 * * *", true},
		{"*/15 * * * *", true},
		{"0 0 1 1 0", true},
		{"not a cron", false},
		{"* * * *", false},
		{"61 * * * *", false},
	}

	for _, tt := range tests {
		if got := validCronExpr(tt.expr); got != tt.valid {
			t.Errorf("validCronExpr(%q) = %v, want %v", tt.expr, got, tt.valid)
		}
	}
}
