package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config represents the global configuration for the single-tenant deployment
// This is a singleton model (only one row should exist)
type Config struct {
	BaseModel
	// Authentication configuration
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Auto-generated on first setup (64 hex chars)

	// Agent routing configuration
	DefaultModel  string `json:"default_model" gorm:"not null;default:'relay-large'"`  // Primary model for sub-agents
	FallbackModel string `json:"fallback_model" gorm:"not null;default:'relay-small'"` // Cheaper model used when a breaker is open

	// Circuit breaker tuning
	BreakerFailureThreshold int `json:"breaker_failure_threshold" gorm:"not null;default:5"`
	BreakerCooldownSeconds  int `json:"breaker_cooldown_seconds" gorm:"not null;default:30"`

	// Cost rollup configuration (for periodic aggregation)
	CostRollupSchedule string     `json:"cost_rollup_schedule"` // Cron expression, e.g. "0 2 * * *", empty = no rollup
	LastRollupAt       *time.Time `json:"last_rollup_at"`       // When last rollup completed
	NextRollupAt       *time.Time `json:"next_rollup_at"`       // Calculated from cron schedule

	// Retention
	MaxRunAgeDays int `json:"max_run_age_days" gorm:"not null;default:30"` // Finished runs older than this are pruned
}

// User represents a local user account (self-hosted, no external auth)
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"is_admin" gorm:"not null;default:false"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Conversation statuses
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// Conversation represents a chat thread owned by a user
type Conversation struct {
	BaseModel
	Title     string    `json:"title" gorm:"not null"`
	OwnerID   string    `json:"owner_id" gorm:"not null;index"`
	Status    string    `json:"status" gorm:"not null;default:'active'"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Owner    *User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:CASCADE"`
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAgent     = "agent"
)

// Message represents a single chat message within a conversation
type Message struct {
	BaseModel
	ConversationID string  `json:"conversation_id" gorm:"not null;index"`
	Role           string  `json:"role" gorm:"not null"`
	Content        string  `json:"content" gorm:"type:text;not null"`
	AgentName      string  `json:"agent_name,omitempty"` // Set for role=agent messages
	TokensIn       int     `json:"tokens_in" gorm:"not null;default:0"`
	TokensOut      int     `json:"tokens_out" gorm:"not null;default:0"`
	CostUSD        float64 `json:"cost_usd" gorm:"not null;default:0"`

	// Relationships
	Conversation Conversation `json:"conversation,omitzero" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// AgentRun statuses
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// AgentRun represents one supervisor-driven pipeline execution triggered
// by an inbound user message
type AgentRun struct {
	BaseModel
	ConversationID string     `json:"conversation_id" gorm:"not null;index"`
	MessageID      string     `json:"message_id" gorm:"not null"` // Triggering user message
	Supervisor     string     `json:"supervisor" gorm:"not null"`
	Status         string     `json:"status" gorm:"not null;default:'pending';index"`
	Context        string     `json:"context" gorm:"type:text"` // Accumulated pipeline context snapshot (JSON)
	Error          string     `json:"error,omitempty" gorm:"type:text"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`

	// Relationships
	Conversation Conversation `json:"conversation,omitzero" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
	Steps        []AgentStep  `json:"steps,omitempty" gorm:"foreignKey:RunID"`
}

// Finished reports whether the run reached a terminal status
func (r *AgentRun) Finished() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCanceled:
		return true
	}
	return false
}

// AgentStep represents a single sub-agent execution within a run
type AgentStep struct {
	BaseModel
	RunID      string     `json:"run_id" gorm:"not null;index"`
	Sequence   int        `json:"sequence" gorm:"not null"`
	AgentName  string     `json:"agent_name" gorm:"not null"`
	Model      string     `json:"model" gorm:"not null"`
	Status     string     `json:"status" gorm:"not null;default:'pending'"`
	Fallback   bool       `json:"fallback" gorm:"not null;default:false"` // True when the breaker routed to the fallback model
	Output     string     `json:"output" gorm:"type:text"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	TokensIn   int        `json:"tokens_in" gorm:"not null;default:0"`
	TokensOut  int        `json:"tokens_out" gorm:"not null;default:0"`
	CostUSD    float64    `json:"cost_usd" gorm:"not null;default:0"`
	SavingsUSD float64    `json:"savings_usd" gorm:"not null;default:0"` // Cost avoided by fallback routing
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	// Relationships
	Run AgentRun `json:"run,omitzero" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// CostRollup represents a daily cost aggregate across all runs
type CostRollup struct {
	BaseModel
	Day        string  `json:"day" gorm:"not null;unique"` // YYYY-MM-DD (UTC)
	Runs       int     `json:"runs" gorm:"not null;default:0"`
	Steps      int     `json:"steps" gorm:"not null;default:0"`
	TokensIn   int     `json:"tokens_in" gorm:"not null;default:0"`
	TokensOut  int     `json:"tokens_out" gorm:"not null;default:0"`
	CostUSD    float64 `json:"cost_usd" gorm:"not null;default:0"`
	SavingsUSD float64 `json:"savings_usd" gorm:"not null;default:0"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&User{}, &Config{}, &Conversation{}, &Message{}, &AgentRun{}, &AgentStep{}, &CostRollup{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindByIDWithPreload finds a record by ID with preloading
func FindByIDWithPreload[T any](db *gorm.DB, id string, model *T, preloads ...string) error {
	query := db
	for _, preload := range preloads {
		query = query.Preload(preload)
	}
	return query.Where("id = ?", id).First(model).Error
}
