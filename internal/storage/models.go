package storage

import (
	"time"

	"github.com/google/uuid"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// VehicleMake is one row of vehicle_makes.
type VehicleMake struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// VehicleModel is one row of vehicle_models.
type VehicleModel struct {
	ID        uuid.UUID `json:"id"`
	MakeID    uuid.UUID `json:"make_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CategorySynonym maps a phrase to a category tag.
type CategorySynonym struct {
	Phrase    string    `json:"phrase"`
	Category  string    `json:"category"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnalysisRecord is the audit row written for every analysis served.
// The listing text itself is never stored, only its hash.
type AnalysisRecord struct {
	ID               uuid.UUID `json:"id"`
	TextHash         string    `json:"text_hash"`
	Category         string    `json:"category"`
	Condition        string    `json:"condition"`
	Make             string    `json:"make,omitempty"`
	Model            string    `json:"model,omitempty"`
	Price            *float64  `json:"price,omitempty"`
	MissingCount     int       `json:"missing_count"`
	Warning          string    `json:"warning,omitempty"`
	KnowledgeVersion string    `json:"knowledge_version,omitempty"`
	Cached           bool      `json:"cached"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// CategoryCount is one row of AnalysisRepository.CategoryCounts.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}
