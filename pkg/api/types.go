package api

import (
	"time"

	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Namespaces []NamespaceHealth `json:"namespaces"`
}

// NamespaceHealth is the health of a single namespace.
type NamespaceHealth struct {
	Namespace  string `json:"namespace"`
	State      string `json:"state"`
	NextHeight uint64 `json:"next_height"`
	Healthy    bool   `json:"healthy"`
}

// NamespaceResponse describes one indexed namespace.
type NamespaceResponse struct {
	Namespace  string                 `json:"namespace"`
	State      string                 `json:"state"`
	NextHeight uint64                 `json:"next_height"`
	Retries    uint64                 `json:"retries"`
	LastError  string                 `json:"last_error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint,omitempty"`
}

// SourceInfo describes a watched contract.
type SourceInfo struct {
	Address  string      `json:"address"`
	Start    uint64      `json:"start"`
	ABI      string      `json:"abi"`
	Template string      `json:"template,omitempty"`
	Events   []EventInfo `json:"events"`
}

// EventInfo binds an event signature to its handler.
type EventInfo struct {
	Signature string `json:"signature"`
	Topic     string `json:"topic"`
	Handler   string `json:"handler"`
}

// EntityListResponse is a page of entities. Next is the id to pass as "after" for the
// following page, empty on the last page.
type EntityListResponse struct {
	Entities []*entity.Entity `json:"entities"`
	Next     string           `json:"next,omitempty"`
}
