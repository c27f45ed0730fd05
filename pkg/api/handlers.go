package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goran-ethernal/GovIndexor/internal/indexer"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/internal/registry"
	"github.com/goran-ethernal/GovIndexor/internal/storage"
	"github.com/goran-ethernal/GovIndexor/pkg/checkpoint"
	"github.com/goran-ethernal/GovIndexor/pkg/entity"
)

// Namespaces gives read access to the running namespaces.
type Namespaces interface {
	Statuses() []indexer.Status
	Sources(namespace string) ([]*registry.Source, bool)
}

// Store gives read access to persisted checkpoints and entities.
type Store interface {
	Checkpoints() checkpoint.Store
	Entities() entity.Store
	ListEntities(ctx context.Context, namespace, typ, after string, limit int) ([]*entity.Entity, error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	namespaces Namespaces
	store      Store
	log        *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(namespaces Namespaces, store Store, log *logger.Logger) *Handler {
	return &Handler{
		namespaces: namespaces,
		store:      store,
		log:        log,
	}
}

// ListNamespaces returns every namespace with its loop state and checkpoint.
// @Summary List namespaces
// @Description List every indexed namespace with its loop state and checkpoint
// @Tags Namespaces
// @Produce json
// @Success 200 {array} NamespaceResponse "Namespaces"
// @Router /namespaces [get]
func (h *Handler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	statuses := h.namespaces.Statuses()

	out := make([]NamespaceResponse, 0, len(statuses))
	for _, s := range statuses {
		cp, err := h.store.Checkpoints().Get(r.Context(), s.Namespace)
		if err != nil {
			h.log.Errorw("failed to load checkpoint", "namespace", s.Namespace, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to load checkpoint")
			return
		}

		out = append(out, NamespaceResponse{
			Namespace:  s.Namespace,
			State:      string(s.State),
			NextHeight: s.NextHeight,
			Retries:    s.Retries,
			LastError:  s.LastError,
			UpdatedAt:  s.UpdatedAt,
			Checkpoint: cp,
		})
	}

	respondJSON(w, http.StatusOK, out)
}

// GetCheckpoint returns the checkpoint of a namespace.
// @Summary Get checkpoint
// @Description Return the last fully applied block of a namespace
// @Tags Namespaces
// @Produce json
// @Param namespace path string true "Namespace"
// @Success 200 {object} checkpoint.Checkpoint "Checkpoint"
// @Failure 404 {object} ErrorResponse "Unknown namespace or no checkpoint yet"
// @Router /namespaces/{namespace}/checkpoint [get]
func (h *Handler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	namespace, ok := h.namespace(w, r)
	if !ok {
		return
	}

	cp, err := h.store.Checkpoints().Get(r.Context(), namespace)
	if err != nil {
		h.log.Errorw("failed to load checkpoint", "namespace", namespace, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load checkpoint")
		return
	}
	if cp == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("namespace %s has no checkpoint yet", namespace))
		return
	}

	respondJSON(w, http.StatusOK, cp)
}

// ListSources returns the contracts watched by a namespace.
// @Summary List sources
// @Description List configured sources and template instances in registration order
// @Tags Namespaces
// @Produce json
// @Param namespace path string true "Namespace"
// @Success 200 {array} SourceInfo "Sources"
// @Failure 404 {object} ErrorResponse "Unknown namespace"
// @Router /namespaces/{namespace}/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")

	sources, ok := h.namespaces.Sources(namespace)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown namespace %s", namespace))
		return
	}

	out := make([]SourceInfo, 0, len(sources))
	for _, src := range sources {
		info := SourceInfo{
			Address:  src.Address.Hex(),
			Start:    src.Start,
			ABI:      src.ABI,
			Template: src.Template,
		}
		for _, handler := range src.Handlers() {
			info.Events = append(info.Events, EventInfo{
				Signature: handler.Event.Sig,
				Topic:     handler.Event.ID.Hex(),
				Handler:   handler.Fn,
			})
		}
		out = append(out, info)
	}

	respondJSON(w, http.StatusOK, out)
}

// ListEntities returns a page of entities of one type.
// @Summary List entities
// @Description List entities of a type ordered by id
// @Tags Entities
// @Produce json
// @Param namespace path string true "Namespace"
// @Param type path string true "Entity type"
// @Param after query string false "Return entities with an id after this one"
// @Param limit query int false "Maximum number of entities" default(100)
// @Success 200 {object} EntityListResponse "Entities"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Unknown namespace"
// @Router /namespaces/{namespace}/entities/{type} [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	namespace, ok := h.namespace(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	typ := r.PathValue("type")
	entities, err := h.store.ListEntities(r.Context(), namespace, typ, r.URL.Query().Get("after"), limit)
	if err != nil {
		h.log.Errorw("failed to list entities", "namespace", namespace, "type", typ, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list entities")
		return
	}

	resp := EntityListResponse{Entities: entities}
	if resp.Entities == nil {
		resp.Entities = []*entity.Entity{}
	}
	if len(entities) == limit {
		resp.Next = entities[len(entities)-1].ID
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetEntity returns a single entity.
// @Summary Get entity
// @Description Load one entity. Composite ids such as governor/proposalId/voter are
// @Description matched across path segments.
// @Tags Entities
// @Produce json
// @Param namespace path string true "Namespace"
// @Param type path string true "Entity type"
// @Param id path string true "Entity id, may contain '/'"
// @Success 200 {object} entity.Entity "Entity"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /namespaces/{namespace}/entities/{type}/{id} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	namespace, ok := h.namespace(w, r)
	if !ok {
		return
	}

	typ, id := r.PathValue("type"), r.PathValue("id")
	e, err := h.store.Entities().Load(r.Context(), typ, id, namespace)
	if err != nil {
		h.log.Errorw("failed to load entity", "namespace", namespace, "type", typ, "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load entity")
		return
	}
	if e == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", typ, id))
		return
	}

	respondJSON(w, http.StatusOK, e)
}

// Health reports the state of every namespace. A halted namespace makes the service
// unhealthy.
// @Summary Health check
// @Description Report the state of every namespace
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "All namespaces healthy"
// @Failure 503 {object} HealthResponse "A namespace has halted"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	statuses := h.namespaces.Statuses()

	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		Namespaces: make([]NamespaceHealth, 0, len(statuses)),
	}

	code := http.StatusOK
	for _, s := range statuses {
		healthy := s.State != indexer.StateHalted
		if !healthy {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		resp.Namespaces = append(resp.Namespaces, NamespaceHealth{
			Namespace:  s.Namespace,
			State:      string(s.State),
			NextHeight: s.NextHeight,
			Healthy:    healthy,
		})
	}

	respondJSON(w, code, resp)
}

// namespace returns the namespace path value, answering 404 when it is not indexed.
func (h *Handler) namespace(w http.ResponseWriter, r *http.Request) (string, bool) {
	namespace := r.PathValue("namespace")

	for _, s := range h.namespaces.Statuses() {
		if s.Namespace == namespace {
			return namespace, true
		}
	}

	respondError(w, http.StatusNotFound, fmt.Sprintf("unknown namespace %s", namespace))

	return "", false
}

func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return storage.DefaultListLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > storage.MaxListLimit {
		return 0, fmt.Errorf("invalid limit: must be between 1 and %d", storage.MaxListLimit)
	}

	return limit, nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// encode first so a failure can still change the status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	// headers are sent, nothing left to report to
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
