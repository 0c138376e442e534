package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/build/operation"
)

const headerAuthorization = "Authorization"

//go:embed openapi.json
var openAPIDoc []byte

// BuildService is the part of operation.Service the HTTP API exposes.
type BuildService interface {
	CreateBuild(ctx context.Context, params *operation.CreateBuildParams) (*build.Build, error)
	GetBuild(ctx context.Context, params *operation.GetBuildParams) (*build.Build, error)
	ListBuilds(ctx context.Context, params *operation.ListBuildsParams) (*operation.ListBuildsResult, error)
	DownloadBuild(ctx context.Context, params *operation.DownloadBuildParams) (io.ReadCloser, error)
}

var _ BuildService = (*operation.Service)(nil)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type handlerParams struct {
	Builds      BuildService  // required
	Health      HealthChecker // optional
	Metrics     http.Handler  // optional
	Logger      *slog.Logger  // required
	Development bool
}

type handler struct {
	mux    *http.ServeMux
	builds BuildService
	health HealthChecker
	logger *slog.Logger
}

func newHandler(params *handlerParams) *handler {
	mux := http.NewServeMux()
	h := &handler{
		mux:    mux,
		builds: params.Builds,
		health: params.Health,
		logger: params.Logger,
	}

	if params.Development {
		mux.HandleFunc("GET /swagger/doc.json", h.GetOpenAPIDoc)
		mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}

	mux.HandleFunc("GET /health", h.GetHealth)
	if params.Metrics != nil {
		mux.Handle("GET /metrics", params.Metrics)
	}

	mux.HandleFunc("POST /builds", h.CreateBuild)
	mux.HandleFunc("GET /builds/{id}", h.GetBuild)
	mux.HandleFunc("GET /builds", h.ListBuilds)
	mux.HandleFunc("GET /builds/{id}/download", h.DownloadBuild)

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *handler) GetOpenAPIDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDoc)
}

func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}

	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Error("didn't ping", "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, response{Status: "unavailable"})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Build is the JSON representation of a build.
type Build struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    uuid.UUID `json:"userId"`
	AppID     uuid.UUID `json:"appId"`
	Version   string    `json:"version"`
	Message   string    `json:"message"`
	ActionID  uuid.UUID `json:"actionId"`
}

func newBuild(b *build.Build) *Build {
	return &Build{
		ID:        b.ID,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
		UserID:    b.UserID,
		AppID:     b.AppID,
		Version:   b.Version,
		Message:   b.Message,
		ActionID:  b.ActionID,
	}
}

func (h *handler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	type request struct {
		AppID   *uuid.UUID `json:"appId"`
		Version *string    `json:"version"`
		Message *string    `json:"message"`
	}

	// Header Authorization
	if err := checkHeaderCountIsOne(r.Header, headerAuthorization); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	userID, err := userIDFromAuthorizationHeader(r.Header.Get(headerAuthorization))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid %s request header: %w", headerAuthorization, err).Error(), http.StatusUnauthorized)
		return
	}

	// Body
	var req request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err = dec.Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusUnprocessableEntity)
		return
	}
	if dec.More() {
		http.Error(w, "invalid request body: multiple top-level values", http.StatusUnprocessableEntity)
		return
	}

	if req.AppID == nil {
		http.Error(w, "invalid request body: missing appId", http.StatusUnprocessableEntity)
		return
	}
	if req.Version == nil {
		http.Error(w, "invalid request body: missing version", http.StatusUnprocessableEntity)
		return
	}
	message := ""
	if req.Message != nil {
		message = *req.Message
	}

	b, err := h.builds.CreateBuild(r.Context(), &operation.CreateBuildParams{
		UserID:  userID,
		AppID:   *req.AppID,
		Version: *req.Version,
		Message: message,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newBuild(b))
}

func (h *handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	id, ok := pathValueID(w, r)
	if !ok {
		return
	}

	b, err := h.builds.GetBuild(r.Context(), &operation.GetBuildParams{ID: id})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if b == nil {
		http.Error(w, operation.ErrBuildNotFound.Error(), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, newBuild(b))
}

func (h *handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Builds        []*Build `json:"builds"`
		NextPageToken string   `json:"nextPageToken,omitempty"`
		TotalSize     int      `json:"totalSize"`
	}

	query := r.URL.Query()
	params := &operation.ListBuildsParams{PageToken: query.Get("pageToken")}

	appID, err := optionalUUIDQuery(query.Get("appId"))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid appId query parameter: %w", err).Error(), http.StatusUnprocessableEntity)
		return
	}
	params.AppID = appID

	userID, err := optionalUUIDQuery(query.Get("userId"))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid userId query parameter: %w", err).Error(), http.StatusUnprocessableEntity)
		return
	}
	params.UserID = userID

	if s := query.Get("pageSize"); s != "" {
		params.PageSize, err = strconv.Atoi(s)
		if err != nil || params.PageSize < 0 {
			http.Error(w, "invalid pageSize query parameter", http.StatusUnprocessableEntity)
			return
		}
	}

	result, err := h.builds.ListBuilds(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := response{
		Builds:        make([]*Build, 0, len(result.Builds)),
		NextPageToken: result.NextPageToken,
		TotalSize:     result.TotalSize,
	}
	for _, b := range result.Builds {
		resp.Builds = append(resp.Builds, newBuild(b))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) DownloadBuild(w http.ResponseWriter, r *http.Request) {
	id, ok := pathValueID(w, r)
	if !ok {
		return
	}

	rc, err := h.builds.DownloadBuild(r.Context(), &operation.DownloadBuildParams{ID: id})
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer func() {
		_ = rc.Close()
	}()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", build.ArtifactKey(id)))
	w.WriteHeader(http.StatusOK)
	if _, err = io.Copy(w, rc); err != nil {
		h.logger.Error("didn't write archive", "build_id", id, "error", err)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("didn't encode response", "error", err)
	}
}

// writeError maps service errors to status codes.
// Unknown errors are logged and hidden behind a generic message.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, operation.ErrInvalidVersion),
		errors.Is(err, operation.ErrInvalidPageToken),
		errors.Is(err, operation.ErrInvalidReference):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, operation.ErrBuildNotFound),
		errors.Is(err, operation.ErrBuildResultNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, operation.ErrBuildNotComplete):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("didn't handle request", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func pathValueID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	const pathValueID = "id"
	id, err := uuid.Parse(r.PathValue(pathValueID))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid %q request path value: %w", pathValueID, err).Error(), http.StatusUnprocessableEntity)
		return uuid.UUID{}, false
	}
	return id, true
}

func optionalUUIDQuery(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func checkHeaderCountIsOne(header http.Header, key string) error {
	if got, want := len(header.Values(key)), 1; got != want {
		if got == 0 {
			return fmt.Errorf("missing %s request header", key)
		}
		return fmt.Errorf("multiple %s request headers", key)
	}
	return nil
}

// userIDFromAuthorizationHeader reads the user ID from a "Bearer <user ID>" header.
// The token is not verified; authentication happens in front of the service.
// It doesn't check for missing header or multiple headers.
func userIDFromAuthorizationHeader(h string) (uuid.UUID, error) {
	scheme, params, _ := strings.Cut(h, " ")

	if scheme == "" {
		return uuid.UUID{}, errors.New("no scheme")
	}

	if got, want := scheme, "Bearer"; !strings.EqualFold(got, want) {
		return uuid.UUID{}, fmt.Errorf("got unsupported scheme %q, want %q", got, want)
	}

	userID, err := uuid.Parse(params)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid token: %w", err)
	}

	return userID, nil
}
