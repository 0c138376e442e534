package operation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/entity"
)

var (
	ErrBuildNotFound       = errors.New("build not found")
	ErrBuildNotComplete    = errors.New("build not complete")
	ErrBuildResultNotFound = errors.New("build result not found")
	ErrBuildAlreadyStarted = errors.New("build already started")
	ErrInvalidVersion      = errors.New("invalid version")
	ErrInvalidPageToken    = errors.New("invalid page token")
	ErrInvalidReference    = errors.New("invalid reference")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var tracer = otel.Tracer("github.com/k11v/genbuild/internal/build/operation")

// Service owns the build lifecycle.
type Service struct {
	Database  Database       // required
	Storage   Storage        // required
	Broker    Broker         // required
	Actions   ActionService  // required
	Entities  EntityService  // required
	AppRoles  AppRoleService // required
	Generator Generator      // required

	Recorder Recorder         // NoopRecorder when nil
	Logger   *slog.Logger     // slog.Default() when nil
	Now      func() time.Time // time.Now when nil
}

type CreateBuildParams struct {
	UserID  uuid.UUID
	AppID   uuid.UUID
	Version string // semantic version
	Message string
}

// CreateBuild stores a waiting build linked to the latest entity versions of the app
// and queues its generation.
// A build that was stored but not queued is not removed.
func (s *Service) CreateBuild(ctx context.Context, params *CreateBuildParams) (b *build.Build, err error) {
	ctx, span := tracer.Start(ctx, "Service.CreateBuild", trace.WithAttributes(
		attribute.String("app.id", params.AppID.String()),
	))
	defer func() { endSpan(span, err) }()

	if _, err = semver.NewVersion(params.Version); err != nil {
		return nil, fmt.Errorf("create build: %w: %w", ErrInvalidVersion, err)
	}

	versions, err := s.Entities.GetLatestVersions(ctx, &entity.GetLatestVersionsParams{AppID: params.AppID})
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}
	entityVersionIDs := make([]uuid.UUID, len(versions))
	for i, v := range versions {
		entityVersionIDs[i] = v.ID
	}

	now := s.now().UTC()
	b, err = s.Database.CreateBuild(ctx, &DatabaseCreateBuildParams{
		CreatedAt:        now,
		UserID:           params.UserID,
		AppID:            params.AppID,
		Version:          params.Version,
		Message:          params.Message,
		Status:           build.StatusWaiting,
		EntityVersionIDs: entityVersionIDs,
		BlockVersionIDs:  []uuid.UUID{},
		ActionSteps:      []*DatabaseCreateBuildActionStep{InitialStep(params.Version, params.Message, now)},
	})
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}
	span.SetAttributes(attribute.String("build.id", b.ID.String()))

	err = s.Broker.Queue(ctx, CreateGeneratedAppPath, &CreateGeneratedAppMessage{BuildID: b.ID})
	if err != nil {
		s.logger().Error("didn't queue build", "build_id", b.ID, "error", err)
		return nil, fmt.Errorf("create build: %w", err)
	}

	s.recorder().IncBuildsCreated()
	return b, nil
}

type GetBuildParams struct {
	ID uuid.UUID
}

// GetBuild returns nil and no error when the build doesn't exist.
func (s *Service) GetBuild(ctx context.Context, params *GetBuildParams) (*build.Build, error) {
	b, err := s.Database.GetBuild(ctx, &DatabaseGetBuildParams{ID: params.ID})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}
	return b, nil
}

type ListBuildsParams struct {
	AppID     *uuid.UUID // nil means any app
	UserID    *uuid.UUID // nil means any user
	PageSize  int        // zero value (0) means default, constrained, passed to LIMIT
	PageToken string     // parsed as int, passed to OFFSET
}

type ListBuildsResult struct {
	Builds        []*build.Build
	NextPageToken string // zero value ("") means no more pages
	TotalSize     int
}

// ListBuilds returns builds newest first.
func (s *Service) ListBuilds(ctx context.Context, params *ListBuildsParams) (*ListBuildsResult, error) {
	pageLimit := params.PageSize
	if pageLimit <= 0 {
		pageLimit = DefaultPageSize
	}
	pageLimit = min(pageLimit, MaxPageSize)

	pageOffset := 0
	if params.PageToken != "" {
		var err error
		pageOffset, err = strconv.Atoi(params.PageToken)
		if err != nil || pageOffset < 0 {
			return nil, fmt.Errorf("list builds: %w", ErrInvalidPageToken)
		}
	}

	r, err := s.Database.ListBuilds(ctx, &DatabaseListBuildsParams{
		AppID:      params.AppID,
		UserID:     params.UserID,
		PageLimit:  pageLimit,
		PageOffset: pageOffset,
	})
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}

	nextPageToken := ""
	if r.NextPageOffset != nil {
		nextPageToken = strconv.Itoa(*r.NextPageOffset)
	}

	return &ListBuildsResult{
		Builds:        r.Builds,
		NextPageToken: nextPageToken,
		TotalSize:     r.TotalSize,
	}, nil
}

type DownloadBuildParams struct {
	ID uuid.UUID
}

// DownloadBuild opens the archive of a completed build.
// The caller must close the returned reader.
func (s *Service) DownloadBuild(ctx context.Context, params *DownloadBuildParams) (rc io.ReadCloser, err error) {
	ctx, span := tracer.Start(ctx, "Service.DownloadBuild", trace.WithAttributes(
		attribute.String("build.id", params.ID.String()),
	))
	defer func() { endSpan(span, err) }()

	result := DownloadResultError
	defer func() { s.recorder().IncDownloads(result) }()

	b, err := s.GetBuild(ctx, &GetBuildParams{ID: params.ID})
	if err != nil {
		return nil, fmt.Errorf("download build: %w", err)
	}
	if b == nil {
		result = DownloadResultNotFound
		return nil, fmt.Errorf("download build: %w", ErrBuildNotFound)
	}
	if b.Status != build.StatusCompleted {
		result = DownloadResultNotComplete
		return nil, fmt.Errorf("download build: %w", ErrBuildNotComplete)
	}

	key := build.ArtifactKey(b.ID)
	exists, err := s.Storage.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download build: %w", err)
	}
	if !exists {
		result = DownloadResultNoArtifact
		return nil, fmt.Errorf("download build: %w", ErrBuildResultNotFound)
	}

	rc, err = s.Storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download build: %w", err)
	}

	result = DownloadResultOK
	return rc, nil
}

type RunBuildParams struct {
	ID uuid.UUID
}

// RunBuild generates a waiting build.
// The build becomes active, then completed or failed, and no other status is written.
// A build that isn't waiting is left untouched so a redelivered job is harmless.
func (s *Service) RunBuild(ctx context.Context, params *RunBuildParams) (err error) {
	ctx, span := tracer.Start(ctx, "Service.RunBuild", trace.WithAttributes(
		attribute.String("build.id", params.ID.String()),
	))
	defer func() { endSpan(span, err) }()

	b, err := s.GetBuild(ctx, &GetBuildParams{ID: params.ID})
	if err != nil {
		return fmt.Errorf("run build: %w", err)
	}
	if b == nil {
		return fmt.Errorf("run build: %w", ErrBuildNotFound)
	}
	if b.Status != build.StatusWaiting {
		return fmt.Errorf("run build: %w", ErrBuildAlreadyStarted)
	}

	logger := s.logger().With("build_id", b.ID)
	startTime := s.now()

	// Another delivery of the same job may have activated the build since it was read.
	if err = s.updateStatus(ctx, b, build.StatusActive); errors.Is(err, ErrInvalidTransition) {
		return fmt.Errorf("run build: %w: %w", ErrBuildAlreadyStarted, err)
	} else if err != nil {
		s.fail(ctx, logger, b, startTime, err)
		return fmt.Errorf("run build: %w", err)
	}
	logger.Info("started build")

	err = s.Actions.Run(ctx, b.ActionID, ActionMessage, func(ctx context.Context, step *action.Step) error {
		return s.generate(ctx, logger, b, step)
	})
	if err != nil {
		s.fail(ctx, logger, b, startTime, err)
		return fmt.Errorf("run build: %w", err)
	}

	if err = s.updateStatus(ctx, b, build.StatusCompleted); err != nil {
		logger.Error("didn't complete build", "error", err)
		s.recorder().ObserveBuildRun(build.StatusFailed, s.now().Sub(startTime))
		return fmt.Errorf("run build: %w", err)
	}

	logger.Info("completed build")
	s.recorder().ObserveBuildRun(build.StatusCompleted, s.now().Sub(startTime))
	return nil
}

func (s *Service) generate(ctx context.Context, logger *slog.Logger, b *build.Build, step *action.Step) error {
	entities, err := s.Entities.GetEntitiesByVersions(ctx, &entity.GetEntitiesByVersionsParams{
		BuildID: b.ID,
		Include: EntitiesInclude,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	roles, err := s.AppRoles.GetAppRoles(ctx, &entity.GetAppRolesParams{AppID: b.AppID})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	logger.Info("prepared generation", "entities", len(entities), "roles", len(roles))
	err = s.Actions.LogInfo(ctx, step, fmt.Sprintf("Prepared %d entities and %d roles", len(entities), len(roles)))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	archive := &bytes.Buffer{}
	err = s.Generator.Generate(ctx, archive, &GenerateParams{
		Build:    b,
		Entities: entities,
		Roles:    roles,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	key := build.ArtifactKey(b.ID)
	size := archive.Len()
	if err = s.Storage.Put(ctx, key, archive); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	logger.Info("stored archive", "key", key, "size", size)
	err = s.Actions.LogInfo(ctx, step, fmt.Sprintf("Stored %s (%d bytes)", key, size))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	return nil
}

// fail writes the failed status after cause stopped the build.
// The write error is only logged because cause is what the caller returns.
func (s *Service) fail(ctx context.Context, logger *slog.Logger, b *build.Build, startTime time.Time, cause error) {
	logger.Error("build failed", "error", cause)
	if err := s.updateStatus(ctx, b, build.StatusFailed); err != nil {
		logger.Error("didn't mark build as failed", "error", err)
	}
	s.recorder().ObserveBuildRun(build.StatusFailed, s.now().Sub(startTime))
}

// updateStatus moves b forward to status.
// It fails with ErrInvalidTransition when the move is backward or the stored status changed since b was read.
func (s *Service) updateStatus(ctx context.Context, b *build.Build, status build.Status) error {
	if !b.Status.CanTransitionTo(status) {
		return fmt.Errorf("update status from %s to %s: %w", b.Status, status, ErrInvalidTransition)
	}

	updated, err := s.Database.UpdateBuild(ctx, &DatabaseUpdateBuildParams{
		ID:         b.ID,
		Status:     status,
		FromStatus: b.Status,
	})
	if err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	b.Status = updated.Status
	return nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) recorder() Recorder {
	if s.Recorder == nil {
		return NoopRecorder{}
	}
	return s.Recorder
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
