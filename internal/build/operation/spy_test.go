package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/entity"
)

const (
	callCreateBuild           = "CreateBuild"
	callGetBuild              = "GetBuild"
	callListBuilds            = "ListBuilds"
	callUpdateBuild           = "UpdateBuild"
	callExists                = "Exists"
	callOpen                  = "Open"
	callPut                   = "Put"
	callQueue                 = "Queue"
	callRun                   = "Run"
	callLogInfo               = "LogInfo"
	callGetLatestVersions     = "GetLatestVersions"
	callGetEntitiesByVersions = "GetEntitiesByVersions"
	callGetAppRoles           = "GetAppRoles"
	callGenerate              = "Generate"
)

// calls is shared by the doubles of a test to check the order across them.
type calls struct {
	list []string
}

func (c *calls) append(call string) {
	c.list = append(c.list, call)
}

type SpyDatabase struct {
	Calls *calls

	GetBuildFunc    func() (*build.Build, error)
	UpdateBuildFunc func(params *DatabaseUpdateBuildParams) error

	// StoredStatus, when set, makes UpdateBuild behave like a conditional write.
	StoredStatus *build.Status
	ListBuildsFunc  func(params *DatabaseListBuildsParams) (*DatabaseListBuildsResult, error)

	CreateBuildParams []*DatabaseCreateBuildParams
	UpdateBuildParams []*DatabaseUpdateBuildParams
}

func (d *SpyDatabase) CreateBuild(ctx context.Context, params *DatabaseCreateBuildParams) (*build.Build, error) {
	d.Calls.append(callCreateBuild)
	d.CreateBuildParams = append(d.CreateBuildParams, params)
	return &build.Build{
		ID:               uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000"),
		Status:           params.Status,
		CreatedAt:        params.CreatedAt,
		UserID:           params.UserID,
		AppID:            params.AppID,
		Version:          params.Version,
		Message:          params.Message,
		ActionID:         uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000"),
		EntityVersionIDs: params.EntityVersionIDs,
		BlockVersionIDs:  params.BlockVersionIDs,
	}, nil
}

func (d *SpyDatabase) GetBuild(ctx context.Context, params *DatabaseGetBuildParams) (*build.Build, error) {
	d.Calls.append(callGetBuild)
	if d.GetBuildFunc == nil {
		return nil, ErrNotFound
	}
	return d.GetBuildFunc()
}

func (d *SpyDatabase) ListBuilds(ctx context.Context, params *DatabaseListBuildsParams) (*DatabaseListBuildsResult, error) {
	d.Calls.append(callListBuilds)
	if d.ListBuildsFunc == nil {
		return &DatabaseListBuildsResult{Builds: []*build.Build{}}, nil
	}
	return d.ListBuildsFunc(params)
}

func (d *SpyDatabase) UpdateBuild(ctx context.Context, params *DatabaseUpdateBuildParams) (*build.Build, error) {
	d.Calls.append(callUpdateBuild)
	d.UpdateBuildParams = append(d.UpdateBuildParams, params)
	if d.UpdateBuildFunc != nil {
		if err := d.UpdateBuildFunc(params); err != nil {
			return nil, err
		}
	}
	if d.StoredStatus != nil {
		if *d.StoredStatus != params.FromStatus {
			return nil, ErrInvalidTransition
		}
		*d.StoredStatus = params.Status
	}
	return &build.Build{ID: params.ID, Status: params.Status}, nil
}

func (d *SpyDatabase) updatedStatuses() []build.Status {
	statuses := []build.Status{}
	for _, p := range d.UpdateBuildParams {
		statuses = append(statuses, p.Status)
	}
	return statuses
}

func (d *SpyDatabase) fromStatuses() []build.Status {
	statuses := []build.Status{}
	for _, p := range d.UpdateBuildParams {
		statuses = append(statuses, p.FromStatus)
	}
	return statuses
}

type SpyStorage struct {
	Calls *calls

	ExistsResult bool
	OpenResult   io.ReadCloser
	PutErr       error

	Keys    []string
	Objects map[string][]byte
}

func (s *SpyStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.Calls.append(callExists)
	s.Keys = append(s.Keys, key)
	return s.ExistsResult, nil
}

func (s *SpyStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.Calls.append(callOpen)
	s.Keys = append(s.Keys, key)
	return s.OpenResult, nil
}

func (s *SpyStorage) Put(ctx context.Context, key string, r io.Reader) error {
	s.Calls.append(callPut)
	s.Keys = append(s.Keys, key)
	if s.PutErr != nil {
		return s.PutErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.Objects == nil {
		s.Objects = map[string][]byte{}
	}
	s.Objects[key] = b
	return nil
}

type SpyBroker struct {
	Calls *calls

	QueueErr error

	Names    []string
	Payloads []json.RawMessage
}

func (b *SpyBroker) Queue(ctx context.Context, name string, payload any) error {
	b.Calls.append(callQueue)
	if b.QueueErr != nil {
		return b.QueueErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Names = append(b.Names, name)
	b.Payloads = append(b.Payloads, raw)
	return nil
}

func (b *SpyBroker) Consume(ctx context.Context, name string, handle BrokerHandleFunc) error {
	panic("unimplemented")
}

// SpyActions runs the step function in place of action.Service.
type SpyActions struct {
	Calls *calls

	ActionIDs []uuid.UUID
	Messages  []string
	Logs      []string
}

func (a *SpyActions) Run(ctx context.Context, actionID uuid.UUID, message string, f action.StepFunc) error {
	a.Calls.append(callRun)
	a.ActionIDs = append(a.ActionIDs, actionID)
	a.Messages = append(a.Messages, message)
	return f(ctx, &action.Step{ActionID: actionID, Message: message, Status: action.StepStatusRunning})
}

func (a *SpyActions) LogInfo(ctx context.Context, step *action.Step, message string) error {
	a.Calls.append(callLogInfo)
	a.Logs = append(a.Logs, message)
	return nil
}

type StubEntities struct {
	Calls *calls

	LatestVersions           []*entity.Version
	Entities                 []*entity.Entity
	GetEntitiesByVersionsErr error

	LatestVersionsParams []*entity.GetLatestVersionsParams
	ByVersionsParams     []*entity.GetEntitiesByVersionsParams
}

func (e *StubEntities) GetLatestVersions(ctx context.Context, params *entity.GetLatestVersionsParams) ([]*entity.Version, error) {
	e.Calls.append(callGetLatestVersions)
	e.LatestVersionsParams = append(e.LatestVersionsParams, params)
	return e.LatestVersions, nil
}

func (e *StubEntities) GetEntitiesByVersions(ctx context.Context, params *entity.GetEntitiesByVersionsParams) ([]*entity.Entity, error) {
	e.Calls.append(callGetEntitiesByVersions)
	e.ByVersionsParams = append(e.ByVersionsParams, params)
	if e.GetEntitiesByVersionsErr != nil {
		return nil, e.GetEntitiesByVersionsErr
	}
	return e.Entities, nil
}

type StubAppRoles struct {
	Calls *calls

	Roles  []*entity.AppRole
	Params []*entity.GetAppRolesParams
}

func (r *StubAppRoles) GetAppRoles(ctx context.Context, params *entity.GetAppRolesParams) ([]*entity.AppRole, error) {
	r.Calls.append(callGetAppRoles)
	r.Params = append(r.Params, params)
	return r.Roles, nil
}

type StubGenerator struct {
	Calls *calls
}

func (g *StubGenerator) Generate(ctx context.Context, w io.Writer, params *GenerateParams) error {
	g.Calls.append(callGenerate)
	_, err := w.Write([]byte("archive of " + params.Build.ID.String()))
	return err
}

type SpyRecorder struct {
	Created   int
	Runs      []build.Status
	Downloads []string
}

func (r *SpyRecorder) IncBuildsCreated() { r.Created++ }

func (r *SpyRecorder) ObserveBuildRun(status build.Status, _ time.Duration) {
	r.Runs = append(r.Runs, status)
}

func (r *SpyRecorder) IncDownloads(result string) { r.Downloads = append(r.Downloads, result) }

type nopReadCloser struct {
	*bytes.Reader
}

func (nopReadCloser) Close() error { return nil }
