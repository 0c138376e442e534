package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/entity"
)

var (
	testBuildID  = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")
	testActionID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")
	testUserID   = uuid.MustParse("cccccccc-0000-0000-0000-000000000000")
	testAppID    = uuid.MustParse("dddddddd-0000-0000-0000-000000000000")
	testNow      = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
)

type testService struct {
	*Service
	calls     *calls
	database  *SpyDatabase
	storage   *SpyStorage
	broker    *SpyBroker
	actions   *SpyActions
	entities  *StubEntities
	appRoles  *StubAppRoles
	generator *StubGenerator
	recorder  *SpyRecorder
}

func newTestService() *testService {
	c := &calls{}
	ts := &testService{
		calls:     c,
		database:  &SpyDatabase{Calls: c},
		storage:   &SpyStorage{Calls: c},
		broker:    &SpyBroker{Calls: c},
		actions:   &SpyActions{Calls: c},
		entities:  &StubEntities{Calls: c},
		appRoles:  &StubAppRoles{Calls: c},
		generator: &StubGenerator{Calls: c},
		recorder:  &SpyRecorder{},
	}
	ts.Service = &Service{
		Database:  ts.database,
		Storage:   ts.storage,
		Broker:    ts.broker,
		Actions:   ts.actions,
		Entities:  ts.entities,
		AppRoles:  ts.appRoles,
		Generator: ts.generator,
		Recorder:  ts.recorder,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return testNow },
	}
	return ts
}

func testBuild(status build.Status) func() (*build.Build, error) {
	return func() (*build.Build, error) {
		return &build.Build{
			ID:       testBuildID,
			Status:   status,
			UserID:   testUserID,
			AppID:    testAppID,
			Version:  "1.0.1",
			Message:  "new build",
			ActionID: testActionID,
		}, nil
	}
}

func TestServiceCreateBuild(t *testing.T) {
	t.Run("stores a waiting build and queues it", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		entityVersionID := uuid.MustParse("eeeeeeee-0000-0000-0000-000000000000")
		s.entities.LatestVersions = []*entity.Version{{ID: entityVersionID, EntityID: uuid.New(), VersionNumber: 3}}

		b, err := s.CreateBuild(ctx, &CreateBuildParams{
			UserID:  testUserID,
			AppID:   testAppID,
			Version: "1.0.1",
			Message: "new build",
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		if got, want := s.calls.list, []string{callGetLatestVersions, callCreateBuild, callQueue}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.entities.LatestVersionsParams[0], (&entity.GetLatestVersionsParams{AppID: testAppID}); !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		completedAt := testNow
		want := &DatabaseCreateBuildParams{
			CreatedAt:        testNow,
			UserID:           testUserID,
			AppID:            testAppID,
			Version:          "1.0.1",
			Message:          "new build",
			Status:           build.StatusWaiting,
			EntityVersionIDs: []uuid.UUID{entityVersionID},
			BlockVersionIDs:  []uuid.UUID{},
			ActionSteps: []*DatabaseCreateBuildActionStep{{
				Message:     "Adding task to queue",
				Status:      action.StepStatusSuccess,
				CompletedAt: &completedAt,
				Logs: []*DatabaseCreateBuildActionLog{
					{Level: action.LevelInfo, Message: "create build generation task", Meta: map[string]any{}},
					{Level: action.LevelInfo, Message: "Build Version: 1.0.1", Meta: map[string]any{}},
					{Level: action.LevelInfo, Message: "Build message: new build", Meta: map[string]any{}},
				},
			}},
		}
		if got := s.database.CreateBuildParams[0]; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		if got, want := b.Status, build.StatusWaiting; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := b.CreatedAt, testNow; !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		if got, want := s.broker.Names, []string{CreateGeneratedAppPath}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		var msg CreateGeneratedAppMessage
		if err = json.Unmarshal(s.broker.Payloads[0], &msg); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := msg.BuildID, b.ID; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := string(s.broker.Payloads[0]), `{"buildId":"`+b.ID.String()+`"}`; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}

		if got, want := s.recorder.Created, 1; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("doesn't store a build with an invalid version", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()

		_, err := s.CreateBuild(ctx, &CreateBuildParams{
			UserID:  testUserID,
			AppID:   testAppID,
			Version: "not a version",
			Message: "new build",
		})
		if got, want := err, ErrInvalidVersion; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if len(s.calls.list) != 0 {
			t.Fatalf("got %v, want no calls", s.calls.list)
		}
	})

	t.Run("keeps the stored build when queueing fails", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		queueErr := errors.New("connection refused")
		s.broker.QueueErr = queueErr

		_, err := s.CreateBuild(ctx, &CreateBuildParams{
			UserID:  testUserID,
			AppID:   testAppID,
			Version: "1.0.1",
			Message: "new build",
		})
		if got, want := err, queueErr; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.calls.list, []string{callGetLatestVersions, callCreateBuild, callQueue}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestServiceGetBuild(t *testing.T) {
	t.Run("returns nil for a missing build", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()

		b, err := s.GetBuild(ctx, &GetBuildParams{ID: testBuildID})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if b != nil {
			t.Fatalf("got %v, want nil", b)
		}
	})

	t.Run("returns database errors", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		dbErr := errors.New("connection reset")
		s.database.GetBuildFunc = func() (*build.Build, error) { return nil, dbErr }

		_, err := s.GetBuild(ctx, &GetBuildParams{ID: testBuildID})
		if got, want := err, dbErr; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}

func TestServiceListBuilds(t *testing.T) {
	tests := []struct {
		name       string
		params     *ListBuildsParams
		wantLimit  int
		wantOffset int
		wantErr    error
	}{
		{"uses the default page size", &ListBuildsParams{}, DefaultPageSize, 0, nil},
		{"constrains the page size", &ListBuildsParams{PageSize: 1000}, MaxPageSize, 0, nil},
		{"uses the page token as offset", &ListBuildsParams{PageSize: 10, PageToken: "20"}, 10, 20, nil},
		{"rejects a malformed page token", &ListBuildsParams{PageToken: "abc"}, 0, 0, ErrInvalidPageToken},
		{"rejects a negative page token", &ListBuildsParams{PageToken: "-1"}, 0, 0, ErrInvalidPageToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestService()
			var gotParams *DatabaseListBuildsParams
			s.database.ListBuildsFunc = func(params *DatabaseListBuildsParams) (*DatabaseListBuildsResult, error) {
				gotParams = params
				next := params.PageOffset + params.PageLimit
				return &DatabaseListBuildsResult{Builds: []*build.Build{}, NextPageOffset: &next, TotalSize: 100}, nil
			}

			r, err := s.ListBuilds(ctx, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %q, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("didn't want %q", err)
			}

			if gotParams.PageLimit != tt.wantLimit || gotParams.PageOffset != tt.wantOffset {
				t.Fatalf("got limit %d offset %d, want limit %d offset %d", gotParams.PageLimit, gotParams.PageOffset, tt.wantLimit, tt.wantOffset)
			}
			if got, want := r.TotalSize, 100; got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
			if r.NextPageToken == "" {
				t.Fatal("want a next page token")
			}
		})
	}

	t.Run("returns no next page token on the last page", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()

		r, err := s.ListBuilds(ctx, &ListBuildsParams{})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := r.NextPageToken, ""; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}

func TestServiceDownloadBuild(t *testing.T) {
	t.Run("fails for a missing build without touching storage", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()

		_, err := s.DownloadBuild(ctx, &DownloadBuildParams{ID: testBuildID})
		if got, want := err, ErrBuildNotFound; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.calls.list, []string{callGetBuild}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	for _, status := range []build.Status{build.StatusWaiting, build.StatusActive, build.StatusFailed} {
		t.Run("fails for a "+string(status)+" build without touching storage", func(t *testing.T) {
			ctx := context.Background()
			s := newTestService()
			s.database.GetBuildFunc = testBuild(status)

			_, err := s.DownloadBuild(ctx, &DownloadBuildParams{ID: testBuildID})
			if got, want := err, ErrBuildNotComplete; !errors.Is(got, want) {
				t.Fatalf("got %q, want %q", got, want)
			}
			if got, want := s.calls.list, []string{callGetBuild}; !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}

	t.Run("fails when the archive doesn't exist", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusCompleted)
		s.storage.ExistsResult = false

		_, err := s.DownloadBuild(ctx, &DownloadBuildParams{ID: testBuildID})
		if got, want := err, ErrBuildResultNotFound; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.calls.list, []string{callGetBuild, callExists}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("returns the stream of the archive", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusCompleted)
		s.storage.ExistsResult = true
		stream := nopReadCloser{bytes.NewReader([]byte("zip"))}
		s.storage.OpenResult = stream

		got, err := s.DownloadBuild(ctx, &DownloadBuildParams{ID: testBuildID})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}

		if want := io.ReadCloser(stream); got != want {
			t.Fatalf("got %v, want the stream from storage", got)
		}
		if got, want := s.calls.list, []string{callGetBuild, callExists, callOpen}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		key := testBuildID.String() + ".zip"
		if got, want := s.storage.Keys, []string{key, key}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.recorder.Downloads, []string{DownloadResultOK}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestServiceRunBuild(t *testing.T) {
	t.Run("activates, generates and completes the build", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)
		s.entities.Entities = []*entity.Entity{{Name: "customer"}}
		s.appRoles.Roles = []*entity.AppRole{{Name: "admin"}}

		if err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID}); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		want := []string{
			callGetBuild,
			callUpdateBuild,
			callRun,
			callGetEntitiesByVersions,
			callGetAppRoles,
			callLogInfo,
			callGenerate,
			callPut,
			callLogInfo,
			callUpdateBuild,
		}
		if got := s.calls.list; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.database.updatedStatuses(), []build.Status{build.StatusActive, build.StatusCompleted}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.database.fromStatuses(), []build.Status{build.StatusWaiting, build.StatusActive}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		if got, want := s.actions.ActionIDs, []uuid.UUID{testActionID}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.actions.Messages, []string{ActionMessage}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		wantByVersions := &entity.GetEntitiesByVersionsParams{BuildID: testBuildID, Include: EntitiesInclude}
		if got := s.entities.ByVersionsParams[0]; !reflect.DeepEqual(got, wantByVersions) {
			t.Fatalf("got %v, want %v", got, wantByVersions)
		}
		if got, want := s.appRoles.Params[0], (&entity.GetAppRolesParams{AppID: testAppID}); !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := string(s.storage.Objects[testBuildID.String()+".zip"]), "archive of "+testBuildID.String(); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.recorder.Runs, []build.Status{build.StatusCompleted}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("fails the build when generation fails", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)
		entitiesErr := errors.New("connection reset")
		s.entities.GetEntitiesByVersionsErr = entitiesErr

		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, entitiesErr; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}

		if got, want := s.database.updatedStatuses(), []build.Status{build.StatusActive, build.StatusFailed}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.recorder.Runs, []build.Status{build.StatusFailed}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("fails the build when storing the archive fails", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)
		putErr := errors.New("bucket unavailable")
		s.storage.PutErr = putErr

		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, putErr; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.database.updatedStatuses(), []build.Status{build.StatusActive, build.StatusFailed}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("fails the build when it can't be activated", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)
		activateErr := errors.New("connection reset")
		s.database.UpdateBuildFunc = func(params *DatabaseUpdateBuildParams) error {
			if params.Status == build.StatusActive {
				return activateErr
			}
			return nil
		}

		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, activateErr; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.calls.list, []string{callGetBuild, callUpdateBuild, callUpdateBuild}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := s.database.updatedStatuses(), []build.Status{build.StatusActive, build.StatusFailed}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("doesn't write a third status when completing fails", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)
		completeErr := errors.New("connection reset")
		s.database.UpdateBuildFunc = func(params *DatabaseUpdateBuildParams) error {
			if params.Status == build.StatusCompleted {
				return completeErr
			}
			return nil
		}

		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, completeErr; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.database.updatedStatuses(), []build.Status{build.StatusActive, build.StatusCompleted}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("stops when another delivery activated the build first", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)
		s.database.UpdateBuildFunc = func(params *DatabaseUpdateBuildParams) error {
			return ErrInvalidTransition
		}

		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, ErrBuildAlreadyStarted; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.calls.list, []string{callGetBuild, callUpdateBuild}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got := len(s.recorder.Runs); got != 0 {
			t.Fatalf("got %d recorded runs, want 0", got)
		}
	})

	t.Run("doesn't move a completed build back for a stale delivery", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()
		stored := build.StatusWaiting
		s.database.StoredStatus = &stored
		// Both deliveries read the build before either of them wrote.
		s.database.GetBuildFunc = testBuild(build.StatusWaiting)

		if err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID}); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		s.storage.PutErr = errors.New("bucket unavailable")
		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, ErrBuildAlreadyStarted; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}

		if got, want := stored, build.StatusCompleted; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		wantStatuses := []build.Status{build.StatusActive, build.StatusCompleted, build.StatusActive}
		if got := s.database.updatedStatuses(); !reflect.DeepEqual(got, wantStatuses) {
			t.Fatalf("got %v, want %v", got, wantStatuses)
		}
		puts := 0
		for _, call := range s.calls.list {
			if call == callPut {
				puts++
			}
		}
		if got, want := puts, 1; got != want {
			t.Fatalf("got %d puts, want %d", got, want)
		}
	})

	t.Run("fails for a missing build without writes", func(t *testing.T) {
		ctx := context.Background()
		s := newTestService()

		err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
		if got, want := err, ErrBuildNotFound; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := s.calls.list, []string{callGetBuild}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	for _, status := range []build.Status{build.StatusActive, build.StatusCompleted, build.StatusFailed} {
		t.Run("leaves a "+string(status)+" build untouched", func(t *testing.T) {
			ctx := context.Background()
			s := newTestService()
			s.database.GetBuildFunc = testBuild(status)

			err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID})
			if got, want := err, ErrBuildAlreadyStarted; !errors.Is(got, want) {
				t.Fatalf("got %q, want %q", got, want)
			}
			if got, want := s.calls.list, []string{callGetBuild}; !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestServiceUpdateStatus(t *testing.T) {
	tests := []struct {
		from, to build.Status
	}{
		{from: build.StatusCompleted, to: build.StatusActive},
		{from: build.StatusFailed, to: build.StatusActive},
		{from: build.StatusCompleted, to: build.StatusFailed},
		{from: build.StatusActive, to: build.StatusWaiting},
		{from: build.StatusWaiting, to: build.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			ctx := context.Background()
			s := newTestService()
			b := &build.Build{ID: testBuildID, Status: tt.from}

			err := s.updateStatus(ctx, b, tt.to)
			if got, want := err, ErrInvalidTransition; !errors.Is(got, want) {
				t.Fatalf("got %q, want %q", got, want)
			}
			if got := s.calls.list; len(got) != 0 {
				t.Fatalf("got %v, want no calls", got)
			}
			if got, want := b.Status, tt.from; got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestServiceWithoutRecorder(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	s.Recorder = nil
	s.database.GetBuildFunc = testBuild(build.StatusWaiting)

	if err := s.RunBuild(ctx, &RunBuildParams{ID: testBuildID}); err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if _, ok := s.Service.recorder().(NoopRecorder); !ok {
		t.Fatalf("got %T, want NoopRecorder", s.Service.recorder())
	}
	if got, want := s.database.updatedStatuses(), []build.Status{build.StatusActive, build.StatusCompleted}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
