package project

import (
	"context"
	"io"
	"testing"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/observability"
)

type fakeStore struct {
	project   *dtrack.Project
	getErr    error
	updateErr error
	getCalls  int
	patches   []dtrack.ProjectPatch
}

func (f *fakeStore) GetProject(_ context.Context, _ string) (*dtrack.Project, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	copied := *f.project
	return &copied, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, _ string, patch dtrack.ProjectPatch) (*dtrack.Project, error) {
	f.patches = append(f.patches, patch)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	updated := *f.project
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.IsLatest != nil {
		updated.IsLatest = *patch.IsLatest
	}
	return &updated, nil
}

func newTestUpdater(store Store) *Updater {
	return NewUpdater(store, observability.NewLoggerWithWriter(io.Discard, "error", "json"))
}

func TestUpdater_NoDesiredMetadataMakesNoCalls(t *testing.T) {
	store := &fakeStore{project: serverProject()}

	project, updated, err := newTestUpdater(store).Update(context.Background(), "u-1", Desired{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project != nil || updated {
		t.Errorf("expected nothing to happen, got %v %v", project, updated)
	}
	if store.getCalls != 0 || len(store.patches) != 0 {
		t.Errorf("expected zero network calls, got get=%d patch=%d", store.getCalls, len(store.patches))
	}
}

func TestUpdater_UnchangedSkipsPatch(t *testing.T) {
	store := &fakeStore{project: serverProject()}

	_, updated, err := newTestUpdater(store).Update(context.Background(), "u-1", Desired{
		Description: strPtr("payments service"),
		Tags:        []string{"B", "a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated {
		t.Error("expected no update")
	}
	if len(store.patches) != 0 {
		t.Errorf("expected no PATCH, got %d", len(store.patches))
	}
}

func TestUpdater_SendsChangedFields(t *testing.T) {
	store := &fakeStore{project: serverProject()}

	project, updated, err := newTestUpdater(store).Update(context.Background(), "u-1", Desired{
		Description: strPtr("rewritten"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated || project.Description != "rewritten" {
		t.Errorf("expected updated project, got %+v (updated=%v)", project, updated)
	}
	if len(store.patches) != 1 {
		t.Fatalf("expected one PATCH, got %d", len(store.patches))
	}
	patch := store.patches[0]
	if patch.IsLatest == nil || !*patch.IsLatest {
		t.Error("existing isLatest should be re-sent")
	}
	if patch.Group != nil || patch.Tags != nil {
		t.Errorf("unchanged fields leaked into patch: %+v", patch)
	}
}

func TestUpdater_PropagatesErrors(t *testing.T) {
	getErr := errors.Wrap(errors.ErrProjectNotFound, "get project", "u-1", errors.NewStatusError(500, "Internal Server Error", ""))
	store := &fakeStore{project: serverProject(), getErr: getErr}
	_, _, err := newTestUpdater(store).Update(context.Background(), "u-1", Desired{Description: strPtr("x")})
	if !errors.Is(err, errors.ErrProjectUpdate) {
		t.Errorf("a failed read during the update should be ErrProjectUpdate, got %v", err)
	}
	if !errors.Is(err, errors.ErrProjectNotFound) {
		t.Errorf("the read failure should stay reachable, got %v", err)
	}
	if len(store.patches) != 0 {
		t.Errorf("no PATCH expected after a failed read, got %d", len(store.patches))
	}

	updateErr := errors.Wrap(errors.ErrProjectUpdate, "update project", "u-1", errors.NewStatusError(500, "", ""))
	store = &fakeStore{project: serverProject(), updateErr: updateErr}
	_, _, err = newTestUpdater(store).Update(context.Background(), "u-1", Desired{Group: strPtr("x")})
	if !errors.Is(err, errors.ErrProjectUpdate) {
		t.Errorf("expected ErrProjectUpdate, got %v", err)
	}
}
