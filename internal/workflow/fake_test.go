package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
)

// fakeGateway is an in-memory Dependency-Track. Projects are keyed by UUID;
// lookups match on name and version.
type fakeGateway struct {
	mu sync.Mutex

	projects map[string]*dtrack.Project
	nextID   int

	// processing answers for successive polls; the last value repeats
	processing []bool
	// lastOccurrence answers for successive metrics reads; the last value repeats
	occurrences []dtrack.Timestamp
	metrics     dtrack.Metrics
	version     string

	lookupErr  error
	submitErr  error
	pollErr    error
	metricsErr error

	calls       []string
	submissions []dtrack.Target
	patches     []dtrack.ProjectPatch
	created     []dtrack.NewProject
	polls       int
	metricReads int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		projects:   make(map[string]*dtrack.Project),
		processing: []bool{false},
		version:    "4.12.2",
	}
}

func (f *fakeGateway) addProject(p dtrack.Project) *dtrack.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := p
	f.projects[p.UUID] = &stored
	return &stored
}

func (f *fakeGateway) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeGateway) newID() string {
	f.nextID++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", f.nextID)
}

func (f *fakeGateway) LookupProjectID(_ context.Context, name, version string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("lookup")
	if f.lookupErr != nil {
		return "", f.lookupErr
	}

	var matches []string
	for id, p := range f.projects {
		if p.Name == name && (version == "" || p.Version == version) {
			matches = append(matches, id)
		}
	}
	switch {
	case len(matches) == 0:
		return "", nil
	case len(matches) > 1 && version == "":
		return "", &errors.OperationError{Kind: errors.ErrAmbiguousProject, Op: "lookup project", Target: name}
	default:
		return matches[0], nil
	}
}

func (f *fakeGateway) GetProject(_ context.Context, projectID string) (*dtrack.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get")
	p, ok := f.projects[projectID]
	if !ok {
		return nil, errors.Wrap(errors.ErrProjectNotFound, "get project", projectID, errors.NewStatusError(404, "", ""))
	}
	copied := *p
	return &copied, nil
}

func (f *fakeGateway) SubmitBom(_ context.Context, target dtrack.Target, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("submit")
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submissions = append(f.submissions, target)

	switch target.Kind {
	case dtrack.TargetExisting:
		p, ok := f.projects[target.ProjectID]
		if !ok {
			return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), errors.NewStatusError(404, "", ""))
		}
		p.LastBomImport = 1_700_000_000_000
	default:
		id := f.newID()
		f.projects[id] = &dtrack.Project{
			UUID:          id,
			Name:          target.Name,
			Version:       target.Version,
			IsLatest:      target.IsLatest,
			LastBomImport: 1_700_000_000_000,
		}
	}
	return "token-1", nil
}

func (f *fakeGateway) PollProcessing(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("poll")
	if f.pollErr != nil {
		return false, f.pollErr
	}
	i := f.polls
	if i >= len(f.processing) {
		i = len(f.processing) - 1
	}
	f.polls++
	return f.processing[i], nil
}

func (f *fakeGateway) GetCurrentMetrics(_ context.Context, _ string) (*dtrack.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("metrics")
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	snapshot := f.metrics
	if len(f.occurrences) > 0 {
		i := f.metricReads
		if i >= len(f.occurrences) {
			i = len(f.occurrences) - 1
		}
		snapshot.LastOccurrence = f.occurrences[i]
	} else {
		snapshot.LastOccurrence = 1_700_000_000_001
	}
	f.metricReads++
	return &snapshot, nil
}

func (f *fakeGateway) UpdateProject(_ context.Context, projectID string, patch dtrack.ProjectPatch) (*dtrack.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update")
	f.patches = append(f.patches, patch)
	p, ok := f.projects[projectID]
	if !ok {
		return nil, errors.Wrap(errors.ErrProjectUpdate, "update project", projectID, errors.NewStatusError(404, "", ""))
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.IsLatest != nil {
		p.IsLatest = *patch.IsLatest
	}
	copied := *p
	return &copied, nil
}

func (f *fakeGateway) CreateProject(_ context.Context, newProject dtrack.NewProject) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	f.created = append(f.created, newProject)
	for _, p := range f.projects {
		if p.Name == newProject.Name && p.Version == newProject.Version {
			return "", errors.Wrap(errors.ErrProjectCreation, "create project", newProject.Name, errors.NewStatusError(409, "", ""))
		}
	}
	id := f.newID()
	f.projects[id] = &dtrack.Project{UUID: id, Name: newProject.Name, Version: newProject.Version, Description: newProject.Description}
	return id, nil
}

func (f *fakeGateway) ServerVersion(_ context.Context) (*semver.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("version")
	return semver.NewVersion(f.version)
}
