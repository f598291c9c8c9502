package dtrack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a Dependency-Track date, serialized as epoch milliseconds.
// The zero value means "never".
type Timestamp int64

// Time converts the timestamp to UTC time. Zero maps to the Unix epoch.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// IsZero reports whether the timestamp was never set
func (t Timestamp) IsZero() bool {
	return t == 0
}

// UnmarshalJSON accepts epoch milliseconds, null, or an RFC 3339 string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = 0
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*t = Timestamp(parsed.UnixMilli())
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	*t = Timestamp(ms)
	return nil
}

// Tag is a project label
type Tag struct {
	Name string `json:"name"`
}

// ProjectRef points at another project, used for the parent link
type ProjectRef struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Project mirrors the subset of the Dependency-Track project model this tool reads
type Project struct {
	UUID          string      `json:"uuid"`
	Name          string      `json:"name"`
	Version       string      `json:"version,omitempty"`
	Description   string      `json:"description,omitempty"`
	Classifier    string      `json:"classifier,omitempty"`
	SwidTagID     string      `json:"swidTagId,omitempty"`
	Group         string      `json:"group,omitempty"`
	Tags          []Tag       `json:"tags,omitempty"`
	IsLatest      bool        `json:"isLatest"`
	Active        bool        `json:"active"`
	LastBomImport Timestamp   `json:"lastBomImport,omitempty"`
	Parent        *ProjectRef `json:"parent,omitempty"`
}

// TagNames returns the tag names in server order
func (p *Project) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, tag := range p.Tags {
		names = append(names, tag.Name)
	}
	return names
}

// ProjectPatch is the body of a partial project update. Nil fields are omitted.
type ProjectPatch struct {
	Description *string `json:"description,omitempty"`
	Classifier  *string `json:"classifier,omitempty"`
	SwidTagID   *string `json:"swidTagId,omitempty"`
	Group       *string `json:"group,omitempty"`
	Tags        []Tag   `json:"tags,omitempty"`
	IsLatest    *bool   `json:"isLatest,omitempty"`
}

// NewProject is the body used to create a project explicitly
type NewProject struct {
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Description string      `json:"description,omitempty"`
	Classifier  string      `json:"classifier,omitempty"`
	SwidTagID   string      `json:"swidTagId,omitempty"`
	Group       string      `json:"group,omitempty"`
	Tags        []Tag       `json:"tags,omitempty"`
	IsLatest    bool        `json:"isLatest"`
	Active      bool        `json:"active"`
	Parent      *ProjectRef `json:"parent,omitempty"`
}

// Metrics is a snapshot of a project's current vulnerability and policy counts
type Metrics struct {
	Critical              int       `json:"critical"`
	High                  int       `json:"high"`
	Medium                int       `json:"medium"`
	Low                   int       `json:"low"`
	Unassigned            int       `json:"unassigned"`
	Suppressed            int       `json:"suppressed"`
	PolicyViolationsFail  int       `json:"policyViolationsFail"`
	PolicyViolationsWarn  int       `json:"policyViolationsWarn"`
	PolicyViolationsInfo  int       `json:"policyViolationsInfo"`
	PolicyViolationsTotal int       `json:"policyViolationsTotal"`
	LastOccurrence        Timestamp `json:"lastOccurrence"`
}

// Parent addresses the parent of a child project, by UUID or by name and version
type Parent struct {
	UUID    string
	Name    string
	Version string
}

// IsZero reports whether no parent was given
func (p Parent) IsZero() bool {
	return p.UUID == "" && p.Name == ""
}

func (p Parent) String() string {
	if p.UUID != "" {
		return p.UUID
	}
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "@" + p.Version
}

// TargetKind selects how a BOM submission addresses its project
type TargetKind int

const (
	TargetExisting TargetKind = iota
	TargetCreate
	TargetCreateChild
)

func (k TargetKind) String() string {
	switch k {
	case TargetExisting:
		return "existing"
	case TargetCreate:
		return "create"
	case TargetCreateChild:
		return "create_child"
	default:
		return "unknown"
	}
}

// Target describes where a BOM goes. Build it with ExistingProject,
// NewProjectTarget or NewChildProjectTarget.
type Target struct {
	Kind      TargetKind
	ProjectID string
	Name      string
	Version   string
	Parent    Parent
	IsLatest  bool
}

// ExistingProject targets a project by UUID
func ExistingProject(projectID string) Target {
	return Target{Kind: TargetExisting, ProjectID: projectID}
}

// NewProjectTarget auto-creates a project from name and version
func NewProjectTarget(name, version string, isLatest bool) Target {
	return Target{Kind: TargetCreate, Name: name, Version: version, IsLatest: isLatest}
}

// NewChildProjectTarget auto-creates a project below an existing parent
func NewChildProjectTarget(name, version string, parent Parent, isLatest bool) Target {
	return Target{Kind: TargetCreateChild, Name: name, Version: version, Parent: parent, IsLatest: isLatest}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetExisting:
		return t.ProjectID
	case TargetCreateChild:
		return fmt.Sprintf("%s@%s (parent %s)", t.Name, t.Version, t.Parent)
	default:
		return t.Name + "@" + t.Version
	}
}

// formFields returns the multipart fields addressing the target, excluding the BOM
func (t Target) formFields() [][2]string {
	switch t.Kind {
	case TargetExisting:
		return [][2]string{{"project", t.ProjectID}}
	case TargetCreateChild:
		fields := [][2]string{
			{"autoCreate", "true"},
			{"projectName", t.Name},
			{"projectVersion", t.Version},
		}
		if t.Parent.UUID != "" {
			fields = append(fields, [2]string{"parentUUID", t.Parent.UUID})
		} else {
			fields = append(fields, [2]string{"parentName", t.Parent.Name})
			if t.Parent.Version != "" {
				fields = append(fields, [2]string{"parentVersion", t.Parent.Version})
			}
		}
		return append(fields, [2]string{"isLatest", fmt.Sprint(t.IsLatest)})
	default:
		return [][2]string{
			{"autoCreate", "true"},
			{"projectName", t.Name},
			{"projectVersion", t.Version},
			{"isLatest", fmt.Sprint(t.IsLatest)},
		}
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type processingResponse struct {
	Processing bool `json:"processing"`
}

type versionResponse struct {
	Version     string `json:"version"`
	Application string `json:"application"`
}
