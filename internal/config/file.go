package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/threshold"
)

// FileConfig is the optional YAML defaults file (dtrack.yml)
type FileConfig struct {
	Server     FileServer     `yaml:"server"`
	Project    FileProject    `yaml:"project"`
	Bom        string         `yaml:"bom,omitempty"`
	Thresholds FileThresholds `yaml:"thresholds"`
	Polling    FilePolling    `yaml:"polling"`
	History    FileHistory    `yaml:"history"`
}

// FileServer holds connection defaults. The API key is never read from the file.
type FileServer struct {
	URL               string `yaml:"url,omitempty"`
	CAFile            string `yaml:"caFile,omitempty"`
	Timeout           string `yaml:"timeout,omitempty"`
	ServiceConnection string `yaml:"serviceConnection,omitempty"`
}

// FileProject holds project defaults
type FileProject struct {
	ID            string   `yaml:"id,omitempty"`
	Name          string   `yaml:"name,omitempty"`
	Version       string   `yaml:"version,omitempty"`
	AutoCreate    *bool    `yaml:"autoCreate,omitempty"`
	ParentID      string   `yaml:"parentId,omitempty"`
	ParentName    string   `yaml:"parentName,omitempty"`
	ParentVersion string   `yaml:"parentVersion,omitempty"`
	Description   string   `yaml:"description,omitempty"`
	Classifier    string   `yaml:"classifier,omitempty"`
	SwidTagID     string   `yaml:"swidTagId,omitempty"`
	Group         string   `yaml:"group,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
	IsLatest      *bool    `yaml:"isLatest,omitempty"`
}

// FileThresholds holds gate defaults. Ceilings are pointers so that an
// explicit 0 differs from an absent key.
type FileThresholds struct {
	Action                string                  `yaml:"action,omitempty"`
	Critical              *int                    `yaml:"critical,omitempty"`
	High                  *int                    `yaml:"high,omitempty"`
	Medium                *int                    `yaml:"medium,omitempty"`
	Low                   *int                    `yaml:"low,omitempty"`
	Unassigned            *int                    `yaml:"unassigned,omitempty"`
	PolicyViolationsFail  *int                    `yaml:"policyViolationsFail,omitempty"`
	PolicyViolationsWarn  *int                    `yaml:"policyViolationsWarn,omitempty"`
	PolicyViolationsInfo  *int                    `yaml:"policyViolationsInfo,omitempty"`
	PolicyViolationsTotal *int                    `yaml:"policyViolationsTotal,omitempty"`
	ReportAll             *bool                   `yaml:"reportAll,omitempty"`
	Policy                *threshold.PolicyConfig `yaml:"policy,omitempty"`
}

// FilePolling holds polling defaults
type FilePolling struct {
	Interval    string `yaml:"interval,omitempty"`
	MaxAttempts int    `yaml:"maxAttempts,omitempty"`
}

// FileHistory holds run history defaults
type FileHistory struct {
	Path  string `yaml:"path,omitempty"`
	Limit int    `yaml:"limit,omitempty"`
	Keep  int    `yaml:"keep,omitempty"`
}

// LoadFile reads and parses a defaults file. A missing file yields an empty
// FileConfig and no error.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil
		}
		return nil, errors.NewConfigurationf("failed to read config file %s: %v", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.NewConfigurationf("failed to parse config file %s: %v", path, err)
	}

	return &fc, nil
}

// inputs converts the file into task inputs so that env and flags can
// override it key by key.
func (fc *FileConfig) inputs() Inputs {
	in := Inputs{
		InputServiceConnection: fc.Server.ServiceConnection,
		InputURI:               fc.Server.URL,
		InputCAFilePath:        fc.Server.CAFile,
		InputBomFilePath:       fc.Bom,

		InputProjectID:          fc.Project.ID,
		InputProjectName:        fc.Project.Name,
		InputProjectVersion:     fc.Project.Version,
		InputProjectDescription: fc.Project.Description,
		InputProjectClassifier:  fc.Project.Classifier,
		InputProjectSwidTagID:   fc.Project.SwidTagID,
		InputProjectGroup:       fc.Project.Group,
		InputProjectTags:        strings.Join(fc.Project.Tags, "\n"),
		InputProjectAutoCreate:  boolInput(fc.Project.AutoCreate),
		InputParentID:           fc.Project.ParentID,
		InputParentName:         fc.Project.ParentName,
		InputParentVersion:      fc.Project.ParentVersion,
		InputIsLatest:           boolInput(fc.Project.IsLatest),

		InputThresholdAction:      fc.Thresholds.Action,
		InputThresholdCritical:    intInput(fc.Thresholds.Critical),
		InputThresholdHigh:        intInput(fc.Thresholds.High),
		InputThresholdMedium:      intInput(fc.Thresholds.Medium),
		InputThresholdLow:         intInput(fc.Thresholds.Low),
		InputThresholdUnassigned:  intInput(fc.Thresholds.Unassigned),
		InputThresholdPolicyFail:  intInput(fc.Thresholds.PolicyViolationsFail),
		InputThresholdPolicyWarn:  intInput(fc.Thresholds.PolicyViolationsWarn),
		InputThresholdPolicyInfo:  intInput(fc.Thresholds.PolicyViolationsInfo),
		InputThresholdPolicyTotal: intInput(fc.Thresholds.PolicyViolationsTotal),
		InputThresholdReportAll:   boolInput(fc.Thresholds.ReportAll),
	}
	if fc.Thresholds.Policy != nil {
		in[InputThresholdPolicy] = fc.Thresholds.Policy.Expression
		in[InputThresholdPolicyMessage] = fc.Thresholds.Policy.FailureMessage
	}

	// drop empty entries so Inputs only lists what the file sets
	for name, value := range in {
		if value == "" {
			delete(in, name)
		}
	}
	return in
}

func boolInput(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func intInput(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}
