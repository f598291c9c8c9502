package config

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/project"
	"github.com/daimoniac/dtrack-upload/internal/threshold"
)

const (
	defaultConfigPath   = "dtrack.yml"
	defaultPollInterval = 2 * time.Second
	defaultHTTPTimeout  = 5 * time.Minute
	defaultHistoryLimit = 20
	defaultHistoryKeep  = 100
)

// Load builds the configuration from dtrack.yml defaults, INPUT_* environment
// variables and finally overrides (usually command-line flags).
func Load(overrides Inputs) (*Config, error) {
	configPath := getEnv("DTRACK_CONFIG", defaultConfigPath)

	fc, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	in := fc.inputs()
	in.merge(envInputs())
	in.merge(overrides)

	cfg := &Config{
		ConfigPath:  configPath,
		BomFilePath: in.Get(InputBomFilePath),
	}

	if err := cfg.loadServer(in, fc); err != nil {
		return nil, err
	}
	if err := cfg.loadProject(in); err != nil {
		return nil, err
	}
	if err := cfg.loadThreshold(in); err != nil {
		return nil, err
	}

	pollInterval, err := parseDuration("polling.interval", fc.Polling.Interval, defaultPollInterval)
	if err != nil {
		return nil, err
	}
	maxAttempts := fc.Polling.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	historyLimit := fc.History.Limit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	historyKeep := fc.History.Keep
	if historyKeep <= 0 {
		historyKeep = defaultHistoryKeep
	}

	cfg.Polling = PollingConfig{
		Interval:    getEnvDuration("POLL_INTERVAL", pollInterval),
		MaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", maxAttempts),
	}
	cfg.RunTimeout = getEnvDuration("RUN_TIMEOUT", 0)
	cfg.History = HistoryConfig{
		Path:  getEnv("RUN_HISTORY_PATH", fc.History.Path),
		Limit: getEnvInt("RUN_HISTORY_LIMIT", historyLimit),
		Keep:  getEnvInt("RUN_HISTORY_KEEP", historyKeep),
	}
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = defaultHistoryLimit
	}
	if cfg.History.Keep <= 0 {
		cfg.History.Keep = defaultHistoryKeep
	}
	cfg.Observability = ObservabilityConfig{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "auto"),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		PushgatewayURL:  getEnv("PUSHGATEWAY_URL", ""),
		PushJob:         getEnv("PUSH_JOB", "dtrack_upload"),
	}

	return cfg, nil
}

func (c *Config) loadServer(in Inputs, fc *FileConfig) error {
	timeout, err := parseDuration("server.timeout", fc.Server.Timeout, defaultHTTPTimeout)
	if err != nil {
		return err
	}

	c.Server = ServerConfig{
		URL:               in.Get(InputURI),
		APIKey:            in.Get(InputAPIKey),
		CAFilePath:        in.Get(InputCAFilePath),
		Timeout:           getEnvDuration("HTTP_TIMEOUT", timeout),
		ServiceConnection: in.Get(InputServiceConnection),
	}

	// a service connection wins over the plain URI and key inputs
	if id := c.Server.ServiceConnection; id != "" {
		url := endpointURL(id)
		if url == "" {
			return errors.NewConfigurationf("service connection %s has no endpoint URL (ENDPOINT_URL_%s)", id, id)
		}
		c.Server.URL = url
		c.Server.APIKey = endpointAuthParameter(id, "password")
	}
	c.Server.URL = strings.TrimRight(c.Server.URL, "/")
	return nil
}

func (c *Config) loadProject(in Inputs) error {
	autoCreate, _, err := parseBool(InputProjectAutoCreate, in.Get(InputProjectAutoCreate))
	if err != nil {
		return err
	}

	c.Project = ProjectConfig{
		ID:            in.Get(InputProjectID),
		Name:          in.Get(InputProjectName),
		Version:       in.Get(InputProjectVersion),
		AutoCreate:    autoCreate,
		ParentID:      in.Get(InputParentID),
		ParentName:    in.Get(InputParentName),
		ParentVersion: in.Get(InputParentVersion),
		Description:   in.Get(InputProjectDescription),
		Classifier:    strings.ToUpper(in.Get(InputProjectClassifier)),
		SwidTagID:     in.Get(InputProjectSwidTagID),
		Group:         in.Get(InputProjectGroup),
		Tags:          project.SplitTags(in[InputProjectTags]),
	}

	isLatest, given, err := parseBool(InputIsLatest, in.Get(InputIsLatest))
	if err != nil {
		return err
	}
	if given {
		c.Project.IsLatest = &isLatest
	}
	return nil
}

func (c *Config) loadThreshold(in Inputs) error {
	action, err := threshold.ParseAction(in.Get(InputThresholdAction))
	if err != nil {
		return err
	}

	values := threshold.None()
	ceilings := []struct {
		input string
		dest  *int
	}{
		{InputThresholdCritical, &values.Critical},
		{InputThresholdHigh, &values.High},
		{InputThresholdMedium, &values.Medium},
		{InputThresholdLow, &values.Low},
		{InputThresholdUnassigned, &values.Unassigned},
		{InputThresholdPolicyFail, &values.PolicyViolationsFail},
		{InputThresholdPolicyWarn, &values.PolicyViolationsWarn},
		{InputThresholdPolicyInfo, &values.PolicyViolationsInfo},
		{InputThresholdPolicyTotal, &values.PolicyViolationsTotal},
	}
	for _, ceiling := range ceilings {
		v, err := threshold.Parse(ceiling.input, in.Get(ceiling.input))
		if err != nil {
			return err
		}
		*ceiling.dest = v
	}

	reportAll, _, err := parseBool(InputThresholdReportAll, in.Get(InputThresholdReportAll))
	if err != nil {
		return err
	}

	c.Threshold = ThresholdConfig{
		Action:    action,
		Values:    values,
		ReportAll: reportAll,
		Policy: threshold.PolicyConfig{
			Expression:     in.Get(InputThresholdPolicy),
			FailureMessage: in.Get(InputThresholdPolicyMessage),
		},
	}
	return nil
}

// Validate checks the settings every command needs: the server connection
// and an unambiguous way to find the project.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIDs(); err != nil {
		return err
	}

	p := c.Project
	if p.AutoCreate {
		if p.Name == "" || p.Version == "" {
			return errors.NewConfigurationf("%s and %s are required when %s is true",
				InputProjectName, InputProjectVersion, InputProjectAutoCreate)
		}
		return nil
	}
	if p.ID == "" && p.Name == "" {
		return errors.NewConfigurationf("%s or %s is required", InputProjectID, InputProjectName)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.URL == "" {
		return errors.NewConfigurationf("Dependency-Track URL is required (set %s or a service connection)", InputURI)
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return errors.NewConfigurationf("Dependency-Track URL must start with http:// or https://, got %q", c.Server.URL)
	}
	if c.Server.APIKey == "" {
		return errors.NewConfigurationf("Dependency-Track API key is required (set %s or a service connection)", InputAPIKey)
	}
	return nil
}

func (c *Config) validateIDs() error {
	p := c.Project
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return errors.NewConfigurationf("%s is not a valid UUID: %q", InputProjectID, p.ID)
		}
	}
	if p.ParentID != "" {
		if _, err := uuid.Parse(p.ParentID); err != nil {
			return errors.NewConfigurationf("%s is not a valid UUID: %q", InputParentID, p.ParentID)
		}
	}
	if p.ParentVersion != "" && p.ParentName == "" {
		return errors.NewConfigurationf("%s requires %s", InputParentVersion, InputParentName)
	}
	return nil
}

// ValidateUpload is Validate plus the BOM file
func (c *Config) ValidateUpload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BomFilePath == "" {
		return errors.NewConfigurationf("%s is required", InputBomFilePath)
	}
	return nil
}

// ValidateCreate checks the inputs of an explicit project creation
func (c *Config) ValidateCreate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIDs(); err != nil {
		return err
	}
	if c.Project.Name == "" {
		return errors.NewConfigurationf("%s is required to create a project", InputProjectName)
	}
	return nil
}

// Desired returns the metadata the run should enforce on the project
func (c *Config) Desired() project.Desired {
	var d project.Desired
	if c.Project.Description != "" {
		d.Description = &c.Project.Description
	}
	if c.Project.Classifier != "" {
		d.Classifier = &c.Project.Classifier
	}
	if c.Project.SwidTagID != "" {
		d.SwidTagID = &c.Project.SwidTagID
	}
	if c.Project.Group != "" {
		d.Group = &c.Project.Group
	}
	d.Tags = c.Project.Tags
	d.IsLatest = c.Project.IsLatest
	return d
}
