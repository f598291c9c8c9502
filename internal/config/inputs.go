package config

import (
	"os"
	"strings"
)

// Task input names. On the CI host each is read from INPUT_<UPPER NAME>.
const (
	InputServiceConnection = "serviceConnection"
	InputURI               = "dtrackURI"
	InputAPIKey            = "dtrackAPIKey"
	InputCAFilePath        = "caFilePath"
	InputBomFilePath       = "bomFilePath"

	InputProjectID          = "dtrackProjId"
	InputProjectName        = "dtrackProjName"
	InputProjectVersion     = "dtrackProjVersion"
	InputProjectDescription = "dtrackProjDescription"
	InputProjectClassifier  = "dtrackProjClassifier"
	InputProjectSwidTagID   = "dtrackProjSwidTagId"
	InputProjectGroup       = "dtrackProjGroup"
	InputProjectTags        = "dtrackProjTags"
	InputProjectAutoCreate  = "dtrackProjAutoCreate"
	InputParentID           = "dtrackParentProjId"
	InputParentName         = "dtrackParentProjName"
	InputParentVersion      = "dtrackParentProjVersion"
	InputIsLatest           = "dtrackIsLatest"

	InputThresholdAction        = "thresholdAction"
	InputThresholdCritical      = "thresholdCritical"
	InputThresholdHigh          = "thresholdHigh"
	InputThresholdMedium        = "thresholdMedium"
	InputThresholdLow           = "thresholdLow"
	InputThresholdUnassigned    = "thresholdUnassigned"
	InputThresholdPolicyFail    = "thresholdpolicyViolationsFail"
	InputThresholdPolicyWarn    = "thresholdpolicyViolationsWarn"
	InputThresholdPolicyInfo    = "thresholdpolicyViolationsInfo"
	InputThresholdPolicyTotal   = "thresholdpolicyViolationsTotal"
	InputThresholdReportAll     = "thresholdReportAll"
	InputThresholdPolicy        = "thresholdPolicy"
	InputThresholdPolicyMessage = "thresholdPolicyMessage"
)

// Inputs holds raw task inputs by name. Later sources override earlier ones.
type Inputs map[string]string

// Get returns the trimmed input value, or "" when unset
func (in Inputs) Get(name string) string {
	return strings.TrimSpace(in[name])
}

// merge copies every non-empty value of other into in
func (in Inputs) merge(other Inputs) {
	for name, value := range other {
		if strings.TrimSpace(value) != "" {
			in[name] = value
		}
	}
}

// inputEnvName maps an input name to its environment variable
func inputEnvName(name string) string {
	return "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
}

// envInputs reads every known input from the environment
func envInputs() Inputs {
	in := Inputs{}
	for _, name := range allInputs {
		if value, ok := os.LookupEnv(inputEnvName(name)); ok {
			in[name] = value
		}
	}
	return in
}

// endpointURL returns the URL of a task-host service connection
func endpointURL(id string) string {
	return strings.TrimSpace(os.Getenv("ENDPOINT_URL_" + id))
}

// endpointAuthParameter returns one authorization parameter of a service connection
func endpointAuthParameter(id, key string) string {
	return strings.TrimSpace(os.Getenv("ENDPOINT_AUTH_PARAMETER_" + id + "_" + strings.ToUpper(key)))
}

var allInputs = []string{
	InputServiceConnection, InputURI, InputAPIKey, InputCAFilePath, InputBomFilePath,
	InputProjectID, InputProjectName, InputProjectVersion, InputProjectDescription,
	InputProjectClassifier, InputProjectSwidTagID, InputProjectGroup, InputProjectTags,
	InputProjectAutoCreate, InputParentID, InputParentName, InputParentVersion, InputIsLatest,
	InputThresholdAction, InputThresholdCritical, InputThresholdHigh, InputThresholdMedium,
	InputThresholdLow, InputThresholdUnassigned, InputThresholdPolicyFail, InputThresholdPolicyWarn,
	InputThresholdPolicyInfo, InputThresholdPolicyTotal, InputThresholdReportAll,
	InputThresholdPolicy, InputThresholdPolicyMessage,
}
