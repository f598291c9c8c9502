package main

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/daimoniac/dtrack-upload/internal/config"
)

type flagSpec struct {
	name  string
	input string
	usage string
	// boolean flags may be given without a value
	boolean bool
}

var connectionFlags = []flagSpec{
	{name: "url", input: config.InputURI, usage: "Dependency-Track base URL"},
	{name: "api-key", input: config.InputAPIKey, usage: "Dependency-Track API key"},
	{name: "service-connection", input: config.InputServiceConnection, usage: "task host service connection id"},
	{name: "ca-file", input: config.InputCAFilePath, usage: "PEM bundle replacing the system trust store"},
}

var projectFlags = []flagSpec{
	{name: "project-id", input: config.InputProjectID, usage: "UUID of an existing project"},
	{name: "project-name", input: config.InputProjectName, usage: "project name"},
	{name: "project-version", input: config.InputProjectVersion, usage: "project version"},
	{name: "parent-id", input: config.InputParentID, usage: "UUID of the parent project"},
	{name: "parent-name", input: config.InputParentName, usage: "name of the parent project"},
	{name: "parent-version", input: config.InputParentVersion, usage: "version of the parent project"},
}

var metadataFlags = []flagSpec{
	{name: "description", input: config.InputProjectDescription, usage: "project description"},
	{name: "classifier", input: config.InputProjectClassifier, usage: "project classifier, e.g. APPLICATION"},
	{name: "swid-tag-id", input: config.InputProjectSwidTagID, usage: "SWID tag id"},
	{name: "group", input: config.InputProjectGroup, usage: "project group (namespace)"},
	{name: "is-latest", input: config.InputIsLatest, usage: "mark this version as the latest", boolean: true},
}

var thresholdFlags = []flagSpec{
	{name: "threshold-action", input: config.InputThresholdAction, usage: "none, warn or error"},
	{name: "threshold-critical", input: config.InputThresholdCritical, usage: "maximum critical vulnerabilities (-1 disables)"},
	{name: "threshold-high", input: config.InputThresholdHigh, usage: "maximum high vulnerabilities"},
	{name: "threshold-medium", input: config.InputThresholdMedium, usage: "maximum medium vulnerabilities"},
	{name: "threshold-low", input: config.InputThresholdLow, usage: "maximum low vulnerabilities"},
	{name: "threshold-unassigned", input: config.InputThresholdUnassigned, usage: "maximum unassigned vulnerabilities"},
	{name: "threshold-policy-fail", input: config.InputThresholdPolicyFail, usage: "maximum failing policy violations"},
	{name: "threshold-policy-warn", input: config.InputThresholdPolicyWarn, usage: "maximum warning policy violations"},
	{name: "threshold-policy-info", input: config.InputThresholdPolicyInfo, usage: "maximum informational policy violations"},
	{name: "threshold-policy-total", input: config.InputThresholdPolicyTotal, usage: "maximum policy violations overall"},
	{name: "report-all", input: config.InputThresholdReportAll, usage: "report every exceeded threshold, not only the first", boolean: true},
	{name: "policy", input: config.InputThresholdPolicy, usage: "CEL expression over the metrics that must hold"},
	{name: "policy-message", input: config.InputThresholdPolicyMessage, usage: "message reported when the policy does not hold"},
}

// inputFlags binds command-line flags to task inputs
type inputFlags struct {
	specs  []flagSpec
	values map[string]*string
	tags   []string
	fs     *pflag.FlagSet
}

func newInputFlags(fs *pflag.FlagSet, groups ...[]flagSpec) *inputFlags {
	f := &inputFlags{values: make(map[string]*string), fs: fs}
	for _, group := range groups {
		for _, spec := range group {
			f.specs = append(f.specs, spec)
			f.values[spec.name] = fs.String(spec.name, "", spec.usage)
			if spec.boolean {
				fs.Lookup(spec.name).NoOptDefVal = "true"
			}
		}
	}
	return f
}

// withTags adds the repeatable --tag flag
func (f *inputFlags) withTags() *inputFlags {
	f.fs.StringArrayVar(&f.tags, "tag", nil, "project tag, repeatable")
	return f
}

// overrides returns the inputs given on the command line
func (f *inputFlags) overrides() config.Inputs {
	in := config.Inputs{}
	for _, spec := range f.specs {
		if f.fs.Changed(spec.name) {
			in[spec.input] = *f.values[spec.name]
		}
	}
	if len(f.tags) > 0 {
		in[config.InputProjectTags] = strings.Join(f.tags, "\n")
	}
	return in
}
