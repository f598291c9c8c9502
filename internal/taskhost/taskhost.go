// Package taskhost reports the run outcome to the CI system hosting the task.
package taskhost

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Reporter reports warnings, outputs and the final result to a CI host
type Reporter interface {
	// Name identifies the host in logs
	Name() string
	Warning(msg string)
	// SetOutput exposes a value to later pipeline steps
	SetOutput(name, value string) error
	Succeeded(msg string)
	SucceededWithIssues(msg string)
	Failed(msg string)
}

// Detect picks the reporter for the current environment. Azure Pipelines
// sets TF_BUILD, GitHub Actions sets GITHUB_ACTIONS; anything else gets
// plain console lines.
func Detect(w io.Writer) Reporter {
	return detect(os.Getenv, w)
}

func detect(getenv func(string) string, w io.Writer) Reporter {
	switch {
	case strings.EqualFold(getenv("TF_BUILD"), "true"):
		return &AzurePipelines{w: w}
	case strings.EqualFold(getenv("GITHUB_ACTIONS"), "true"):
		return &GitHubActions{w: w, outputPath: getenv("GITHUB_OUTPUT")}
	default:
		return &Console{w: w}
	}
}

// AzurePipelines writes ##vso logging commands
type AzurePipelines struct {
	w io.Writer
}

func (a *AzurePipelines) Name() string { return "azure-pipelines" }

func (a *AzurePipelines) Warning(msg string) {
	fmt.Fprintf(a.w, "##vso[task.logissue type=warning]%s\n", escapeAzureData(msg))
}

func (a *AzurePipelines) SetOutput(name, value string) error {
	_, err := fmt.Fprintf(a.w, "##vso[task.setvariable variable=%s;isOutput=true]%s\n",
		escapeAzureProperty(name), escapeAzureData(value))
	return err
}

func (a *AzurePipelines) Succeeded(msg string) {
	a.complete("Succeeded", msg)
}

func (a *AzurePipelines) SucceededWithIssues(msg string) {
	a.Warning(msg)
	a.complete("SucceededWithIssues", msg)
}

func (a *AzurePipelines) Failed(msg string) {
	fmt.Fprintf(a.w, "##vso[task.logissue type=error]%s\n", escapeAzureData(msg))
	a.complete("Failed", msg)
}

func (a *AzurePipelines) complete(result, msg string) {
	fmt.Fprintf(a.w, "##vso[task.complete result=%s;]%s\n", result, escapeAzureData(msg))
}

func escapeAzureData(s string) string {
	return strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A").Replace(s)
}

func escapeAzureProperty(s string) string {
	return strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A", "]", "%5D", ";", "%3B").Replace(s)
}

// GitHubActions writes workflow commands and step outputs
type GitHubActions struct {
	w          io.Writer
	outputPath string
}

func (g *GitHubActions) Name() string { return "github-actions" }

func (g *GitHubActions) Warning(msg string) {
	fmt.Fprintf(g.w, "::warning::%s\n", escapeGitHubData(msg))
}

// SetOutput appends name=value to the GITHUB_OUTPUT file
func (g *GitHubActions) SetOutput(name, value string) error {
	if g.outputPath == "" {
		return nil
	}
	f, err := os.OpenFile(g.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open step output file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s=%s\n", name, strings.ReplaceAll(value, "\n", " ")); err != nil {
		return fmt.Errorf("failed to write step output: %w", err)
	}
	return nil
}

func (g *GitHubActions) Succeeded(msg string) {
	fmt.Fprintln(g.w, msg)
}

func (g *GitHubActions) SucceededWithIssues(msg string) {
	g.Warning(msg)
}

func (g *GitHubActions) Failed(msg string) {
	fmt.Fprintf(g.w, "::error::%s\n", escapeGitHubData(msg))
}

func escapeGitHubData(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

// Console prints plain lines, for local runs
type Console struct {
	w io.Writer
}

func (c *Console) Name() string { return "console" }

func (c *Console) Warning(msg string) {
	fmt.Fprintf(c.w, "WARNING: %s\n", msg)
}

func (c *Console) SetOutput(name, value string) error {
	_, err := fmt.Fprintf(c.w, "%s=%s\n", name, value)
	return err
}

func (c *Console) Succeeded(msg string) {
	fmt.Fprintln(c.w, msg)
}

func (c *Console) SucceededWithIssues(msg string) {
	fmt.Fprintf(c.w, "SUCCEEDED WITH ISSUES: %s\n", msg)
}

func (c *Console) Failed(msg string) {
	fmt.Fprintf(c.w, "FAILED: %s\n", msg)
}
