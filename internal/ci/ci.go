// Package ci provides helpers for discovering CI metadata.
package ci

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CIKind represents the type of CI.
type CIKind int

const (
	// CIUnknown indicates the CI provider could not be identified.
	CIUnknown CIKind = iota
	// CIGitHub identifies GitHub Actions.
	CIGitHub
	// CIGitLab identifies GitLab CI.
	CIGitLab
	// CIBitbucket identifies Bitbucket Pipelines.
	CIBitbucket
	// CIJenkins identifies Jenkins.
	CIJenkins
	// CIAzure identifies Azure Pipelines.
	CIAzure
	// CICircle identifies CircleCI.
	CICircle
)

// LookupFunc fetches environment variables and defaults to os.Getenv.
type LookupFunc func(string) string

// Environment is the CI metadata recorded on a pipeline run.
type Environment struct {
	Kind       CIKind `json:"-"`
	Provider   string `json:"provider"`
	CI         bool   `json:"ci"`
	CommitHash string `json:"commit_hash,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Repository string `json:"repository,omitempty"`
	BuildURL   string `json:"build_url,omitempty"`
}

// String returns the human-readable string representation of a CIKind.
func (c CIKind) String() string {
	switch c {
	case CIGitHub:
		return "github"
	case CIGitLab:
		return "gitlab"
	case CIBitbucket:
		return "bitbucket"
	case CIJenkins:
		return "jenkins"
	case CIAzure:
		return "azure"
	case CICircle:
		return "circleci"
	default:
		return "unknown"
	}
}

// ParseCIKind converts a string identifier into a CIKind value.
func ParseCIKind(raw string) (CIKind, error) {
	for kind := CIGitHub; kind <= CICircle; kind++ {
		if strings.EqualFold(strings.TrimSpace(raw), kind.String()) {
			return kind, nil
		}
	}
	return CIUnknown, fmt.Errorf("unsupported ci kind %q", raw)
}

// DetectCIKind attempts to infer the CI provider from well-known environment variables.
func DetectCIKind() CIKind {
	return DetectCIKindWithLookup(os.Getenv)
}

// DetectCIKindWithLookup is DetectCIKind with an injectable variable source.
func DetectCIKindWithLookup(lookup LookupFunc) CIKind {
	if lookup == nil {
		lookup = os.Getenv
	}

	switch {
	case strings.EqualFold(lookup("GITHUB_ACTIONS"), "true") || lookup("GITHUB_SHA") != "":
		return CIGitHub
	case strings.EqualFold(lookup("GITLAB_CI"), "true") || lookup("CI_PROJECT_PATH") != "":
		return CIGitLab
	case lookup("BITBUCKET_BUILD_NUMBER") != "" || lookup("BITBUCKET_REPO_SLUG") != "":
		return CIBitbucket
	case lookup("JENKINS_URL") != "":
		return CIJenkins
	case lookup("TF_BUILD") != "":
		return CIAzure
	case strings.EqualFold(lookup("CIRCLECI"), "true"):
		return CICircle
	}
	return CIUnknown
}

// CurrentEnvironment resolves CI metadata from the process environment.
func CurrentEnvironment() Environment {
	return EnvironmentWithLookup(os.Getenv)
}

// EnvironmentWithLookup resolves CI metadata with the supplied lookup function.
func EnvironmentWithLookup(lookup LookupFunc) Environment {
	if lookup == nil {
		lookup = os.Getenv
	}

	kind := DetectCIKindWithLookup(lookup)
	isCI, _ := strconv.ParseBool(lookup("CI"))
	env := Environment{Kind: kind, Provider: kind.String(), CI: isCI || kind != CIUnknown}

	switch kind {
	case CIGitHub:
		env.CommitHash = lookup("GITHUB_SHA")
		env.Branch = firstNonEmpty(lookup("GITHUB_HEAD_REF"), lookup("GITHUB_REF_NAME"))
		env.Repository = lookup("GITHUB_REPOSITORY")
		if server, runID := lookup("GITHUB_SERVER_URL"), lookup("GITHUB_RUN_ID"); server != "" && runID != "" {
			env.BuildURL = fmt.Sprintf("%s/%s/actions/runs/%s", server, env.Repository, runID)
		}
	case CIGitLab:
		env.CommitHash = lookup("CI_COMMIT_SHA")
		env.Branch = firstNonEmpty(lookup("CI_MERGE_REQUEST_SOURCE_BRANCH_NAME"), lookup("CI_COMMIT_REF_NAME"))
		env.Repository = lookup("CI_PROJECT_PATH")
		env.BuildURL = lookup("CI_PIPELINE_URL")
	case CIBitbucket:
		env.CommitHash = lookup("BITBUCKET_COMMIT")
		env.Branch = lookup("BITBUCKET_BRANCH")
		env.Repository = lookup("BITBUCKET_REPO_FULL_NAME")
		if origin, build := lookup("BITBUCKET_GIT_HTTP_ORIGIN"), lookup("BITBUCKET_BUILD_NUMBER"); origin != "" && build != "" {
			env.BuildURL = fmt.Sprintf("%s/addon/pipelines/home#!/results/%s", origin, build)
		}
	case CIJenkins:
		env.CommitHash = lookup("GIT_COMMIT")
		env.Branch = firstNonEmpty(lookup("CHANGE_BRANCH"), lookup("BRANCH_NAME"), lookup("GIT_BRANCH"))
		env.Repository = lookup("JOB_NAME")
		env.BuildURL = lookup("BUILD_URL")
	case CIAzure:
		env.CommitHash = lookup("BUILD_SOURCEVERSION")
		env.Branch = strings.TrimPrefix(lookup("BUILD_SOURCEBRANCH"), "refs/heads/")
		env.Repository = lookup("BUILD_REPOSITORY_NAME")
	case CICircle:
		env.CommitHash = lookup("CIRCLE_SHA1")
		env.Branch = lookup("CIRCLE_BRANCH")
		env.Repository = lookup("CIRCLE_PROJECT_REPONAME")
		env.BuildURL = lookup("CIRCLE_BUILD_URL")
	}
	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
