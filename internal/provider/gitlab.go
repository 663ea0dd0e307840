package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GitLabProvider implements the GitLab-style provider (§4.4 "Provider B").
type GitLabProvider struct {
	Client  HTTPClient
	BaseURL string // defaults to https://gitlab.com/api/v4
}

func NewGitLabProvider(client HTTPClient) *GitLabProvider {
	return &GitLabProvider{Client: client, BaseURL: "https://gitlab.com/api/v4"}
}

func (p *GitLabProvider) Name() string { return "gitlab" }

func (p *GitLabProvider) SupportedEvents() []string {
	return []string{"Merge Request Hook", "Note Hook"}
}

func (p *GitLabProvider) ApprovalTokenEnvVar() string { return "GITLAB_TOKEN" }

func (p *GitLabProvider) ExtractTargets(eventName string, payload map[string]any, policyCtx PolicyContext) ExtractResult {
	var result ExtractResult

	if _, ok := getMap(payload, "project"); !ok {
		result.MalformedReasons = append(result.MalformedReasons, "project")
	}
	attrs, ok := getMap(payload, "object_attributes")
	if !ok {
		result.MalformedReasons = append(result.MalformedReasons, "object_attributes")
		return result
	}

	switch eventName {
	case "Merge Request Hook":
		if policyCtx.ScanPRBody {
			user, _ := getMap(payload, "user")
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourcePRBody, ReferenceID: "mr-body",
				Author: gitlabAuthor(user), Body: getString(attrs, "description"),
			})
		}
	case "Note Hook":
		if policyCtx.ScanComment {
			user, _ := getMap(payload, "user")
			id := fmt.Sprintf("%v", attrs["id"])
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourceComment, ReferenceID: "note-" + id,
				Author: gitlabAuthor(user), Body: getString(attrs, "note"),
			})
		}
	}
	return result
}

func gitlabAuthor(m map[string]any) Author {
	login := getString(m, "username")
	a := Author{Login: login, Type: AuthorUser}
	if b, _ := m["bot"].(bool); b || strings.HasSuffix(strings.ToLower(login), "-bot") {
		a.Type = AuthorBot
	}
	if login == "" {
		a.Type = AuthorUnknown
	}
	return a
}

// splitOwnerRepoGitLab splits project.path_with_namespace at the last
// "/"; everything before it is the (possibly multi-segment) owner.
func splitOwnerRepoGitLab(pathWithNamespace string) (owner, repo string, ok bool) {
	idx := strings.LastIndex(pathWithNamespace, "/")
	if idx < 0 {
		return "", "", false
	}
	return pathWithNamespace[:idx], pathWithNamespace[idx+1:], true
}

func (p *GitLabProvider) ExtractPullContext(eventName string, payload map[string]any) (PullContext, bool) {
	project, ok := getMap(payload, "project")
	if !ok {
		return PullContext{}, false
	}
	owner, repo, ok := splitOwnerRepoGitLab(getString(project, "path_with_namespace"))
	if !ok {
		return PullContext{}, false
	}

	attrs, ok := getMap(payload, "object_attributes")
	if !ok {
		return PullContext{}, false
	}

	switch eventName {
	case "Merge Request Hook":
		n, ok := asInt(attrs["iid"])
		if !ok {
			return PullContext{}, false
		}
		return PullContext{Owner: owner, Repo: repo, Number: n}, true

	case "Note Hook":
		if n, ok := asInt(attrs["noteable_iid"]); ok {
			return PullContext{Owner: owner, Repo: repo, Number: n}, true
		}
		if getString(attrs, "noteable_type") != "MergeRequest" {
			return PullContext{}, false
		}
		mr, ok := getMap(payload, "merge_request")
		if !ok {
			return PullContext{}, false
		}
		n, ok := asInt(mr["iid"])
		if !ok {
			return PullContext{}, false
		}
		return PullContext{Owner: owner, Repo: repo, Number: n}, true
	}
	return PullContext{}, false
}

func (p *GitLabProvider) FetchHumanApprovalCount(ctx context.Context, pc PullContext, cfg RetryConfig, allowedAuthors []string, token string) (int, error) {
	allowed := normalizeSet(allowedAuthors)
	projectPath := url.QueryEscape(pc.Owner + "/" + pc.Repo)
	uri := fmt.Sprintf("%s/projects/%s/merge_requests/%d/approvals", p.BaseURL, projectPath, pc.Number)

	body, _, err := doRequestWithRetry(ctx, p.Client, cfg, "", func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("PRIVATE-TOKEN", token)
		}
		return req, nil
	})
	if err != nil {
		return 0, err
	}

	type approver struct {
		User struct {
			Username string `json:"username"`
			Bot      bool   `json:"bot"`
		} `json:"user"`
	}

	var approvers []approver
	if err := json.Unmarshal(body, &approvers); err != nil {
		var wrapped struct {
			ApprovedBy []approver `json:"approved_by"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return 0, &ApprovalError{Kind: ErrKindFetchError, Message: err.Error()}
		}
		approvers = wrapped.ApprovedBy
	}

	seen := map[string]bool{}
	count := 0
	for _, a := range approvers {
		login := strings.ToLower(strings.TrimSpace(a.User.Username))
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		if a.User.Bot || allowed[login] {
			continue
		}
		count++
	}
	return count, nil
}
