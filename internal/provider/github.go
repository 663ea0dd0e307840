package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// GitHubProvider implements the GitHub-style provider (§4.4 "Provider A").
type GitHubProvider struct {
	Client  HTTPClient
	BaseURL string // defaults to https://api.github.com
}

func NewGitHubProvider(client HTTPClient) *GitHubProvider {
	return &GitHubProvider{Client: client, BaseURL: "https://api.github.com"}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) SupportedEvents() []string {
	return []string{"pull_request", "pull_request_review", "pull_request_review_comment", "issue_comment"}
}

func (p *GitHubProvider) ApprovalTokenEnvVar() string { return "GITHUB_TOKEN" }

func githubAuthor(m map[string]any) Author {
	login, _ := m["login"].(string)
	typ, _ := m["type"].(string)
	a := Author{Login: login, Type: AuthorUnknown}
	switch typ {
	case "User":
		a.Type = AuthorUser
	case "Bot":
		a.Type = AuthorBot
	}
	if strings.HasSuffix(strings.ToLower(login), "[bot]") {
		a.Type = AuthorBot
	}
	return a
}

func getMap(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	mm, ok := v.(map[string]any)
	return mm, ok
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func (p *GitHubProvider) ExtractTargets(eventName string, payload map[string]any, policyCtx PolicyContext) ExtractResult {
	var result ExtractResult

	repo, repoOK := getMap(payload, "repository")
	if !repoOK || getString(repo, "full_name") == "" {
		result.MalformedReasons = append(result.MalformedReasons, "repository.full_name")
	}

	switch eventName {
	case "pull_request":
		pr, ok := getMap(payload, "pull_request")
		if !ok {
			result.MalformedReasons = append(result.MalformedReasons, "pull_request")
			return result
		}
		if policyCtx.ScanPRBody {
			user, _ := getMap(pr, "user")
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourcePRBody, ReferenceID: "pr-body",
				Author: githubAuthor(user), Body: getString(pr, "body"),
			})
		}

	case "pull_request_review":
		if _, ok := getMap(payload, "pull_request"); !ok {
			result.MalformedReasons = append(result.MalformedReasons, "pull_request")
		}
		review, ok := getMap(payload, "review")
		if !ok {
			result.MalformedReasons = append(result.MalformedReasons, "review")
			return result
		}
		if policyCtx.ScanReview {
			user, _ := getMap(review, "user")
			id := fmt.Sprintf("%v", review["id"])
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourceReview, ReferenceID: "review-" + id,
				Author: githubAuthor(user), Body: getString(review, "body"),
			})
		}

	case "pull_request_review_comment":
		if _, ok := getMap(payload, "pull_request"); !ok {
			result.MalformedReasons = append(result.MalformedReasons, "pull_request")
		}
		comment, ok := getMap(payload, "comment")
		if !ok {
			result.MalformedReasons = append(result.MalformedReasons, "comment")
			return result
		}
		if policyCtx.ScanComment {
			user, _ := getMap(comment, "user")
			id := fmt.Sprintf("%v", comment["id"])
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourceComment, ReferenceID: "comment-" + id,
				Author: githubAuthor(user), Body: getString(comment, "body"),
			})
		}

	case "issue_comment":
		issue, issueOK := getMap(payload, "issue")
		if !issueOK {
			result.MalformedReasons = append(result.MalformedReasons, "issue")
		} else if _, ok := getMap(issue, "pull_request"); !ok {
			result.MalformedReasons = append(result.MalformedReasons, "issue.pull_request")
		}
		comment, ok := getMap(payload, "comment")
		if !ok {
			result.MalformedReasons = append(result.MalformedReasons, "comment")
			return result
		}
		if policyCtx.ScanIssueComment {
			user, _ := getMap(comment, "user")
			id := fmt.Sprintf("%v", comment["id"])
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourceComment, ReferenceID: "comment-" + id,
				Author: githubAuthor(user), Body: getString(comment, "body"),
			})
		}
	}

	return result
}

func (p *GitHubProvider) ExtractPullContext(eventName string, payload map[string]any) (PullContext, bool) {
	repo, _ := getMap(payload, "repository")
	fullName := getString(repo, "full_name")
	owner, name, ok := splitOnce(fullName, "/")
	if !ok {
		return PullContext{}, false
	}

	switch eventName {
	case "pull_request", "pull_request_review", "pull_request_review_comment":
		pr, ok := getMap(payload, "pull_request")
		if !ok {
			return PullContext{}, false
		}
		n, ok := asInt(pr["number"])
		if !ok {
			return PullContext{}, false
		}
		return PullContext{Owner: owner, Repo: name, Number: n}, true

	case "issue_comment":
		issue, ok := getMap(payload, "issue")
		if !ok {
			return PullContext{}, false
		}
		if _, ok := getMap(issue, "pull_request"); !ok {
			return PullContext{}, false
		}
		n, ok := asInt(issue["number"])
		if !ok {
			return PullContext{}, false
		}
		return PullContext{Owner: owner, Repo: name, Number: n}, true
	}
	return PullContext{}, false
}

func (p *GitHubProvider) FetchHumanApprovalCount(ctx context.Context, pc PullContext, cfg RetryConfig, allowedAuthors []string, token string) (int, error) {
	allowed := normalizeSet(allowedAuthors)
	latest := map[string]string{} // normalized login -> latest state
	latestIsBot := map[string]bool{}

	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews?per_page=100&page=%d", p.BaseURL, pc.Owner, pc.Repo, pc.Number, page)
		body, _, err := doRequestWithRetry(ctx, p.Client, cfg, "X-RateLimit-Reset", func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			req.Header.Set("Accept", "application/vnd.github+json")
			return req, nil
		})
		if err != nil {
			return 0, err
		}

		var reviews []struct {
			State string `json:"state"`
			User  struct {
				Login string `json:"login"`
				Type  string `json:"type"`
			} `json:"user"`
		}
		if err := json.Unmarshal(body, &reviews); err != nil {
			return 0, &ApprovalError{Kind: ErrKindFetchError, Message: err.Error()}
		}

		for _, r := range reviews {
			login := strings.ToLower(strings.TrimSpace(r.User.Login))
			if login == "" {
				continue
			}
			latest[login] = r.State
			latestIsBot[login] = r.User.Type == "Bot" || strings.HasSuffix(login, "[bot]")
		}

		if len(reviews) < 100 {
			break
		}
		if page == maxPages {
			return 0, &ApprovalError{Kind: ErrKindFetchError, Message: "pagination limit exceeded"}
		}
	}

	count := 0
	for login, state := range latest {
		if state != "APPROVED" {
			continue
		}
		if allowed[login] || latestIsBot[login] {
			continue
		}
		count++
	}
	return count, nil
}

func splitOnce(s, sep string) (before, after string, ok bool) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	default:
		return 0, false
	}
}

func normalizeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[strings.ToLower(strings.TrimSpace(i))] = true
	}
	return out
}
