package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// BitbucketProvider implements the Bitbucket Cloud-style provider
// (§4.4 "Provider C").
type BitbucketProvider struct {
	Client  HTTPClient
	BaseURL string // defaults to https://api.bitbucket.org/2.0
}

func NewBitbucketProvider(client HTTPClient) *BitbucketProvider {
	return &BitbucketProvider{Client: client, BaseURL: "https://api.bitbucket.org/2.0"}
}

func (p *BitbucketProvider) Name() string { return "bitbucket" }

func (p *BitbucketProvider) SupportedEvents() []string {
	return []string{
		"pullrequest:created", "pullrequest:updated",
		"pullrequest:comment_created", "pullrequest:comment_updated",
	}
}

func (p *BitbucketProvider) ApprovalTokenEnvVar() string { return "BITBUCKET_TOKEN" }

func bitbucketFullName(payload map[string]any) (string, bool) {
	repo, ok := getMap(payload, "repository")
	if !ok {
		return "", false
	}
	fn := getString(repo, "full_name")
	return fn, fn != ""
}

func splitOwnerRepoBitbucket(fullName string) (owner, repo string, ok bool) {
	idx := strings.Index(fullName, "/")
	if idx < 0 {
		return "", "", false
	}
	return fullName[:idx], fullName[idx+1:], true
}

func (p *BitbucketProvider) ExtractTargets(eventName string, payload map[string]any, policyCtx PolicyContext) ExtractResult {
	var result ExtractResult

	if _, ok := bitbucketFullName(payload); !ok {
		result.MalformedReasons = append(result.MalformedReasons, "repository.full_name")
	}
	pr, prOK := getMap(payload, "pullrequest")
	if !prOK {
		result.MalformedReasons = append(result.MalformedReasons, "pullrequest")
		return result
	}

	switch eventName {
	case "pullrequest:created", "pullrequest:updated":
		if policyCtx.ScanPRBody {
			author, _ := getMap(pr, "author")
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourcePRBody, ReferenceID: "pr-body",
				Author: bitbucketAuthor(author), Body: getString(pr, "description"),
			})
		}
	case "pullrequest:comment_created", "pullrequest:comment_updated":
		comment, ok := getMap(payload, "comment")
		if !ok {
			result.MalformedReasons = append(result.MalformedReasons, "comment")
			return result
		}
		if policyCtx.ScanComment {
			content, _ := getMap(comment, "content")
			author, _ := getMap(comment, "user")
			id := fmt.Sprintf("%v", comment["id"])
			result.Targets = append(result.Targets, ReviewTarget{
				Source: SourceComment, ReferenceID: "comment-" + id,
				Author: bitbucketAuthor(author), Body: getString(content, "raw"),
			})
		}
	}
	return result
}

func bitbucketAuthor(m map[string]any) Author {
	login := bitbucketLogin(m)
	a := Author{Login: login, Type: AuthorUser}
	if typ := getString(m, "type"); typ == "team" {
		a.Type = AuthorBot
	}
	if login == "" {
		a.Type = AuthorUnknown
	}
	return a
}

// bitbucketLogin resolves a participant's normalized login with
// precedence nickname, username, display_name, account_id (§4.4).
func bitbucketLogin(m map[string]any) string {
	for _, key := range []string{"nickname", "username", "display_name", "account_id"} {
		if v := getString(m, key); v != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

func (p *BitbucketProvider) ExtractPullContext(eventName string, payload map[string]any) (PullContext, bool) {
	fullName, ok := bitbucketFullName(payload)
	if !ok {
		return PullContext{}, false
	}
	owner, repo, ok := splitOwnerRepoBitbucket(fullName)
	if !ok {
		return PullContext{}, false
	}
	pr, ok := getMap(payload, "pullrequest")
	if !ok {
		return PullContext{}, false
	}
	n, ok := asInt(pr["id"])
	if !ok {
		return PullContext{}, false
	}
	return PullContext{Owner: owner, Repo: repo, Number: n}, true
}

func (p *BitbucketProvider) FetchHumanApprovalCount(ctx context.Context, pc PullContext, cfg RetryConfig, allowedAuthors []string, token string) (int, error) {
	allowed := normalizeSet(allowedAuthors)
	uri := fmt.Sprintf("%s/repositories/%s/%s/pullrequests/%d", p.BaseURL, pc.Owner, pc.Repo, pc.Number)

	body, _, err := doRequestWithRetry(ctx, p.Client, cfg, "", func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	})
	if err != nil {
		return 0, err
	}

	var pr struct {
		Participants []struct {
			Approved bool           `json:"approved"`
			Type     string         `json:"type"`
			User     map[string]any `json:"user"`
		} `json:"participants"`
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, &ApprovalError{Kind: ErrKindFetchError, Message: err.Error()}
	}

	seen := map[string]bool{}
	count := 0
	for _, part := range pr.Participants {
		if !part.Approved {
			continue
		}
		login := bitbucketLogin(part.User)
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		if part.Type == "team" || allowed[login] {
			continue
		}
		count++
	}
	return count, nil
}
