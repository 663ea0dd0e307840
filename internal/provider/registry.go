package provider

import "fmt"

// Get resolves a provider by its §6 `--provider` flag value.
func Get(name string, client HTTPClient) (Provider, error) {
	switch name {
	case "", "github":
		return NewGitHubProvider(client), nil
	case "gitlab":
		return NewGitLabProvider(client), nil
	case "bitbucket":
		return NewBitbucketProvider(client), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
