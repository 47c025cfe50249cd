package model

// Repository identifies a GitHub repository backing a package.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// Stats holds display-formatted package statistics. Values are compact
// human-readable strings ("14.8M"), never raw numbers.
type Stats struct {
	Downloads string `json:"downloads"`
	Stars     string `json:"stars"`
	Forks     string `json:"forks"`
}

// Package is the normalized package shape consumed by the client.
// Repository is nil when no GitHub reference could be extracted; it is
// never partially populated.
type Package struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Author       string      `json:"author"`
	Version      string      `json:"version"`
	Tags         []string    `json:"tags"`
	Stats        Stats       `json:"stats"`
	Time         string      `json:"time"`
	Repository   *Repository `json:"repository"`
	NpmLink      string      `json:"npmLink"`
	IsBookmarked bool        `json:"isBookmarked"`
}

// User is the authenticated visitor resolved from a session token.
// GitHubToken is the delegated token for star actions; empty when the
// session was not established through GitHub.
type User struct {
	ID          string
	Email       string
	GitHubToken string
}
