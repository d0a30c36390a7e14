package lovable

import "regexp"

// Project is the information the undocumented API exposes about a project.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RemixOutcome is what both transports (API and browser UI) report for one
// successful remix attempt.
type RemixOutcome struct {
	NewProjectID  string
	NewProjectURL string
	StatusCode    int
}

// ProbeTarget is one candidate endpoint of the discovery probe.
type ProbeTarget struct {
	Method   string
	Endpoint string
}

// ProbeResult reports how one candidate endpoint responded.
type ProbeResult struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"status,omitempty"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

var projectIDPattern = regexp.MustCompile(`/projects/([a-f0-9-]+)`)

// ExtractProjectID pulls the project id out of a lovable.dev project URL,
// returning "" when the URL does not reference a project.
func ExtractProjectID(url string) string {
	groups := projectIDPattern.FindStringSubmatch(url)
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}

// ProjectURL builds the canonical frontend URL for a project id.
func ProjectURL(id string) string {
	return "https://lovable.dev/projects/" + id
}
