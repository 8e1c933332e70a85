package issue

import "regexp"

var issueURLRegex = regexp.MustCompile(`https://github\.com/([\w.-]+)/([\w.-]+)/issues/(\d+)`)

// ExtractIssueURLs returns the distinct github.com issue URLs embedded in
// text, in order of first appearance.
func ExtractIssueURLs(text string) []string {
	matches := issueURLRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
