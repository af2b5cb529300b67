// service/annotator.go
package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dev-mohitbeniwal/semble/model"
)

// Annotator mines advisory metadata from field descriptions. Results are
// best effort and must not be used for access control.
type Annotator interface {
	Permissions(description string) []string
	ValidationHints(description string) model.ValidationHints
	Examples(description string) []string
}

// DescriptionAnnotator is the regex-based Annotator used by default.
type DescriptionAnnotator struct{}

var _ Annotator = DescriptionAnnotator{}

var permissionMarkers = []struct {
	marker     string
	permission string
}{
	{"@auth", "authenticated"},
	{"@admin", "admin"},
	{"@owner", "owner"},
	{"@staff", "staff"},
	{"restricted", "restricted"},
}

var (
	minLengthRe = regexp.MustCompile(`(?i)min(?:imum)?[\s_-]*length[\s:=of]*(\d+)`)
	maxLengthRe = regexp.MustCompile(`(?i)max(?:imum)?[\s_-]*length[\s:=of]*(\d+)`)
	betweenRe   = regexp.MustCompile(`(?i)between\s+(-?\d+(?:\.\d+)?)\s+and\s+(-?\d+(?:\.\d+)?)`)
	minValueRe  = regexp.MustCompile(`(?i)\bmin(?:imum)?(?:\s+value)?\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	maxValueRe  = regexp.MustCompile(`(?i)\bmax(?:imum)?(?:\s+value)?\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	patternRe   = regexp.MustCompile(`(?i)pattern[:\s]+/([^/]+)/`)
	emailRe     = regexp.MustCompile(`(?i)\bemail\b`)
	urlRe       = regexp.MustCompile(`(?i)\b(?:url|uri)\b`)
	phoneRe     = regexp.MustCompile(`(?i)\bphone\b`)

	exampleTagRe    = regexp.MustCompile(`@example\s+([^\n]+)`)
	exampleColonRe  = regexp.MustCompile(`(?i)\bexample:\s*([^\n]+)`)
	exampleEgRe     = regexp.MustCompile(`(?i)e\.g\.,?\s*([^\n).,;]+)`)
	quotedLiteralRe = regexp.MustCompile("[\"'`]([^\"'`\\n]{1,50})[\"'`]")
)

func (DescriptionAnnotator) Permissions(description string) []string {
	lower := strings.ToLower(description)
	var perms []string
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m.marker) {
			perms = append(perms, m.permission)
		}
	}
	return perms
}

func (DescriptionAnnotator) ValidationHints(description string) model.ValidationHints {
	var h model.ValidationHints
	if description == "" {
		return h
	}

	if m := minLengthRe.FindStringSubmatch(description); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			h.MinLength = &n
		}
	}
	if m := maxLengthRe.FindStringSubmatch(description); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			h.MaxLength = &n
		}
	}
	if m := betweenRe.FindStringSubmatch(description); m != nil {
		h.Min = parseFloatPtr(m[1])
		h.Max = parseFloatPtr(m[2])
	} else {
		if m := minValueRe.FindStringSubmatch(description); m != nil {
			h.Min = parseFloatPtr(m[1])
		}
		if m := maxValueRe.FindStringSubmatch(description); m != nil {
			h.Max = parseFloatPtr(m[1])
		}
	}
	if m := patternRe.FindStringSubmatch(description); m != nil {
		h.Pattern = m[1]
	}

	switch {
	case emailRe.MatchString(description):
		h.Format = "email"
	case urlRe.MatchString(description):
		h.Format = "url"
	case phoneRe.MatchString(description):
		h.Format = "phone"
	}
	return h
}

func (DescriptionAnnotator) Examples(description string) []string {
	if description == "" {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(candidate string) {
		candidate = strings.Trim(strings.TrimSpace(candidate), "\"'`.,;")
		if isLikelyExample(candidate) && !seen[candidate] {
			seen[candidate] = true
			out = append(out, candidate)
		}
	}

	for _, re := range []*regexp.Regexp{exampleTagRe, exampleColonRe, exampleEgRe, quotedLiteralRe} {
		for _, m := range re.FindAllStringSubmatch(description, -1) {
			add(m[1])
		}
	}
	return out
}

// isLikelyExample rejects prose caught by the looser patterns.
func isLikelyExample(s string) bool {
	if s == "" || len(s) > 50 {
		return false
	}
	return len(strings.Fields(s)) <= 4
}

func parseFloatPtr(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

var (
	versionRe     = regexp.MustCompile(`(?i)version[:\s]+v?(\d+\.\d+(?:\.\d+)?)`)
	versionMarker = regexp.MustCompile(`(?i)@version\s+v?(\d+\.\d+(?:\.\d+)?)`)
)

// ExtractSchemaVersion guesses a schema version. It looks for an explicit
// version in the schema and query type descriptions, then in the
// description of a version/schemaVersion field, then in any type
// description, and finally infers one from structure (subscriptions imply
// 1.1.0, Relay connections 1.0.0). It returns "" when nothing matches.
func ExtractSchemaVersion(result *model.IntrospectionResult) string {
	if result == nil {
		return ""
	}
	find := func(s string) string {
		if m := versionMarker.FindStringSubmatch(s); m != nil {
			return m[1]
		}
		if m := versionRe.FindStringSubmatch(s); m != nil {
			return m[1]
		}
		return ""
	}

	if v := find(result.Schema.Description); v != "" {
		return v
	}

	var queryType *model.GraphQLType
	if result.Schema.QueryType != nil {
		if t, ok := result.Types[result.Schema.QueryType.Name]; ok {
			queryType = &t
		}
	}
	if queryType != nil {
		if v := find(queryType.Description); v != "" {
			return v
		}
		for _, f := range queryType.Fields {
			if f.Name == "version" || f.Name == "schemaVersion" {
				if v := find(f.Description); v != "" {
					return v
				}
			}
		}
	}

	names := make([]string, 0, len(result.Types))
	for name := range result.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if v := find(result.Types[name].Description); v != "" {
			return v
		}
	}

	if result.Schema.SubscriptionType != nil {
		return "1.1.0"
	}
	if _, ok := result.Types["Subscription"]; ok {
		return "1.1.0"
	}
	for _, name := range names {
		if strings.HasSuffix(name, "Connection") || strings.HasSuffix(name, "Edge") {
			return "1.0.0"
		}
	}
	return ""
}
