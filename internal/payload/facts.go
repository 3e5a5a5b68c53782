package payload

import (
	"regexp"
	"strings"
)

// Candidate key suffixes per fact, in priority order. Matching compares the
// flattened path case-insensitively against each suffix; the first candidate
// with any match wins, regardless of where it sits in the payload.
var (
	actionCandidates = []string{
		"operationnamevalue",
		"activity",
		"action",
		"event.action",
		"message",
	}
	categoryCandidates = []string{
		"categoryvalue",
		"category",
		"eventcategory",
		"channel",
		"task",
	}
	statusCandidates = []string{
		"activitystatusvalue",
		"status",
		"statuscode",
		"eventoutcome",
	}
	actorCandidates = []string{
		"caller",
		"account",
		"accountname",
		"subjectusername",
		"targetuser",
		"sourceusername",
	}
	resourceCandidates = []string{
		"resource",
		"entity",
		"resourceid",
		"fullfilepath",
		"filepath",
		"computer",
		"destinationhostname",
	}
	ipCandidates = []string{
		"calleripaddress",
		"ipaddress",
		"remoteipaddress",
		"clientipaddress",
		"sourceip",
		"destinationip",
	}
)

// Compound identifier tokens that camel-case splitting alone cannot separate.
var compoundTokens = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)listkeys`), "list keys"},
	{regexp.MustCompile(`(?i)listcluster`), "list cluster"},
	{regexp.MustCompile(`(?i)clusteruser`), "cluster user"},
	{regexp.MustCompile(`(?i)usercredential`), "user credential"},
	{regexp.MustCompile(`(?i)admincredential`), "admin credential"},
}

var dashUnderscoreRe = regexp.MustCompile(`[_-]+`)

// FindValue flattens a tree and returns the first non-empty leaf whose path
// ends with one of the candidate suffixes. The classifier uses this as the
// second tier of its field discovery, after the flat row columns.
func FindValue(tree Tree, candidates []string) string {
	if tree == nil {
		return ""
	}
	return findValue(Flatten(tree), candidates)
}

// findValue returns the first non-empty flattened value whose path ends with
// one of the candidate suffixes. Candidate order decides priority.
func findValue(entries []FlatEntry, candidates []string) string {
	for _, candidate := range candidates {
		suffix := strings.ToLower(candidate)
		for _, entry := range entries {
			if strings.HasSuffix(strings.ToLower(entry.Path), suffix) && entry.Value != "" {
				return entry.Value
			}
		}
	}
	return ""
}

// FormatOperationTitle turns an operation identifier into a readable title.
// Slash-delimited operation paths reduce to their last segment, known
// compound tokens are split, camel case is expanded, and the result is
// Title Cased.
func FormatOperationTitle(rawOperation string) string {
	raw := Compact(rawOperation)
	if raw == "" {
		return "Event"
	}

	value := raw
	if strings.Contains(raw, "/") {
		segments := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' })
		if len(segments) > 0 {
			value = segments[len(segments)-1]
		}
	}

	for _, token := range compoundTokens {
		value = token.re.ReplaceAllString(value, token.replacement)
	}
	value = upperRunRe.ReplaceAllString(value, "$1 $2")
	value = camelBoundRe.ReplaceAllString(value, "$1 $2")
	value = dashUnderscoreRe.ReplaceAllString(value, " ")

	return titleCase(Compact(value))
}

// prettyMessage humanizes a message value. Operation-path messages get the
// full title treatment; ordinary text is only compacted.
func prettyMessage(value string) string {
	clean := Compact(value)
	if clean == "" {
		return ""
	}
	if strings.Contains(clean, "/") {
		return FormatOperationTitle(clean)
	}
	return clean
}

// ExtractFacts derives the canonical facts from a normalized tree. A nil
// tree yields all "Unknown" values with the attached-payload sentinel.
func ExtractFacts(tree Tree) Facts {
	var entries []FlatEntry
	if tree != nil {
		entries = Flatten(tree)
	}

	action := findValue(entries, actionCandidates)
	category := findValue(entries, categoryCandidates)
	status := findValue(entries, statusCandidates)
	actor := findValue(entries, actorCandidates)
	resource := findValue(entries, resourceCandidates)
	ip := findValue(entries, ipCandidates)

	var summaryParts []string
	if msg := prettyMessage(findValue(entries, []string{"message", "description"})); msg != "" {
		summaryParts = append(summaryParts, msg)
	}
	if category != "" {
		summaryParts = append(summaryParts, "Category: "+category)
	}
	if status != "" {
		summaryParts = append(summaryParts, "Status: "+status)
	}
	if resource != "" {
		summaryParts = append(summaryParts, "Resource: "+resource)
	}

	summary := attachedText
	if len(summaryParts) > 0 {
		summary = ShortValue(strings.Join(summaryParts, " | "), summaryLimit)
	}

	titleSource := action
	if titleSource == "" {
		titleSource = category
	}
	if titleSource == "" {
		titleSource = "Event"
	}

	return Facts{
		Title:    FormatOperationTitle(titleSource),
		Summary:  summary,
		Actor:    orUnknown(actor),
		IP:       orUnknown(ip),
		Resource: orUnknown(resource),
		Category: orUnknown(category),
		Action:   orUnknown(action),
		Status:   orUnknown(status),
	}
}

func orUnknown(value string) string {
	if value == "" {
		return unknownValue
	}
	return value
}
