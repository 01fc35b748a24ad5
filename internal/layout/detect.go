package layout

import "strings"

// statementMarkers are bank identifiers printed on statement pages.
// Order matters: the first type with a matching marker wins.
var statementMarkers = []struct {
	Type    StatementType
	Markers []string
}{
	{StatementMetro, []string{"Metro Bank", "metrobankonline"}},
	{StatementHSBC, []string{"HSBC", "hsbc.co.uk"}},
	{StatementBarclays, []string{"Barclays", "barclays.co.uk"}},
}

// DetectStatementType guesses the statement type from page text.
// It falls back to StatementDefault when no bank marker is present.
func DetectStatementType(pages []string) StatementType {
	combined := strings.ToLower(strings.Join(pages, "\n"))

	for _, candidate := range statementMarkers {
		if containsAny(combined, candidate.Markers) {
			return candidate.Type
		}
	}
	return StatementDefault
}

// containsAny expects text to be lower-cased already.
func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
