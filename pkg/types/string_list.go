package types

import "strings"

// StringList is a jsonb-serialized list of names.
type StringList []string

// ContainsFold reports whether value is present, ignoring case.
func (l StringList) ContainsFold(value string) bool {
	for _, candidate := range l {
		if strings.EqualFold(candidate, value) {
			return true
		}
	}
	return false
}
