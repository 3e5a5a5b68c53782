package serving

import (
	"encoding/json"
	"strings"
)

// ownerDoc is the portal's owner object as it appears in exports and
// override payloads.
type ownerDoc struct {
	AssignedTo        string `json:"assignedTo"`
	UserPrincipalName string `json:"userPrincipalName"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	DisplayName       string `json:"displayName"`
	ObjectID          string `json:"objectId"`
}

// NormalizeAssignee reduces an assignee value to a displayable identity.
// The value may be a plain name, a serialized owner object, or one of the
// literal junk strings exports produce for unassigned incidents.
func NormalizeAssignee(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	switch strings.ToLower(value) {
	case "null", "undefined":
		return ""
	}

	if strings.HasPrefix(value, "{") {
		var doc ownerDoc
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			return ""
		}
		for _, candidate := range []string{
			doc.AssignedTo,
			doc.UserPrincipalName,
			doc.Email,
			doc.Name,
			doc.DisplayName,
			doc.ObjectID,
		} {
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				return candidate
			}
		}
		return ""
	}

	// Arrays and other JSON shapes carry no single identity.
	if strings.HasPrefix(value, "[") {
		return ""
	}

	return value
}
