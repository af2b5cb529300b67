package model

import (
	"time"

	"github.com/dev-mohitbeniwal/semble/model"
)

// AccessRequest asks whether UserID may run Operation on Resource,
// optionally restricted to Fields.
type AccessRequest struct {
	UserID    string          `json:"userId"`
	Resource  string          `json:"resource"`
	Operation model.Operation `json:"operation"`
	Fields    []string        `json:"fields,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AdminStatus is what the user endpoint reports about a user's role.
type AdminStatus struct {
	UserID      string   `json:"userId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}
