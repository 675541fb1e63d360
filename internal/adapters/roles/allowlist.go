// Package roles derives portal roles from external subjects.
package roles

import (
	"strings"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

var _ ports.RoleDeriver = (*AllowList)(nil)

// AllowList maps listed subjects to elevated roles; every other subject is a patient.
// Super admin membership wins over doctor membership.
type AllowList struct {
	superAdmins map[string]struct{}
	doctors     map[string]struct{}
}

// NewAllowList builds an AllowList. Subjects are matched exactly after trimming whitespace.
func NewAllowList(doctors, superAdmins []string) *AllowList {
	return &AllowList{
		superAdmins: toSet(superAdmins),
		doctors:     toSet(doctors),
	}
}

// Derive returns the role for subject. The same subject always yields the same role.
func (a *AllowList) Derive(subject string) domainauth.Role {
	subject = strings.TrimSpace(subject)
	if _, ok := a.superAdmins[subject]; ok {
		return domainauth.RoleSuperAdmin
	}
	if _, ok := a.doctors[subject]; ok {
		return domainauth.RoleDoctor
	}
	return domainauth.RolePatient
}

// Size reports how many subjects have an elevated role.
func (a *AllowList) Size() int { return len(a.superAdmins) + len(a.doctors) }

func toSet(subjects []string) map[string]struct{} {
	set := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
