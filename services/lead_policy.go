package services

import (
	"prepxiq_go/models"
	"prepxiq_go/utils"
)

// Actor is the authenticated staff member performing an operation.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) isManager() bool {
	return a.Role == models.RoleOwner || a.Role == models.RoleAdmin
}

// LeadPolicy decides which staff may perform which lead operations.
// Every LeadService mutation consults it, so the rules hold for direct API calls too.
type LeadPolicy struct{}

func (LeadPolicy) CanView(a Actor) error {
	if a.isManager() || a.Role == models.RoleCounselor {
		return nil
	}
	return utils.PermissionError("view leads")
}

func (LeadPolicy) CanCreate(a Actor) error {
	if a.isManager() || a.Role == models.RoleCounselor {
		return nil
	}
	return utils.PermissionError("create lead")
}

// CanEdit allows managers on any lead and counselors on leads that are
// assigned to them or not assigned yet.
func (LeadPolicy) CanEdit(a Actor, lead *models.Lead) error {
	if a.isManager() {
		return nil
	}
	if a.Role == models.RoleCounselor {
		if lead.AssignedCounselorID == nil || *lead.AssignedCounselorID == a.UserID {
			return nil
		}
	}
	return utils.PermissionError("edit lead")
}

// CanAssign lets counselors only claim an unassigned lead for themselves.
func (p LeadPolicy) CanAssign(a Actor, lead *models.Lead, counselorID *uint) error {
	if a.isManager() {
		return nil
	}
	if a.Role == models.RoleCounselor && lead.AssignedCounselorID == nil && counselorID != nil && *counselorID == a.UserID {
		return nil
	}
	return utils.PermissionError("assign counselor")
}

func (LeadPolicy) CanConvert(a Actor) error {
	if a.isManager() {
		return nil
	}
	return utils.PermissionError("convert lead")
}

func (LeadPolicy) CanMarkLost(a Actor) error {
	if a.isManager() {
		return nil
	}
	return utils.PermissionError("mark lead lost")
}

func (LeadPolicy) CanDelete(a Actor) error {
	if a.isManager() {
		return nil
	}
	return utils.PermissionError("delete lead")
}
