package models

// Module identifies a permission-gated area of the admin panel.
type Module string

const (
	ModuleCompetencies        Module = "competencies"
	ModuleTrainingRequests    Module = "training-requests"
	ModuleValidationApprovals Module = "validation-approvals"
	ModuleValidationSchedules Module = "validation-schedules"
	ModuleProjectAssignments  Module = "project-assignments"
	ModuleBatches             Module = "batches"
	ModuleUsers               Module = "users"
	ModuleReports             Module = "reports"
	ModuleActivityLog         Module = "activity-log"
)

// Action is one of the four per-module operations a role may hold.
type Action string

const (
	ActionList   Action = "list"
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

type grantKey struct {
	module Module
	action Action
}

// roleGrants is the static per-role permission matrix. Role-permission CRUD is
// intentionally not part of this service; changing grants is a code change.
var roleGrants = map[UserRole]map[grantKey]struct{}{
	RoleStaff: buildGrants(map[Module][]Action{
		ModuleCompetencies:        {ActionList, ActionAdd, ActionEdit, ActionDelete},
		ModuleTrainingRequests:    {ActionList, ActionAdd, ActionEdit},
		ModuleValidationApprovals: {ActionList, ActionAdd, ActionEdit},
		ModuleValidationSchedules: {ActionList, ActionAdd, ActionEdit},
		ModuleProjectAssignments:  {ActionList, ActionAdd, ActionEdit},
		ModuleBatches:             {ActionList, ActionAdd, ActionEdit},
		ModuleUsers:               {ActionList},
		ModuleReports:             {ActionList, ActionAdd},
		ModuleActivityLog:         {ActionList},
	}),
	RoleTrainer: buildGrants(map[Module][]Action{
		ModuleCompetencies:        {ActionList},
		ModuleTrainingRequests:    {ActionList, ActionEdit},
		ModuleValidationSchedules: {ActionList, ActionEdit},
		ModuleBatches:             {ActionList, ActionAdd, ActionEdit},
		ModuleReports:             {ActionList},
	}),
	RoleLearner: buildGrants(map[Module][]Action{
		ModuleCompetencies:        {ActionList},
		ModuleTrainingRequests:    {ActionList, ActionAdd},
		ModuleValidationApprovals: {ActionList, ActionAdd},
		ModuleValidationSchedules: {ActionList},
		ModuleBatches:             {ActionList, ActionEdit},
	}),
}

func buildGrants(grants map[Module][]Action) map[grantKey]struct{} {
	set := make(map[grantKey]struct{})
	for module, actions := range grants {
		for _, action := range actions {
			set[grantKey{module: module, action: action}] = struct{}{}
		}
	}
	return set
}

// Allowed reports whether the role holds the (module, action) grant.
// Admin holds every grant.
func Allowed(role UserRole, module Module, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	grants, ok := roleGrants[role]
	if !ok {
		return false
	}
	_, ok = grants[grantKey{module: module, action: action}]
	return ok
}
