package auth

import "github.com/planhub-io/planhub/internal/db"

// Capability names. They double as the permission keys on the wire and as
// the guard labels in 403 responses.
const (
	CapViewPlanning              = "view_planning"
	CapEditPlanning              = "edit_planning"
	CapViewDrivers               = "view_drivers"
	CapManageDrivers             = "manage_drivers"
	CapEditDriverPlanning        = "edit_driver_planning"
	CapManageRights              = "manage_rights"
	CapManageVoyages             = "manage_voyages"
	CapGeneratePlanning          = "generate_planning"
	CapEditPastPlanning          = "edit_past_planning"
	CapEditPastPlanningAdvanced  = "edit_past_planning_advanced"
	CapViewFinance               = "view_finance"
	CapManageFinance             = "manage_finance"
	CapViewAnalyse               = "view_analyse"
	CapViewSauron                = "view_sauron"
	CapSendAnnouncements         = "send_announcements"
	CapManageAnnouncementsConfig = "manage_announcements_config"
	CapAdminAccess               = "admin_access"
)

// AllCapabilities lists every capability in declaration order.
var AllCapabilities = []string{
	CapViewPlanning,
	CapEditPlanning,
	CapViewDrivers,
	CapManageDrivers,
	CapEditDriverPlanning,
	CapManageRights,
	CapManageVoyages,
	CapGeneratePlanning,
	CapEditPastPlanning,
	CapEditPastPlanningAdvanced,
	CapViewFinance,
	CapManageFinance,
	CapViewAnalyse,
	CapViewSauron,
	CapSendAnnouncements,
	CapManageAnnouncementsConfig,
	CapAdminAccess,
}

// roleCapability reads one capability bit off a role.
func roleCapability(role *db.Role, cap string) bool {
	if role == nil {
		return false
	}
	switch cap {
	case CapViewPlanning:
		return role.ViewPlanning
	case CapEditPlanning:
		return role.EditPlanning
	case CapViewDrivers:
		return role.ViewDrivers
	case CapManageDrivers:
		return role.ManageDrivers
	case CapEditDriverPlanning:
		return role.EditDriverPlanning
	case CapManageRights:
		return role.ManageRights
	case CapManageVoyages:
		return role.ManageVoyages
	case CapGeneratePlanning:
		return role.GeneratePlanning
	case CapEditPastPlanning:
		return role.EditPastPlanning
	case CapEditPastPlanningAdvanced:
		return role.EditPastPlanningAdvanced
	case CapViewFinance:
		return role.ViewFinance
	case CapManageFinance:
		return role.ManageFinance
	case CapViewAnalyse:
		return role.ViewAnalyse
	case CapViewSauron:
		return role.ViewSauron
	case CapSendAnnouncements:
		return role.SendAnnouncements
	case CapManageAnnouncementsConfig:
		return role.ManageAnnouncementsConfig
	case CapAdminAccess:
		return role.AdminAccess
	default:
		return false
	}
}

// HasCapability resolves one effective permission bit. System admins hold
// every capability regardless of role.
func HasCapability(user *db.User, cap string) bool {
	if user == nil {
		return false
	}
	if user.IsSystemAdmin {
		return true
	}
	return roleCapability(user.Role, cap)
}

// EffectivePermissions snapshots every capability bit for a user, in the
// shape the login response and /auth/me return.
func EffectivePermissions(user *db.User) map[string]bool {
	perms := make(map[string]bool, len(AllCapabilities))
	for _, cap := range AllCapabilities {
		perms[cap] = HasCapability(user, cap)
	}
	return perms
}

// SeedRoles returns the seven seed roles with their fixed capability
// matrix. Every role extends the viewer baseline (view_planning +
// view_drivers); planner_advanced extends planner; admin holds all bits.
func SeedRoles() []db.Role {
	viewer := db.Role{
		Name:         "viewer",
		Description:  "Consultation du planning",
		ViewPlanning: true,
		ViewDrivers:  true,
	}

	planner := viewer
	planner.Name = "planner"
	planner.Description = "Édition du planning"
	planner.EditPlanning = true
	planner.ManageVoyages = true
	planner.SendAnnouncements = true

	plannerAdvanced := planner
	plannerAdvanced.Name = "planner_advanced"
	plannerAdvanced.Description = "Édition du planning, y compris passé"
	plannerAdvanced.EditPastPlanning = true
	plannerAdvanced.EditPastPlanningAdvanced = true
	plannerAdvanced.ViewFinance = true
	plannerAdvanced.ManageAnnouncementsConfig = true

	driverAdmin := viewer
	driverAdmin.Name = "driver_admin"
	driverAdmin.Description = "Gestion des chauffeurs"
	driverAdmin.ManageDrivers = true
	driverAdmin.EditDriverPlanning = true

	finance := viewer
	finance.Name = "finance"
	finance.Description = "Gestion financière"
	finance.ViewFinance = true
	finance.ManageFinance = true

	analyse := viewer
	analyse.Name = "analyse"
	analyse.Description = "Analyse et tableaux de bord"
	analyse.ViewFinance = true
	analyse.ViewAnalyse = true

	admin := db.Role{
		Name:                      "admin",
		Description:               "Administration complète",
		ViewPlanning:              true,
		EditPlanning:              true,
		ViewDrivers:               true,
		ManageDrivers:             true,
		EditDriverPlanning:        true,
		ManageRights:              true,
		ManageVoyages:             true,
		GeneratePlanning:          true,
		EditPastPlanning:          true,
		EditPastPlanningAdvanced:  true,
		ViewFinance:               true,
		ManageFinance:             true,
		ViewAnalyse:               true,
		ViewSauron:                true,
		SendAnnouncements:         true,
		ManageAnnouncementsConfig: true,
		AdminAccess:               true,
	}

	return []db.Role{viewer, planner, plannerAdvanced, driverAdmin, finance, analyse, admin}
}
