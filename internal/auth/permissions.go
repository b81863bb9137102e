package auth

// Permission codes follow the "resource.action" convention. The catalog is
// global and append-only; roles reference it per organization.
const (
	PermOrgManage        = "org.manage"
	PermUserManage       = "user.manage"
	PermUserRead         = "user.read"
	PermRoleManage       = "role.manage"
	PermPermissionManage = "permission.manage"
	PermSessionManage    = "session.manage"
	PermAuditRead        = "audit.read"

	PermLeadCreate = "lead.create"
	PermLeadRead   = "lead.read"
	PermLeadUpdate = "lead.update"
	PermLeadDelete = "lead.delete"

	PermDealCreate = "deal.create"
	PermDealRead   = "deal.read"
	PermDealUpdate = "deal.update"

	PermInvoiceCreate  = "invoice.create"
	PermInvoiceRead    = "invoice.read"
	PermInvoiceApprove = "invoice.approve"

	PermReportRead   = "report.read"
	PermReportExport = "report.export"
)

// BuiltinPermissions is the seed catalog ensured at startup and at tenant
// registration.
func BuiltinPermissions() []Permission {
	return []Permission{
		{Code: PermOrgManage, Description: "Manage organization settings"},
		{Code: PermUserManage, Description: "Create, suspend and deactivate users"},
		{Code: PermUserRead, Description: "View users in the organization"},
		{Code: PermRoleManage, Description: "Create roles and change assignments"},
		{Code: PermPermissionManage, Description: "Edit role permission grants"},
		{Code: PermSessionManage, Description: "Revoke sessions of other users"},
		{Code: PermAuditRead, Description: "Read the audit trail"},
		{Code: PermLeadCreate, Description: "Create leads"},
		{Code: PermLeadRead, Description: "View leads"},
		{Code: PermLeadUpdate, Description: "Edit leads"},
		{Code: PermLeadDelete, Description: "Delete leads"},
		{Code: PermDealCreate, Description: "Create deals"},
		{Code: PermDealRead, Description: "View deals"},
		{Code: PermDealUpdate, Description: "Edit deals"},
		{Code: PermInvoiceCreate, Description: "Create invoices"},
		{Code: PermInvoiceRead, Description: "View invoices"},
		{Code: PermInvoiceApprove, Description: "Approve invoices for payment"},
		{Code: PermReportRead, Description: "View reports"},
		{Code: PermReportExport, Description: "Export report data"},
	}
}

// AllPermissionCodes returns every builtin code, used when seeding the Owner
// role of a new tenant.
func AllPermissionCodes() []string {
	perms := BuiltinPermissions()
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	return codes
}

// ValidPermissionCode reports whether code belongs to the builtin catalog.
func ValidPermissionCode(code string) bool {
	for _, p := range BuiltinPermissions() {
		if p.Code == code {
			return true
		}
	}
	return false
}
