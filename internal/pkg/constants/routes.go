package constants

// Public funnel routes
const (
	FunnelStartRoute   = "/funnel/start"
	FunnelPreviewRoute = "/funnel/preview"
	FunnelStatusRoute  = "/funnel/status"
	FunnelEditorRoute  = "/funnel/editor"
)

// AdminAPIGroup is the basicauth-protected admin prefix
const AdminAPIGroup = "/admin/api"
