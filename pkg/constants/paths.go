package constants

// HTTP paths shared by the router, tests and the OpenAPI document.
const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathSwagger = "/swagger"

	PathCalls            = "/calls"
	PathAstrologerStatus = "/astrologer/status"
	PathEvents           = "/events"
	PathWSEvents         = "/ws/events"
	PathAdminCalls       = "/admin/calls"
	PathAdminFixPending  = "/admin/fix-pending-calls"
)
