package server

// Route path constants
const (
	RouteIndex = "/"

	// Login & Logout
	RouteLogin  = "/login"
	RouteLogout = "/logout"

	// OAuth2 flow: Capture, Authorize and Redirect stages, then the token endpoint
	RouteAuthorize        = "/oauth2/authorize"
	RouteAuthorizeConfirm = "/oauth2/authorize/confirm"
	RouteRedirect         = "/oauth2/redirect"
	RouteAccessToken      = "/oauth2/access_token"

	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)
