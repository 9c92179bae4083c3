package server

// Endpoint routes. The /connect prefix and endpoint names follow the
// conventional identity server layout clients already know.
const (
	RouteDiscovery             = "/.well-known/openid-configuration"
	RouteJWKS                  = "/.well-known/jwks"
	RouteAuthorize             = "/connect/authorize"
	RouteToken                 = "/connect/token"
	RouteUserInfo              = "/connect/userinfo"
	RouteEndSession            = "/connect/endsession"
	RouteExternalCallback      = "/connect/callback"
	RouteAccessTokenValidation = "/connect/accesstokenvalidation"
)
