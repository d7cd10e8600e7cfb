package wamp

// Predefined error URIs returned by the router. Application errors use
// their own URIs; these cover routing, authorization, and lifecycle
// failures.
const (
	ErrInvalidURI              URI = "wamp.error.invalid_uri"
	ErrInvalidArgument         URI = "wamp.error.invalid_argument"
	ErrProtocolViolation       URI = "wamp.error.protocol_violation"
	ErrNoSuchRealm             URI = "wamp.error.no_such_realm"
	ErrNoSuchSubscription      URI = "wamp.error.no_such_subscription"
	ErrNoSuchRegistration      URI = "wamp.error.no_such_registration"
	ErrNoSuchProcedure         URI = "wamp.error.no_such_procedure"
	ErrProcedureAlreadyExists  URI = "wamp.error.procedure_already_exists"
	ErrNotAuthorized           URI = "wamp.error.not_authorized"
	ErrAuthorizationFailed     URI = "wamp.error.authorization_failed"
	ErrNoSuchAuthMethod        URI = "wamp.error.no_matching_auth_method"
	ErrCanceled                URI = "wamp.error.canceled"
	ErrTimeout                 URI = "wamp.error.timeout"
	ErrCalleeGone              URI = "wamp.error.callee_lost"
	ErrSessionGone             URI = "wamp.error.session_lost"
	ErrOptionNotAllowed        URI = "wamp.error.option_not_allowed"
	ErrOptionDisallowedDiscloseMe URI = "wamp.error.option_disallowed.disclose_me"
	ErrNetworkFailure          URI = "wamp.error.network_failure"
	ErrSystemShutdown          URI = "wamp.error.system_shutdown"
	ErrCloseRealm              URI = "wamp.error.close_realm"
	ErrGoodbyeAndOut           URI = "wamp.error.goodbye_and_out"
)
