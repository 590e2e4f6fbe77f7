package values

type contextKey string

// Response status strings. util.StatusCode maps them to HTTP codes.
const (
	Success        = "success"
	Created        = "created"
	Warning        = "warning"
	Error          = "error"
	Failed         = "failed"
	BadRequestBody = "bad_request_body"
	Unprocessable  = "unprocessable"
	NotAllowed     = "not_allowed"
	Conflict       = "conflict"
	NotFound       = "not_found"
	NotAuthorised  = "not_authorised"
	TokenExpired   = "token_expired"
	Upstream       = "upstream_failure"
)

const (
	HeaderRequestSource = "X-Request-Source"
	HeaderRequestID     = "X-Request-ID"
	HeaderDetectorToken = "X-Detector-Token"
)

const (
	ContextTracingKey contextKey = "tracing"
	ContextSessionKey contextKey = "session"
)
