package context

import "net/http"

// Keys handlers set on the gin context so request logs and spans can name the
// invites a request touched.
const (
	KeyInviteCode  = "invite_code"
	KeyInviteCount = "invite_count"
)

var operations = map[string]string{
	http.MethodGet + " /v1/invites":          "invites.list",
	http.MethodPost + " /v1/invites":         "invites.create",
	http.MethodDelete + " /v1/invites":       "invites.delete_many",
	http.MethodGet + " /v1/invites/:code":    "invites.get",
	http.MethodDelete + " /v1/invites/:code": "invites.delete",
	http.MethodPost + " /v1/reindex":         "invites.reindex",
	http.MethodGet + " /v1/reindex":          "invites.index_stats",
	http.MethodGet + " /health":              "health",
	http.MethodGet + " /metrics":             "metrics",
}

// Operation names the operation served by method on a gin route template,
// or "" when the route is not one of ours.
func Operation(method, route string) string {
	return operations[method+" "+route]
}

// IsRoutine reports the health and metrics endpoints.
func IsRoutine(operation string) bool {
	return operation == "health" || operation == "metrics"
}
