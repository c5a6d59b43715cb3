package httpapi

import "net/http"

// healthHandler reports liveness for load balancers and orchestrators;
// it never touches the policy store or ledger.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
