package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// queryInt reads an optional integer query parameter. A missing parameter
// yields def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}

// carType reads the optional car_type filter.
func carType(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("car_type"))
}

// allowGet rejects anything but GET and HEAD with 404, matching the mux's
// handling of unknown routes.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return false
	}
	return true
}
