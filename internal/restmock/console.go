package restmock

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ConsoleStub is the inspection-console view of a registered stub.
type ConsoleStub struct {
	Name      string `json:"name"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Times     int    `json:"times,omitempty"`
	Calls     int    `json:"calls"`
	Sequenced bool   `json:"sequenced,omitempty"`
}

// consoleHandled serves the inspection console. Returns false when the
// request is regular mock traffic.
//
// Endpoints:
//
//	GET /_qakit/stubs     registered stubs with call counts
//	GET /_qakit/requests  recorded traffic, oldest first
func consoleHandled(s *Server, w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, consolePrefix) {
		return false
	}

	if r.Method != http.MethodGet {
		s.writeDiagnostic(w, http.StatusMethodNotAllowed, "console is read-only", nil)
		return true
	}

	switch r.URL.Path {
	case consolePrefix + "/stubs":
		s.mu.Lock()
		stubs := make([]ConsoleStub, 0, len(s.stubs))
		for _, st := range s.stubs {
			stubs = append(stubs, ConsoleStub{
				Name:      st.stub.Name,
				Method:    st.stub.Method,
				Path:      st.stub.Path,
				Status:    st.stub.Status,
				Times:     st.stub.Times,
				Calls:     st.calls,
				Sequenced: len(st.stub.Responses) > 0,
			})
		}
		s.mu.Unlock()
		writeConsoleJSON(w, map[string]any{"stubs": stubs})

	case consolePrefix + "/requests":
		writeConsoleJSON(w, map[string]any{"requests": s.Recorded()})

	default:
		s.writeDiagnostic(w, http.StatusNotFound, "unknown console endpoint", map[string]any{
			"endpoints": []string{consolePrefix + "/stubs", consolePrefix + "/requests"},
		})
	}
	return true
}

func writeConsoleJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
