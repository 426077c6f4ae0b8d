package filter

import "net/http"

// Action is the directive returned to the host after every event.
type Action int

const (
	// ActionContinue forwards the exchange normally.
	ActionContinue Action = iota
	// ActionPause holds the exchange; the host redelivers control when more
	// body data arrives.
	ActionPause
)

func (a Action) String() string {
	if a == ActionPause {
		return "pause"
	}
	return "continue"
}

// Host is the traffic-processing host as seen from one exchange.
type Host interface {
	RequestHeaders() http.Header
	// RequestPath is the request target including its query string.
	RequestPath() string
	// RequestBody returns size bytes of the body chunk currently being
	// delivered, starting at start.
	RequestBody(start, size int) ([]byte, error)
	ResponseHeaders() http.Header
	AddResponseHeader(key, value string)
	// SendResponse answers the exchange locally; the upstream is not
	// contacted afterwards.
	SendResponse(status int, headers http.Header, body []byte)
}
