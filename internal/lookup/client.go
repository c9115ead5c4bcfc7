package lookup

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewSafeClient builds the HTTP client used for upstream calls. Only HTTPS on
// port 443 to public addresses is allowed; the dialer re-checks resolved IPs.
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
