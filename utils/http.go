// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// ServiceClient is the shared client for internal service-to-service calls
// (social service, auth gateway). Keep the timeout short: these calls sit on
// user-facing request paths.
var ServiceClient = &http.Client{
	Timeout: 10 * time.Second,
}
