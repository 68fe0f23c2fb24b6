package main

import (
	"errors"
	"strings"

	"github.com/mycobotics/chamberlink/internal/configstore"
	"github.com/mycobotics/chamberlink/internal/transport"
)

// FormatUserError turns internal errors into messages a user can act on.
// Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var validation *configstore.ValidationError
	if errors.As(err, &validation) {
		return "configuration document rejected: " + validation.Error()
	}

	switch {
	case errors.Is(err, transport.ErrTimeout):
		return "the Bluetooth stack did not respond in time; check that the adapter is up"
	case errors.Is(err, transport.ErrStopped):
		return "the transport was already shut down"
	case strings.Contains(err.Error(), "operation not permitted"):
		return err.Error() + " (hint: run as root or grant CAP_NET_ADMIN to the binary)"
	default:
		return err.Error()
	}
}
