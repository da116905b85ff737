package stringutils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GetRunID generate a short random token for ids
func GetRunID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}

// GetExecutionID mint a fresh execution id
func GetExecutionID() string {
	return fmt.Sprintf("exec-%s", GetRunID())
}

// GetCorrelationID mint the opaque token attached to every remote chaos call.
// Carrying service and kind keeps remote audit trails greppable.
func GetCorrelationID(service, kind string) string {
	return fmt.Sprintf("chaos-%s-%s-%s", service, kind, GetRunID())
}
