package logger

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stackOf returns the innermost recorded stack trace in err's chain.
func stackOf(err error) string {
	var found stackTracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			found = st
		}
	}
	if found == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%+v", found.StackTrace()))
}
