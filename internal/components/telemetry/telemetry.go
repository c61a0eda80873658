package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics.
// This allows tests to assert that a component reported what it should have.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way the operator should know about.
	//
	// The `id` should name the **component** that broke, not the specific line inside it.
	// ex. a failed GET inside the status prober is `client.probe-status`, the transport
	// error itself goes into params.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// Use ScopedAPI to disambiguate between packages instead of putting package paths
	// into the id.
	ReportBroken(id string, params ...any)

	// ReportWarning reports a scenario that is not necessarily broken but may be
	// subject to investigation (a rate limit, a schema we had to guess at).
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is ignored unless running verbosely.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of a specific event, these counts should
	// not be summed but interpreted as points of data over time.
	ReportCount(id string, count int64)
}

// ScopedAPI is a telemetry API that prefixes every id with a namespace, kind of like
// creating a "sub" logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
