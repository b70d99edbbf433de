// package database defines the storage of request metrics
// collected by the rpc gateway, with postgres, in-memory and
// no-op implementations in its sub packages
package database

import "time"

// ProxiedRequestMetric contains request metrics for
// a single call served by the gateway
type ProxiedRequestMetric struct {
	ID                          int64
	MethodName                  string
	ResponseLatencyMilliseconds int64
	RequestTime                 time.Time
	CacheHit                    bool
	// ErrorCode is the json-rpc error code returned to the client, nil on success
	ErrorCode *int
}

// Failed reports whether the call was answered with an error
func (prm *ProxiedRequestMetric) Failed() bool {
	return prm.ErrorCode != nil
}
