package rediskeys

import (
	"fmt"
)

// PendingRequestKey is the hash that mirrors an outstanding join request.
// Connection ids restart at 1 with every process, so keys are scoped by instance.
func PendingRequestKey(instanceID string, connectionID uint64) string {
	return fmt.Sprintf("relay:%s:pending:%d", instanceID, connectionID)
}

// PendingIndexKey is the set of connection ids with an outstanding request on an instance.
func PendingIndexKey(instanceID string) string {
	return fmt.Sprintf("relay:%s:pending", instanceID)
}

// DecisionLogKey is the capped list of resolved decisions for an instance.
func DecisionLogKey(instanceID string) string {
	return fmt.Sprintf("relay:%s:decisions", instanceID)
}
