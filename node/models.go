// Package node defines the registered storage/bandwidth providers.
package node

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRemoved Status = "removed"
)

// Node is a service provider registered with the Cloud. Removal flips the
// status but keeps the record: historical metrics and availability data
// must stay resolvable for audit.
type Node struct {
	types.Entity

	ID       id.NodeID `json:"id"`
	P2PAddr  string    `json:"p2p_addr"`
	URL      string    `json:"url"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen,omitzero"`
}

// Active reports whether the Node may serve traffic and be the subject of
// new metric reports.
func (n *Node) Active() bool {
	return n.Status == StatusActive
}

// ListOpts filters ListNodes.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
