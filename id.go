package tally

import "github.com/xraph/tally/id"

// ID is the primary identifier type for all Tally actors.
type ID = id.ID

// Prefix identifies the actor type encoded in a TypeID.
type Prefix = id.Prefix
