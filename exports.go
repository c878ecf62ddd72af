package tally

import "github.com/xraph/tally/types"

// Re-export common types for convenience so users don't have to import types package.

// Tokens is re-exported from types package.
type Tokens = types.Tokens

// Entity is re-exported from types package.
type Entity = types.Entity

// Settings is re-exported from types package.
type Settings = types.Settings

// Re-export Entity constructor
var NewEntity = types.NewEntity
