// Package inspector defines the auditors authorized to report Node metrics.
package inspector

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/types"
)

// Inspector is an independent auditor authorized to submit metric reports
// and availability signals. CurrentDay is per-reporter bookkeeping: the
// first day the Inspector has not yet finalized, zero until the first
// FinalizeReportingPeriod call.
type Inspector struct {
	types.Entity

	ID         id.InspectorID `json:"id"`
	Name       string         `json:"name,omitempty"`
	CurrentDay metric.Day     `json:"current_day,omitempty"`
}
