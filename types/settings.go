package types

import (
	"time"

	"github.com/xraph/tally/id"
)

// Settings is the singleton control record for a Tally deployment: the
// designated Operator, the paused flag, and the reference timestamp of the
// first metric report ever accepted (the default reporting-period anchor).
type Settings struct {
	Entity

	Operator      id.OperatorID `json:"operator"`
	Paused        bool          `json:"paused"`
	FirstReportAt time.Time     `json:"first_report_at,omitzero"`
}
