package models

import "fmt"

// NumberingModule identifies the per-module sequential counter row.
type NumberingModule string

const (
	NumberingTrainingRequest   NumberingModule = "tr"
	NumberingProjectApproval   NumberingModule = "vpa"
	NumberingScheduleRequest   NumberingModule = "vsr"
	NumberingProjectAssignment NumberingModule = "par"
)

// CustomNumbering is the single counter row per module; the last number is
// advanced with an atomic update-and-return, never read-then-write.
type CustomNumbering struct {
	Module     NumberingModule `db:"module" json:"module"`
	LastNumber int             `db:"last_number" json:"last_number"`
}

// FormatCode renders the human-readable sequential code for a module.
func (m NumberingModule) FormatCode(n int) string {
	var prefix string
	switch m {
	case NumberingTrainingRequest:
		prefix = "TR"
	case NumberingProjectApproval:
		prefix = "VPA"
	case NumberingScheduleRequest:
		prefix = "VSR"
	case NumberingProjectAssignment:
		prefix = "PAR"
	default:
		prefix = string(m)
	}
	return fmt.Sprintf("%s%02d", prefix, n)
}
