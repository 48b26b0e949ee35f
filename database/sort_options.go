package database

const (
	SortManual      = "manual" // sort_order as assigned at ingestion
	SortFilenameAsc = "filename_asc"
	SortFilenameNat = "filename_nat"
	SortTakenDesc   = "taken_desc"
	SortTakenAsc    = "taken_asc"
)

const DefaultSortOrder = SortManual

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortManual, SortFilenameAsc, SortFilenameNat, SortTakenDesc, SortTakenAsc:
		return true
	default:
		return false
	}
}

// MediaOrderClause maps a sort order to an ORDER BY clause for the media
// table. SortFilenameNat has no SQL form and falls back to filename order;
// callers sort it in Go.
func MediaOrderClause(order string) string {
	switch order {
	case SortFilenameAsc, SortFilenameNat:
		return "filename ASC, id ASC"
	case SortTakenDesc:
		return "taken_at IS NULL, taken_at DESC, sort_order ASC"
	case SortTakenAsc:
		return "taken_at IS NULL, taken_at ASC, sort_order ASC"
	default:
		return "sort_order ASC, id ASC"
	}
}
