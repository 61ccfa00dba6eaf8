package model

// ChangeStatus classifies one entry of a build diff
type ChangeStatus int8

const (
	// Removed items are present in the left build only
	Removed ChangeStatus = -1

	// Changed items carry the same category/name in both builds but a
	// different version
	Changed ChangeStatus = 0

	// Added items are present in the right build only
	Added ChangeStatus = 1
)

func (s ChangeStatus) String() string {
	switch s {
	case Removed:
		return "REMOVED"
	case Changed:
		return "CHANGED"
	case Added:
		return "ADDED"
	}
	return "UNKNOWN"
}

// Change is one changed package in a build diff
type Change struct {
	Item   string       `json:"item"`
	Status ChangeStatus `json:"status"`
}
