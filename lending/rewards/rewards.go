package rewards

// EventKindString is a type alias for the loan lifecycle events that earn
// points.
type EventKindString = string

const (
	EventBorrow EventKindString = "borrow"
	EventReturn EventKindString = "return"
)

const (
	borrowPoints = 10
	returnPoints = 15
)

// DeltaFor returns the point delta earned by one lifecycle event.
// Unknown event kinds earn nothing.
func DeltaFor(kind EventKindString) int {
	switch kind {
	case EventBorrow:
		return borrowPoints
	case EventReturn:
		return returnPoints
	default:
		return 0
	}
}
