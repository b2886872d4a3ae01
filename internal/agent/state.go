package agent

// State names a node of the question-answering state machine.
type State int

const (
	// StateClassify decides whether the question needs database access.
	StateClassify State = iota
	// StateListTables enumerates the tables in the connected schema.
	StateListTables
	// StateGetSchema fetches definitions for the tables the model selects.
	StateGetSchema
	// StateGenerateQuery drafts a SQL query or produces the final answer.
	StateGenerateQuery
	// StateCheckQuery reviews the drafted query for common SQL mistakes.
	StateCheckQuery
	// StateRunQuery executes the reviewed query.
	StateRunQuery
	// StateDone terminates the cycle; the last message holds the answer.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateClassify:
		return "classify"
	case StateListTables:
		return "list-tables"
	case StateGetSchema:
		return "get-schema"
	case StateGenerateQuery:
		return "generate-query"
	case StateCheckQuery:
		return "check-query"
	case StateRunQuery:
		return "run-query"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
