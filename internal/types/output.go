package types

// TableRenderer is implemented by results that print as a table
// (game lists, activity, status).
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	// EmptyMessage is printed instead of an empty table
	EmptyMessage() string
}

// TableRenderable is implemented by results whose table form is a
// separate view of the data.
type TableRenderable interface {
	AsTableRenderer() TableRenderer
}
