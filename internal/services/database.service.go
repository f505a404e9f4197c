package services

// Database is the data-access handle shared by command handlers through
// Commands. The demo commands keep no state, so it is empty.
type Database struct{}

func NewDatabase() *Database {
	return &Database{}
}
