package services

import (
	"fmt"
	"time"
)

// Greet returns the greeting shown by the front end, stamped with now in epoch milliseconds
func Greet(now time.Time) string {
	return fmt.Sprintf("Hello world from Go! Current epoch: %d", now.UnixMilli())
}
