package services

import (
	"errors"
	"fmt"
	"time"

	"deskbridge/internal/models"
)

// ErrDivideByZero is returned when the divide operation gets a zero divisor.
// The message is shown to the front end verbatim.
var ErrDivideByZero = errors.New("Cannot divide by zero")

// UnknownOperationError reports an operation name outside add, subtract,
// multiply and divide
type UnknownOperationError struct {
	Operation string
}

func (e *UnknownOperationError) Error() string {
	return "Unknown operation: " + e.Operation
}

// Calculator evaluates the calculate command
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a calculator stamping results with now, or time.Now when nil
func NewCalculator(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{now: now}
}

// Calculate applies operation to a and b. Overflow wraps at the width of int.
func (c *Calculator) Calculate(a, b int, operation string) (*models.CalculationResult, error) {
	var result int

	switch operation {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return nil, ErrDivideByZero
		}
		result = a / b
	default:
		return nil, &UnknownOperationError{Operation: operation}
	}

	return &models.CalculationResult{
		Result:      result,
		Timestamp:   c.now().UnixMilli(),
		Description: fmt.Sprintf("Operation: %d %s %d", a, operation, b),
	}, nil
}
