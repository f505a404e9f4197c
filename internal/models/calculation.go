package models

// CalculationRequest carries the arguments of the calculate command
type CalculationRequest struct {
	A         *int   `json:"a" binding:"required"`
	B         *int   `json:"b" binding:"required"`
	Operation string `json:"operation" binding:"required"`
}

// CalculationResult is returned by the calculate command
type CalculationResult struct {
	Result      int    `json:"result"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
	Description string `json:"description"`
}
