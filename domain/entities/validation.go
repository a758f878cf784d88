package entities

// ValidationResult represents the outcome of a policy validation.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is one violation. Field is a JSON pointer into the document.
type ValidationError struct {
	Field   string
	Message string
}
