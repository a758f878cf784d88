package ports

// PolicyValidator checks a raw policy document against the policy schema.
type PolicyValidator interface {
	// Validate returns a SchemaError describing every violation, or nil.
	Validate(data []byte) error
}
