package config

// Validator interface for configurations that need validation.
type Validator interface {
	Validate() error
}

// Defaulter fills zero values with defaults before validation.
type Defaulter interface {
	ApplyDefaults()
}
