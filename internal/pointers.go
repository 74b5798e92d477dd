package internal

//go:fix inline
func Ptr[T any](t T) *T { return new(t) }

// String returns a pointer to the given string.
func String(s string) *string { return &s }
