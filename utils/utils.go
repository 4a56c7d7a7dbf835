package utils

// Must returns obj and panics on err. Only for setup code where failing is
// the only option.
func Must[T any](obj T, err error) T {
	if err != nil {
		panic(err)
	}
	return obj
}
