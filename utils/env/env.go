package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pashuarogyam/vetai/utils/array"
)

// Reader reads typed overrides from the environment. Malformed values keep
// the default and are reported together by Err.
type Reader struct {
	errs []error
}

func (r *Reader) String(name string, defaultValue string) string {
	if !HasEnv(name) {
		return defaultValue
	}
	return os.Getenv(name)
}

func (r *Reader) Int(name string, defaultValue int) int {
	if !HasEnv(name) {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("environment variable (%s) is not a valid int", name))
		return defaultValue
	}
	return intValue
}

func (r *Reader) Bool(name string, defaultValue bool) bool {
	if !HasEnv(name) {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("environment variable (%s) is not a valid bool", name))
		return defaultValue
	}
	return boolValue
}

// List splits a comma-separated value, dropping blank items. A set but empty
// variable yields an empty list.
func (r *Reader) List(name string, defaultValue []string) []string {
	if !HasEnv(name) {
		return defaultValue
	}
	items := array.Map(strings.Split(os.Getenv(name), ","), strings.TrimSpace)
	return array.Filter(items, func(item string) bool { return item != "" })
}

func (r *Reader) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d malformed environment variable(s): %v", len(r.errs), r.errs)
}

func HasEnv(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}
