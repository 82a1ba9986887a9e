package engine

import (
	"fmt"
	"reflect"

	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

// ValidatePipeline checks that a pipeline has everything it needs to run.
func ValidatePipeline(sources []operator.Source, union UnionOperator, sink operator.Sink) error {
	if len(sources) == 0 {
		return fmt.Errorf("pipeline must contain at least one source")
	}
	for i, src := range sources {
		if isNil(src) {
			return fmt.Errorf("source[%d] is nil", i)
		}
	}
	if isNil(union) {
		return fmt.Errorf("union operator is required")
	}
	if isNil(sink) {
		return fmt.Errorf("sink is required")
	}
	return nil
}

// isNil reports whether v is nil or an interface holding a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
