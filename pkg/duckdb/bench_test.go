//go:build duckdb

package duckdb

import (
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/isotope/frameunion/pkg/union"
)

func BenchmarkUnionEngines(b *testing.B) {
	sizes := []int{100, 1000, 10000, 100000}

	for _, size := range sizes {
		alloc := memory.DefaultAllocator

		vals := make([]int64, size)
		for i := range vals {
			vals[i] = int64(i)
		}
		left := makeBatch(alloc, []string{"x", "y"},
			[]arrow.Array{makeInt64Arr(alloc, vals), makeInt64Arr(alloc, vals)})
		right := makeBatch(alloc, []string{"z", "x"},
			[]arrow.Array{makeInt64Arr(alloc, vals), makeInt64Arr(alloc, vals)})

		inst, err := NewInstance(alloc, 0)
		if err != nil {
			b.Fatal(err)
		}

		engines := map[string]union.Executor{
			"arrow":  union.NewArrowExecutor(alloc),
			"duckdb": inst,
		}
		for name, exec := range engines {
			b.Run(fmt.Sprintf("%s/rows=%d", name, size), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					result, err := exec.Union(left, right)
					if err != nil {
						b.Fatal(err)
					}
					result.Release()
				}
			})
		}

		inst.Close()
		left.Release()
		right.Release()
	}
}
