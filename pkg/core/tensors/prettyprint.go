package tensors

import (
	"bytes"
	"fmt"
	"strings"
)

// Summary returns a multi-line summary of the Tensor's content, with rows of at most
// 6 elements (longer rows are elided in the middle). Inspired by numpy output.
func (t *Tensor) Summary(precision int) string {
	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }

	// Print value with appropriate formatting.
	dtype := t.shape.DType
	wValue := func(flatIdx int) {
		if dtype.IsFloat() {
			w("%.*g", precision, t.Float64At(flatIdx))
		} else if dtype.IsUnsigned() {
			w("%d", uint64(t.Int64At(flatIdx)))
		} else {
			w("%d", t.Int64At(flatIdx))
		}
	}

	dims := t.shape.Dimensions
	for _, dim := range dims {
		w("[%d]", dim)
	}
	w("%s", dtype.GoType())
	if len(dims) == 0 {
		w("(")
		wValue(0)
		w(")")
		return buf.String()
	}

	// Recursive function to print elements
	var printElements func(index, indent int, currentShape []int)
	printElements = func(index, indent int, currentShape []int) {
		if len(currentShape) == 1 {
			// One row of data:
			w("{")
			if currentShape[0] > 6 {
				// Apply ellipsis for large arrays
				for i := 0; i < 3; i++ {
					if i > 0 {
						w(", ")
					}
					wValue(index + i)
				}
				w(", ..., ")
				for i := currentShape[0] - 3; i < currentShape[0]; i++ {
					if i > currentShape[0]-3 {
						w(", ")
					}
					wValue(index + i)
				}
			} else {
				for i := 0; i < currentShape[0]; i++ {
					if i > 0 {
						w(", ")
					}
					wValue(index + i)
				}
			}
			w("}")
			return
		}

		stride := 1
		for _, dim := range currentShape[1:] {
			stride *= dim
		}
		w("{")
		if indent == -1 {
			w("\n ")
			indent = 1
		}
		indentStr := strings.Repeat(" ", indent)
		numRows := currentShape[0]
		if numRows > 6 {
			// First and last 3 rows only.
			for ii := 0; ii < 3; ii++ {
				if ii > 0 {
					w(",\n%s", indentStr)
				}
				printElements(index+ii*stride, indent+1, currentShape[1:])
			}
			w(",\n%s...", indentStr)
			for ii := numRows - 3; ii < numRows; ii++ {
				w(",\n%s", indentStr)
				printElements(index+ii*stride, indent+1, currentShape[1:])
			}
			w("}")
			return
		}
		for ii := range numRows {
			if ii > 0 {
				w(",\n%s", indentStr)
			}
			printElements(index+ii*stride, indent+1, currentShape[1:])
		}
		w("}")
	}
	printElements(0, -1, dims)
	return buf.String()
}
