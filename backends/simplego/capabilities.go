// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/opcheck/backends"
)

// Capabilities of the SimpleGo backends: the set of supported operations and data types.
var Capabilities = backends.Capabilities{
	Operations: map[backends.OpType]bool{
		backends.OpTypeAffine: true,
		backends.OpTypeCast:   true,
		backends.OpTypeRelu:   true,

		// Standard binary operations:
		backends.OpTypeAdd:      true,
		backends.OpTypeMultiply: true,
	},

	DTypes: backends.AllDTypes(),
}
