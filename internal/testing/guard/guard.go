// Package guard switches test mode on as a side effect of being imported.
package guard

import (
	tienditatesting "github.com/nahum29/tiendita/testing"
)

func init() {
	tienditatesting.EnsureTestMode()
}
