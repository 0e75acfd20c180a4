package memory

import (
	"testing"

	"rankmine/testutil"
)

func TestDriverDoesNotImportServiceLayer(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ServiceImportForbidden,
		"persistence drivers depend only on the domain contracts")
}
