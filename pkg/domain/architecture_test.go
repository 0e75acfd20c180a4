package domain

import (
	"testing"

	"rankmine/testutil"
)

// TestDomainStaysSelfContained keeps the domain package free of driver and
// third-party imports so every storage backend can depend on it.
func TestDomainStaysSelfContained(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return testutil.ThirdPartyImportForbidden(ip) || testutil.InternalImportForbidden(ip)
	}, "domain depends only on the standard library")
}
