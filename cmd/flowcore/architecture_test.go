package main

import (
	"testing"

	"flowcore/testutil"
)

func TestCLIUsesFactoriesOnly(t *testing.T) {
	testutil.AssertNoImports(t, ".", testutil.InfraImport, "backends are selected through core.OpenRepositories and blob.Open")
}
