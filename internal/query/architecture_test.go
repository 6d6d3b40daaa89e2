package query_test

import (
	"testing"

	"songcatalog/testutil"
)

func TestQueryIsPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "the filter works on snapshots only and must not reach the store or service")
}
