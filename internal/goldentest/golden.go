// Package goldentest provides a generic canonical-JSON golden-file
// helper shared by the watch and traffic packages' end-to-end scenario
// tests.
package goldentest

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertJSON marshals v to canonical JSON and compares it against the
// fixture testdata/golden/<name>.golden, creating or overwriting the
// fixture when the test binary is run with -update.
func AssertJSON(t *testing.T, name string, v any) {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal golden snapshot %q: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
