package sqlinline

import (
	"testing"

	"avatarstudio/internal/tools/sqllint"
)

func TestStatementsCarryUniqueMarkers(t *testing.T) {
	report, err := sqllint.Lint(".")
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if report.Statements == 0 {
		t.Fatal("no SQL constants found")
	}
	for _, v := range report.Violations {
		t.Error(v.String())
	}
}
