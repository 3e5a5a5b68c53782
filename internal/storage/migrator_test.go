package storage

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) < 3 {
		t.Fatalf("loaded %d migrations, want at least 3", len(migrations))
	}

	for i, m := range migrations {
		if m.SQL == "" {
			t.Errorf("migration %d (%s) has empty SQL", m.Version, m.Name)
		}
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Errorf("migrations out of order: %d before %d",
				migrations[i-1].Version, m.Version)
		}
	}

	if migrations[0].Name != "ingest_tables" {
		t.Errorf("first migration = %q, want ingest_tables", migrations[0].Name)
	}
}

func TestMigrations_DefineEveryPublishStep(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}

	for _, step := range PublishSteps {
		if !strings.Contains(all.String(), "FUNCTION "+step) {
			t.Errorf("no migration defines publish step %s", step)
		}
	}
	if !strings.Contains(all.String(), "FUNCTION finalize_ingest_run") {
		t.Errorf("no migration defines the finalize fallback")
	}
}

func TestCreateRunSQL_MatchesSchema(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	schema := migrations[0].SQL

	open := strings.Index(createRunSQL, "(")
	closing := strings.Index(createRunSQL, ")")
	if open < 0 || closing < open {
		t.Fatalf("cannot parse column list from %q", createRunSQL)
	}

	for _, column := range strings.Split(createRunSQL[open+1:closing], ",") {
		column = strings.TrimSpace(column)
		if !strings.Contains(schema, column+" ") {
			t.Errorf("ingest_runs insert names column %q, absent from migration %s",
				column, migrations[0].Name)
		}
	}
}

func TestMigrations_RollupsOverwritePerRun(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	sql := all.String()

	// Republishing a run (e.g. via the finalize fallback after the stepwise
	// rollup already ran) must not accumulate counts.
	if strings.Contains(sql, "+ EXCLUDED.event_count") {
		t.Error("rollup upsert is additive; republishing a run would double-count")
	}
	if !strings.Contains(sql, "ON CONFLICT (ingest_run_id, day, source_kind, severity)") {
		t.Error("rollup conflict target is not keyed by run")
	}
}
