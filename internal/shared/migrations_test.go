package shared

import (
	"reflect"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		if migrations[0].Name != "create_tables" {
			t.Errorf("expected first migration name create_tables, got %q", migrations[0].Name)
		}
	})

	t.Run("statements", func(t *testing.T) {
		script := `-- header
CREATE TABLE a (id INTEGER); -- trailing
;
CREATE TABLE b (
    id INTEGER -- inline
);`
		got := statements(script)
		want := []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (\nid INTEGER\n)"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("statements() = %#v, want %#v", got, want)
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		for _, table := range []string{"users", "tracks", "albums", "playlists", "labels", "tracks_playlists", "tracks_labels"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		before, err := AppliedVersions(db)
		if err != nil {
			t.Fatalf("failed to read versions: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		after, err := AppliedVersions(db)
		if err != nil {
			t.Fatalf("failed to read versions after rollback: %v", err)
		}
		if len(after) >= len(before) {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", len(after), len(before))
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		for i := 0; i < 2; i++ {
			if err := RunMigrations(db); err != nil {
				t.Fatalf("failed to run migrations (pass %d): %v", i+1, err)
			}
		}

		versions, err := AppliedVersions(db)
		if err != nil {
			t.Fatal(err)
		}
		migrations, _ := loadMigrations()
		if len(versions) != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), len(versions))
		}
	})

	t.Run("Foreign keys enforced", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatal(err)
		}

		_, err = db.Exec("INSERT INTO tracks_labels (track_id, label_id) VALUES ('missing', 42)")
		if err == nil {
			t.Error("expected foreign key violation")
		}
	})

	t.Run("Label playlist invariant enforced", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatal(err)
		}

		if _, err := db.Exec("INSERT INTO playlists (id, type) VALUES ('p1', 'label')"); err == nil {
			t.Error("expected label playlist without label_id to be rejected")
		}
	})
}
