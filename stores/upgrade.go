package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"
)

// schemaVersion is bumped whenever Upgrade learns a new step.
const schemaVersion = 2

// Upgrade brings an existing database up to the current schema. Steps
// are idempotent: each one checks the live table layout before touching
// it, so running against a fresh schema is a no-op.
func Upgrade(db *squealx.DB) error {
	current, err := storedSchemaVersion(db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}
	if current < 2 {
		if err := upgradeRuleSetColumns(db); err != nil {
			return err
		}
		if err := dedupeGroupNames(db); err != nil {
			return err
		}
	}
	_, err = db.Exec(`UPDATE schema_version SET version = ?`, schemaVersion)
	return err
}

func storedSchemaVersion(db *squealx.DB) (int, error) {
	r, err := db.NamedQueryContext(context.Background(), `SELECT version FROM schema_version LIMIT 1`, map[string]any{})
	if err != nil {
		return 0, err
	}
	defer r.Close()
	if !r.Next() {
		if _, err := db.Exec(`INSERT INTO schema_version(version) VALUES(?)`, schemaVersion); err != nil {
			return 0, err
		}
		return schemaVersion, nil
	}
	var v int
	if err := r.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// upgradeRuleSetColumns renames columns carried over from older
// deployments to their current names.
func upgradeRuleSetColumns(db *squealx.DB) error {
	renames := [][2]string{
		{"access_by_user_group", "apply_by_user_groups"},
		{"apply_without_company", "apply_without_companies"},
		{"hide_delete", "hide_unlink"},
		{"hide_delete_in_favorites", "hide_unlink_in_favorites"},
	}
	for _, rn := range renames {
		if err := renameColumnIfPresent(db, "rule_sets", rn[0], rn[1]); err != nil {
			return err
		}
	}
	permRenames := [][2]string{
		{"perm_read", "restrict_read"},
		{"perm_write", "restrict_write"},
		{"perm_create", "restrict_create"},
		{"perm_unlink", "restrict_unlink"},
	}
	for _, rn := range permRenames {
		if err := renameColumnIfPresent(db, "domain_access", rn[0], rn[1]); err != nil {
			return err
		}
	}
	return nil
}

func renameColumnIfPresent(db *squealx.DB, table, oldName, newName string) error {
	hasOld, err := columnExists(db, table, oldName)
	if err != nil {
		return err
	}
	hasNew, err := columnExists(db, table, newName)
	if err != nil {
		return err
	}
	if !hasOld || hasNew {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`, table, oldName, newName))
	return err
}

func columnExists(db *squealx.DB, table, column string) (bool, error) {
	q := `SELECT COUNT(*) AS n FROM pragma_table_info(:table) WHERE name = :column`
	r, err := db.NamedQueryContext(context.Background(), q, map[string]any{"table": table, "column": column})
	if err != nil {
		return false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, nil
	}
	var n int
	if err := r.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// dedupeGroupNames suffixes duplicate group names so the uniqueness
// constraint can apply. Older deployments allowed clashes.
func dedupeGroupNames(db *squealx.DB) error {
	q := `SELECT id, name FROM user_groups ORDER BY rowid`
	r, err := db.NamedQueryContext(context.Background(), q, map[string]any{})
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	type fix struct{ id, name string }
	var fixes []fix
	for r.Next() {
		var id, name string
		if err := r.Scan(&id, &name); err != nil {
			r.Close()
			return err
		}
		if seen[name] {
			fixes = append(fixes, fix{id: id, name: fmt.Sprintf("%s (%s)", name, id)})
			continue
		}
		seen[name] = true
	}
	r.Close()
	for _, f := range fixes {
		if _, err := db.Exec(`UPDATE user_groups SET name = ? WHERE id = ?`, f.name, f.id); err != nil {
			return err
		}
	}
	return nil
}
