package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260210091500",
		up:      mig_20260210091500_memberships_up,
		down:    mig_20260210091500_memberships_down,
	})
}

func mig_20260210091500_memberships_up(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
        CREATE TABLE IF NOT EXISTS memberships (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id),
            resource_type VARCHAR(16) NOT NULL CHECK (resource_type IN ('company', 'workspace')),
            resource_id UUID NOT NULL,
            role VARCHAR(32) NOT NULL CHECK (role IN ('admin', 'workspace_admin', 'member')),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
            deleted_at TIMESTAMP WITH TIME ZONE
        );
    `)
	if err != nil {
		return err
	}

	// One active membership per (user, scope). Upgrades rewrite the row.
	_, err = tx.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_user_scope_active
        ON memberships(user_id, resource_type, resource_id) WHERE deleted_at IS NULL;
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_memberships_resource ON memberships(resource_type, resource_id);
    `)
	if err != nil {
		return err
	}

	return nil
}

func mig_20260210091500_memberships_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS memberships;`)
	return err
}
