package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260210090500",
		up:      mig_20260210090500_companies_up,
		down:    mig_20260210090500_companies_down,
	})
}

func mig_20260210090500_companies_up(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
        CREATE TABLE IF NOT EXISTS companies (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name VARCHAR(255) NOT NULL,
            tax_id VARCHAR(64) NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_by UUID REFERENCES users(id),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
            deleted_at TIMESTAMP WITH TIME ZONE
        );
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_tax_id_active
        ON companies(tax_id) WHERE deleted_at IS NULL;
    `)
	if err != nil {
		return err
	}

	return nil
}

func mig_20260210090500_companies_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS companies;`)
	return err
}
