package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema statements are idempotent so the service can apply them on every
// boot. Order matters: referenced tables come first.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,

	`CREATE TABLE IF NOT EXISTS users (
        id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
        email text NOT NULL,
        password_hash text NOT NULL,
        role text NOT NULL DEFAULT 'user',
        created_at timestamptz NOT NULL DEFAULT NOW(),
        updated_at timestamptz NOT NULL DEFAULT NOW(),
        CONSTRAINT users_email_key UNIQUE (email)
    )`,

	`CREATE TABLE IF NOT EXISTS companies (
        id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
        place_id text,
        name text NOT NULL,
        raw_website text,
        normalized_domain text NOT NULL UNIQUE,
        address text,
        phone text,
        scraped_at timestamptz,
        created_at timestamptz NOT NULL DEFAULT NOW(),
        updated_at timestamptz NOT NULL DEFAULT NOW()
    )`,

	`CREATE TABLE IF NOT EXISTS contacts (
        id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
        company_id uuid NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
        first_name text NOT NULL,
        last_name text,
        bio text,
        linkedin_url text,
        created_at timestamptz NOT NULL DEFAULT NOW(),
        updated_at timestamptz NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS contacts_company_id_idx ON contacts (company_id)`,

	`CREATE TABLE IF NOT EXISTS contact_emails (
        id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
        contact_id uuid NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
        email text NOT NULL,
        confidence text NOT NULL,
        is_deliverable boolean,
        source text NOT NULL,
        created_at timestamptz NOT NULL DEFAULT NOW(),
        updated_at timestamptz NOT NULL DEFAULT NOW(),
        UNIQUE (contact_id, email)
    )`,

	`CREATE TABLE IF NOT EXISTS scrape_jobs (
        id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
        name text NOT NULL,
        company_ids jsonb NOT NULL,
        status text NOT NULL DEFAULT 'pending',
        total_companies integer NOT NULL DEFAULT 0,
        processed_companies integer NOT NULL DEFAULT 0,
        total_contacts_found integer NOT NULL DEFAULT 0,
        contacts_per_company integer NOT NULL DEFAULT 20,
        current_company_id uuid,
        current_company_name text,
        error_message text,
        created_at timestamptz NOT NULL DEFAULT NOW(),
        started_at timestamptz,
        completed_at timestamptz
    )`,
	`CREATE INDEX IF NOT EXISTS scrape_jobs_status_idx ON scrape_jobs (status)`,

	`CREATE TABLE IF NOT EXISTS search_runs (
        id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
        query text NOT NULL,
        type_business text NOT NULL,
        city text NOT NULL,
        country text NOT NULL,
        created_at timestamptz NOT NULL DEFAULT NOW()
    )`,

	`CREATE TABLE IF NOT EXISTS search_run_companies (
        search_run_id uuid NOT NULL REFERENCES search_runs(id) ON DELETE CASCADE,
        company_id uuid NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
        PRIMARY KEY (search_run_id, company_id)
    )`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
