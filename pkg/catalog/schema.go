// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"

	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS packager (
		id serial PRIMARY KEY,
		name text NOT NULL UNIQUE,
		config jsonb NOT NULL DEFAULT '{}',
		enabled boolean NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS package (
		id serial PRIMARY KEY,
		packager_id integer NOT NULL REFERENCES packager(id),
		name text NOT NULL,
		config jsonb NOT NULL DEFAULT '{}',
		UNIQUE (packager_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS slot (
		id serial PRIMARY KEY,
		package_id integer NOT NULL REFERENCES package(id),
		version text NOT NULL,
		config jsonb NOT NULL DEFAULT '{}',
		metadata jsonb NOT NULL DEFAULT '{}',
		UNIQUE (package_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS version (
		id serial PRIMARY KEY,
		slot_id integer NOT NULL REFERENCES slot(id),
		version text NOT NULL,
		config jsonb NOT NULL DEFAULT '{}',
		populated boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (slot_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS distribution (
		id serial PRIMARY KEY,
		name text NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS revision (
		id serial PRIMARY KEY,
		version_id integer NOT NULL REFERENCES version(id),
		distribution_id integer NOT NULL REFERENCES distribution(id),
		version text NOT NULL,
		format integer[],
		scheduled_at timestamptz NOT NULL DEFAULT now(),
		changelog text NOT NULL DEFAULT '',
		builder text,
		built_at timestamptz,
		result text,
		UNIQUE (version_id, distribution_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS revision_pending
		ON revision (scheduled_at) WHERE result IS NULL`,
}

// Migrate creates the catalog relations if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "applying catalog schema")
		}
	}
	return nil
}
