// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/debler/debler/pkg/version"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrNotFound is returned for lookups of unknown catalog entities.
var ErrNotFound = errors.New("catalog: not found")

// ErrNoSlot is returned when no slot of a package covers a version. The
// webhook treats it as "not interested".
var ErrNoSlot = errors.New("catalog: no slot covers version")

// ErrAlreadyClaimed is returned when another builder claimed a revision first.
var ErrAlreadyClaimed = errors.New("catalog: revision already claimed")

// DB is a handle to the catalog store.
type DB struct {
	sql *sql.DB
}

// Open connects to the catalog at the given postgres connection string.
func Open(connstr string) (*DB, error) {
	conn, err := sql.Open("postgres", connstr)
	if err != nil {
		return nil, errors.Wrap(err, "opening catalog")
	}
	if err := conn.Ping(); err != nil {
		return nil, errors.Wrap(err, "connecting to catalog")
	}
	return &DB{sql: conn}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Packager loads one registered packager by name.
func (db *DB) Packager(ctx context.Context, name string) (*Packager, error) {
	row := db.sql.QueryRowContext(ctx,
		`SELECT id, name, config, enabled FROM packager WHERE name = $1`, name)
	return scanPackager(row)
}

// EnabledPackagers loads every enabled packager.
func (db *DB) EnabledPackagers(ctx context.Context) ([]*Packager, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, name, config, enabled FROM packager WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "listing packagers")
	}
	defer rows.Close()
	var out []*Packager
	for rows.Next() {
		p, err := scanPackager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RegisterPackager inserts a new packager.
func (db *DB) RegisterPackager(ctx context.Context, name string, cfg PackagerConfig) (*Packager, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "encoding packager config")
	}
	var id int64
	err = db.sql.QueryRowContext(ctx,
		`INSERT INTO packager (name, config) VALUES ($1, $2) RETURNING id`,
		name, raw).Scan(&id)
	if err != nil {
		return nil, errors.Wrapf(err, "registering packager %s", name)
	}
	return &Packager{ID: id, Name: name, Config: cfg, Enabled: true}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPackager(row scannable) (*Packager, error) {
	var p Packager
	var raw []byte
	if err := row.Scan(&p.ID, &p.Name, &raw, &p.Enabled); err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "loading packager")
	}
	if err := json.Unmarshal(raw, &p.Config); err != nil {
		return nil, errors.Wrapf(err, "decoding config of packager %s", p.Name)
	}
	return &p, nil
}

// RegisterPackage inserts a new package under a packager.
func (db *DB) RegisterPackage(ctx context.Context, packagerID int64, name string, cfg PackageConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding package config")
	}
	_, err = db.sql.ExecContext(ctx,
		`INSERT INTO package (packager_id, name, config) VALUES ($1, $2, $3)`,
		packagerID, name, raw)
	return errors.Wrapf(err, "registering package %s", name)
}

// PackageInfo loads a package with all its slots, ordered by slot key.
// debName is the derived OS package name supplied by the packager.
func (db *DB) PackageInfo(ctx context.Context, packagerID int64, name, debName string) (*Package, error) {
	p := &Package{PackagerID: packagerID, Name: name, DebName: debName}
	var raw []byte
	err := db.sql.QueryRowContext(ctx,
		`SELECT id, config FROM package WHERE packager_id = $1 AND name = $2`,
		packagerID, name).Scan(&p.ID, &raw)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "package %s", name)
	} else if err != nil {
		return nil, errors.Wrapf(err, "loading package %s", name)
	}
	if err := json.Unmarshal(raw, &p.Config); err != nil {
		return nil, errors.Wrapf(err, "decoding config of package %s", name)
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, version, config, metadata FROM slot WHERE package_id = $1`, p.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading slots of %s", name)
	}
	defer rows.Close()
	for rows.Next() {
		s := Slot{PackageID: p.ID}
		var cfg, meta []byte
		if err := rows.Scan(&s.ID, &s.Key, &cfg, &meta); err != nil {
			return nil, errors.Wrapf(err, "loading slots of %s", name)
		}
		if err := json.Unmarshal(cfg, &s.Config); err != nil {
			return nil, errors.Wrapf(err, "decoding slot config of %s-%s", name, s.Key)
		}
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, errors.Wrapf(err, "decoding slot metadata of %s-%s", name, s.Key)
		}
		p.Slots = append(p.Slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSlots(p.Slots)
	return p, nil
}

// CreateSlot inserts a new slot and appends it to the package.
func (db *DB) CreateSlot(ctx context.Context, p *Package, key string) (*Slot, error) {
	s := Slot{PackageID: p.ID, Key: key}
	err := db.sql.QueryRowContext(ctx,
		`INSERT INTO slot (package_id, version) VALUES ($1, $2) RETURNING id`,
		p.ID, key).Scan(&s.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "creating slot %s of %s", key, p.Name)
	}
	p.Slots = append(p.Slots, s)
	sortSlots(p.Slots)
	for i := range p.Slots {
		if p.Slots[i].ID == s.ID {
			return &p.Slots[i], nil
		}
	}
	panic("unreachable")
}

// SlotForVersion finds the slot covering the version, creating it at the
// package's slot level when allowed.
func (db *DB) SlotForVersion(ctx context.Context, p *Package, v string, defaultLevel int, create bool) (*Slot, error) {
	if s, ok := p.SlotFor(v); ok {
		return s, nil
	}
	if !create {
		return nil, errors.Wrapf(ErrNoSlot, "%s %s", p.Name, v)
	}
	return db.CreateSlot(ctx, p, p.SlotKeyFor(v, defaultLevel))
}

// Versions lists a slot's versions ascending.
func (db *DB) Versions(ctx context.Context, slotID int64) ([]Version, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, version, config, populated, created_at FROM version WHERE slot_id = $1`,
		slotID)
	if err != nil {
		return nil, errors.Wrap(err, "listing versions")
	}
	defer rows.Close()
	var out []Version
	for rows.Next() {
		v := Version{SlotID: slotID}
		var raw []byte
		if err := rows.Scan(&v.ID, &v.Version, &raw, &v.Populated, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "listing versions")
		}
		if err := json.Unmarshal(raw, &v.Config); err != nil {
			return nil, errors.Wrapf(err, "decoding config of version %s", v.Version)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortVersions(out)
	return out, nil
}

func sortVersions(vs []Version) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && version.CompareDotted(vs[j].Version, vs[j-1].Version) < 0; j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}

// HasVersion reports whether the slot already tracks the upstream version.
func (db *DB) HasVersion(ctx context.Context, slotID int64, v string) (bool, error) {
	var n int
	err := db.sql.QueryRowContext(ctx,
		`SELECT count(*) FROM version WHERE slot_id = $1 AND version = $2`,
		slotID, v).Scan(&n)
	return n > 0, errors.Wrap(err, "checking version")
}

// ScheduleOpts parameterizes ScheduleBuild.
type ScheduleOpts struct {
	// Version is the upstream version; Revision the numeric suffix.
	Version      string
	Revision     int
	Format       []int64
	Changelog    string
	Distribution string
	Extra        VersionConfig
}

// ScheduleBuild inserts the version if new and schedules one revision.
func (db *DB) ScheduleBuild(ctx context.Context, slot *Slot, opts ScheduleOpts) (int64, error) {
	if opts.Revision == 0 {
		opts.Revision = 1
	}
	raw, err := json.Marshal(opts.Extra)
	if err != nil {
		return 0, errors.Wrap(err, "encoding version config")
	}
	var versionID int64
	err = db.sql.QueryRowContext(ctx, `
		INSERT INTO version (slot_id, version, config)
		VALUES ($1, $2, $3)
		ON CONFLICT (slot_id, version) DO UPDATE SET version = EXCLUDED.version
		RETURNING id`,
		slot.ID, opts.Version, raw).Scan(&versionID)
	if err != nil {
		return 0, errors.Wrapf(err, "inserting version %s", opts.Version)
	}
	distID, err := db.EnsureDistribution(ctx, opts.Distribution)
	if err != nil {
		return 0, err
	}
	var revisionID int64
	err = db.sql.QueryRowContext(ctx, `
		INSERT INTO revision (version_id, distribution_id, version, format, scheduled_at, changelog)
		VALUES ($1, $2, $3, $4, now(), $5)
		RETURNING id`,
		versionID, distID, fmt.Sprintf("%s-%d", opts.Version, opts.Revision),
		pq.Array(opts.Format), opts.Changelog).Scan(&revisionID)
	if err != nil {
		return 0, errors.Wrapf(err, "scheduling %s-%d", opts.Version, opts.Revision)
	}
	return revisionID, nil
}

// ScheduleRebuild schedules a new revision of the same version and
// distribution with the revision suffix incremented.
func (db *DB) ScheduleRebuild(ctx context.Context, revisionID int64, changelog string) (int64, error) {
	var versionID, distID int64
	var rv string
	var format []int64
	err := db.sql.QueryRowContext(ctx,
		`SELECT version_id, distribution_id, version, format FROM revision WHERE id = $1`,
		revisionID).Scan(&versionID, &distID, &rv, pq.Array(&format))
	if err == sql.ErrNoRows {
		return 0, errors.Wrapf(ErrNotFound, "revision %d", revisionID)
	} else if err != nil {
		return 0, errors.Wrapf(err, "loading revision %d", revisionID)
	}
	upstream, suffix := splitRevisionVersion(rv)
	// Base the new suffix on the highest scheduled one, not necessarily the
	// given revision's.
	var maxSuffix sql.NullInt64
	err = db.sql.QueryRowContext(ctx, `
		SELECT max((substring(version from '[0-9]+$'))::int)
		FROM revision WHERE version_id = $1 AND distribution_id = $2`,
		versionID, distID).Scan(&maxSuffix)
	if err != nil {
		return 0, errors.Wrap(err, "finding latest revision")
	}
	if maxSuffix.Valid && int(maxSuffix.Int64) > suffix {
		suffix = int(maxSuffix.Int64)
	}
	var newID int64
	err = db.sql.QueryRowContext(ctx, `
		INSERT INTO revision (version_id, distribution_id, version, format, scheduled_at, changelog)
		VALUES ($1, $2, $3, $4, now(), $5)
		RETURNING id`,
		versionID, distID, fmt.Sprintf("%s-%d", upstream, suffix+1),
		pq.Array(format), changelog).Scan(&newID)
	return newID, errors.Wrap(err, "scheduling rebuild")
}

// SetSlotMetadata stores the harvested metadata of a slot.
func (db *DB) SetSlotMetadata(ctx context.Context, slotID int64, meta SlotMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "encoding slot metadata")
	}
	_, err = db.sql.ExecContext(ctx,
		`UPDATE slot SET metadata = $2 WHERE id = $1`, slotID, raw)
	return errors.Wrap(err, "storing slot metadata")
}

// SetPackageConfig replaces a package's configuration record.
func (db *DB) SetPackageConfig(ctx context.Context, packageID int64, cfg PackageConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding package config")
	}
	_, err = db.sql.ExecContext(ctx,
		`UPDATE package SET config = $2 WHERE id = $1`, packageID, raw)
	return errors.Wrap(err, "storing package config")
}

// EnsureDistribution returns the id of the named distribution, creating it on
// first use.
func (db *DB) EnsureDistribution(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.sql.QueryRowContext(ctx, `
		INSERT INTO distribution (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&id)
	return id, errors.Wrapf(err, "ensuring distribution %s", name)
}

// ChangelogEntries returns all revisions of the same version and distribution
// whose revision-version is at most the given one, ascending. The changelog
// stitcher depends on this order.
func (db *DB) ChangelogEntries(ctx context.Context, revisionID int64) ([]ChangelogEntry, error) {
	var versionID, distID int64
	var rv string
	err := db.sql.QueryRowContext(ctx,
		`SELECT version_id, distribution_id, version FROM revision WHERE id = $1`,
		revisionID).Scan(&versionID, &distID, &rv)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "revision %d", revisionID)
	} else if err != nil {
		return nil, errors.Wrapf(err, "loading revision %d", revisionID)
	}
	_, until := splitRevisionVersion(rv)
	rows, err := db.sql.QueryContext(ctx, `
		SELECT r.version, r.scheduled_at, r.changelog, d.name
		FROM revision r JOIN distribution d ON d.id = r.distribution_id
		WHERE r.version_id = $1 AND r.distribution_id = $2
		ORDER BY r.id ASC`, versionID, distID)
	if err != nil {
		return nil, errors.Wrap(err, "loading changelog entries")
	}
	defer rows.Close()
	var out []ChangelogEntry
	for rows.Next() {
		var e ChangelogEntry
		if err := rows.Scan(&e.Version, &e.ScheduledAt, &e.Changelog, &e.Distribution); err != nil {
			return nil, errors.Wrap(err, "loading changelog entries")
		}
		if _, suffix := splitRevisionVersion(e.Version); suffix <= until {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// BuildData loads the joined revision record a builder needs.
func (db *DB) BuildData(ctx context.Context, revisionID int64) (*BuildData, error) {
	d := &BuildData{}
	var rawVersionCfg, rawSlotCfg, rawSlotMeta, rawPkgCfg, rawPackagerCfg []byte
	var builder, result sql.NullString
	var builtAt sql.NullTime
	err := db.sql.QueryRowContext(ctx, `
		SELECT r.id, r.version_id, r.distribution_id, r.version, r.format,
		       r.scheduled_at, r.changelog, r.builder, r.built_at, r.result,
		       d.name,
		       v.id, v.slot_id, v.version, v.config, v.populated, v.created_at,
		       s.id, s.package_id, s.version, s.config, s.metadata,
		       p.id, p.packager_id, p.name, p.config,
		       pr.name, pr.config
		FROM revision r
		JOIN distribution d ON d.id = r.distribution_id
		JOIN version v ON v.id = r.version_id
		JOIN slot s ON s.id = v.slot_id
		JOIN package p ON p.id = s.package_id
		JOIN packager pr ON pr.id = p.packager_id
		WHERE r.id = $1`, revisionID).Scan(
		&d.Revision.ID, &d.Revision.VersionID, &d.Revision.DistributionID,
		&d.Revision.Version, pq.Array(&d.Format),
		&d.Revision.ScheduledAt, &d.Revision.Changelog, &builder, &builtAt, &result,
		&d.Distribution,
		&d.UpstreamVer.ID, &d.UpstreamVer.SlotID, &d.UpstreamVer.Version,
		&rawVersionCfg, &d.UpstreamVer.Populated, &d.UpstreamVer.CreatedAt,
		&d.Slot.ID, &d.Slot.PackageID, &d.Slot.Key, &rawSlotCfg, &rawSlotMeta,
		&d.Package.ID, &d.Package.PackagerID, &d.Package.Name, &rawPkgCfg,
		&d.PackagerName, &rawPackagerCfg)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "revision %d", revisionID)
	} else if err != nil {
		return nil, errors.Wrapf(err, "loading build data for revision %d", revisionID)
	}
	d.Revision.Builder = builder.String
	d.Revision.Result = result.String
	if builtAt.Valid {
		d.Revision.BuiltAt = builtAt.Time
	}
	for raw, dst := range map[*[]byte]any{
		&rawVersionCfg:  &d.UpstreamVer.Config,
		&rawSlotCfg:     &d.Slot.Config,
		&rawSlotMeta:    &d.Slot.Metadata,
		&rawPkgCfg:      &d.Package.Config,
		&rawPackagerCfg: &d.Packager,
	} {
		if err := json.Unmarshal(*raw, dst); err != nil {
			return nil, errors.Wrapf(err, "decoding build data for revision %d", revisionID)
		}
	}
	entries, err := db.ChangelogEntries(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	d.ChangelogTail = entries
	return d, nil
}

// NextPending returns the oldest pending revision id, re-evaluated on every
// call so newly scheduled revisions join an in-flight run.
func (db *DB) NextPending(ctx context.Context) (int64, error) {
	return db.nextWhere(ctx, `result IS NULL AND builder IS NULL`)
}

// NextFailed returns the oldest failed revision id for retry runs.
func (db *DB) NextFailed(ctx context.Context) (int64, error) {
	return db.nextWhere(ctx, `result = 'failed'`)
}

func (db *DB) nextWhere(ctx context.Context, cond string) (int64, error) {
	var id int64
	err := db.sql.QueryRowContext(ctx,
		`SELECT id FROM revision WHERE `+cond+` ORDER BY scheduled_at, id LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, errors.Wrap(err, "selecting next build")
}

// ListBuilds returns all revision ids in a state: "pending", "failed",
// "finished" or "canceled".
func (db *DB) ListBuilds(ctx context.Context, state string) ([]int64, error) {
	cond := `result = $1`
	args := []any{state}
	if state == "pending" {
		cond = `result IS NULL`
		args = nil
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id FROM revision WHERE `+cond+` ORDER BY scheduled_at, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing builds")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimBuild records this builder on the revision. The update is a
// compare-and-swap: claiming an already claimed revision fails.
func (db *DB) ClaimBuild(ctx context.Context, revisionID int64, builder string) error {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE revision SET builder = $2, built_at = now()
		WHERE id = $1 AND builder IS NULL`, revisionID, builder)
	if err != nil {
		return errors.Wrapf(err, "claiming revision %d", revisionID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errors.Wrapf(ErrAlreadyClaimed, "revision %d", revisionID)
	}
	return nil
}

// UpdateBuild finalizes a revision. Terminal states never change, so the
// update refuses to overwrite an existing result.
func (db *DB) UpdateBuild(ctx context.Context, revisionID int64, result string) error {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE revision SET result = $2
		WHERE id = $1 AND result IS NULL`, revisionID, result)
	if err != nil {
		return errors.Wrapf(err, "finalizing revision %d", revisionID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errors.Errorf("revision %d already finalized", revisionID)
	}
	return nil
}

// ResetBuild returns a failed revision to the pending state so a retry run
// can claim it again. Resetting a pending or finished revision is a no-op.
func (db *DB) ResetBuild(ctx context.Context, revisionID int64) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE revision SET result = NULL, builder = NULL, built_at = NULL
		WHERE id = $1 AND result = 'failed'`, revisionID)
	return errors.Wrapf(err, "resetting revision %d", revisionID)
}

// LatestRevisions returns, per slot and distribution, the id and format of
// the newest scheduled revision.
func (db *DB) LatestRevisions(ctx context.Context) (map[int64][]int64, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT DISTINCT ON (v.slot_id, r.distribution_id) r.id, r.format
		FROM revision r JOIN version v ON v.id = r.version_id
		ORDER BY v.slot_id, r.distribution_id, r.id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "listing latest revisions")
	}
	defer rows.Close()
	out := make(map[int64][]int64)
	for rows.Next() {
		var id int64
		var format []int64
		if err := rows.Scan(&id, pq.Array(&format)); err != nil {
			return nil, errors.Wrap(err, "listing latest revisions")
		}
		out[id] = format
	}
	return out, rows.Err()
}

// RebuildOutdated schedules a rebuild of every slot whose latest revision was
// produced with a packaging layout older than current, and returns the new
// revision ids.
func (db *DB) RebuildOutdated(ctx context.Context, current []int64, changelog string) ([]int64, error) {
	latest, err := db.LatestRevisions(ctx)
	if err != nil {
		return nil, err
	}
	var scheduled []int64
	for id, format := range latest {
		if !formatBefore(format, current) {
			continue
		}
		newID, err := db.ScheduleRebuild(ctx, id, changelog)
		if err != nil {
			return scheduled, err
		}
		scheduled = append(scheduled, newID)
	}
	return scheduled, nil
}

// formatBefore orders format tuples lexicographically; a missing format
// counts as older than everything.
func formatBefore(a, b []int64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// PackageTree is the info subtree of one package.
type PackageTree struct {
	Package  *Package
	Versions map[int64][]Version  // keyed by slot id
	Builds   map[int64][]Revision // keyed by version id
}

// Tree loads a package's full subtree of slots, versions and revisions.
func (db *DB) Tree(ctx context.Context, p *Package) (*PackageTree, error) {
	tree := &PackageTree{
		Package:  p,
		Versions: make(map[int64][]Version),
		Builds:   make(map[int64][]Revision),
	}
	for _, s := range p.Slots {
		versions, err := db.Versions(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		tree.Versions[s.ID] = versions
		for _, v := range versions {
			revs, err := db.revisionsOf(ctx, v.ID)
			if err != nil {
				return nil, err
			}
			tree.Builds[v.ID] = revs
		}
	}
	return tree, nil
}

func (db *DB) revisionsOf(ctx context.Context, versionID int64) ([]Revision, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT id, distribution_id, version, scheduled_at, changelog, builder, built_at, result
		FROM revision WHERE version_id = $1 ORDER BY id`, versionID)
	if err != nil {
		return nil, errors.Wrap(err, "listing revisions")
	}
	defer rows.Close()
	var out []Revision
	for rows.Next() {
		r := Revision{VersionID: versionID}
		var builder, result sql.NullString
		var builtAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.DistributionID, &r.Version, &r.ScheduledAt,
			&r.Changelog, &builder, &builtAt, &result); err != nil {
			return nil, errors.Wrap(err, "listing revisions")
		}
		r.Builder = builder.String
		r.Result = result.String
		if builtAt.Valid {
			r.BuiltAt = builtAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
