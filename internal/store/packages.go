package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/rulepack/internal/codec"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
	"github.com/roach88/rulepack/internal/rulepkg"
)

var (
	// ErrPackageNotFound is returned when no package is stored under a name.
	ErrPackageNotFound = errors.New("package not found")

	// ErrDigestMismatch is returned when a stored blob decodes to a package
	// whose digest differs from the one recorded when it was saved.
	ErrDigestMismatch = errors.New("package digest mismatch")
)

// Record describes the stored revision of a package.
type Record struct {
	Name          string
	Revision      string
	Digest        string
	Valid         bool
	ErrorSummary  string // Empty when Valid
	Framing       codec.Framing
	FormatVersion string
	RuleCount     int
	Size          int // Length of the stored blob in bytes
	Seq           int64
}

// Revision is one entry in a package's save history.
type Revision struct {
	Revision string
	Name     string
	Digest   string
	Valid    bool
	Seq      int64
}

// SavePackage stores pkg under its name, replacing any earlier revision,
// and appends the save to the package's history. Invalid packages are
// stored as they are; their validity is part of the record.
func (s *Store) SavePackage(ctx context.Context, pkg *rulepkg.Package) (Record, error) {
	blob, err := rulepkg.NewSerializer(rulepkg.WithFraming(s.framing)).Marshal(pkg)
	if err != nil {
		return Record{}, fmt.Errorf("save package %s: %w", pkg.Name(), err)
	}
	digest, err := pkg.Digest()
	if err != nil {
		return Record{}, fmt.Errorf("save package %s: %w", pkg.Name(), err)
	}
	summary, _ := pkg.ErrorSummary()

	rec := Record{
		Name:          pkg.Name(),
		Revision:      s.revisions.Generate(),
		Digest:        digest,
		Valid:         pkg.IsValid(),
		ErrorSummary:  summary,
		Framing:       s.framing,
		FormatVersion: ir.FormatVersion,
		RuleCount:     len(pkg.Rules()),
		Size:          len(blob),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM package_revisions`,
	).Scan(&rec.Seq); err != nil {
		return Record{}, fmt.Errorf("next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO packages (
			name, revision, digest, valid, error_summary, framing,
			format_version, rule_count, size, seq, blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			revision = excluded.revision,
			digest = excluded.digest,
			valid = excluded.valid,
			error_summary = excluded.error_summary,
			framing = excluded.framing,
			format_version = excluded.format_version,
			rule_count = excluded.rule_count,
			size = excluded.size,
			seq = excluded.seq,
			blob = excluded.blob
	`,
		rec.Name, rec.Revision, rec.Digest, boolToInt(rec.Valid), nullString(rec.ErrorSummary),
		rec.Framing.String(), rec.FormatVersion, rec.RuleCount, rec.Size, rec.Seq, blob,
	)
	if err != nil {
		return Record{}, fmt.Errorf("write package %s: %w", rec.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO package_revisions (revision, name, digest, valid, seq)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Revision, rec.Name, rec.Digest, boolToInt(rec.Valid), rec.Seq)
	if err != nil {
		return Record{}, fmt.Errorf("write revision %s: %w", rec.Revision, err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info("package saved",
		slog.String("package", rec.Name),
		slog.String("revision", rec.Revision),
		slog.Int64("seq", rec.Seq),
		slog.Bool("valid", rec.Valid))
	return rec, nil
}

// LoadPackage decodes the stored revision of the named package. Rule
// consequences resolve against the package's own dialect data first, then
// against parent; a nil parent means loader.System().
func (s *Store) LoadPackage(ctx context.Context, name string, parent loader.ClassLoader) (*rulepkg.Package, error) {
	var (
		blob     []byte
		digest   string
		framingS string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT blob, digest, framing FROM packages WHERE name = ?`, name,
	).Scan(&blob, &digest, &framingS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", name, err)
	}

	framing, err := codec.ParseFraming(framingS)
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", name, err)
	}

	pkg, err := rulepkg.NewSerializer(
		rulepkg.WithFraming(framing),
		rulepkg.WithParentLoader(parent),
	).Unmarshal(blob)
	if err != nil {
		return nil, fmt.Errorf("decode package %s: %w", name, err)
	}

	got, err := pkg.Digest()
	if err != nil {
		return nil, fmt.Errorf("digest package %s: %w", name, err)
	}
	if got != digest {
		return nil, fmt.Errorf("%w: %s stored %s, decoded %s", ErrDigestMismatch, name, digest, got)
	}

	s.logger.Debug("package loaded", slog.String("package", name), slog.String("digest", digest))
	return pkg, nil
}

const recordColumns = `name, revision, digest, valid, error_summary, framing,
	format_version, rule_count, size, seq`

// PackageInfo returns the record of the named package without decoding it.
func (s *Store) PackageInfo(ctx context.Context, name string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM packages WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read package %s: %w", name, err)
	}
	return rec, nil
}

// ListPackages returns the records of all stored packages ordered by name.
func (s *Store) ListPackages(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM packages ORDER BY name ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packages: %w", err)
	}
	return records, nil
}

// DeletePackage removes the named package and its history.
func (s *Store) DeletePackage(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM packages WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete package %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete package %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM package_revisions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete revisions of %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info("package deleted", slog.String("package", name))
	return nil
}

// Revisions returns the save history of the named package, oldest first.
// A package that was never saved has no history and no error.
func (s *Store) Revisions(ctx context.Context, name string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT revision, name, digest, valid, seq
		FROM package_revisions
		WHERE name = ?
		ORDER BY seq ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var (
			rev   Revision
			valid int
		)
		if err := rows.Scan(&rev.Revision, &rev.Name, &rev.Digest, &valid, &rev.Seq); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev.Valid = valid == 1
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec      Record
		valid    int
		summary  sql.NullString
		framingS string
	)
	err := row.Scan(
		&rec.Name, &rec.Revision, &rec.Digest, &valid, &summary, &framingS,
		&rec.FormatVersion, &rec.RuleCount, &rec.Size, &rec.Seq,
	)
	if err != nil {
		return Record{}, err
	}
	framing, err := codec.ParseFraming(framingS)
	if err != nil {
		return Record{}, err
	}
	rec.Valid = valid == 1
	rec.ErrorSummary = summary.String
	rec.Framing = framing
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
