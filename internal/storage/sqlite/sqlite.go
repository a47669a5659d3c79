package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// DB is a SQLite backed roster store. It also keeps the per-item data of
// the dynamic namespace.
type DB struct {
	db *sql.DB
}

// New opens (and migrates) the database at path
func New(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Immediate transactions take the write lock up front so concurrent
	// read-modify-write operations on one roster are serialized.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS roster_items (
			owner TEXT NOT NULL,
			jid TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			groups_json TEXT NOT NULL DEFAULT '[]',
			subscription TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (owner, jid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_items_owner ON roster_items(owner)`,

		`CREATE TABLE IF NOT EXISTS roster_extra (
			owner TEXT NOT NULL,
			jid TEXT NOT NULL,
			element_space TEXT NOT NULL,
			element_local TEXT NOT NULL,
			attrs_json TEXT NOT NULL DEFAULT '[]',
			inner_xml BLOB,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (owner, jid)
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func encodeGroups(groups []string) (string, error) {
	if len(groups) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(groups)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeGroups(s string) ([]string, error) {
	var groups []string
	if s == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(s), &groups); err != nil {
		return nil, fmt.Errorf("corrupt groups %q: %w", s, err)
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return groups, nil
}

func (d *DB) Subscription(ctx context.Context, owner, contact jid.JID) (roster.Subscription, bool, error) {
	var sub string
	err := d.db.QueryRowContext(ctx,
		"SELECT subscription FROM roster_items WHERE owner = ? AND jid = ?",
		owner.Bare().String(), contact.Bare().String(),
	).Scan(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read subscription: %w", err)
	}
	if sub == "" {
		return "", false, nil
	}
	return roster.Subscription(sub), true, nil
}

func (d *DB) SetSubscription(ctx context.Context, owner, contact jid.JID, sub roster.Subscription) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE roster_items SET subscription = ?, updated_at = ? WHERE owner = ? AND jid = ?",
		string(sub), time.Now().Unix(), owner.Bare().String(), contact.Bare().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	return nil
}

func (d *DB) AddOrUpdate(ctx context.Context, owner, contact jid.JID, name string, groups []string) error {
	groupsJSON, err := encodeGroups(roster.MergeGroups(nil, groups))
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO roster_items (owner, jid, name, groups_json, subscription, updated_at)
		VALUES (?, ?, ?, ?, '', ?)
		ON CONFLICT(owner, jid) DO UPDATE SET
			name = excluded.name,
			groups_json = excluded.groups_json,
			updated_at = excluded.updated_at
	`, owner.Bare().String(), contact.Bare().String(), name, groupsJSON, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert roster item: %w", err)
	}
	return nil
}

func (d *DB) AddGroups(ctx context.Context, owner, contact jid.JID, groups []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT groups_json FROM roster_items WHERE owner = ? AND jid = ?",
		owner.Bare().String(), contact.Bare().String(),
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read groups: %w", err)
	}

	existing, err := decodeGroups(current)
	if err != nil {
		return err
	}
	merged, err := encodeGroups(roster.MergeGroups(existing, groups))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE roster_items SET groups_json = ?, updated_at = ? WHERE owner = ? AND jid = ?",
		merged, time.Now().Unix(), owner.Bare().String(), contact.Bare().String(),
	); err != nil {
		return fmt.Errorf("failed to update groups: %w", err)
	}
	return tx.Commit()
}

func (d *DB) Remove(ctx context.Context, owner, contact jid.JID) error {
	_, err := d.db.ExecContext(ctx,
		"DELETE FROM roster_items WHERE owner = ? AND jid = ?",
		owner.Bare().String(), contact.Bare().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to remove roster item: %w", err)
	}
	return nil
}

func (d *DB) Contains(ctx context.Context, owner, contact jid.JID) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM roster_items WHERE owner = ? AND jid = ?",
		owner.Bare().String(), contact.Bare().String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check roster item: %w", err)
	}
	return n > 0, nil
}

func (d *DB) Item(ctx context.Context, owner, contact jid.JID) (roster.Item, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT jid, name, groups_json, subscription FROM roster_items WHERE owner = ? AND jid = ?",
		owner.Bare().String(), contact.Bare().String(),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Item{}, roster.ErrNotFound
	}
	return item, err
}

func (d *DB) Items(ctx context.Context, owner jid.JID) ([]roster.Item, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT jid, name, groups_json, subscription
		FROM roster_items
		WHERE owner = ?
		ORDER BY jid
	`, owner.Bare().String())
	if err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	defer rows.Close()

	var items []roster.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	return items, nil
}

func (d *DB) Hash(ctx context.Context, owner jid.JID) (string, error) {
	items, err := d.Items(ctx, owner)
	if err != nil {
		return "", err
	}
	return roster.Hash(items), nil
}

// Owners returns every owner with at least one stored item
func (d *DB) Owners(ctx context.Context) ([]jid.JID, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT owner FROM roster_items ORDER BY owner")
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []jid.JID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		j, err := jid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("corrupt owner %q: %w", s, err)
		}
		owners = append(owners, j)
	}
	return owners, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (roster.Item, error) {
	var (
		contact, name, groupsJSON, sub string
	)
	if err := s.Scan(&contact, &name, &groupsJSON, &sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Item{}, err
		}
		return roster.Item{}, fmt.Errorf("failed to scan roster item: %w", err)
	}

	j, err := jid.Parse(contact)
	if err != nil {
		return roster.Item{}, fmt.Errorf("corrupt roster jid %q: %w", contact, err)
	}
	groups, err := decodeGroups(groupsJSON)
	if err != nil {
		return roster.Item{}, err
	}
	return roster.Item{
		JID:          j,
		Name:         name,
		Subscription: roster.Subscription(sub),
		Groups:       groups,
	}, nil
}

// PutExtra stores the dynamic namespace data of one item
func (d *DB) PutExtra(ctx context.Context, owner jid.JID, item roster.ExtraItem) error {
	attrs, err := json.Marshal(item.Attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO roster_extra (owner, jid, element_space, element_local, attrs_json, inner_xml, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, jid) DO UPDATE SET
			element_space = excluded.element_space,
			element_local = excluded.element_local,
			attrs_json = excluded.attrs_json,
			inner_xml = excluded.inner_xml,
			updated_at = excluded.updated_at
	`, owner.Bare().String(), item.JID.Bare().String(), item.Name.Space, item.Name.Local,
		string(attrs), item.Inner, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store extra item: %w", err)
	}
	return nil
}

// GetExtra returns the stored dynamic namespace data of contact, or nil
func (d *DB) GetExtra(ctx context.Context, owner, contact jid.JID) (*roster.ExtraItem, error) {
	var (
		space, local, attrsJSON string
		inner                   []byte
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT element_space, element_local, attrs_json, inner_xml
		FROM roster_extra WHERE owner = ? AND jid = ?
	`, owner.Bare().String(), contact.Bare().String()).Scan(&space, &local, &attrsJSON, &inner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read extra item: %w", err)
	}

	var attrs []xml.Attr
	if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
		return nil, fmt.Errorf("corrupt extra attributes: %w", err)
	}
	return &roster.ExtraItem{
		Name:  xml.Name{Space: space, Local: local},
		JID:   contact.Bare(),
		Attrs: attrs,
		Inner: inner,
	}, nil
}
