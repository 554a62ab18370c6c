// Package inventories tracks categorized item counts (food storage and the
// like). Inventories are soft-deleted so the config mirror can restore them.
package inventories

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Item is one counted thing in an inventory.
type Item struct {
	ID          int64
	InventoryID int64
	Brand       string
	Name        string
	Count       float64
	ItemSize    float64
	Unit        string
	Category    string
	Subcategory string
	Expiration  *time.Time
}

// Inventory is a named set of items.
type Inventory struct {
	ID        int64
	Name      string
	CreatedAt *time.Time
	DeletedAt *time.Time
	Items     []*Item
}

// Deleted reports whether the inventory is soft-deleted.
func (i *Inventory) Deleted() bool { return i.DeletedAt != nil }

// Store provides inventory persistence.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore returns an inventory store over d.
func NewStore(d *db.DB) *Store {
	return &Store{db: d, now: func() time.Time { return time.Now().UTC() }}
}

// Create creates a named inventory. Names are unique among live inventories.
func (s *Store) Create(ctx context.Context, name string) (*Inventory, error) {
	if name == "" {
		return nil, apperr.Validation("inventory name is required")
	}
	existing, err := s.ByName(ctx, name)
	if err == nil && !existing.Deleted() {
		return nil, apperr.Conflict("inventory %q already exists", name)
	}
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inventories (name, created_at) VALUES (?, ?)`, name, now.Unix())
	if err != nil {
		return nil, errors.Wrapf(err, "create inventory %q", name)
	}
	id, _ := res.LastInsertId()
	return &Inventory{ID: id, Name: name, CreatedAt: &now}, nil
}

func scanInventory(row interface{ Scan(...interface{}) error }) (*Inventory, error) {
	inv := &Inventory{}
	var created, deleted sql.NullInt64
	if err := row.Scan(&inv.ID, &inv.Name, &created, &deleted); err != nil {
		return nil, err
	}
	inv.CreatedAt = db.NullTime(created)
	inv.DeletedAt = db.NullTime(deleted)
	return inv, nil
}

// ByID returns the inventory with its items.
func (s *Store) ByID(ctx context.Context, id int64) (*Inventory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, deleted_at FROM inventories WHERE id = ?`, id)
	inv, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no inventory with id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "inventory by id")
	}
	inv.Items, err = s.items(ctx, inv.ID)
	return inv, err
}

// ByName returns the most recent inventory with the given name, deleted or
// not. The config mirror needs to see tombstones to restore correctly.
func (s *Store) ByName(ctx context.Context, name string) (*Inventory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, deleted_at FROM inventories
		 WHERE name = ? ORDER BY id DESC LIMIT 1`, name)
	inv, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no inventory named %q", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "inventory by name")
	}
	inv.Items, err = s.items(ctx, inv.ID)
	return inv, err
}

// All returns live inventories with their items, ordered by name.
func (s *Store) All(ctx context.Context) ([]*Inventory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, deleted_at FROM inventories
		 WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list inventories")
	}
	defer rows.Close()
	var out []*Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, inv := range out {
		if inv.Items, err = s.items(ctx, inv.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Rename changes an inventory's name.
func (s *Store) Rename(ctx context.Context, id int64, name string) error {
	if name == "" {
		return apperr.Validation("inventory name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE inventories SET name = ? WHERE id = ? AND deleted_at IS NULL`, name, id)
	if err != nil {
		return errors.Wrapf(err, "rename inventory %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no inventory with id %d", id)
	}
	return nil
}

// Delete soft-deletes an inventory; its items stay attached to the tombstone.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inventories SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		s.now().Unix(), id)
	if err != nil {
		return errors.Wrapf(err, "delete inventory %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no inventory with id %d", id)
	}
	return nil
}

// AddItem appends an item to a live inventory.
func (s *Store) AddItem(ctx context.Context, item *Item) (*Item, error) {
	inv, err := s.ByID(ctx, item.InventoryID)
	if err != nil {
		return nil, err
	}
	if inv.Deleted() {
		return nil, apperr.Validation("inventory %q is deleted", inv.Name)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items
			(inventory_id, brand, name, count, item_size, unit, category, subcategory, expiration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.InventoryID, item.Brand, item.Name, item.Count, item.ItemSize,
		item.Unit, item.Category, item.Subcategory, db.TimeValue(item.Expiration))
	if err != nil {
		return nil, errors.Wrap(err, "add inventory item")
	}
	item.ID, _ = res.LastInsertId()
	return item, nil
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete inventory item %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no inventory item with id %d", id)
	}
	return nil
}

// ReplaceItems swaps an inventory's items wholesale. The config mirror
// import uses this so the file's item list wins.
func (s *Store) ReplaceItems(ctx context.Context, inventoryID int64, items []*Item) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM inventory_items WHERE inventory_id = ?`, inventoryID); err != nil {
			return errors.Wrap(err, "clear inventory items")
		}
		for _, item := range items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO inventory_items
					(inventory_id, brand, name, count, item_size, unit, category, subcategory, expiration)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				inventoryID, item.Brand, item.Name, item.Count, item.ItemSize,
				item.Unit, item.Category, item.Subcategory, db.TimeValue(item.Expiration))
			if err != nil {
				return errors.Wrap(err, "insert inventory item")
			}
		}
		return nil
	})
}

// Categories returns the distinct (category, subcategory) pairs in use.
func (s *Store) Categories(ctx context.Context) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category, subcategory FROM inventory_items
		ORDER BY category, subcategory`)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var pair [2]string
		if err := rows.Scan(&pair[0], &pair[1]); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

func (s *Store) items(ctx context.Context, inventoryID int64) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inventory_id, brand, name, count, item_size, unit, category, subcategory, expiration
		FROM inventory_items WHERE inventory_id = ? ORDER BY id`, inventoryID)
	if err != nil {
		return nil, errors.Wrap(err, "list inventory items")
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		item := &Item{}
		var expiration sql.NullInt64
		if err := rows.Scan(&item.ID, &item.InventoryID, &item.Brand, &item.Name,
			&item.Count, &item.ItemSize, &item.Unit, &item.Category,
			&item.Subcategory, &expiration); err != nil {
			return nil, err
		}
		item.Expiration = db.NullTime(expiration)
		out = append(out, item)
	}
	return out, rows.Err()
}
