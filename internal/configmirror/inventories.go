package configmirror

import (
	"context"
	"time"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/inventories"
)

// SwitchSaveInventories schedules an inventories.yaml dump.
const SwitchSaveInventories = "save_inventories_config"

type inventoryItemEntry struct {
	Brand       string  `yaml:"brand,omitempty"`
	Name        string  `yaml:"name"`
	Count       float64 `yaml:"count"`
	ItemSize    float64 `yaml:"item_size,omitempty"`
	Unit        string  `yaml:"unit,omitempty"`
	Category    string  `yaml:"category,omitempty"`
	Subcategory string  `yaml:"subcategory,omitempty"`
	Expiration  string  `yaml:"expiration,omitempty"` // 2006-01-02
}

type inventoryEntry struct {
	Name  string               `yaml:"name"`
	Items []inventoryItemEntry `yaml:"items"`
}

type inventoriesDocument struct {
	versioned   `yaml:",inline"`
	Inventories []inventoryEntry `yaml:"inventories"`
}

// InventoriesFile mirrors live inventories to inventories.yaml.
type InventoriesFile struct {
	Mirror *Mirror
	Store  *inventories.Store
}

func (f *InventoriesFile) FileName() string   { return "inventories.yaml" }
func (f *InventoriesFile) SwitchName() string { return SwitchSaveInventories }

func (f *InventoriesFile) Dump(ctx context.Context) error {
	all, err := f.Store.All(ctx)
	if err != nil {
		return err
	}
	path := f.Mirror.path(f.FileName())
	var onDisk inventoriesDocument
	if _, err := readDocument(path, &onDisk); err != nil {
		return err
	}
	if len(all) == 0 && len(onDisk.Inventories) > 0 {
		return nil
	}
	if err := f.Mirror.checkDumpVersion(f.FileName(), onDisk.Version); err != nil {
		return err
	}
	doc := inventoriesDocument{}
	doc.Version = f.Mirror.nextVersion(f.FileName(), onDisk.Version)
	for _, inv := range all {
		entry := inventoryEntry{Name: inv.Name}
		for _, item := range inv.Items {
			ie := inventoryItemEntry{
				Brand: item.Brand, Name: item.Name, Count: item.Count,
				ItemSize: item.ItemSize, Unit: item.Unit,
				Category: item.Category, Subcategory: item.Subcategory,
			}
			if item.Expiration != nil {
				ie.Expiration = item.Expiration.Format("2006-01-02")
			}
			entry.Items = append(entry.Items, ie)
		}
		doc.Inventories = append(doc.Inventories, entry)
	}
	return writeDocument(path, &doc)
}

// Import makes the live inventories match the file. Inventories absent from
// the file are soft-deleted so they can be restored later. An empty list
// never deletes.
func (f *InventoriesFile) Import(ctx context.Context) error {
	var doc inventoriesDocument
	found, err := readDocument(f.Mirror.path(f.FileName()), &doc)
	if err != nil || !found {
		return err
	}
	f.Mirror.setVersion(f.FileName(), doc.Version)
	if len(doc.Inventories) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(doc.Inventories))
	for _, entry := range doc.Inventories {
		if entry.Name == "" {
			continue
		}
		wanted[entry.Name] = true
		if err := f.applyEntry(ctx, entry); err != nil {
			return err
		}
	}
	live, err := f.Store.All(ctx)
	if err != nil {
		return err
	}
	for _, inv := range live {
		if wanted[inv.Name] {
			continue
		}
		if err := f.Store.Delete(ctx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *InventoriesFile) applyEntry(ctx context.Context, entry inventoryEntry) error {
	inv, err := f.Store.ByName(ctx, entry.Name)
	if apperr.KindOf(err) == apperr.KindNotFound || (err == nil && inv.Deleted()) {
		inv, err = f.Store.Create(ctx, entry.Name)
	}
	if err != nil {
		return err
	}
	items := make([]*inventories.Item, 0, len(entry.Items))
	for _, ie := range entry.Items {
		item := &inventories.Item{
			InventoryID: inv.ID, Brand: ie.Brand, Name: ie.Name, Count: ie.Count,
			ItemSize: ie.ItemSize, Unit: ie.Unit,
			Category: ie.Category, Subcategory: ie.Subcategory,
		}
		if ie.Expiration != "" {
			if t, err := time.ParseInLocation("2006-01-02", ie.Expiration, time.UTC); err == nil {
				item.Expiration = &t
			}
		}
		items = append(items, item)
	}
	return f.Store.ReplaceItems(ctx, inv.ID, items)
}
