package inventories

import (
	"context"
	"testing"
	"time"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatal(err)
	}
	return NewStore(d)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	inv, err := s.Create(ctx, "Food Storage")
	if err != nil {
		t.Fatal(err)
	}
	if inv.ID == 0 || inv.CreatedAt == nil {
		t.Fatalf("inventory = %+v", inv)
	}
	if _, err := s.Create(ctx, "Food Storage"); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("duplicate live name: got %v", err)
	}
	if _, err := s.Create(ctx, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty name: got %v", err)
	}
}

func TestSoftDeleteAndRecreate(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	first, err := s.Create(ctx, "Food Storage")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, &Item{
		InventoryID: first.ID, Name: "Rice", Count: 4, ItemSize: 25, Unit: "pounds",
		Category: "grains", Subcategory: "rice",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	// Live listings hide the tombstone.
	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("All = %d inventories, want 0", len(all))
	}
	// ByName sees it so the config mirror can restore correctly.
	tomb, err := s.ByName(ctx, "Food Storage")
	if err != nil {
		t.Fatal(err)
	}
	if !tomb.Deleted() || len(tomb.Items) != 1 {
		t.Errorf("tombstone = %+v", tomb)
	}

	// The name is free again.
	second, err := s.Create(ctx, "Food Storage")
	if err != nil {
		t.Fatalf("recreate after soft delete: %v", err)
	}
	if second.ID == first.ID {
		t.Error("recreate reused the tombstone row")
	}
	// Items never bleed across generations.
	got, err := s.ByID(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 0 {
		t.Errorf("new inventory inherited %d items", len(got.Items))
	}
}

func TestAddItem_refusedOnDeleted(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	inv, err := s.Create(ctx, "Pantry")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, inv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, &Item{InventoryID: inv.ID, Name: "Beans"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("adding to deleted inventory: got %v", err)
	}
}

func TestItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	inv, err := s.Create(ctx, "Pantry")
	if err != nil {
		t.Fatal(err)
	}
	exp := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	item, err := s.AddItem(ctx, &Item{
		InventoryID: inv.ID, Brand: "Acme", Name: "Black Beans",
		Count: 12, ItemSize: 15.5, Unit: "ounces",
		Category: "canned", Subcategory: "beans", Expiration: &exp,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.ByID(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 1 {
		t.Fatalf("items = %d", len(got.Items))
	}
	gi := got.Items[0]
	if gi.Brand != "Acme" || gi.Count != 12 || gi.ItemSize != 15.5 {
		t.Errorf("item = %+v", gi)
	}
	if gi.Expiration == nil || !gi.Expiration.Equal(exp) {
		t.Errorf("expiration = %v", gi.Expiration)
	}

	if err := s.DeleteItem(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteItem(ctx, item.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("double delete: got %v", err)
	}
}

func TestReplaceItems(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	inv, err := s.Create(ctx, "Pantry")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, &Item{InventoryID: inv.ID, Name: "Old"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceItems(ctx, inv.ID, []*Item{
		{Name: "New A", Category: "canned"},
		{Name: "New B", Category: "grains"},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.ByID(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 || got.Items[0].Name != "New A" {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	inv, err := s.Create(ctx, "Pantry")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Rename(ctx, inv.ID, "Basement Pantry"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ByName(ctx, "Basement Pantry"); err != nil {
		t.Errorf("renamed inventory not found: %v", err)
	}
	if err := s.Rename(ctx, 999, "x"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("rename missing: got %v", err)
	}
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	inv, err := s.Create(ctx, "Pantry")
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range []*Item{
		{InventoryID: inv.ID, Name: "Rice", Category: "grains", Subcategory: "rice"},
		{InventoryID: inv.ID, Name: "More Rice", Category: "grains", Subcategory: "rice"},
		{InventoryID: inv.ID, Name: "Beans", Category: "canned", Subcategory: "beans"},
	} {
		if _, err := s.AddItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Categories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]string{{"canned", "beans"}, {"grains", "rice"}}
	if len(got) != len(want) {
		t.Fatalf("categories = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("categories[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
