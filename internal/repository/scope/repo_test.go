package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/U201311/clip-image-search-v2/internal/domain"
)

func TestDatasetMembers_Unknown(t *testing.T) {
	repo, _ := newTestRepo(t)

	members, found, err := repo.DatasetMembers(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || members != nil {
		t.Fatalf("expected not found, got %v, %v", members, found)
	}
}

func TestDatasetMembers_RegisteredEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.RegisterDataset(ctx, "ds-1", "empty"); err != nil {
		t.Fatalf("register: %v", err)
	}
	members, found, err := repo.DatasetMembers(ctx, "ds-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected dataset to be found")
	}
	if len(members) != 0 {
		t.Errorf("members = %v", members)
	}
}

func TestDatasetMembers_Sorted(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	if err := repo.RegisterDataset(ctx, "ds-1", "cats", "f3", "f1", "f2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if ms.hashes["test:dataset:ds-1"]["created_at"] != "42" {
		t.Errorf("meta = %v", ms.hashes["test:dataset:ds-1"])
	}

	members, found, err := repo.DatasetMembers(ctx, "ds-1")
	if err != nil || !found {
		t.Fatalf("unexpected result: %v, %v", found, err)
	}
	want := []string{"f1", "f2", "f3"}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("members = %v, want %v", members, want)
		}
	}
}

func TestDatasetMembers_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.err = errors.New("connection lost")

	if _, _, err := repo.DatasetMembers(context.Background(), "ds-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegisterDataset_RequiresID(t *testing.T) {
	repo, _ := newTestRepo(t)
	if err := repo.RegisterDataset(context.Background(), "", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWorkspaceFiles(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	err := repo.RegisterWorkspaceFiles(ctx, "ws-1", map[string]string{
		"20": "/srv/a/2.png",
		"10": "/srv/a/1.jpg",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	items, err := repo.WorkspaceFiles(ctx, "ws-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].ID != "10" || items[0].ScopeID != "10" || items[0].Path != "/srv/a/1.jpg" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].ID != "20" {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestWorkspaceFiles_Unknown(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := repo.WorkspaceFiles(context.Background(), "ws-x"); !errors.Is(err, domain.ErrScopeNotFound) {
		t.Fatalf("expected ErrScopeNotFound, got %v", err)
	}
}
