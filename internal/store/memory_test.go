package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/promptgrid/api/internal/model"
)

func TestMemory_CellRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	cell := &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "hello", Status: model.StatusIdle}
	if err := s.SaveCell(ctx, cell); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetCell(ctx, "Main", "A1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != "hello" || got.Status != model.StatusIdle {
		t.Errorf("cell = %+v", got)
	}
}

func TestMemory_GetCellNotFound(t *testing.T) {
	s := NewMemory()
	if _, err := s.GetCell(context.Background(), "Main", "Z9"); err != ErrCellNotFound {
		t.Errorf("err = %v, want ErrCellNotFound", err)
	}
}

func TestMemory_CopiesAreIsolated(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	cell := &model.Cell{
		Sheet: "Main", Ref: "A1", Prompt: "p",
		Generations: []model.Generation{{Output: "one"}},
	}
	if err := s.SaveCell(ctx, cell); err != nil {
		t.Fatalf("save: %v", err)
	}

	// mutating what the caller holds must not leak into the store
	cell.Prompt = "changed"
	cell.Generations[0].Output = "mutated"

	got, _ := s.GetCell(ctx, "Main", "A1")
	if got.Prompt != "p" || got.Generations[0].Output != "one" {
		t.Errorf("store leaked caller mutations: %+v", got)
	}

	// and mutating a fetched copy must not either
	got.Generations = append(got.Generations, model.Generation{Output: "extra"})
	again, _ := s.GetCell(ctx, "Main", "A1")
	if len(again.Generations) != 1 {
		t.Errorf("store leaked reader mutations: %d generations", len(again.Generations))
	}
}

func TestMemory_DeleteCell(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_ = s.SaveCell(ctx, &model.Cell{Sheet: "Main", Ref: "A1"})
	if err := s.DeleteCell(ctx, "Main", "A1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCell(ctx, "Main", "A1"); err != ErrCellNotFound {
		t.Errorf("err = %v, want ErrCellNotFound", err)
	}
}

func TestMemory_ListCellsSorted(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for _, ref := range []string{"C1", "A1", "B1"} {
		_ = s.SaveCell(ctx, &model.Cell{Sheet: "Main", Ref: ref})
	}
	_ = s.SaveCell(ctx, &model.Cell{Sheet: "Other", Ref: "Z1"})

	cells, err := s.ListCells(ctx, "Main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	refs := make([]string, len(cells))
	for i, c := range cells {
		refs[i] = c.Ref
	}
	if !reflect.DeepEqual(refs, []string{"A1", "B1", "C1"}) {
		t.Errorf("refs = %v", refs)
	}
}

func TestMemory_ListSheets(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_ = s.SaveCell(ctx, &model.Cell{Sheet: "Research", Ref: "A1"})
	_ = s.SaveCell(ctx, &model.Cell{Sheet: "Main", Ref: "A1"})

	sheets, err := s.ListSheets(ctx)
	if err != nil {
		t.Fatalf("list sheets: %v", err)
	}
	if !reflect.DeepEqual(sheets, []string{"Main", "Research"}) {
		t.Errorf("sheets = %v", sheets)
	}
}

func TestMemory_Connections(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	first := &model.Connection{ID: "c1", Sheet: "Main", SourceCellID: "A1", TargetCellID: "B1", CreatedAt: time.Now()}
	second := &model.Connection{ID: "c2", Sheet: "Main", SourceCellID: "B1", TargetCellID: "C1", CreatedAt: time.Now().Add(time.Second)}
	_ = s.SaveConnection(ctx, first)
	_ = s.SaveConnection(ctx, second)

	conns, err := s.ListConnections(ctx, "Main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conns) != 2 || conns[0].ID != "c1" || conns[1].ID != "c2" {
		t.Errorf("connections = %+v", conns)
	}

	if err := s.DeleteConnection(ctx, "Main", "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteConnection(ctx, "Main", "c1"); err != ErrConnectionNotFound {
		t.Errorf("second delete err = %v, want ErrConnectionNotFound", err)
	}
}

func TestMemory_DeleteConnectionsFor(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_ = s.SaveConnection(ctx, &model.Connection{ID: "c1", Sheet: "Main", SourceCellID: "A1", TargetCellID: "B1"})
	_ = s.SaveConnection(ctx, &model.Connection{ID: "c2", Sheet: "Main", SourceCellID: "B1", TargetCellID: "C1"})
	_ = s.SaveConnection(ctx, &model.Connection{ID: "c3", Sheet: "Main", SourceCellID: "C1", TargetCellID: "D1"})

	if err := s.DeleteConnectionsFor(ctx, "Main", "B1"); err != nil {
		t.Fatalf("delete for: %v", err)
	}
	conns, _ := s.ListConnections(ctx, "Main")
	if len(conns) != 1 || conns[0].ID != "c3" {
		t.Errorf("connections = %+v", conns)
	}
}
