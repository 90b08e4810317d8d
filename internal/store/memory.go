package store

import (
	"context"
	"sort"
	"sync"

	"github.com/promptgrid/api/internal/model"
)

// Memory is an in-process CellStore used by tests and by the server
// when redis is unavailable.
type Memory struct {
	mu          sync.RWMutex
	cells       map[string]map[string]*model.Cell      // sheet -> ref -> cell
	connections map[string]map[string]*model.Connection // sheet -> id -> connection
}

func NewMemory() *Memory {
	return &Memory{
		cells:       make(map[string]map[string]*model.Cell),
		connections: make(map[string]map[string]*model.Connection),
	}
}

func (s *Memory) GetCell(ctx context.Context, sheet, ref string) (*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.cells[sheet][ref]
	if !ok {
		return nil, ErrCellNotFound
	}
	copied := *cell
	copied.Generations = append([]model.Generation(nil), cell.Generations...)
	return &copied, nil
}

func (s *Memory) SaveCell(ctx context.Context, cell *model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cells[cell.Sheet] == nil {
		s.cells[cell.Sheet] = make(map[string]*model.Cell)
	}
	copied := *cell
	copied.Generations = append([]model.Generation(nil), cell.Generations...)
	s.cells[cell.Sheet][cell.Ref] = &copied
	return nil
}

func (s *Memory) DeleteCell(ctx context.Context, sheet, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cells[sheet], ref)
	return nil
}

func (s *Memory) ListCells(ctx context.Context, sheet string) ([]*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refsInSheet := make([]string, 0, len(s.cells[sheet]))
	for ref := range s.cells[sheet] {
		refsInSheet = append(refsInSheet, ref)
	}
	sort.Strings(refsInSheet)
	cells := make([]*model.Cell, 0, len(refsInSheet))
	for _, ref := range refsInSheet {
		copied := *s.cells[sheet][ref]
		copied.Generations = append([]model.Generation(nil), copied.Generations...)
		cells = append(cells, &copied)
	}
	return cells, nil
}

func (s *Memory) ListSheets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sheets := make([]string, 0, len(s.cells))
	for sheet := range s.cells {
		sheets = append(sheets, sheet)
	}
	sort.Strings(sheets)
	return sheets, nil
}

func (s *Memory) SaveConnection(ctx context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections[conn.Sheet] == nil {
		s.connections[conn.Sheet] = make(map[string]*model.Connection)
	}
	copied := *conn
	s.connections[conn.Sheet][conn.ID] = &copied
	return nil
}

func (s *Memory) DeleteConnection(ctx context.Context, sheet, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[sheet][id]; !ok {
		return ErrConnectionNotFound
	}
	delete(s.connections[sheet], id)
	return nil
}

func (s *Memory) ListConnections(ctx context.Context, sheet string) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*model.Connection, 0, len(s.connections[sheet]))
	for _, conn := range s.connections[sheet] {
		copied := *conn
		conns = append(conns, &copied)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.Before(conns[j].CreatedAt) })
	return conns, nil
}

func (s *Memory) DeleteConnectionsFor(ctx context.Context, sheet, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.connections[sheet] {
		if conn.SourceCellID == ref || conn.TargetCellID == ref {
			delete(s.connections[sheet], id)
		}
	}
	return nil
}
