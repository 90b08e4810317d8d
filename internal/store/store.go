// Package store persists cells, sheets and manual connections. The
// redis implementation is the production store; the memory one backs
// tests.
package store

import (
	"context"
	"errors"

	"github.com/promptgrid/api/internal/model"
)

// ErrCellNotFound is returned for lookups of cells that do not exist.
var ErrCellNotFound = errors.New("cell not found")

// ErrConnectionNotFound is returned for lookups of unknown connections.
var ErrConnectionNotFound = errors.New("connection not found")

// CellStore is the full persistence surface used by the service layer.
// The engine depends only on the cell/sheet subset.
type CellStore interface {
	GetCell(ctx context.Context, sheet, ref string) (*model.Cell, error)
	SaveCell(ctx context.Context, cell *model.Cell) error
	DeleteCell(ctx context.Context, sheet, ref string) error
	ListCells(ctx context.Context, sheet string) ([]*model.Cell, error)
	ListSheets(ctx context.Context) ([]string, error)

	SaveConnection(ctx context.Context, conn *model.Connection) error
	DeleteConnection(ctx context.Context, sheet, id string) error
	ListConnections(ctx context.Context, sheet string) ([]*model.Connection, error)
	DeleteConnectionsFor(ctx context.Context, sheet, ref string) error
}
