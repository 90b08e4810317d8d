package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/promptgrid/api/internal/model"
)

// Redis stores cells as JSON blobs under cell:<sheet>:<ref>, sheet
// membership in per-sheet sets, and connections in per-sheet hashes.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func cellDataKey(sheet, ref string) string {
	return fmt.Sprintf("cell:%s:%s", sheet, ref)
}

func sheetCellsKey(sheet string) string {
	return fmt.Sprintf("sheet:%s:cells", sheet)
}

func connectionsKey(sheet string) string {
	return fmt.Sprintf("connections:%s", sheet)
}

const sheetsKey = "sheets"

func (s *Redis) GetCell(ctx context.Context, sheet, ref string) (*model.Cell, error) {
	data, err := s.client.Get(ctx, cellDataKey(sheet, ref)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCellNotFound
		}
		return nil, err
	}
	var cell model.Cell
	if err := json.Unmarshal(data, &cell); err != nil {
		return nil, fmt.Errorf("unmarshal cell %s!%s: %w", sheet, ref, err)
	}
	return &cell, nil
}

func (s *Redis) SaveCell(ctx context.Context, cell *model.Cell) error {
	data, err := json.Marshal(cell)
	if err != nil {
		return fmt.Errorf("marshal cell %s: %w", cell.Key(), err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, cellDataKey(cell.Sheet, cell.Ref), data, 0)
	pipe.SAdd(ctx, sheetCellsKey(cell.Sheet), cell.Ref)
	pipe.SAdd(ctx, sheetsKey, cell.Sheet)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Redis) DeleteCell(ctx context.Context, sheet, ref string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, cellDataKey(sheet, ref))
	pipe.SRem(ctx, sheetCellsKey(sheet), ref)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Redis) ListCells(ctx context.Context, sheet string) ([]*model.Cell, error) {
	refsInSheet, err := s.client.SMembers(ctx, sheetCellsKey(sheet)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(refsInSheet)
	cells := make([]*model.Cell, 0, len(refsInSheet))
	for _, ref := range refsInSheet {
		cell, err := s.GetCell(ctx, sheet, ref)
		if err == ErrCellNotFound {
			// stale membership entry, drop it
			s.client.SRem(ctx, sheetCellsKey(sheet), ref)
			continue
		}
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

func (s *Redis) ListSheets(ctx context.Context) ([]string, error) {
	sheets, err := s.client.SMembers(ctx, sheetsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(sheets)
	return sheets, nil
}

func (s *Redis) SaveConnection(ctx context.Context, conn *model.Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshal connection %s: %w", conn.ID, err)
	}
	return s.client.HSet(ctx, connectionsKey(conn.Sheet), conn.ID, data).Err()
}

func (s *Redis) DeleteConnection(ctx context.Context, sheet, id string) error {
	removed, err := s.client.HDel(ctx, connectionsKey(sheet), id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (s *Redis) ListConnections(ctx context.Context, sheet string) ([]*model.Connection, error) {
	entries, err := s.client.HGetAll(ctx, connectionsKey(sheet)).Result()
	if err != nil {
		return nil, err
	}
	conns := make([]*model.Connection, 0, len(entries))
	for id, raw := range entries {
		var conn model.Connection
		if err := json.Unmarshal([]byte(raw), &conn); err != nil {
			return nil, fmt.Errorf("unmarshal connection %s: %w", id, err)
		}
		conns = append(conns, &conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.Before(conns[j].CreatedAt) })
	return conns, nil
}

// DeleteConnectionsFor removes every connection that references the
// cell, called when the cell is deleted.
func (s *Redis) DeleteConnectionsFor(ctx context.Context, sheet, ref string) error {
	conns, err := s.ListConnections(ctx, sheet)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if conn.SourceCellID == ref || conn.TargetCellID == ref {
			if err := s.DeleteConnection(ctx, sheet, conn.ID); err != nil && err != ErrConnectionNotFound {
				return err
			}
		}
	}
	return nil
}
