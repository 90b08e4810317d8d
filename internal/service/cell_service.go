package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/promptgrid/api/internal/engine"
	"github.com/promptgrid/api/internal/model"
	"github.com/promptgrid/api/internal/store"
)

const (
	// TaskTypeCellRun is the asynq task for a manual cell run.
	TaskTypeCellRun = "cell:run"

	// QueueRuns is the asynq queue manual runs land on.
	QueueRuns = "runs"
)

var cellRefRe = regexp.MustCompile(`^[A-Za-z]+[0-9]+$`)

// CellRunPayload is the asynq task payload for a manual run.
type CellRunPayload struct {
	Sheet string `json:"sheet"`
	Ref   string `json:"ref"`
}

// CellService owns the cell CRUD surface and feeds manual runs to the
// engine through the asynq queue.
type CellService struct {
	store       store.CellStore
	asynqClient *asynq.Client
	engine      *engine.Engine
}

func NewCellService(cellStore store.CellStore, asynqClient *asynq.Client, eng *engine.Engine) *CellService {
	return &CellService{
		store:       cellStore,
		asynqClient: asynqClient,
		engine:      eng,
	}
}

// UpsertCell creates or edits a cell. A cell's reference is immutable
// once created; edits preserve output, status and history.
func (s *CellService) UpsertCell(ctx context.Context, sheet, ref, userID string, req *model.CellUpsertRequest) (*model.Cell, error) {
	if !cellRefRe.MatchString(ref) {
		return nil, fmt.Errorf("invalid cell reference")
	}

	now := time.Now()
	cell, err := s.store.GetCell(ctx, sheet, ref)
	if err == store.ErrCellNotFound {
		cell = &model.Cell{
			Sheet:     sheet,
			Ref:       ref,
			Status:    model.StatusIdle,
			CreatedAt: now,
		}
	} else if err != nil {
		return nil, err
	}

	cell.UserID = userID
	cell.Prompt = req.Prompt
	cell.Model = req.Model
	cell.Temperature = req.Temperature
	cell.OutputFormat = req.OutputFormat
	cell.CharacterLimit = req.CharacterLimit
	cell.Condition = req.Condition
	cell.AutoRun = req.AutoRun
	cell.Interval = req.Interval
	cell.VideoSeconds = req.VideoSeconds
	cell.VideoResolution = req.VideoResolution
	cell.VideoAspectRatio = req.VideoAspectRatio
	cell.AudioVoice = req.AudioVoice
	cell.AudioSpeed = req.AudioSpeed
	cell.AudioFormat = req.AudioFormat
	cell.UpdatedAt = now

	if err := s.store.SaveCell(ctx, cell); err != nil {
		return nil, fmt.Errorf("failed to save cell: %w", err)
	}

	// interval timers follow the cell set
	if err := s.engine.RebuildTimers(ctx); err != nil {
		return nil, fmt.Errorf("failed to rebuild timers: %w", err)
	}

	return cell, nil
}

func (s *CellService) GetCell(ctx context.Context, sheet, ref string) (*model.Cell, error) {
	return s.store.GetCell(ctx, sheet, ref)
}

func (s *CellService) ListCells(ctx context.Context, sheet string) ([]*model.Cell, error) {
	return s.store.ListCells(ctx, sheet)
}

func (s *CellService) ListSheets(ctx context.Context) ([]string, error) {
	return s.store.ListSheets(ctx)
}

// DeleteCell removes a cell, cancelling any in-flight polling for it
// and dropping connections that reference it.
func (s *CellService) DeleteCell(ctx context.Context, sheet, ref string) error {
	if _, err := s.store.GetCell(ctx, sheet, ref); err != nil {
		return err
	}
	if err := s.engine.Stop(ctx, sheet, ref); err != nil {
		return err
	}
	if err := s.store.DeleteConnectionsFor(ctx, sheet, ref); err != nil {
		return err
	}
	if err := s.store.DeleteCell(ctx, sheet, ref); err != nil {
		return err
	}
	return s.engine.RebuildTimers(ctx)
}

// EnqueueRun queues a manual run. Runs are never retried automatically:
// a failed run stays failed until the user or a cascade re-triggers it.
func (s *CellService) EnqueueRun(ctx context.Context, sheet, ref string) (*model.RunAcceptedResponse, error) {
	cell, err := s.store.GetCell(ctx, sheet, ref)
	if err != nil {
		return nil, err
	}
	if cell.Prompt == "" {
		return nil, fmt.Errorf("cell has no prompt")
	}

	payload, err := json.Marshal(CellRunPayload{Sheet: sheet, Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeCellRun, payload)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(QueueRuns),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.RunAcceptedResponse{
		Sheet:    sheet,
		Ref:      ref,
		Queued:   true,
		QueuedAt: time.Now(),
	}, nil
}

// StopCell cancels a cell's run and polling.
func (s *CellService) StopCell(ctx context.Context, sheet, ref string) error {
	return s.engine.Stop(ctx, sheet, ref)
}

// Deps returns a cell's live parse-derived edges, both directions.
func (s *CellService) Deps(ctx context.Context, sheet, ref string) (*model.CellDepsResponse, error) {
	cell, err := s.store.GetCell(ctx, sheet, ref)
	if err != nil {
		return nil, err
	}
	dependents, err := s.engine.Dependents(ctx, sheet, ref)
	if err != nil {
		return nil, err
	}
	depKeys := make([]string, 0, len(dependents))
	for _, d := range dependents {
		depKeys = append(depKeys, d.Key())
	}
	return &model.CellDepsResponse{
		Sheet:      sheet,
		Ref:        ref,
		References: s.engine.References(cell),
		Dependents: depKeys,
	}, nil
}

// CreateConnection records a manual cell-to-cell link. Connections are
// informational only and never affect scheduling.
func (s *CellService) CreateConnection(ctx context.Context, sheet string, req *model.ConnectionCreateRequest) (*model.Connection, error) {
	for _, ref := range []string{req.SourceCellID, req.TargetCellID} {
		if _, err := s.store.GetCell(ctx, sheet, ref); err != nil {
			return nil, err
		}
	}
	conn := &model.Connection{
		ID:           uuid.New().String(),
		Sheet:        sheet,
		SourceCellID: req.SourceCellID,
		TargetCellID: req.TargetCellID,
		CreatedAt:    time.Now(),
	}
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *CellService) DeleteConnection(ctx context.Context, sheet, id string) error {
	return s.store.DeleteConnection(ctx, sheet, id)
}

func (s *CellService) ListConnections(ctx context.Context, sheet string) ([]*model.Connection, error) {
	return s.store.ListConnections(ctx, sheet)
}
