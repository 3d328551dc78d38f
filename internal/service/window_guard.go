package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
)

type applicationLoader interface {
	GetWithProcess(ctx context.Context, id string) (*models.ApplicationWithProcess, error)
}

type gateRecorder interface {
	RecordGateRejection(code string)
}

// WindowGuard admits applicant mutations only while the application's process
// is active and its submission window is open. The process is re-read on every
// call so a deadline passing mid-session takes effect immediately.
type WindowGuard struct {
	apps    applicationLoader
	metrics gateRecorder
	now     func() time.Time
}

// NewWindowGuard constructs the guard. A nil clock defaults to time.Now.
func NewWindowGuard(apps applicationLoader, metrics gateRecorder, now func() time.Time) *WindowGuard {
	if now == nil {
		now = time.Now
	}
	return &WindowGuard{apps: apps, metrics: metrics, now: now}
}

// Now returns the guard's clock reading in UTC.
func (g *WindowGuard) Now() time.Time {
	return g.now().UTC()
}

// Load fetches an active application with its process. Reads use it directly.
func (g *WindowGuard) Load(ctx context.Context, applicationID string) (*models.ApplicationWithProcess, error) {
	record, err := g.apps.GetWithProcess(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, g.reject(appErrors.Clone(appErrors.ErrApplicationNotFound, fmt.Sprintf("application %s not found", applicationID)))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !record.Application.Active {
		return nil, g.reject(appErrors.Clone(appErrors.ErrApplicationNotFound, fmt.Sprintf("application %s not found", applicationID)))
	}
	return record, nil
}

// Check runs the full mutation guard for the application owner: existence,
// ownership, process activation, submission window and terminal review state.
func (g *WindowGuard) Check(ctx context.Context, applicationID string, actor *models.JWTClaims) (*models.ApplicationWithProcess, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := g.Load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if record.Application.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another user")
	}
	if err := g.checkProcess(&record.Process); err != nil {
		return nil, err
	}
	if record.Application.Reviewed() {
		return nil, g.reject(appErrors.Clone(appErrors.ErrApplicationReviewed, fmt.Sprintf("application was already reviewed as %s", *record.Application.Status)))
	}
	return record, nil
}

// CheckProcess applies the activation and window checks to a process alone.
func (g *WindowGuard) CheckProcess(process *models.Process) error {
	return g.checkProcess(process)
}

func (g *WindowGuard) checkProcess(process *models.Process) error {
	if !process.AcceptsSubmissions() {
		return g.reject(appErrors.Clone(appErrors.ErrProcessInactive, fmt.Sprintf("selection process %s is not active (status %s)", process.Name, process.Status)))
	}
	now := g.Now()
	if !process.WindowOpenAt(now) {
		msg := fmt.Sprintf("submission window for %s closed at %s", process.Name, process.EndDate.UTC().Format(time.RFC3339))
		if now.Before(process.StartDate) {
			msg = fmt.Sprintf("submission window for %s opens at %s", process.Name, process.StartDate.UTC().Format(time.RFC3339))
		}
		return g.reject(appErrors.Clone(appErrors.ErrWindowClosed, msg))
	}
	return nil
}

func (g *WindowGuard) reject(err *appErrors.Error) error {
	if g.metrics != nil {
		g.metrics.RecordGateRejection(err.Code)
	}
	return err
}
