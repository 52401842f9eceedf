// Package lifecycle drives announcements through their delivery states.
// Every status change in the system goes through the Machine, which is the
// single place edges are checked and side effects are attached.
package lifecycle

import (
	"context"
	"time"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/logx"
)

// Machine validates and applies lifecycle transitions.
type Machine struct {
	store  announcementStore
	hooks  map[Edge][]Hook
	logger logx.Logger
	now    func() time.Time
}

// NewMachine creates a new Machine.
func NewMachine(store announcementStore, logger logx.Logger) *Machine {
	return &Machine{
		store:  store,
		hooks:  make(map[Edge][]Hook),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterHook attaches a post-commit hook to an edge. Hooks run in
// registration order.
func (m *Machine) RegisterHook(from, to domain.AnnouncementStatus, h Hook) {
	e := Edge{From: from, To: to}
	m.hooks[e] = append(m.hooks[e], h)
}

// Transition moves an announcement to target on behalf of actor. The status
// change is a conditional update: a concurrent transition that got there
// first turns this call into ErrConflict.
func (m *Machine) Transition(ctx context.Context, announcementID string, target domain.AnnouncementStatus, actor string) (*domain.Announcement, error) {
	if !target.Valid() {
		return nil, apperr.ErrValidation
	}
	if target == domain.StatusExpired && actor != ActorSystem {
		return nil, apperr.ErrValidation
	}

	a, err := m.store.Get(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.ErrNotFound
	}

	from := a.Status
	if !from.CanTransition(target) {
		return nil, apperr.NewStateTransition(string(from), string(target))
	}

	ok, err := m.store.UpdateStatusCAS(ctx, announcementID, from, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrConflict
	}
	a.Status = target

	m.logger.Info("announcement transitioned",
		logx.String("event", "lifecycle_transition"),
		logx.String("announcement_id", announcementID),
		logx.String("from", string(from)),
		logx.String("to", string(target)),
		logx.String("actor", actor),
	)

	for _, h := range m.hooks[Edge{From: from, To: target}] {
		if err := h(ctx, a, actor); err != nil {
			m.logger.Error("lifecycle hook failed",
				logx.String("announcement_id", announcementID),
				logx.String("from", string(from)),
				logx.String("to", string(target)),
				logx.Any("err", err),
			)
			return a, err
		}
	}

	return a, nil
}
