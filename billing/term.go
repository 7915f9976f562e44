/*
term.go - Term calendar and student roster access

The engine does not own admission or the academic calendar; external
collaborators write students and terms through these helpers. What the
engine does insist on is that "the active term" is unambiguous: zero or
multiple active terms is a data-integrity condition, reported as
ConfigurationError rather than silently picking one.
*/
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DirectoryService administers the support records the engine reads:
// students, terms, fee items, and optional services.
type DirectoryService struct {
	Store TxStore
	Clock Clock
}

func NewDirectoryService(store TxStore) *DirectoryService {
	return &DirectoryService{Store: store, Clock: NowUTC}
}

// ActiveTerm returns the single active term.
func (s *DirectoryService) ActiveTerm(ctx context.Context) (*Term, error) {
	return ActiveTerm(ctx, s.Store)
}

// ActiveTerm resolves the single active term through any Store, including
// the transactional view inside a unit of work.
func ActiveTerm(ctx context.Context, store Store) (*Term, error) {
	terms, err := store.ActiveTerms(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading active terms: %v", ErrPersistence, err)
	}
	switch len(terms) {
	case 1:
		return &terms[0], nil
	case 0:
		return nil, &ConfigurationError{Message: "no active term"}
	default:
		return nil, &ConfigurationError{Message: fmt.Sprintf("%d terms are active, want exactly 1", len(terms))}
	}
}

// RegisterStudent records a student produced by admission approval.
func (s *DirectoryService) RegisterStudent(ctx context.Context, name string, classID ClassID) (*Student, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}
	if classID == "" {
		return nil, &ValidationError{Field: "class_id", Message: "required"}
	}

	student := Student{
		ID:        StudentID(uuid.NewString()),
		Name:      name,
		ClassID:   classID,
		CreatedAt: s.Clock(),
	}
	if err := s.Store.SaveStudent(ctx, student); err != nil {
		return nil, fmt.Errorf("%w: saving student: %v", ErrPersistence, err)
	}
	return &student, nil
}

// SaveTerm creates or updates a term. Activating a term deactivates all
// others in the same unit of work, so the single-active invariant holds.
func (s *DirectoryService) SaveTerm(ctx context.Context, term Term) error {
	if term.ID == "" {
		term.ID = TermID(uuid.NewString())
	}
	if term.Name == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}

	return s.Store.WithTx(ctx, func(tx Store) error {
		if term.Active {
			others, err := tx.ActiveTerms(ctx)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			for _, other := range others {
				if other.ID == term.ID {
					continue
				}
				other.Active = false
				if err := tx.SaveTerm(ctx, other); err != nil {
					return fmt.Errorf("%w: %v", ErrPersistence, err)
				}
			}
		}
		return tx.SaveTerm(ctx, term)
	})
}

// SaveFeeItem creates or renames a fee item catalog entry.
func (s *DirectoryService) SaveFeeItem(ctx context.Context, item FeeItem) (*FeeItem, error) {
	if item.ID == "" {
		item.ID = FeeItemID(uuid.NewString())
	}
	if item.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}
	if err := s.Store.SaveFeeItem(ctx, item); err != nil {
		return nil, fmt.Errorf("%w: saving fee item: %v", ErrPersistence, err)
	}
	return &item, nil
}

// SaveService creates or updates an optional service. Invoices that have
// already selected the service keep their snapshotted amount.
func (s *DirectoryService) SaveService(ctx context.Context, svc OptionalService) (*OptionalService, error) {
	if svc.ID == "" {
		svc.ID = ServiceID(uuid.NewString())
	}
	if svc.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}
	if svc.Amount.IsNegative() {
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if err := s.Store.SaveService(ctx, svc); err != nil {
		return nil, fmt.Errorf("%w: saving service: %v", ErrPersistence, err)
	}
	return &svc, nil
}
