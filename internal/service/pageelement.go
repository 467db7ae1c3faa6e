package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/eventbook/internal/logging"
	"github.com/Skotchmaster/eventbook/internal/models"
	"github.com/Skotchmaster/eventbook/internal/mykafka"
)

const ClassnameMessage = "Classname must begin with a letter and may only contain upper & lowercase letters a-z and digits 0-9"

var classnamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

func ValidClassname(classname string) bool {
	return classnamePattern.MatchString(classname)
}

type PageElementStore interface {
	GetPageElements(ctx context.Context) ([]models.PageElement, error)
	GetPageElement(ctx context.Context, id uuid.UUID) (*models.PageElement, error)
	CreatePageElement(ctx context.Context, el *models.PageElement) error
	UpdatePageElement(ctx context.Context, el *models.PageElement) error
	DeletePageElement(ctx context.Context, id uuid.UUID) error
}

type PageElementSearcher interface {
	SearchPageElements(ctx context.Context, q string, offset, limit int) (int64, []models.PageElement, error)
}

type PageElementIndexer interface {
	IndexPageElement(ctx context.Context, el *models.PageElement) error
	DeletePageElement(ctx context.Context, id uuid.UUID) error
}

type PageElementService struct {
	Repo     PageElementStore
	Searcher PageElementSearcher
	Indexer  PageElementIndexer
	Events   Publisher
}

func UserOwns(el *models.PageElement, userID uuid.UUID) bool {
	return el != nil && el.UserID == userID
}

func (s *PageElementService) GetAll(ctx context.Context) ([]models.PageElement, error) {
	return s.Repo.GetPageElements(ctx)
}

func (s *PageElementService) GetByID(ctx context.Context, id uuid.UUID) (*models.PageElement, error) {
	el, err := s.Repo.GetPageElement(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return el, nil
}

// Create stores a new element owned by userID. A zero id gets a fresh one.
func (s *PageElementService) Create(ctx context.Context, userID, id uuid.UUID, content, classname string) (*models.PageElement, error) {
	if !ValidClassname(classname) {
		return nil, fmt.Errorf("%w: %s", ErrValidation, ClassnameMessage)
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	el := &models.PageElement{ID: id, Content: content, Classname: classname, UserID: userID}
	if err := s.Repo.CreatePageElement(ctx, el); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.index(ctx, el)
	publishEvent(ctx, s.Events, mykafka.TopicPageElements, el.ID.String(), mykafka.Event{
		Type:   mykafka.EventPageElementCreated,
		UserID: userID.String(),
		ID:     el.ID.String(),
		At:     time.Now().UTC(),
	})
	return el, nil
}

// Update changes content and classname. Only the owner may update; anyone
// else gets ErrNotFound.
func (s *PageElementService) Update(ctx context.Context, id, userID uuid.UUID, content, classname string) (*models.PageElement, error) {
	if !ValidClassname(classname) {
		return nil, fmt.Errorf("%w: %s", ErrValidation, ClassnameMessage)
	}

	el, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !UserOwns(el, userID) {
		return nil, ErrNotFound
	}

	el.Content = content
	el.Classname = classname
	if err := s.Repo.UpdatePageElement(ctx, el); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.index(ctx, el)
	publishEvent(ctx, s.Events, mykafka.TopicPageElements, el.ID.String(), mykafka.Event{
		Type:   mykafka.EventPageElementUpdated,
		UserID: userID.String(),
		ID:     el.ID.String(),
		At:     time.Now().UTC(),
	})
	return el, nil
}

func (s *PageElementService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	el, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !UserOwns(el, userID) {
		return ErrNotFound
	}

	if err := s.Repo.DeletePageElement(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if s.Indexer != nil {
		if err := s.Indexer.DeletePageElement(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("es_delete_failed", "id", id, "error", err)
		}
	}
	publishEvent(ctx, s.Events, mykafka.TopicPageElements, id.String(), mykafka.Event{
		Type:   mykafka.EventPageElementDeleted,
		UserID: userID.String(),
		ID:     id.String(),
		At:     time.Now().UTC(),
	})
	return nil
}

func (s *PageElementService) Search(ctx context.Context, q string, offset, limit int) (int64, []models.PageElement, error) {
	return s.Searcher.SearchPageElements(ctx, q, offset, limit)
}

func (s *PageElementService) index(ctx context.Context, el *models.PageElement) {
	if s.Indexer == nil {
		return
	}
	if err := s.Indexer.IndexPageElement(ctx, el); err != nil {
		logging.FromContext(ctx).Warn("es_index_failed", "id", el.ID, "error", err)
	}
}
