package analyses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"smartqa-backend/internal/billing"
	"smartqa-backend/internal/extract"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/shared/metrics"
	"smartqa-backend/internal/shared/storage/object"
	"smartqa-backend/internal/shared/telemetry"
)

const defaultMaxDocumentChars = 20000

// Reserver consumes one analysis allowance for an owner.
type Reserver interface {
	ReserveOne(ctx context.Context, tx *sql.Tx, ownerID string) (billing.Account, error)
}

// Upload is one document part of a creation request.
type Upload struct {
	FileName  string
	MediaType string
	Body      io.Reader
}

// CredentialInput is one access credential of a creation request.
type CredentialInput struct {
	FieldName string `json:"fieldName" validate:"required,max=100"`
	Value     string `json:"value" validate:"required"`
}

// CreateInput describes a new analysis.
type CreateInput struct {
	OwnerID       string            `validate:"required"`
	Name          string            `json:"name" validate:"required,max=200"`
	TargetURL     string            `json:"targetUrl" validate:"required,url"`
	Objective     string            `json:"objective" validate:"max=4000"`
	ScreenContext string            `json:"screenContext" validate:"max=8000"`
	Credentials   []CredentialInput `json:"credentials" validate:"dive"`
	Files         []Upload          `json:"-"`
	RequestID     string            `json:"-"`
}

// Service contains business logic for analyses.
type Service struct {
	Repo             Repo
	Billing          Reserver
	Store            object.ObjectStore
	Queue            queue.Client
	MaxDocumentChars int
	Now              func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo, reserver Reserver, store object.ObjectStore, q queue.Client) *Service {
	return &Service{
		Repo:             repo,
		Billing:          reserver,
		Store:            store,
		Queue:            q,
		MaxDocumentChars: defaultMaxDocumentChars,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Create stores uploads, consumes quota and inserts the analysis atomically,
// then enqueues exploration. An enqueue failure is logged and the analysis is
// still returned; the caller can re-trigger exploration.
func (s *Service) Create(ctx context.Context, in CreateInput) (Analysis, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TargetURL = strings.TrimSpace(in.TargetURL)
	if err := s.validateInput(in); err != nil {
		return Analysis{}, err
	}

	now := s.now()
	a := Analysis{
		ID:            uuid.NewString(),
		OwnerID:       in.OwnerID,
		Name:          in.Name,
		TargetURL:     in.TargetURL,
		Objective:     strings.TrimSpace(in.Objective),
		ScreenContext: strings.TrimSpace(in.ScreenContext),
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	docs, err := s.storeUploads(ctx, a, in.Files, now)
	if err != nil {
		return Analysis{}, err
	}

	creds := make([]Credential, 0, len(in.Credentials))
	for _, c := range in.Credentials {
		creds = append(creds, Credential{
			ID:         uuid.NewString(),
			AnalysisID: a.ID,
			FieldName:  strings.TrimSpace(c.FieldName),
			Value:      c.Value,
			CreatedAt:  now,
		})
	}

	reserve := func(ctx context.Context, tx *sql.Tx) error {
		_, err := s.Billing.ReserveOne(ctx, tx, in.OwnerID)
		return err
	}
	if s.Billing == nil {
		reserve = nil
	}
	if err := s.Repo.Create(ctx, NewAnalysis{Analysis: a, Documents: docs, Credentials: creds}, reserve); err != nil {
		s.discardUploads(docs)
		if reason := quotaReason(err); reason != "" {
			metrics.IncQuotaRejected(reason)
			telemetry.Warn("analysis.create.rejected", map[string]any{
				"owner_id":   in.OwnerID,
				"reason":     reason,
				"request_id": in.RequestID,
			})
		}
		return Analysis{}, err
	}

	metrics.IncAnalysisCreated()
	telemetry.Info("analysis.created", map[string]any{
		"analysis_id": a.ID,
		"owner_id":    a.OwnerID,
		"documents":   len(docs),
		"credentials": len(creds),
		"request_id":  in.RequestID,
	})

	if _, err := s.enqueue(ctx, a, queue.StageExplore, in.RequestID); err != nil {
		telemetry.Error("analysis.enqueue_failed", map[string]any{
			"analysis_id": a.ID,
			"owner_id":    a.OwnerID,
			"stage":       string(queue.StageExplore),
			"error":       err,
		})
	}
	return a, nil
}

// Get returns an owned analysis.
func (s *Service) Get(ctx context.Context, analysisID, ownerID string) (Analysis, error) {
	return s.Repo.GetForOwner(ctx, analysisID, ownerID)
}

// List returns owned analyses newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, error) {
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// View is the user-facing read of one analysis. Credential values are omitted.
type View struct {
	Analysis    Analysis     `json:"analysis"`
	Documents   []Document   `json:"documents"`
	Credentials []Credential `json:"credentials"`
}

// GetView returns the analysis with its documents and credential names.
func (s *Service) GetView(ctx context.Context, analysisID, ownerID string) (View, error) {
	a, err := s.Repo.GetForOwner(ctx, analysisID, ownerID)
	if err != nil {
		return View{}, err
	}
	docs, err := s.Repo.ListDocuments(ctx, a.ID)
	if err != nil {
		return View{}, err
	}
	creds, err := s.Repo.ListCredentials(ctx, a.ID, false)
	if err != nil {
		return View{}, err
	}
	return View{Analysis: a, Documents: docs, Credentials: creds}, nil
}

// Detail returns the projection used by generation stages, including
// credential values and extracted document text.
func (s *Service) Detail(ctx context.Context, analysisID, ownerID string) (Detail, error) {
	a, err := s.Repo.GetForOwner(ctx, analysisID, ownerID)
	if err != nil {
		return Detail{}, err
	}
	docs, err := s.Repo.ListDocuments(ctx, a.ID)
	if err != nil {
		return Detail{}, err
	}
	creds, err := s.Repo.ListCredentials(ctx, a.ID, true)
	if err != nil {
		return Detail{}, err
	}

	texts := make([]DocumentText, 0, len(docs))
	if s.Store != nil {
		for _, d := range docs {
			text, err := extract.ExtractText(ctx, s.Store, d.StorageKey, d.MediaType)
			if err != nil {
				telemetry.Warn("analysis.document.extract_failed", map[string]any{
					"analysis_id": a.ID,
					"document_id": d.ID,
					"media_type":  d.MediaType,
					"error":       err,
				})
				continue
			}
			if text = extract.Truncate(text, s.MaxDocumentChars); text != "" {
				texts = append(texts, DocumentText{FileName: d.FileName, Text: text})
			}
		}
	}
	return Detail{Analysis: a, Documents: docs, Credentials: creds, DocumentTexts: texts}, nil
}

// TriggerStage enqueues a stage for an owned analysis under a new job id.
// Documentation and scripts require completed exploration.
func (s *Service) TriggerStage(ctx context.Context, analysisID, ownerID string, stage queue.Stage, requestID string) (queue.Message, error) {
	a, err := s.Repo.GetForOwner(ctx, analysisID, ownerID)
	if err != nil {
		return queue.Message{}, err
	}
	switch stage {
	case queue.StageExplore:
	case queue.StageGenerateDocumentation, queue.StageGenerateScripts:
		if !a.Descriptions.Explored() {
			return queue.Message{}, ErrNotExplored
		}
	default:
		return queue.Message{}, fmt.Errorf("%w: %s cannot be triggered directly", queue.ErrUnknownStage, stage)
	}
	return s.enqueue(ctx, a, stage, requestID)
}

func (s *Service) enqueue(ctx context.Context, a Analysis, stage queue.Stage, requestID string) (queue.Message, error) {
	msg := queue.Message{
		JobID:      uuid.NewString(),
		Stage:      stage,
		AnalysisID: a.ID,
		OwnerID:    a.OwnerID,
		RequestID:  requestID,
		EnqueuedAt: s.now().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
	if s.Queue == nil {
		return msg, errors.New("job queue not configured")
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *Service) validateInput(in CreateInput) error {
	fields := map[string]string{}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fieldName(fe.Namespace())] = fe.Tag()
		}
	}
	for i, f := range in.Files {
		if !extract.Supported(f.MediaType, f.FileName) {
			fields[fmt.Sprintf("documents[%d]", i)] = "unsupported_media_type"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *Service) storeUploads(ctx context.Context, a Analysis, files []Upload, now time.Time) ([]Document, error) {
	docs := make([]Document, 0, len(files))
	if len(files) == 0 {
		return docs, nil
	}
	if s.Store == nil {
		return nil, errors.New("object store not configured")
	}
	for _, f := range files {
		key, err := object.DocumentKey(a.OwnerID, a.ID, f.FileName)
		if err != nil {
			s.discardUploads(docs)
			return nil, &ValidationError{Fields: map[string]string{"documents": err.Error()}}
		}
		mediaType := extract.NormalizeMimeType(f.MediaType, f.FileName)
		size, err := s.Store.Put(ctx, key, mediaType, f.Body)
		if err != nil {
			s.discardUploads(docs)
			return nil, fmt.Errorf("store document: %w", err)
		}
		docs = append(docs, Document{
			ID:         uuid.NewString(),
			AnalysisID: a.ID,
			FileName:   f.FileName,
			MediaType:  mediaType,
			StorageKey: key,
			SizeBytes:  size,
			CreatedAt:  now,
		})
	}
	return docs, nil
}

func (s *Service) discardUploads(docs []Document) {
	if s.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, d := range docs {
		if err := s.Store.Delete(ctx, d.StorageKey); err != nil {
			telemetry.Warn("analysis.document.cleanup_failed", map[string]any{
				"storage_key": d.StorageKey,
				"error":       err,
			})
		}
	}
}

func quotaReason(err error) string {
	switch {
	case errors.Is(err, billing.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, billing.ErrSubscriptionInactive):
		return "subscription_inactive"
	case errors.Is(err, billing.ErrNoActiveLedger):
		return "no_active_ledger"
	default:
		return ""
	}
}

// fieldName maps "CreateInput.credentials[0].fieldName" to "credentials[0].fieldName".
func fieldName(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return strings.ToLower(namespace)
}
