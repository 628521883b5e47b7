package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
)

// Ensure IntakeService implements the interface.
var _ driving.IntakeService = (*IntakeService)(nil)

// LocalAccount is the account recorded for messages imported from files.
const LocalAccount = "local"

// unitNamespace seeds name-based unit IDs.
var unitNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://vellum.local/units"))

// IntakeService turns uploaded files and mail records into units.
type IntakeService struct {
	ingestion driving.IngestionService
	extractor driven.TextExtractor
	parser    driven.MessageParser
	now       func() time.Time
}

// NewIntakeService creates an intake service. The parser is optional;
// without it IngestEML is unavailable.
func NewIntakeService(
	ingestion driving.IngestionService,
	extractor driven.TextExtractor,
	parser driven.MessageParser,
) *IntakeService {
	return &IntakeService{
		ingestion: ingestion,
		extractor: extractor,
		parser:    parser,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UnitID derives a stable unit ID from the owner, kind and a key unique
// within them.
func UnitID(ownerID string, kind domain.ContentKind, key string) string {
	return uuid.NewSHA1(unitNamespace, []byte(ownerID+"\x00"+string(kind)+"\x00"+key)).String()
}

// IngestPDF extracts a PDF and ingests it.
func (s *IntakeService) IngestPDF(ctx context.Context, ownerID, name string, data []byte) (*domain.IngestionRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, name)
	}
	if s.extractor == nil {
		return nil, fmt.Errorf("extract %s: no extractor configured", name)
	}

	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}

	sum := sha256.Sum256(data)
	id := UnitID(ownerID, domain.KindPDF, hex.EncodeToString(sum[:]))
	unit := domain.NewDocumentUnit(id, ownerID, filepath.Base(name), pages, s.now())
	return s.ingestion.Ingest(ctx, unit)
}

// IngestMessage ingests one mail record. The unit text starts with the
// subject and sender so both are searchable.
func (s *IntakeService) IngestMessage(
	ctx context.Context, ownerID, account string, msg domain.RawMessage,
) (*domain.IngestionRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrInvalidInput)
	}

	arrived := msg.ReceivedAt
	if arrived.IsZero() {
		arrived = s.now()
	}
	title := msg.Subject
	if title == "" {
		title = "(no subject)"
	}

	unit := domain.SourceUnit{
		ID:        UnitID(ownerID, domain.KindEmail, account+"\x00"+msg.ID),
		OwnerID:   ownerID,
		Kind:      domain.KindEmail,
		Title:     title,
		Text:      messageText(msg),
		ArrivedAt: arrived.UTC(),
		Hints: domain.Hints{
			ThreadID: msg.ThreadID,
			Sender:   msg.Sender,
			Subject:  msg.Subject,
			Headers:  msg.Headers,
		},
	}
	return s.ingestion.Ingest(ctx, unit)
}

// IngestEML parses a saved message and ingests it under the local
// account. Messages without a Message-Id are keyed by content.
func (s *IntakeService) IngestEML(ctx context.Context, ownerID string, data []byte) (*domain.IngestionRecord, error) {
	if s.parser == nil {
		return nil, fmt.Errorf("parse message: no parser configured")
	}
	msg, err := s.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if msg.ID == "" {
		sum := sha256.Sum256(data)
		msg.ID = hex.EncodeToString(sum[:])
	}
	return s.IngestMessage(ctx, ownerID, LocalAccount, *msg)
}

func messageText(msg domain.RawMessage) string {
	var b strings.Builder
	if msg.Subject != "" {
		b.WriteString("Subject: ")
		b.WriteString(msg.Subject)
		b.WriteString("\n")
	}
	if msg.Sender != "" {
		b.WriteString("From: ")
		b.WriteString(msg.Sender)
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(msg.Body)
	return b.String()
}
