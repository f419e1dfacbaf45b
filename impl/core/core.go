package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"momento/entity"
	"momento/impl/access"
	"momento/internal/database"
	"momento/internal/storage"
	"momento/lib/clock"
	"momento/lib/sl"
)

const (
	generatedCodeLength   = 8
	generatedCodeAttempts = 5
	// no 0/O, 1/I/L
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

var (
	ErrNotFound   = errors.New("code not found")
	ErrCodeExists = errors.New("code already exists")
	ErrInvalid    = errors.New("invalid request")
)

type Database interface {
	access.Store
	ListCodes(ctx context.Context, kind entity.Kind) ([]*entity.AccessCode, error)
	CreateCode(ctx context.Context, record *entity.AccessCode) error
	DeleteCode(ctx context.Context, kind entity.Kind, code string) error
	SetCodeActive(ctx context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error)
	ResetUsage(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error)
	ListUsage(ctx context.Context, kind entity.Kind, code string, limit int) ([]*entity.UsageRecord, error)
}

type AuthService interface {
	UserByToken(ctx context.Context, token string) (*entity.User, error)
}

type Uploader interface {
	Put(ctx context.Context, o storage.Object) (string, error)
}

type Metrics interface {
	access.Metrics
	Upload(result string)
	Retry()
}

type noMetrics struct{}

func (noMetrics) Validation(entity.Kind, string)     {}
func (noMetrics) Tracked(entity.Kind, entity.Action) {}
func (noMetrics) Overshoot(entity.Kind)              {}
func (noMetrics) Upload(string)                      {}
func (noMetrics) Retry()                             {}

type Config struct {
	StoreTimeout time.Duration
	StoreRetries uint
}

type Core struct {
	db        Database
	auth      AuthService
	uploader  Uploader
	validator *access.Validator
	tracker   *access.Tracker
	gate      *access.Gate
	metrics   Metrics
	clock     clock.Clock
	policy    *bluemonday.Policy
	generate  func() string
	conf      Config
	log       *slog.Logger
}

func New(db Database, uploader Uploader, metrics Metrics, clk clock.Clock, conf Config, log *slog.Logger) *Core {
	if db == nil {
		panic("database is nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if metrics == nil {
		metrics = noMetrics{}
	}
	if conf.StoreRetries == 0 {
		conf.StoreRetries = 1
	}
	validator := access.NewValidator(db, clk, metrics, log)
	tracker := access.NewTracker(db, validator, clk, metrics, log)
	return &Core{
		db:        db,
		uploader:  uploader,
		validator: validator,
		tracker:   tracker,
		gate:      access.NewGate(validator, tracker, log),
		metrics:   metrics,
		clock:     clk,
		policy:    bluemonday.StrictPolicy(),
		generate:  GenerateCode,
		conf:      conf,
		log:       log.With(sl.Module("core")),
	}
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) AuthenticateByToken(ctx context.Context, token string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	return c.auth.UserByToken(ctx, token)
}

// ValidateCode is the read-only pre-flight check used by the entry pages.
func (c *Core) ValidateCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	return retry(ctx, c, func(ctx context.Context) (*entity.AccessCode, error) {
		return c.validator.Validate(ctx, kind, code)
	})
}

// ConsumeCode takes one use of a beta or event code for guest entry.
// It is not retried: a failed attempt may already have been counted.
func (c *Core) ConsumeCode(ctx context.Context, kind entity.Kind, code string, in entity.UsageInput) (*entity.UsageRecord, error) {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	in.Action = kind.AccessAction()
	return c.tracker.Consume(ctx, kind, code, in)
}

// Upload admits a file against an event code, stores it and then tracks the
// usage. Tracking failures after a successful store are reported as a warning
// on the result, never as an error.
func (c *Core) Upload(ctx context.Context, code string, meta entity.FileMeta, body io.Reader, in entity.UsageInput) (*entity.UploadResult, error) {
	if c.uploader == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	ticket, err := retry(ctx, c, func(ctx context.Context) (*entity.UploadTicket, error) {
		return c.gate.Admit(ctx, code, meta)
	})
	if err != nil {
		if reason, ok := access.ReasonOf(err); ok {
			c.metrics.Upload(string(reason))
		}
		return nil, err
	}

	capped := capBody(body, ticket.Code.MaxFileSize)
	fileId, err := c.uploader.Put(ctx, storage.Object{
		EventCode:   ticket.Code.Code,
		TableNumber: meta.TableNumber,
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Body:        capped,
	})
	if err != nil {
		if capped.exceeded {
			c.metrics.Upload(string(access.ReasonFileTooLarge))
			return nil, access.Rejectf(access.ReasonFileTooLarge, "stream over %d MB", *ticket.Code.MaxFileSize)
		}
		c.metrics.Upload("storage_error")
		return nil, fmt.Errorf("store file: %w", err)
	}
	c.metrics.Upload("stored")

	result := &entity.UploadResult{FileId: fileId, Code: ticket.Code.Code}

	// the file is kept even if the request is gone by now
	trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout())
	defer cancel()
	in.FileId = fileId
	record, err := c.gate.Complete(trackCtx, ticket, in)
	if err != nil {
		result.Warning = "Upload saved, usage statistics may be delayed."
		return result, nil
	}
	result.UsageId = record.Id
	return result, nil
}

// cappedBody fails the read once more than max bytes have gone through, for
// clients that declared a smaller size than they send.
type cappedBody struct {
	r        io.Reader
	max      int64
	read     int64
	exceeded bool
}

func capBody(r io.Reader, maxMB *int) *cappedBody {
	c := &cappedBody{r: r, max: -1}
	if maxMB != nil {
		c.max = int64(*maxMB) << 20
	}
	return c
}

func (c *cappedBody) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.max >= 0 && c.read > c.max {
		c.exceeded = true
		return n, errors.New("file exceeds size limit")
	}
	return n, err
}

func (c *Core) CreateCode(ctx context.Context, kind entity.Kind, req *entity.CreateCodeRequest, createdBy string) (*entity.AccessCode, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, kind)
	}
	now := c.clock.Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expires_at is in the past", ErrInvalid)
	}

	record := &entity.AccessCode{
		Id:          uuid.NewString(),
		Kind:        kind,
		Code:        entity.NormalizeCode(req.Code),
		Name:        c.clean(req.Name),
		Description: c.clean(req.Description),
		IsActive:    true,
		MaxUses:     req.MaxUses,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		CreatedBy:   createdBy,
	}
	if req.IsActive != nil {
		record.IsActive = *req.IsActive
	}
	if record.Name == "" {
		return nil, fmt.Errorf("%w: name is empty after sanitizing", ErrInvalid)
	}
	if kind == entity.KindEvent {
		record.MaxFiles = req.MaxFiles
		record.MaxFileSize = req.MaxFileSize
		record.AllowedTypes = req.AllowedTypes
		record.TableCount = req.TableCount
	}
	generated := record.Code == ""
	attempts := 1
	if generated {
		attempts = generatedCodeAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if generated {
			record.Code = c.generate()
		}
		err = c.withStore(ctx, func(ctx context.Context) error {
			return c.db.CreateCode(ctx, record)
		})
		if !errors.Is(err, database.ErrDuplicate) {
			break
		}
	}
	if errors.Is(err, database.ErrDuplicate) {
		return nil, ErrCodeExists
	}
	if err != nil {
		return nil, err
	}
	c.log.With(
		sl.Code(string(kind), record.Code),
		slog.String("created_by", createdBy),
	).Info("code created")
	return record, nil
}

func (c *Core) ListCodes(ctx context.Context, kind entity.Kind) ([]*entity.AccessCode, error) {
	return retry(ctx, c, func(ctx context.Context) ([]*entity.AccessCode, error) {
		return c.db.ListCodes(ctx, kind)
	})
}

func (c *Core) GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	return c.codeOp(ctx, func(ctx context.Context) (*entity.AccessCode, error) {
		return c.db.GetCode(ctx, kind, entity.NormalizeCode(code))
	})
}

func (c *Core) SetCodeActive(ctx context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error) {
	record, err := c.codeOp(ctx, func(ctx context.Context) (*entity.AccessCode, error) {
		return c.db.SetCodeActive(ctx, kind, entity.NormalizeCode(code), active)
	})
	if err == nil {
		c.log.With(sl.Code(string(kind), record.Code), slog.Bool("active", active)).Info("code toggled")
	}
	return record, err
}

// ResetUsage zeroes the counters; usage records stay for audit.
func (c *Core) ResetUsage(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	record, err := c.codeOp(ctx, func(ctx context.Context) (*entity.AccessCode, error) {
		return c.db.ResetUsage(ctx, kind, entity.NormalizeCode(code))
	})
	if err == nil {
		c.log.With(sl.Code(string(kind), record.Code), sl.Topic(entity.TopicUsage)).Warn("usage counters reset")
	}
	return record, err
}

func (c *Core) DeleteCode(ctx context.Context, kind entity.Kind, code string) error {
	code = entity.NormalizeCode(code)
	err := c.withStore(ctx, func(ctx context.Context) error {
		return c.db.DeleteCode(ctx, kind, code)
	})
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		c.log.With(sl.Code(string(kind), code)).Info("code deleted")
	}
	return err
}

// ListUsage returns the newest records first. It lists by code string, so
// records left by a deleted code of the same name are included; CodeStats
// counts only the current code's own records.
func (c *Core) ListUsage(ctx context.Context, kind entity.Kind, code string, limit int) ([]*entity.UsageRecord, error) {
	return retry(ctx, c, func(ctx context.Context) ([]*entity.UsageRecord, error) {
		return c.db.ListUsage(ctx, kind, entity.NormalizeCode(code), limit)
	})
}

func (c *Core) CodeStats(ctx context.Context, kind entity.Kind, code string) (*entity.UsageStats, error) {
	record, err := c.GetCode(ctx, kind, code)
	if err != nil {
		return nil, err
	}
	records, err := c.ListUsage(ctx, kind, record.Code, 0)
	if err != nil {
		return nil, err
	}
	return Summarize(record, records), nil
}

// Summarize aggregates usage records; records must be newest first. Records
// of an earlier code with the same name (other code_id) are skipped.
func Summarize(record *entity.AccessCode, records []*entity.UsageRecord) *entity.UsageStats {
	if record.Id != "" {
		own := make([]*entity.UsageRecord, 0, len(records))
		for _, r := range records {
			if r.CodeId == record.Id {
				own = append(own, r)
			}
		}
		records = own
	}
	stats := &entity.UsageStats{
		Kind:         record.Kind,
		Code:         record.Code,
		CurrentUses:  record.CurrentUses,
		CurrentFiles: record.CurrentFiles,
		Records:      len(records),
		ByAction:     make(map[entity.Action]int),
	}
	ips := make(map[string]struct{})
	for _, r := range records {
		stats.ByAction[r.Action]++
		if r.Action == entity.ActionFileUpload {
			stats.Files += r.FileCount
		}
		if r.IpAddress != "" {
			ips[r.IpAddress] = struct{}{}
		}
		if r.Overshoot {
			stats.Overshoots++
		}
	}
	stats.UniqueIps = len(ips)
	if len(records) > 0 {
		last := records[0].UsedAt
		first := records[len(records)-1].UsedAt
		stats.LastUsedAt = &last
		stats.FirstUsedAt = &first
	}
	return stats
}

// GenerateCode returns a random code for admins who leave it blank.
func GenerateCode() string {
	out := make([]byte, generatedCodeLength)
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out)
}

func (c *Core) clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(c.policy.Sanitize(s)))
}

func (c *Core) codeOp(ctx context.Context, op func(ctx context.Context) (*entity.AccessCode, error)) (*entity.AccessCode, error) {
	record, err := retry(ctx, c, func(ctx context.Context) (*entity.AccessCode, error) {
		record, err := op(ctx)
		if errors.Is(err, database.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return record, err
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return record, err
}

func (c *Core) withStore(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := retry(ctx, c, func(ctx context.Context) (struct{}, error) {
		err := op(ctx)
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrDuplicate) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	})
	return err
}

func (c *Core) storeTimeout() time.Duration {
	if c.conf.StoreTimeout <= 0 {
		return 5 * time.Second
	}
	return c.conf.StoreTimeout
}

func (c *Core) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.storeTimeout())
}
