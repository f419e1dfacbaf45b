package access

import (
	"context"
	"log/slog"

	"momento/entity"
	"momento/lib/sl"
)

// Gate admits guest uploads for event codes. Admit and Complete bracket the
// storage write, which happens outside the gate.
type Gate struct {
	validator *Validator
	tracker   *Tracker
	log       *slog.Logger
}

func NewGate(validator *Validator, tracker *Tracker, log *slog.Logger) *Gate {
	return &Gate{
		validator: validator,
		tracker:   tracker,
		log:       log.With(sl.Module("access.gate")),
	}
}

// Admit validates the event code and then the upload limits layered on top of it.
func (g *Gate) Admit(ctx context.Context, code string, file entity.FileMeta) (*entity.UploadTicket, error) {
	snapshot, err := g.validator.Validate(ctx, entity.KindEvent, code)
	if err != nil {
		return nil, err
	}
	if err = CheckFile(snapshot, file); err != nil {
		g.log.With(
			sl.Code(string(entity.KindEvent), snapshot.Code),
			slog.Int64("size", file.Size),
			slog.String("content_type", file.ContentType),
			slog.String("reason", err.Error()),
		).Debug("upload rejected")
		return nil, err
	}
	return &entity.UploadTicket{Code: snapshot, File: file}, nil
}

// CheckFile applies the event's upload limits to a single file.
func CheckFile(code *entity.AccessCode, file entity.FileMeta) error {
	if code.MaxFileSize != nil && file.TooLarge(*code.MaxFileSize) {
		return Rejectf(ReasonFileTooLarge, "%d bytes over %d MB", file.Size, *code.MaxFileSize)
	}
	if !code.AllowsType(file.ContentType) {
		return Rejectf(ReasonInvalidType, "%s", file.ContentType)
	}
	if code.RemainingFiles() == 0 {
		return Reject(ReasonFileLimitReached)
	}
	if code.TableCount > 0 && (file.TableNumber < 1 || file.TableNumber > code.TableCount) {
		return Rejectf(ReasonInvalidTable, "table %d of %d", file.TableNumber, code.TableCount)
	}
	return nil
}

// Complete tracks a stored upload. The file is already kept at this point,
// so a failure here is logged and returned for the caller to report as a
// warning, never as a failed upload.
func (g *Gate) Complete(ctx context.Context, ticket *entity.UploadTicket, in entity.UsageInput) (*entity.UsageRecord, error) {
	in.Action = entity.ActionFileUpload
	if in.FileCount <= 0 {
		in.FileCount = 1
	}
	if in.TableNumber == 0 {
		in.TableNumber = ticket.File.TableNumber
	}
	record, err := g.tracker.Track(ctx, ticket.Code, in)
	if err != nil {
		g.log.With(
			sl.Code(string(entity.KindEvent), ticket.Code.Code),
			slog.String("file_id", in.FileId),
			sl.Topic(entity.TopicUpload),
			sl.Err(err),
		).Error("upload stored but usage not tracked")
		return nil, err
	}
	return record, nil
}
