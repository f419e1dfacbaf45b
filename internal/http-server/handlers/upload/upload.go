package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"momento/entity"
	"momento/impl/access"
	apierr "momento/internal/http-server/handlers/errors"
	"momento/lib/api/request"
	"momento/lib/api/response"
	"momento/lib/sl"
)

// multipart parts before the file must be small
const maxFieldBytes = 1 << 10

type Core interface {
	Upload(ctx context.Context, code string, meta entity.FileMeta, body io.Reader, in entity.UsageInput) (*entity.UploadResult, error)
}

type Options struct {
	MaxUploadMB int
	Timeout     time.Duration
}

// Upload accepts a guest file for an event. The form must carry "code" and
// optionally "table_number" before the "file" part; the file is streamed to
// storage without buffering it in memory.
func Upload(log *slog.Logger, handler Core, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.upload")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if opts.Timeout > 0 {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), opts.Timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		if opts.MaxUploadMB > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, int64(opts.MaxUploadMB)<<20+maxFieldBytes*4)
		}

		reader, err := r.MultipartReader()
		if err != nil {
			badRequest(w, r, "Expected multipart/form-data")
			return
		}

		var (
			code  string
			table int
		)
		for {
			part, err := reader.NextPart()
			if errors.Is(err, io.EOF) {
				badRequest(w, r, "Missing file")
				return
			}
			if err != nil {
				logger.Debug("read multipart", sl.Err(err))
				badRequest(w, r, "Malformed upload")
				return
			}

			switch part.FormName() {
			case "code":
				code, err = readField(part)
			case "table_number":
				var v string
				if v, err = readField(part); err == nil && v != "" {
					table, err = strconv.Atoi(v)
				}
			case "file":
				meta := entity.FileMeta{
					Name:        part.FileName(),
					Size:        declaredSize(r),
					ContentType: part.Header.Get("Content-Type"),
					TableNumber: table,
				}
				serve(w, r, logger, handler, code, meta, part)
				return
			}
			if err != nil {
				badRequest(w, r, fmt.Sprintf("Invalid field %s", part.FormName()))
				return
			}
		}
	}
}

func serve(w http.ResponseWriter, r *http.Request, logger *slog.Logger, handler Core, code string, meta entity.FileMeta, body io.Reader) {
	if code == "" {
		badRequest(w, r, "Missing code")
		return
	}
	if meta.Name == "" {
		badRequest(w, r, "Missing file name")
		return
	}
	logger = logger.With(
		sl.Code(string(entity.KindEvent), entity.NormalizeCode(code)),
		slog.String("file", meta.Name),
		slog.Int64("size", meta.Size),
		slog.String("content_type", meta.ContentType),
		slog.Int("table", meta.TableNumber),
	)

	result, err := handler.Upload(r.Context(), code, meta, body, entity.UsageInput{
		UserAgent: r.UserAgent(),
		IpAddress: request.ClientIP(r),
	})
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			apierr.Rejected(w, r, logger, access.Rejectf(access.ReasonFileTooLarge, "request over %d bytes", tooBig.Limit))
			return
		}
		if _, rejected := access.ReasonOf(err); rejected || errors.Is(err, access.ErrStore) {
			apierr.Rejected(w, r, logger, err)
			return
		}
		logger.Error("upload failed", sl.Topic(entity.TopicUpload), sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("The file could not be saved. Please try again."))
		return
	}
	if result.Warning != "" {
		logger.With(slog.String("file_id", result.FileId)).Warn("upload stored with warning")
	} else {
		logger.With(slog.String("file_id", result.FileId)).Info("upload stored")
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.Ok(result))
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldBytes {
		return "", fmt.Errorf("field too long")
	}
	return strings.TrimSpace(string(b)), nil
}

// declaredSize reads the X-File-Size header. Without it the size is unknown
// (0): the request length also counts the other form parts, and the stream
// is capped at the exact limit in core anyway.
func declaredSize(r *http.Request) int64 {
	if v := r.Header.Get("X-File-Size"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, response.Error(message))
}
