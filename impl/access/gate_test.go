package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momento/entity"
)

func eventCode() *entity.AccessCode {
	return &entity.AccessCode{
		Id:           "ev-1",
		Kind:         entity.KindEvent,
		Code:         "WEDDING",
		IsActive:     true,
		MaxFiles:     intPtr(2),
		MaxFileSize:  intPtr(50),
		AllowedTypes: []string{"image/*", "video/mp4"},
		TableCount:   10,
	}
}

func photo(size int64) entity.FileMeta {
	return entity.FileMeta{Name: "a.jpg", Size: size, ContentType: "image/jpeg", TableNumber: 3}
}

func TestAdmitRejectsLargeFileWithoutTracking(t *testing.T) {
	e := newEnv(t, eventCode())

	_, err := e.gate.Admit(context.Background(), "wedding", photo(60<<20))
	requireReason(t, err, ReasonFileTooLarge)
	assert.Zero(t, e.store.incrementCount())
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name string
		file entity.FileMeta
		edit func(*entity.AccessCode)
		want Reason
	}{
		{name: "ok", file: photo(1 << 20)},
		{name: "exactly at size limit", file: photo(50 << 20)},
		{name: "wrong type", file: entity.FileMeta{Size: 10, ContentType: "application/pdf", TableNumber: 1}, want: ReasonInvalidType},
		{name: "no file slots", file: photo(10), edit: func(c *entity.AccessCode) { c.CurrentFiles = 2 }, want: ReasonFileLimitReached},
		{name: "table out of range", file: entity.FileMeta{Size: 10, ContentType: "video/mp4", TableNumber: 11}, want: ReasonInvalidTable},
		{name: "table zero", file: entity.FileMeta{Size: 10, ContentType: "video/mp4"}, want: ReasonInvalidTable},
		{name: "no table limit", file: entity.FileMeta{Size: 10, ContentType: "video/mp4"}, edit: func(c *entity.AccessCode) { c.TableCount = 0 }},
		{name: "code reason propagates", file: photo(10), edit: func(c *entity.AccessCode) { c.IsActive = false }, want: ReasonInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := eventCode()
			if tt.edit != nil {
				tt.edit(code)
			}
			e := newEnv(t, code)
			ticket, err := e.gate.Admit(context.Background(), "WEDDING", tt.file)
			if tt.want == "" {
				require.NoError(t, err)
				assert.Equal(t, "WEDDING", ticket.Code.Code)
				assert.Equal(t, tt.file, ticket.File)
				return
			}
			requireReason(t, err, tt.want)
		})
	}
}

func TestAdmitOnlyForEventCodes(t *testing.T) {
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindBeta, Code: "WEDDING", IsActive: true})
	_, err := e.gate.Admit(context.Background(), "WEDDING", photo(10))
	requireReason(t, err, ReasonNotFound)
}

func TestCompleteTracksUpload(t *testing.T) {
	e := newEnv(t, eventCode())
	ctx := context.Background()

	ticket, err := e.gate.Admit(ctx, "WEDDING", photo(10))
	require.NoError(t, err)
	record, err := e.gate.Complete(ctx, ticket, entity.UsageInput{FileId: "drive-1"})
	require.NoError(t, err)

	assert.Equal(t, entity.ActionFileUpload, record.Action)
	assert.Equal(t, 1, record.FileCount)
	assert.Equal(t, 3, record.TableNumber)
	assert.Equal(t, "drive-1", record.FileId)

	got, err := e.store.Memory.GetCode(ctx, entity.KindEvent, "WEDDING")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentFiles)
	assert.Equal(t, 1, got.CurrentUses)
}

func TestCompleteReportsStoreFailure(t *testing.T) {
	e := newEnv(t, eventCode())
	ctx := context.Background()

	ticket, err := e.gate.Admit(ctx, "WEDDING", photo(10))
	require.NoError(t, err)
	e.store.incErr = errors.New("unreachable")

	record, err := e.gate.Complete(ctx, ticket, entity.UsageInput{})
	assert.Nil(t, record)
	assert.ErrorIs(t, err, ErrStore)
}
