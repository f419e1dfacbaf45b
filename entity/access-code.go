package entity

import (
	"strings"
	"time"
)

// Kind selects which namespace an access code lives in.
type Kind string

const (
	KindBeta  Kind = "beta"
	KindEvent Kind = "event"
)

func (k Kind) Valid() bool {
	return k == KindBeta || k == KindEvent
}

// AccessCode is a beta or event code gating guest entry. Counters are only
// ever moved by the usage tracker, or zeroed by an explicit admin reset.
type AccessCode struct {
	Id          string     `json:"id" bson:"id"`
	Kind        Kind       `json:"kind" bson:"kind"`
	Code        string     `json:"code" bson:"code"`
	Name        string     `json:"name" bson:"name"`
	Description string     `json:"description,omitempty" bson:"description"`
	IsActive    bool       `json:"is_active" bson:"is_active"`
	MaxUses     *int       `json:"max_uses,omitempty" bson:"max_uses"`
	CurrentUses int        `json:"current_uses" bson:"current_uses"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" bson:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	CreatedBy   string     `json:"created_by" bson:"created_by"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" bson:"last_used_at"`

	// event only
	MaxFiles     *int     `json:"max_files,omitempty" bson:"max_files,omitempty"`
	MaxFileSize  *int     `json:"max_file_size,omitempty" bson:"max_file_size,omitempty"` // megabytes
	AllowedTypes []string `json:"allowed_types,omitempty" bson:"allowed_types,omitempty"`
	TableCount   int      `json:"table_count,omitempty" bson:"table_count,omitempty"`
	CurrentFiles int      `json:"current_files" bson:"current_files"`
}

// NormalizeCode trims and upper-cases a code as typed by a guest.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *AccessCode) Clone() *AccessCode {
	if c == nil {
		return nil
	}
	cp := *c
	cp.MaxUses = clonePtr(c.MaxUses)
	cp.ExpiresAt = clonePtr(c.ExpiresAt)
	cp.LastUsedAt = clonePtr(c.LastUsedAt)
	cp.MaxFiles = clonePtr(c.MaxFiles)
	cp.MaxFileSize = clonePtr(c.MaxFileSize)
	if c.AllowedTypes != nil {
		cp.AllowedTypes = append([]string(nil), c.AllowedTypes...)
	}
	return &cp
}

func (c *AccessCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c *AccessCode) UsesExhausted() bool {
	return c.MaxUses != nil && c.CurrentUses >= *c.MaxUses
}

// RemainingFiles returns -1 when there is no file limit.
func (c *AccessCode) RemainingFiles() int {
	if c.MaxFiles == nil {
		return -1
	}
	left := *c.MaxFiles - c.CurrentFiles
	if left < 0 {
		return 0
	}
	return left
}

// Overshoot reports whether a counter went past its bound.
func (c *AccessCode) Overshoot() bool {
	if c.MaxUses != nil && c.CurrentUses > *c.MaxUses {
		return true
	}
	return c.MaxFiles != nil && c.CurrentFiles > *c.MaxFiles
}

// AllowsType matches a MIME type against AllowedTypes; "image/*" style
// wildcards are accepted and an empty list allows everything.
func (c *AccessCode) AllowsType(contentType string) bool {
	if len(c.AllowedTypes) == 0 {
		return true
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	for _, allowed := range c.AllowedTypes {
		allowed = strings.ToLower(allowed)
		if allowed == contentType || allowed == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(contentType, prefix+"/") {
			return true
		}
	}
	return false
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
