package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"time"
)

// AssetStatus represents the processing state of an asset.
type AssetStatus string

const (
	AssetStatusIdle      AssetStatus = "idle"
	AssetStatusUploading AssetStatus = "uploading"
	AssetStatusAnalyzing AssetStatus = "analyzing"
	AssetStatusCompleted AssetStatus = "completed"
	AssetStatusError     AssetStatus = "error"
)

// Error messages stored on assets that cannot be processed.
const (
	ErrMsgMissingPreview      = "Missing Preview Image"
	ErrMsgMissingPreviewImage = "Missing Preview Image (JPG/PNG)"
)

// Pending reports whether the status is picked up by a generate-all run.
func (s AssetStatus) Pending() bool {
	return s == AssetStatusIdle || s == AssetStatusError
}

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// FileRef points at an uploaded file held in object storage.
type FileRef struct {
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
	Size       int64  `json:"size"`
	MIMEType   string `json:"mime_type,omitempty"`
}

// Ext returns the lower-cased extension of the file name without the dot.
func (f FileRef) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
}

// Basename returns the file name minus its final extension. Matching on
// basenames is case-sensitive.
func (f FileRef) Basename() string {
	return Basename(f.Name)
}

// Basename strips the final extension from name.
func Basename(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}

// FileKind classifies an uploaded file by extension.
type FileKind int

const (
	FileKindOther FileKind = iota
	FileKindImage
	FileKindVector
)

// KindOf returns the kind of a file name. Extensions compare case-insensitively.
func KindOf(name string) FileKind {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "jpg", "jpeg", "png", "webp":
		return FileKindImage
	case "eps", "ai":
		return FileKindVector
	default:
		return FileKindOther
	}
}

// IsImage reports whether the file is a raster image usable as a preview.
func (f FileRef) IsImage() bool {
	return KindOf(f.Name) == FileKindImage
}

// IsVector reports whether the file is a vector companion.
func (f FileRef) IsVector() bool {
	return KindOf(f.Name) == FileKindVector
}

// Asset is one stock submission: a raster primary file, an optional vector
// companion and the generated metadata.
type Asset struct {
	ID                  string      `gorm:"type:text;primaryKey" json:"id"`
	Primary             FileRef     `gorm:"type:text;serializer:json" json:"primary_file"`
	Vector              *FileRef    `gorm:"type:text;serializer:json" json:"vector_file,omitempty"`
	PreviewURL          string      `gorm:"type:text" json:"preview_url"`
	Status              AssetStatus `gorm:"type:text;index:idx_assets_status;default:idle" json:"status"`
	Metadata            *Metadata   `gorm:"type:text;serializer:json" json:"metadata,omitempty"`
	Error               string      `gorm:"type:text" json:"error,omitempty"`
	TrendingSuggestions StringArray `gorm:"type:text" json:"trending_suggestions,omitempty"`
	Position            int64       `gorm:"index:idx_assets_position" json:"-"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Asset.
func (Asset) TableName() string {
	return "assets"
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	if a.Vector != nil {
		v := *a.Vector
		c.Vector = &v
	}
	c.Metadata = a.Metadata.Clone()
	if a.TrendingSuggestions != nil {
		c.TrendingSuggestions = append(StringArray(nil), a.TrendingSuggestions...)
	}
	return &c
}

// Matches reports whether the primary or companion file has the given basename.
func (a *Asset) Matches(basename string) bool {
	if a.Primary.Basename() == basename {
		return true
	}
	return a.Vector != nil && a.Vector.Basename() == basename
}

// Exportable reports whether the asset goes into an export archive.
func (a *Asset) Exportable() bool {
	return a.Status == AssetStatusCompleted && a.Metadata != nil
}

// StorageKeys returns every blob key held by the asset.
func (a *Asset) StorageKeys() []string {
	keys := make([]string, 0, 2)
	if a.Primary.StorageKey != "" {
		keys = append(keys, a.Primary.StorageKey)
	}
	if a.Vector != nil && a.Vector.StorageKey != "" && a.Vector.StorageKey != a.Primary.StorageKey {
		keys = append(keys, a.Vector.StorageKey)
	}
	return keys
}
