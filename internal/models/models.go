package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ContentKind enumerates the supported display content kinds.
type ContentKind string

const (
	KindImageSingle ContentKind = "image_single"
	KindImageDual   ContentKind = "image_dual"
	KindImageQuad   ContentKind = "image_quad"
	KindVideo       ContentKind = "video"
	KindEmbed       ContentKind = "embed"
	KindText        ContentKind = "text"
)

// Valid reports whether the kind is one of the known content kinds.
func (k ContentKind) Valid() bool {
	switch k {
	case KindImageSingle, KindImageDual, KindImageQuad, KindVideo, KindEmbed, KindText:
		return true
	}
	return false
}

// StringList stores an ordered list of strings as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("string list: unsupported source type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Contains reports whether the list holds value.
func (l StringList) Contains(value string) bool {
	for _, entry := range l {
		if entry == value {
			return true
		}
	}
	return false
}

// ContentItem is a schedulable unit of display content. An item with no
// windows is "immediate": visible whenever active, until overridden.
type ContentItem struct {
	ID            string      `gorm:"type:uuid;primaryKey"`
	Title         string      `gorm:"index"`
	Description   string      `gorm:"type:text"`
	Kind          ContentKind `gorm:"type:varchar(32)"`
	ImageURLs     StringList  `gorm:"type:text"`
	VideoURLs     StringList  `gorm:"type:text"`
	Body          string      `gorm:"type:text"`
	TargetDevices StringList  `gorm:"type:text"`
	Active        bool        `gorm:"index"`
	Immediate     bool        `gorm:"index"`
	Windows       []Window    `gorm:"foreignKey:ContentItemID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Targets reports whether the item targets the given device key.
func (c *ContentItem) Targets(deviceID string) bool {
	return c.TargetDevices.Contains(deviceID)
}

// RecomputeImmediate derives the immediate flag from the window set.
// Immediate is never independently settable.
func (c *ContentItem) RecomputeImmediate() {
	c.Immediate = len(c.Windows) == 0
}

// WindowState classifies a window relative to a point in time.
type WindowState string

const (
	WindowActive   WindowState = "active"
	WindowUpcoming WindowState = "upcoming"
	WindowExpired  WindowState = "expired"
	WindowInactive WindowState = "inactive"
)

// Window is a bounded time interval during which its owning item is
// eligible for display. Windows are terminal once deactivated; a new
// run needs a new window.
type Window struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	ContentItemID string `gorm:"type:uuid;index"`
	StartsAt      time.Time
	EndsAt        time.Time
	Active        bool `gorm:"index"`
	// Items deactivated because this window came into force. They are
	// reactivated when this window expires.
	SuppressedItemIDs StringList `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Classify returns the window state at t. Intervals are open: the
// boundary instants count as neither inside nor past the window.
func (w *Window) Classify(t time.Time) WindowState {
	switch {
	case w.Active && t.After(w.StartsAt) && t.Before(w.EndsAt):
		return WindowActive
	case t.Before(w.StartsAt):
		return WindowUpcoming
	case t.After(w.EndsAt):
		return WindowExpired
	default:
		return WindowInactive
	}
}

// CurrentlyActive reports whether the window admits display at t.
func (w *Window) CurrentlyActive(t time.Time) bool {
	return w.Classify(t) == WindowActive
}

// Expired reports whether t is strictly past the window end.
func (w *Window) Expired(t time.Time) bool {
	return t.After(w.EndsAt)
}

// Upcoming reports whether t is strictly before the window start.
func (w *Window) Upcoming(t time.Time) bool {
	return t.Before(w.StartsAt)
}

// Overlaps reports open-interval overlap with the (start, end) range.
func (w *Window) Overlaps(start, end time.Time) bool {
	return w.StartsAt.Before(end) && w.EndsAt.After(start)
}

// User represents an authenticated dashboard account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      string `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditLog records a dashboard or sweep action for later review.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Action    string         `gorm:"type:varchar(64);index"`
	ActorID   string         `gorm:"type:uuid;index"`
	ItemID    string         `gorm:"type:uuid;index"`
	DeviceID  string         `gorm:"type:varchar(64);index"`
	Detail    map[string]any `gorm:"serializer:json"`
	CreatedAt time.Time
}
