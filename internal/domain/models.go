// Package domain defines the persistence models for conversation messages and
// their audio artifacts. These types are mapped with GORM and form the core
// data layer of the voice assistant.
package domain

import (
	"time"
)

// Roles a message can be authored by.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Input types recorded on user messages.
const (
	InputText  = "text"
	InputVoice = "voice"
	InputImage = "image"
	InputMixed = "mixed"
)

// MessageMeta carries optional per-input details for user messages
// (uploaded image path, per-file descriptions, voice transcript).
type MessageMeta struct {
	ImagePath        string   `json:"image_path,omitempty"`
	FileDescriptions []string `json:"file_descriptions,omitempty"`
	Transcript       string   `json:"transcript,omitempty"`
}

// Message represents one turn of the conversation.
//
// Fields:
//   - ID: internal sequence primary key.
//   - Key: legacy composite key "{role}-{message_id}", kept for tolerant lookups.
//   - MessageID: globally unique identifier handed to clients (UUID).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Content: English text for assistant messages, raw text for user messages.
//   - Translation: Chinese text for assistant messages.
//   - InputType / Meta: how a user message arrived and what came with it.
//   - Segments / Merged: owned audio rows, cascade-deleted with the message.
type Message struct {
	ID          uint         `json:"-"           gorm:"primaryKey"`
	Key         string       `json:"key"         gorm:"type:varchar(255);not null;uniqueIndex"`
	MessageID   string       `json:"message_id"  gorm:"type:varchar(100);not null;uniqueIndex"`
	Role        string       `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content     string       `json:"content"     gorm:"type:text;not null"`
	Translation string       `json:"translation,omitempty" gorm:"type:text"`
	InputType   string       `json:"input_type,omitempty"  gorm:"type:varchar(16)"`
	Meta        *MessageMeta `json:"meta,omitempty"        gorm:"serializer:json"`
	CreatedAt   time.Time    `json:"created_at"  gorm:"index"`
	UpdatedAt   time.Time    `json:"-"`

	Segments []AudioSegment `json:"segments,omitempty"     gorm:"foreignKey:MessageRefID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Merged   *MergedAudio   `json:"merged_audio,omitempty" gorm:"foreignKey:MessageRefID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// AudioSegment is one synthesized chunk of an assistant reply.
// (MessageRefID, SegmentIndex) is unique.
type AudioSegment struct {
	ID           uint      `json:"-"             gorm:"primaryKey"`
	MessageRefID uint      `json:"-"             gorm:"not null;uniqueIndex:ux_segment_message_index,priority:1"`
	SegmentIndex int       `json:"segment_index" gorm:"not null;uniqueIndex:ux_segment_message_index,priority:2"`
	Path         string    `json:"path"          gorm:"type:varchar(512);not null"`
	Text         string    `json:"text,omitempty" gorm:"type:text"`
	SampleRate   int       `json:"sample_rate"   gorm:"not null;default:24000"`
	Duration     *float64  `json:"duration,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

// TableName returns the database table name for AudioSegment.
func (AudioSegment) TableName() string { return "audio_segments" }

// MergedAudio is the single canonical recording of a message.
type MergedAudio struct {
	ID            uint      `json:"-"              gorm:"primaryKey"`
	MessageRefID  uint      `json:"-"              gorm:"not null;uniqueIndex"`
	Path          string    `json:"path"           gorm:"type:varchar(512);not null"`
	SampleRate    int       `json:"sample_rate"    gorm:"not null"`
	Duration      float64   `json:"duration"`
	SegmentsCount int       `json:"segments_count" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"-"`
}

// TableName returns the database table name for MergedAudio.
func (MergedAudio) TableName() string { return "merged_audio" }

// NewKey builds the legacy composite key for a message.
func NewKey(role, messageID string) string { return role + "-" + messageID }
