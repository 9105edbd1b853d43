package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Signature struct {
	ID                string  `json:"id" gorm:"primaryKey;size:36"`
	Name              string  `json:"name" gorm:"not null"`
	Email             string  `json:"email" gorm:"uniqueIndex;not null"`
	JobTitle          *string `json:"job_title"`
	Affiliation       *string `json:"affiliation"`
	VerificationToken string  `json:"-" gorm:"uniqueIndex;size:64;not null"`
	Verified          bool    `json:"verified" gorm:"not null;default:false;index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate assigns the row id and the verification token. Both are
// generated here so a caller can never pick its own token.
func (s *Signature) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.VerificationToken = uuid.NewString()
	s.Verified = false
	return nil
}

// Signatory is the public projection of a verified signature.
type Signatory struct {
	Name        string  `json:"name"`
	JobTitle    *string `json:"job_title,omitempty"`
	Affiliation *string `json:"affiliation,omitempty"`
}
