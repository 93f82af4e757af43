package db

import "time"

type TipReceiptModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	ServiceID       []byte    `gorm:"type:bytea;index;not null"`
	BindingValid    bool      `gorm:"not null"`
	RootDigest      []byte    `gorm:"type:bytea;not null"`
	CertifiedDigest []byte    `gorm:"type:bytea;not null"`
	CertificateTime time.Time `gorm:"not null"`
	FactsJSON       []byte    `gorm:"column:facts;type:jsonb"`
	MissingLabels   []byte    `gorm:"column:missing_labels;type:jsonb"`
	Summary         string    `gorm:"not null"`
	PolicyJSON      []byte    `gorm:"column:policy;type:jsonb"`
	VerifiedAt      time.Time `gorm:"index;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (TipReceiptModel) TableName() string {
	return "tip_receipts"
}
