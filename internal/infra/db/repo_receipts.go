package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"veritip/internal/domain"
	"veritip/internal/usecase"

	"gorm.io/gorm"
)

type TipReceiptRepository struct {
	db *gorm.DB
}

func NewTipReceiptRepository(db *gorm.DB) *TipReceiptRepository {
	return &TipReceiptRepository{db: db}
}

func (r *TipReceiptRepository) Save(ctx context.Context, receipt domain.TipReceipt) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	id := receipt.ID
	if id == "" {
		generated, err := newUUID()
		if err != nil {
			return "", err
		}
		id = generated
	}
	if receipt.VerifiedAt.IsZero() {
		receipt.VerifiedAt = time.Now().UTC()
	}

	model, err := tipReceiptModelFromDomain(id, receipt)
	if err != nil {
		return "", err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", err
	}
	return id, nil
}

func (r *TipReceiptRepository) GetByID(ctx context.Context, id string) (*domain.TipReceipt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TipReceiptModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tipReceiptToDomain(model)
}

func (r *TipReceiptRepository) ListRecent(ctx context.Context, limit int) ([]domain.TipReceipt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	var models []TipReceiptModel
	if err := r.db.WithContext(ctx).
		Order("verified_at desc").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TipReceipt, 0, len(models))
	for _, model := range models {
		receipt, err := tipReceiptToDomain(model)
		if err != nil {
			return nil, err
		}
		out = append(out, *receipt)
	}
	return out, nil
}

func tipReceiptModelFromDomain(id string, receipt domain.TipReceipt) (TipReceiptModel, error) {
	model := TipReceiptModel{
		ID:              id,
		ServiceID:       copyBytes(receipt.ServiceID),
		BindingValid:    receipt.BindingValid,
		RootDigest:      copyBytes(receipt.RootDigest),
		CertifiedDigest: copyBytes(receipt.CertifiedDigest),
		CertificateTime: receipt.CertificateTime.UTC().Truncate(time.Microsecond),
		Summary:         receipt.Summary,
		VerifiedAt:      receipt.VerifiedAt.UTC().Truncate(time.Microsecond),
		CreatedAt:       time.Now().UTC(),
	}
	if len(receipt.Facts) > 0 {
		facts, err := json.Marshal(receipt.Facts)
		if err != nil {
			return TipReceiptModel{}, err
		}
		model.FactsJSON = facts
	}
	if len(receipt.MissingLabels) > 0 {
		missing, err := json.Marshal(receipt.MissingLabels)
		if err != nil {
			return TipReceiptModel{}, err
		}
		model.MissingLabels = missing
	}
	if len(receipt.Policy) > 0 {
		policy, err := json.Marshal(receipt.Policy)
		if err != nil {
			return TipReceiptModel{}, err
		}
		model.PolicyJSON = policy
	}
	return model, nil
}

func tipReceiptToDomain(model TipReceiptModel) (*domain.TipReceipt, error) {
	receipt := domain.TipReceipt{
		ID:              model.ID,
		ServiceID:       copyBytes(model.ServiceID),
		BindingValid:    model.BindingValid,
		RootDigest:      copyBytes(model.RootDigest),
		CertifiedDigest: copyBytes(model.CertifiedDigest),
		CertificateTime: model.CertificateTime.UTC(),
		Summary:         model.Summary,
		VerifiedAt:      model.VerifiedAt.UTC(),
	}
	if len(model.FactsJSON) > 0 {
		if err := json.Unmarshal(model.FactsJSON, &receipt.Facts); err != nil {
			return nil, err
		}
	}
	if len(model.MissingLabels) > 0 {
		if err := json.Unmarshal(model.MissingLabels, &receipt.MissingLabels); err != nil {
			return nil, err
		}
	}
	if len(model.PolicyJSON) > 0 {
		if err := json.Unmarshal(model.PolicyJSON, &receipt.Policy); err != nil {
			return nil, err
		}
	}
	return &receipt, nil
}

var _ usecase.ReceiptRepository = (*TipReceiptRepository)(nil)
