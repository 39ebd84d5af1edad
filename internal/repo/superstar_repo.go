// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Superstar
// profile model.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// GetSuperstar fetches a superstar profile by id, or ErrNotFound.
func GetSuperstar(ctx context.Context, db *gorm.DB, id uint) (*domain.Superstar, error) {
	var s domain.Superstar
	if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSuperstars fetches the profiles for the given ids in one query.
// Missing ids are silently absent from the result.
func GetSuperstars(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Superstar, error) {
	out := make(map[uint]domain.Superstar, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Superstar
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, s := range rows {
		out[s.ID] = s
	}
	return out, nil
}

// CountSuperstars returns the total number of superstar profiles.
func CountSuperstars(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Superstar{}).Count(&total).Error
	return total, err
}

// ListSuperstarsPage returns a page of superstar profiles ordered by handle.
func ListSuperstarsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Superstar, error) {
	var out []domain.Superstar
	err := db.WithContext(ctx).
		Order("handle ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
