package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/motta-superate/grades-api/internal/models"
)

// PromotionRepository manages persistence for promotions.
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs a PromotionRepository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// List returns promotions matching the provided filters.
func (r *PromotionRepository) List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	base := "FROM promotions WHERE 1=1"
	var args []interface{}

	if filter.Turn != nil {
		base += fmt.Sprintf(" AND turn = $%d", len(args)+1)
		args = append(args, *filter.Turn)
	}
	if filter.Year != nil {
		base += fmt.Sprintf(" AND graduation_year = $%d", len(args)+1)
		args = append(args, *filter.Year)
	}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND LOWER(name) LIKE $%d", len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "graduation_year": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "graduation_year"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, name, turn, graduation_year, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var promotions []models.Promotion
	if err := r.db.SelectContext(ctx, &promotions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count promotions: %w", err)
	}
	return promotions, total, nil
}

// FindByID fetches a promotion by ID.
func (r *PromotionRepository) FindByID(ctx context.Context, id string) (*models.Promotion, error) {
	const query = `SELECT id, name, turn, graduation_year, created_at, updated_at FROM promotions WHERE id = $1 LIMIT 1`
	var promotion models.Promotion
	if err := r.db.GetContext(ctx, &promotion, query, id); err != nil {
		return nil, err
	}
	return &promotion, nil
}

// Create inserts a new promotion.
func (r *PromotionRepository) Create(ctx context.Context, promotion *models.Promotion) error {
	if promotion.ID == "" {
		promotion.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if promotion.CreatedAt.IsZero() {
		promotion.CreatedAt = now
	}
	promotion.UpdatedAt = now
	const query = `INSERT INTO promotions (id, name, turn, graduation_year, created_at, updated_at) VALUES (:id, :name, :turn, :graduation_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, promotion); err != nil {
		return fmt.Errorf("create promotion: %w", err)
	}
	return nil
}

// Update modifies an existing promotion.
func (r *PromotionRepository) Update(ctx context.Context, promotion *models.Promotion) error {
	promotion.UpdatedAt = time.Now().UTC()
	const query = `UPDATE promotions SET name = :name, turn = :turn, graduation_year = :graduation_year, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, promotion); err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	return nil
}

// Delete removes the promotion row.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM promotions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	return nil
}

// DetachFromSubjects removes the promotion from every subject's promotion
// set. Part of the promotion delete cascade.
func (r *PromotionRepository) DetachFromSubjects(ctx context.Context, promotionID string) error {
	const query = `DELETE FROM subject_promotions WHERE promotion_id = $1`
	if _, err := r.db.ExecContext(ctx, query, promotionID); err != nil {
		return fmt.Errorf("detach promotion from subjects: %w", err)
	}
	return nil
}
