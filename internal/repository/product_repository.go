package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/storefront-api/internal/model"
)

// ProductRepo provides CRUD and catalog queries over the products table.
type ProductRepo struct{ db *sql.DB }

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// ProductQuery defines catalog filters.  Zero values disable a filter.
type ProductQuery struct {
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

// Catalog sort keys.
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
)

var productOrder = map[string]string{
	SortPriceAsc:  "price ASC, id ASC",
	SortPriceDesc: "price DESC, id ASC",
	SortNameAsc:   "name ASC, id ASC",
	SortNameDesc:  "name DESC, id ASC",
}

// ProductUpdate carries a partial update.  Nil fields are left unchanged.
type ProductUpdate struct {
	Name        *string
	Description *string
	Category    *string
	Subcategory *string
	Price       *decimal.Decimal
	Stock       *int
	Image       *string
}

const productColumns = "id,name,description,category,subcategory,price,stock,image,created_at,updated_at"

func scanProduct(row interface{ Scan(...any) error }) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Subcategory, &p.Price, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProductRepo) queryProducts(ctx context.Context, q string, args ...any) ([]model.Product, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a product and returns its ID.
func (r *ProductRepo) Create(ctx context.Context, p model.Product) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO products (name, description, category, subcategory, price, stock, image)
		 VALUES (?,?,?,?,?,?,?)`,
		p.Name, p.Description, p.Category, p.Subcategory, p.Price, p.Stock, p.Image)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a single product.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (model.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrProductNotFound
	}
	return p, err
}

// GetByIDs fetches several products at once keyed by ID.  Missing IDs are
// simply absent from the map.
func (r *ProductRepo) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
	out := make(map[uint64]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	list, err := r.queryProducts(ctx,
		"SELECT "+productColumns+" FROM products WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// likeEscaper makes LIKE wildcards in search text match literally.  '!' is
// the escape character so the pattern does not depend on the server's
// backslash handling.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// List returns the catalog filtered and sorted by q.  Search matches name,
// description and category; category matches exactly, ignoring case.
func (r *ProductRepo) List(ctx context.Context, q ProductQuery) ([]model.Product, error) {
	where := []string{}
	args := []any{}

	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		where = append(where, "(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!' OR LOWER(category) LIKE ? ESCAPE '!')")
		args = append(args, like, like, like)
	}
	if c := strings.TrimSpace(q.Category); c != "" {
		where = append(where, "LOWER(category) = ?")
		args = append(args, strings.ToLower(c))
	}
	if q.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *q.MaxPrice)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	order, ok := productOrder[q.Sort]
	if !ok {
		order = "id ASC"
	}
	return r.queryProducts(ctx,
		"SELECT "+productColumns+" FROM products WHERE "+cond+" ORDER BY "+order, args...)
}

// Categories lists the distinct non-empty categories alphabetically.
func (r *ProductRepo) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update applies a partial update and returns the stored row.
func (r *ProductRepo) Update(ctx context.Context, id uint64, in ProductUpdate) (model.Product, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if in.Name != nil {
		add("name", strings.TrimSpace(*in.Name))
	}
	if in.Description != nil {
		add("description", *in.Description)
	}
	if in.Category != nil {
		add("category", strings.TrimSpace(*in.Category))
	}
	if in.Subcategory != nil {
		add("subcategory", *in.Subcategory)
	}
	if in.Price != nil {
		add("price", *in.Price)
	}
	if in.Stock != nil {
		add("stock", *in.Stock)
	}
	if in.Image != nil {
		add("image", *in.Image)
	}

	if len(sets) > 0 {
		args = append(args, id)
		if _, err := r.db.ExecContext(ctx,
			"UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id=?", args...); err != nil {
			return model.Product{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a product.  Products referenced by orders yield
// ErrConflict.
func (r *ProductRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id=?", id)
	if err != nil {
		if mysqlErrno(err) == errRowIsReferenced {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}
