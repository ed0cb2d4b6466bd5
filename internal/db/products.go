package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/filter"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = model.ErrNotFound

// ErrDuplicateSKU is returned when a write would give two products the same SKU.
var ErrDuplicateSKU = errors.New("duplicate sku")

// scanner abstracts *sql.Row and *sql.Rows for scanning a single row.
type scanner interface {
	Scan(dest ...any) error
}

// querier abstracts *sql.DB and *sql.Tx for running queries.
type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Relation types stored in product_relations.
const (
	relationUpsell    = "upsell"
	relationCrossSell = "cross_sell"
)

// productColumns is the column list shared by every product SELECT. The order
// must match scanProductFrom.
const productColumns = `p.id, p.parent_id, p.type, p.name, p.slug, p.status, p.featured,
	p.catalog_visibility, p.description, p.short_description, p.sku,
	p.price, p.regular_price, p.sale_price, p.sale_from, p.sale_to,
	p.tax_status, p.tax_class, p.manage_stock, p.stock_quantity, p.stock_status,
	p.backorders, p.low_stock_amount, p.sold_individually,
	p.weight, p.length, p.width, p.height, p.shipping_class_id, p.image_id,
	p.is_virtual, p.downloadable, p.reviews_allowed, p.purchase_note,
	p.menu_order, p.total_sales, p.default_attributes, p.created_at, p.updated_at`

// ListOptions holds filtering and pagination options for ListProducts.
type ListOptions struct {
	ParentID  *int64 // only children of this product
	RootsOnly bool   // only products with no parent
	Search    string // substring match on name or sku
	Limit     int
	Offset    int
}

// CreateProduct inserts a product with its terms, attributes, gallery,
// relations and metadata in one transaction, records an activity entry, and
// returns the new ID. A non-zero p.ID requests that exact identifier; the
// insert fails if it is taken.
func CreateProduct(db *sql.DB, p *model.Product, actor model.Actor) (int64, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var id int64
	err := withTx(db, func(tx *sql.Tx) error {
		if p.ID > 0 {
			inserted, err := InsertProductWithID(tx, p)
			if err != nil {
				return err
			}
			if !inserted {
				return fmt.Errorf("product id %d: %w", p.ID, model.ErrConflict)
			}
			id = p.ID
		} else {
			cols, vals := productValues(p)
			res, err := tx.Exec(
				fmt.Sprintf(`INSERT INTO products (%s) VALUES (%s)`, strings.Join(cols, ", "), makePlaceholders(len(cols))),
				vals...,
			)
			if err != nil {
				return wrapWriteErr("inserting product", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("getting last insert id: %w", err)
			}
		}

		if err := writeProductChildren(tx, id, p); err != nil {
			return err
		}
		return RecordActivity(tx, id, model.ActionImported, p.Name, actor)
	})
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// InsertProductWithID inserts the product row with a specific ID (not
// auto-increment), skipping if the ID already exists. Returns true if the row
// was inserted. Must be called within an existing transaction.
func InsertProductWithID(tx *sql.Tx, p *model.Product) (bool, error) {
	cols, vals := productValues(p)
	cols = append([]string{"id"}, cols...)
	vals = append([]any{p.ID}, vals...)

	res, err := tx.Exec(
		fmt.Sprintf(`INSERT OR IGNORE INTO products (%s) VALUES (%s)`, strings.Join(cols, ", "), makePlaceholders(len(cols))),
		vals...,
	)
	if err != nil {
		return false, wrapWriteErr(fmt.Sprintf("inserting product with id %d", p.ID), err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateProduct overwrites an existing product and replaces its terms,
// attributes, gallery, relations and metadata.
func UpdateProduct(db *sql.DB, p *model.Product, actor model.Actor) error {
	if p.ID <= 0 {
		return fmt.Errorf("updating product: missing id")
	}

	p.UpdatedAt = time.Now().UTC()
	cols, vals := productValues(p)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(vals)+1)
	for i, c := range cols {
		if c == "created_at" {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, vals[i])
	}
	args = append(args, p.ID)

	return withTx(db, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			fmt.Sprintf(`UPDATE products SET %s WHERE id = ?`, strings.Join(sets, ", ")),
			args...,
		)
		if err != nil {
			return wrapWriteErr("updating product", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if err := writeProductChildren(tx, p.ID, p); err != nil {
			return err
		}
		return RecordActivity(tx, p.ID, model.ActionUpdated, p.Name, actor)
	})
}

// GetProduct retrieves a product by ID with all of its associations loaded.
func GetProduct(db *sql.DB, id int64) (*model.Product, error) {
	row := db.QueryRow(`SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id)
	p, err := scanProductFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning product: %w", err)
	}
	if err := hydrateProduct(db, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProductIDBySKU returns the ID of the product carrying sku.
func GetProductIDBySKU(db *sql.DB, sku string) (int64, error) {
	if strings.TrimSpace(sku) == "" {
		return 0, ErrNotFound
	}
	var id int64
	err := db.QueryRow(`SELECT id FROM products WHERE sku = ?`, sku).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("querying product by sku: %w", err)
	}
	return id, nil
}

// ProductExists checks whether a product with the given ID exists.
func ProductExists(db *sql.DB, id int64) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking product existence: %w", err)
	}
	return exists, nil
}

// GetChildIDs returns the IDs of a product's variations in menu order.
func GetChildIDs(db *sql.DB, parentID int64) ([]int64, error) {
	return queryIDs(db,
		`SELECT id FROM products WHERE parent_id = ? ORDER BY menu_order ASC, id ASC`,
		parentID,
	)
}

// QueryProductIDs returns the IDs of top-level products matching q, newest
// first. Variations are never matched on their own.
func QueryProductIDs(db *sql.DB, q filter.Query) ([]int64, error) {
	whereSQL, args := buildProductWhere(q)
	return queryIDs(db,
		fmt.Sprintf(`SELECT p.id FROM products p %s ORDER BY p.created_at DESC, p.id DESC`, whereSQL),
		args...,
	)
}

// CountProductsMatching returns the number of top-level products matching q.
func CountProductsMatching(db *sql.DB, q filter.Query) (int, error) {
	whereSQL, args := buildProductWhere(q)
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM products p `+whereSQL, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

func buildProductWhere(q filter.Query) (string, []any) {
	var (
		whereClauses = []string{"p.parent_id IS NULL"}
		args         []any
	)

	if len(q.Statuses) > 0 {
		whereClauses = append(whereClauses, fmt.Sprintf("p.status IN (%s)", makePlaceholders(len(q.Statuses))))
		for _, s := range q.Statuses {
			args = append(args, string(s))
		}
	}

	if len(q.Types) > 0 {
		clause := fmt.Sprintf("p.type IN (%s)", makePlaceholders(len(q.Types)))
		for _, t := range q.Types {
			args = append(args, string(t))
		}
		if q.MatchUntyped {
			clause = fmt.Sprintf("(%s OR p.type IS NULL OR p.type = '')", clause)
		}
		whereClauses = append(whereClauses, clause)
	}

	if len(q.StockStatuses) > 0 {
		whereClauses = append(whereClauses, fmt.Sprintf("p.stock_status IN (%s)", makePlaceholders(len(q.StockStatuses))))
		for _, s := range q.StockStatuses {
			args = append(args, string(s))
		}
	}

	for _, tax := range []struct {
		taxonomy string
		refs     []string
	}{
		{model.TaxonomyCategory, q.Categories},
		{model.TaxonomyTag, q.Tags},
		{model.TaxonomyShippingClass, q.ShippingClasses},
	} {
		if len(tax.refs) == 0 {
			continue
		}
		var ids []any
		var slugs []any
		for _, ref := range tax.refs {
			if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
				ids = append(ids, id)
			} else {
				slugs = append(slugs, ref)
			}
		}
		var match []string
		if len(ids) > 0 {
			match = append(match, fmt.Sprintf("t.id IN (%s)", makePlaceholders(len(ids))))
		}
		if len(slugs) > 0 {
			match = append(match, fmt.Sprintf("t.slug IN (%s)", makePlaceholders(len(slugs))))
		}
		whereClauses = append(whereClauses, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM product_terms pt JOIN terms t ON t.id = pt.term_id
			 WHERE pt.product_id = p.id AND t.taxonomy = ? AND (%s))`,
			strings.Join(match, " OR "),
		))
		args = append(args, tax.taxonomy)
		args = append(args, ids...)
		args = append(args, slugs...)
	}

	if q.DateFrom != nil {
		whereClauses = append(whereClauses, "p.created_at >= ?")
		args = append(args, q.DateFrom.UTC().Format(time.RFC3339))
	}
	if q.DateTo != nil {
		whereClauses = append(whereClauses, "p.created_at <= ?")
		args = append(args, q.DateTo.UTC().Format(time.RFC3339))
	}

	return "WHERE " + strings.Join(whereClauses, " AND "), args
}

// ListProducts retrieves products matching opts, ordered by ID. It returns
// the products, the total count of matching rows (ignoring Limit/Offset), and
// an error. Associations are not loaded.
func ListProducts(db *sql.DB, opts ListOptions) ([]*model.Product, int, error) {
	var (
		whereClauses []string
		args         []any
	)

	if opts.ParentID != nil {
		whereClauses = append(whereClauses, "p.parent_id = ?")
		args = append(args, *opts.ParentID)
	}
	if opts.RootsOnly {
		whereClauses = append(whereClauses, "p.parent_id IS NULL")
	}
	if opts.Search != "" {
		whereClauses = append(whereClauses, "(p.name LIKE ? OR p.sku LIKE ?)")
		like := "%" + opts.Search + "%"
		args = append(args, like, like)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM products p `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products p %s ORDER BY p.id ASC`, productColumns, whereSQL)
	mainArgs := append([]any(nil), args...)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		mainArgs = append(mainArgs, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		mainArgs = append(mainArgs, opts.Offset)
	}

	rows, err := db.Query(query, mainArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		p, err := scanProductFrom(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating product rows: %w", err)
	}

	return products, total, nil
}

// CountProducts returns the total number of products, variations included.
func CountProducts(db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return count, nil
}

// DeleteProduct removes a product. Variations and associations go with it
// through ON DELETE CASCADE.
func DeleteProduct(db *sql.DB, id int64) error {
	res, err := db.Exec(`DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

// productValues returns the writable product columns and their bound values,
// created_at included and id excluded.
func productValues(p *model.Product) ([]string, []any) {
	defaults, _ := json.Marshal(p.DefaultAttributes)
	if p.DefaultAttributes == nil {
		defaults = []byte("{}")
	}

	var productType any
	if p.Type != "" {
		productType = string(p.Type)
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	cols := []string{
		"parent_id", "type", "name", "slug", "status", "featured",
		"catalog_visibility", "description", "short_description", "sku",
		"price", "regular_price", "sale_price", "sale_from", "sale_to",
		"tax_status", "tax_class", "manage_stock", "stock_quantity", "stock_status",
		"backorders", "low_stock_amount", "sold_individually",
		"weight", "length", "width", "height", "shipping_class_id", "image_id",
		"is_virtual", "downloadable", "reviews_allowed", "purchase_note",
		"menu_order", "total_sales", "default_attributes", "created_at", "updated_at",
	}
	vals := []any{
		nilIfZero(p.ParentID), productType, p.Name, p.Slug, string(p.Status), p.Featured,
		p.CatalogVisibility, p.Description, p.ShortDescription, strings.TrimSpace(p.SKU),
		string(p.Price), string(p.RegularPrice), string(p.SalePrice), p.SaleFrom, p.SaleTo,
		p.TaxStatus, p.TaxClass, p.ManageStock, nullInt(p.StockQuantity), string(p.StockStatus),
		p.Backorders, nullInt(p.LowStockAmount), p.SoldIndividually,
		string(p.Weight), string(p.Length), string(p.Width), string(p.Height), p.ShippingClassID, p.ImageID,
		p.Virtual, p.Downloadable, p.ReviewsAllowed, p.PurchaseNote,
		p.MenuOrder, p.TotalSales, string(defaults),
		created.UTC().Format(time.RFC3339), p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	return cols, vals
}

// writeProductChildren replaces every association row of a product.
func writeProductChildren(tx *sql.Tx, id int64, p *model.Product) error {
	for _, table := range []string{"product_relations", "product_terms", "product_attributes", "product_gallery", "product_meta"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE product_id = ?", id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for relType, ids := range map[string][]int64{relationUpsell: p.UpsellIDs, relationCrossSell: p.CrossSellIDs} {
		for i, rid := range ids {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO product_relations (product_id, related_id, relation_type, position) VALUES (?, ?, ?, ?)`,
				id, rid, relType, i,
			); err != nil {
				return fmt.Errorf("linking %s %d: %w", relType, rid, err)
			}
		}
	}

	for _, ids := range p.TermIDs {
		for i, tid := range ids {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO product_terms (product_id, term_id, position) VALUES (?, ?, ?)`,
				id, tid, i,
			); err != nil {
				return fmt.Errorf("linking term %d: %w", tid, err)
			}
		}
	}

	for _, a := range p.Attributes {
		opts := a.Options
		if opts == nil {
			opts = []string{}
		}
		encoded, err := json.Marshal(opts)
		if err != nil {
			return fmt.Errorf("encoding attribute %q options: %w", a.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO product_attributes (product_id, name, is_taxonomy, options, position, visible, variation)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, a.Name, a.IsTaxonomy, string(encoded), a.Position, a.Visible, a.Variation,
		); err != nil {
			return fmt.Errorf("writing attribute %q: %w", a.Name, err)
		}
	}

	for i, mid := range p.GalleryIDs {
		if _, err := tx.Exec(
			`INSERT INTO product_gallery (product_id, media_id, position) VALUES (?, ?, ?)`,
			id, mid, i,
		); err != nil {
			return fmt.Errorf("writing gallery entry %d: %w", mid, err)
		}
	}

	for i, m := range p.Meta {
		value := string(m.Value)
		if value == "" {
			value = "null"
		}
		if _, err := tx.Exec(
			`INSERT INTO product_meta (product_id, position, meta_key, meta_value) VALUES (?, ?, ?, ?)`,
			id, i, m.Key, value,
		); err != nil {
			return fmt.Errorf("writing meta %q: %w", m.Key, err)
		}
	}

	return nil
}

// hydrateProduct loads the association rows of a product.
func hydrateProduct(q querier, p *model.Product) error {
	rows, err := q.Query(
		`SELECT related_id, relation_type FROM product_relations WHERE product_id = ? ORDER BY relation_type, position`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("querying relations: %w", err)
	}
	for rows.Next() {
		var rid int64
		var relType string
		if err := rows.Scan(&rid, &relType); err != nil {
			rows.Close()
			return fmt.Errorf("scanning relation: %w", err)
		}
		switch relType {
		case relationUpsell:
			p.UpsellIDs = append(p.UpsellIDs, rid)
		case relationCrossSell:
			p.CrossSellIDs = append(p.CrossSellIDs, rid)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating relation rows: %w", err)
	}

	rows, err = q.Query(
		`SELECT t.taxonomy, t.id FROM product_terms pt JOIN terms t ON t.id = pt.term_id
		 WHERE pt.product_id = ? ORDER BY t.taxonomy, pt.position, t.id`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("querying product terms: %w", err)
	}
	p.TermIDs = make(map[string][]int64)
	for rows.Next() {
		var taxonomy string
		var tid int64
		if err := rows.Scan(&taxonomy, &tid); err != nil {
			rows.Close()
			return fmt.Errorf("scanning product term: %w", err)
		}
		p.TermIDs[taxonomy] = append(p.TermIDs[taxonomy], tid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating product term rows: %w", err)
	}

	rows, err = q.Query(
		`SELECT name, is_taxonomy, options, position, visible, variation
		 FROM product_attributes WHERE product_id = ? ORDER BY position, name`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("querying attributes: %w", err)
	}
	for rows.Next() {
		var a model.ProductAttribute
		var opts string
		if err := rows.Scan(&a.Name, &a.IsTaxonomy, &opts, &a.Position, &a.Visible, &a.Variation); err != nil {
			rows.Close()
			return fmt.Errorf("scanning attribute: %w", err)
		}
		if err := json.Unmarshal([]byte(opts), &a.Options); err != nil {
			rows.Close()
			return fmt.Errorf("decoding attribute %q options: %w", a.Name, err)
		}
		p.Attributes = append(p.Attributes, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating attribute rows: %w", err)
	}

	p.GalleryIDs, err = queryIDs(q, `SELECT media_id FROM product_gallery WHERE product_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return err
	}

	rows, err = q.Query(
		`SELECT meta_key, meta_value FROM product_meta WHERE product_id = ? ORDER BY position`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("querying meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scanning meta: %w", err)
		}
		p.Meta = append(p.Meta, model.MetaEntry{Key: key, Value: json.RawMessage(value)})
	}
	return rows.Err()
}

// scanProductFrom scans a single product row from any scanner.
func scanProductFrom(s scanner) (*model.Product, error) {
	var p model.Product
	var parentID, stockQty, lowStock sql.NullInt64
	var productType sql.NullString
	var price, regular, sale, weight, length, width, height string
	var defaults, createdAt, updatedAt string

	err := s.Scan(
		&p.ID, &parentID, &productType, &p.Name, &p.Slug, &p.Status, &p.Featured,
		&p.CatalogVisibility, &p.Description, &p.ShortDescription, &p.SKU,
		&price, &regular, &sale, &p.SaleFrom, &p.SaleTo,
		&p.TaxStatus, &p.TaxClass, &p.ManageStock, &stockQty, &p.StockStatus,
		&p.Backorders, &lowStock, &p.SoldIndividually,
		&weight, &length, &width, &height, &p.ShippingClassID, &p.ImageID,
		&p.Virtual, &p.Downloadable, &p.ReviewsAllowed, &p.PurchaseNote,
		&p.MenuOrder, &p.TotalSales, &defaults, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		p.ParentID = parentID.Int64
	}
	p.Type = model.RecordType(productType.String)
	p.Price = model.Decimal(price)
	p.RegularPrice = model.Decimal(regular)
	p.SalePrice = model.Decimal(sale)
	p.Weight = model.Decimal(weight)
	p.Length = model.Decimal(length)
	p.Width = model.Decimal(width)
	p.Height = model.Decimal(height)
	if stockQty.Valid {
		p.StockQuantity = model.IntOf(int(stockQty.Int64))
	}
	if lowStock.Valid {
		p.LowStockAmount = model.IntOf(int(lowStock.Int64))
	}
	if defaults != "" && defaults != "{}" {
		if err := json.Unmarshal([]byte(defaults), &p.DefaultAttributes); err != nil {
			return nil, fmt.Errorf("decoding default attributes: %w", err)
		}
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.CreatedAt = t

	t, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	p.UpdatedAt = t

	return &p, nil
}

func queryIDs(q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating id rows: %w", err)
	}
	return ids, nil
}

// wrapWriteErr maps a SKU uniqueness violation to ErrDuplicateSKU.
func wrapWriteErr(op string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed: products.sku") {
		return fmt.Errorf("%s: %w", op, ErrDuplicateSKU)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nilIfZero returns nil for a zero ID (for sql parameter binding).
func nilIfZero(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullInt(n model.NullInt) any {
	if !n.Valid {
		return nil
	}
	return n.Int
}

// makePlaceholders returns "?, ?, ..." with n placeholders.
func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
