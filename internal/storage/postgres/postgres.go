package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/jobscout/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS job_items (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	job_name TEXT NOT NULL,
	high_month_pay DOUBLE PRECISION NOT NULL,
	low_month_pay DOUBLE PRECISION NOT NULL,
	update_date TEXT NOT NULL DEFAULT '',
	publish_date TEXT NOT NULL DEFAULT '',
	head_count TEXT NOT NULL DEFAULT '',
	member_level TEXT NOT NULL DEFAULT '',
	recruit_type TEXT NOT NULL DEFAULT '',
	degree_name TEXT NOT NULL DEFAULT '',
	major_required TEXT NOT NULL DEFAULT '',
	key_units TEXT NOT NULL DEFAULT '',
	user_type TEXT NOT NULL DEFAULT '',
	sort_priority TEXT NOT NULL DEFAULT '',
	company_id TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	company_logo TEXT NOT NULL DEFAULT '',
	company_scale TEXT NOT NULL DEFAULT '',
	company_tags TEXT NOT NULL DEFAULT '',
	company_property TEXT NOT NULL DEFAULT '',
	area_code_name TEXT NOT NULL DEFAULT '',
	province_name TEXT NOT NULL DEFAULT '',
	sources_name TEXT NOT NULL DEFAULT '',
	sources_name_ch TEXT NOT NULL DEFAULT '',
	sources_type TEXT NOT NULL DEFAULT '',
	job_category TEXT NOT NULL DEFAULT '',
	job_industry TEXT NOT NULL DEFAULT '',
	search_area_code TEXT NOT NULL DEFAULT '',
	search_area_name TEXT NOT NULL DEFAULT '',
	search_keyword TEXT NOT NULL DEFAULT '',
	search_category_code TEXT NOT NULL DEFAULT '',
	search_industry_code TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_items_crawled_at ON job_items (crawled_at);
`

const columns = `id, job_id, job_name, high_month_pay, low_month_pay, update_date, publish_date,
	head_count, member_level, recruit_type, degree_name, major_required, key_units, user_type,
	sort_priority, company_id, company_name, company_logo, company_scale, company_tags,
	company_property, area_code_name, province_name, sources_name, sources_name_ch, sources_type,
	job_category, job_industry, search_area_code, search_area_name, search_keyword,
	search_category_code, search_industry_code, source_url, crawled_at`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, item *storage.JobItem) error {
	query := `INSERT INTO job_items (` + columns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35)`

	if _, err := b.pool.Exec(ctx, query, values(item)...); err != nil {
		return fmt.Errorf("insert job item: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.JobItem, error) {
	query := `SELECT ` + columns + ` FROM job_items WHERE 1=1`
	args := []any{}
	paramCount := 1

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, paramCount)
		args = append(args, v)
		paramCount++
	}

	if filter.JobID != "" {
		add(` AND job_id = $%d`, filter.JobID)
	}
	if filter.Keyword != "" {
		add(` AND search_keyword = $%d`, filter.Keyword)
	}
	if filter.AreaCode != "" {
		add(` AND search_area_code = $%d`, filter.AreaCode)
	}
	if filter.Province != "" {
		add(` AND province_name = $%d`, filter.Province)
	}
	if filter.Since != nil {
		add(` AND crawled_at >= $%d`, *filter.Since)
	}

	query += ` ORDER BY crawled_at DESC`

	if filter.Limit > 0 {
		add(` LIMIT $%d`, filter.Limit)
	}
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job items: %w", err)
	}
	defer rows.Close()

	var items []*storage.JobItem
	for rows.Next() {
		var r storage.JobItem
		if err := rows.Scan(fields(&r)...); err != nil {
			return nil, fmt.Errorf("scan job item: %w", err)
		}
		items = append(items, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job items: %w", err)
	}

	return items, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// fields returns scan destinations in column order.
func fields(r *storage.JobItem) []any {
	return []any{
		&r.ID, &r.JobID, &r.JobName, &r.HighMonthPay, &r.LowMonthPay, &r.UpdateDate, &r.PublishDate,
		&r.HeadCount, &r.MemberLevel, &r.RecruitType, &r.DegreeName, &r.Major, &r.KeyUnits, &r.UserType,
		&r.SortPriority, &r.CompanyID, &r.CompanyName, &r.CompanyLogo, &r.CompanyScale, &r.CompanyTags,
		&r.CompanyProperty, &r.AreaName, &r.ProvinceName, &r.SourcesName, &r.SourcesNameCh, &r.SourcesType,
		&r.CategoryName, &r.IndustryName, &r.SearchAreaCode, &r.SearchAreaName, &r.SearchKeyword,
		&r.SearchCategoryCode, &r.SearchIndustryCode, &r.SourceURL, &r.CrawledAt,
	}
}

func values(r *storage.JobItem) []any {
	return []any{
		r.ID, r.JobID, r.JobName, r.HighMonthPay, r.LowMonthPay, r.UpdateDate, r.PublishDate,
		r.HeadCount, r.MemberLevel, r.RecruitType, r.DegreeName, r.Major, r.KeyUnits, r.UserType,
		r.SortPriority, r.CompanyID, r.CompanyName, r.CompanyLogo, r.CompanyScale, r.CompanyTags,
		r.CompanyProperty, r.AreaName, r.ProvinceName, r.SourcesName, r.SourcesNameCh, r.SourcesType,
		r.CategoryName, r.IndustryName, r.SearchAreaCode, r.SearchAreaName, r.SearchKeyword,
		r.SearchCategoryCode, r.SearchIndustryCode, r.SourceURL, r.CrawledAt,
	}
}
