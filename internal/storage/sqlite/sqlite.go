package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/jobscout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS job_items (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	job_name TEXT NOT NULL,
	high_month_pay REAL NOT NULL,
	low_month_pay REAL NOT NULL,
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
	crawled_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS job_items_crawled_at ON job_items (crawled_at);
`

const columns = `id, job_id, job_name, high_month_pay, low_month_pay, update_date, publish_date,
	head_count, member_level, recruit_type, degree_name, major_required, key_units, user_type,
	sort_priority, company_id, company_name, company_logo, company_scale, company_tags,
	company_property, area_code_name, province_name, sources_name, sources_name_ch, sources_type,
	job_category, job_industry, search_area_code, search_area_name, search_keyword,
	search_category_code, search_industry_code, source_url, crawled_at`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, item *storage.JobItem) error {
	query := `INSERT INTO job_items (` + columns + `) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := b.db.ExecContext(ctx, query, values(item)...); err != nil {
		return fmt.Errorf("insert job item: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.JobItem, error) {
	query := `SELECT ` + columns + ` FROM job_items WHERE 1=1`
	args := []any{}

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Keyword != "" {
		query += ` AND search_keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.AreaCode != "" {
		query += ` AND search_area_code = ?`
		args = append(args, filter.AreaCode)
	}
	if filter.Province != "" {
		query += ` AND province_name = ?`
		args = append(args, filter.Province)
	}
	if filter.Since != nil {
		query += ` AND crawled_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY crawled_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
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
