package storage

import (
	"context"
	"time"
)

// JobItem is one job posting as returned by the listing API, plus the
// search facet that produced it.
type JobItem struct {
	ID string `json:"id"`

	JobID        string  `json:"job_id"`
	JobName      string  `json:"job_name"`
	HighMonthPay float64 `json:"high_month_pay"`
	LowMonthPay  float64 `json:"low_month_pay"`
	UpdateDate   string  `json:"update_date"`
	PublishDate  string  `json:"publish_date"`
	HeadCount    string  `json:"head_count"`
	MemberLevel  string  `json:"member_level"`
	RecruitType  string  `json:"recruit_type"`
	DegreeName   string  `json:"degree_name"`
	Major        string  `json:"major_required"`
	KeyUnits     string  `json:"key_units"`
	UserType     string  `json:"user_type"`
	SortPriority string  `json:"sort_priority"`

	CompanyID       string `json:"company_id"`
	CompanyName     string `json:"company_name"`
	CompanyLogo     string `json:"company_logo"`
	CompanyScale    string `json:"company_scale"`
	CompanyTags     string `json:"company_tags"`
	CompanyProperty string `json:"company_property"`

	AreaName      string `json:"area_code_name"`
	ProvinceName  string `json:"province_name"`
	SourcesName   string `json:"sources_name"`
	SourcesNameCh string `json:"sources_name_ch"`
	SourcesType   string `json:"sources_type"`

	// Facet the item was found under.
	CategoryName       string `json:"job_category"`
	IndustryName       string `json:"job_industry"`
	SearchAreaCode     string `json:"search_area_code"`
	SearchAreaName     string `json:"search_area_name"`
	SearchKeyword      string `json:"search_keyword"`
	SearchCategoryCode string `json:"search_category_code"`
	SearchIndustryCode string `json:"search_industry_code"`

	SourceURL string    `json:"source_url"`
	CrawledAt time.Time `json:"crawled_at"`
}

// Filter allows querying for specific JobItems. Zero fields do not filter.
type Filter struct {
	JobID    string
	Keyword  string
	AreaCode string
	Province string
	Since    *time.Time
	Limit    int
	Offset   int
}

// Match reports whether item passes the filter's field conditions.
// Limit and Offset are not considered.
func (f Filter) Match(item *JobItem) bool {
	if f.JobID != "" && item.JobID != f.JobID {
		return false
	}
	if f.Keyword != "" && item.SearchKeyword != f.Keyword {
		return false
	}
	if f.AreaCode != "" && item.SearchAreaCode != f.AreaCode {
		return false
	}
	if f.Province != "" && item.ProvinceName != f.Province {
		return false
	}
	if f.Since != nil && item.CrawledAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to items already ordered newest first.
func (f Filter) Page(items []*JobItem) []*JobItem {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return []*JobItem{}
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

// Backend defines the interface for storing and querying job items.
type Backend interface {
	Save(ctx context.Context, item *JobItem) error
	Query(ctx context.Context, filter Filter) ([]*JobItem, error)
	Close() error
}
