package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/jobscout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"job_id",
	"job_name",
	"low_month_pay",
	"high_month_pay",
	"update_date",
	"publish_date",
	"head_count",
	"member_level",
	"recruit_type",
	"degree_name",
	"major_required",
	"key_units",
	"user_type",
	"sort_priority",
	"company_id",
	"company_name",
	"company_logo",
	"company_scale",
	"company_tags",
	"company_property",
	"area_code_name",
	"province_name",
	"sources_name",
	"sources_name_ch",
	"sources_type",
	"job_category",
	"job_industry",
	"search_area_code",
	"search_area_name",
	"search_keyword",
	"search_category_code",
	"search_industry_code",
	"source_url",
	"crawled_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}

	// Check if file is empty to write headers
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func formatPay(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toRecord(r *storage.JobItem) []string {
	return []string{
		r.ID, r.JobID, r.JobName, formatPay(r.LowMonthPay), formatPay(r.HighMonthPay),
		r.UpdateDate, r.PublishDate, r.HeadCount, r.MemberLevel, r.RecruitType, r.DegreeName,
		r.Major, r.KeyUnits, r.UserType, r.SortPriority, r.CompanyID, r.CompanyName,
		r.CompanyLogo, r.CompanyScale, r.CompanyTags, r.CompanyProperty, r.AreaName,
		r.ProvinceName, r.SourcesName, r.SourcesNameCh, r.SourcesType, r.CategoryName,
		r.IndustryName, r.SearchAreaCode, r.SearchAreaName, r.SearchKeyword,
		r.SearchCategoryCode, r.SearchIndustryCode, r.SourceURL,
		r.CrawledAt.Format(time.RFC3339Nano),
	}
}

func fromRecord(rec []string) *storage.JobItem {
	low, _ := strconv.ParseFloat(rec[3], 64)
	high, _ := strconv.ParseFloat(rec[4], 64)
	crawledAt, _ := time.Parse(time.RFC3339Nano, rec[34])
	return &storage.JobItem{
		ID: rec[0], JobID: rec[1], JobName: rec[2], LowMonthPay: low, HighMonthPay: high,
		UpdateDate: rec[5], PublishDate: rec[6], HeadCount: rec[7], MemberLevel: rec[8],
		RecruitType: rec[9], DegreeName: rec[10], Major: rec[11], KeyUnits: rec[12],
		UserType: rec[13], SortPriority: rec[14], CompanyID: rec[15], CompanyName: rec[16],
		CompanyLogo: rec[17], CompanyScale: rec[18], CompanyTags: rec[19],
		CompanyProperty: rec[20], AreaName: rec[21], ProvinceName: rec[22],
		SourcesName: rec[23], SourcesNameCh: rec[24], SourcesType: rec[25],
		CategoryName: rec[26], IndustryName: rec[27], SearchAreaCode: rec[28],
		SearchAreaName: rec[29], SearchKeyword: rec[30], SearchCategoryCode: rec[31],
		SearchIndustryCode: rec[32], SourceURL: rec[33], CrawledAt: crawledAt,
	}
}

func (b *csvBackend) Save(ctx context.Context, item *storage.JobItem) error {
	record := toRecord(item)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write job item: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("write job item: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.JobItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	// Read headers
	_, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.JobItem{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var allFiltered []*storage.JobItem

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read job item: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		item := fromRecord(record)
		if filter.Match(item) {
			allFiltered = append(allFiltered, item)
		}
	}

	// Newest first (reverse append order)
	for i, j := 0, len(allFiltered)-1; i < j; i, j = i+1, j-1 {
		allFiltered[i], allFiltered[j] = allFiltered[j], allFiltered[i]
	}

	return filter.Page(allFiltered), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
