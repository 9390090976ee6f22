package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/jobscout/internal/storage"
)

// DefaultBaseURL is the job listing AJAX endpoint.
const DefaultBaseURL = "https://24365.ncss.cn/student/jobs/jobslist/ajax/"

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 20

// Fallback display names for unrestricted dimensions.
const (
	AllCities     = "全国"
	AnyCategory   = "不限类别"
	AnyIndustry   = "不限行业"
	UnknownRegion = "未知省份"
)

// ErrAPIFailure is returned for listing responses whose flag is not true.
var ErrAPIFailure = errors.New("listing api reported failure")

// Option is one selectable search value.
type Option struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Targets are the search dimensions to crawl.
type Targets struct {
	Cities     []Option
	Keywords   []string
	Categories []Option
	Industries []Option
	// Provinces maps a two-digit province code to its name.
	Provinces map[string]string
}

// Facet is one (city, keyword, category, industry) combination.
type Facet struct {
	CityCode     string
	CityName     string
	Province     string
	Keyword      string
	CategoryCode string
	CategoryName string
	IndustryCode string
	IndustryName string
}

func (f Facet) String() string {
	return fmt.Sprintf("%s/%s(%s) kw=%q cat=%s(%s) ind=%s(%s)",
		f.Province, f.CityName, f.CityCode, f.Keyword,
		f.CategoryName, f.CategoryCode, f.IndustryName, f.IndustryCode)
}

// PageRequest is the tag carried by every attempt: the facet and the page
// offset it asks for.
type PageRequest struct {
	Facet  Facet
	Offset int
}

// ProvinceName derives the province for a city from the first two digits of
// its code.
func ProvinceName(cityCode, cityName string, provinces map[string]string) string {
	if cityCode == "" || cityName == AllCities {
		return AllCities
	}
	if len(cityCode) < 2 {
		return fmt.Sprintf("%s(市代码: %s)", UnknownRegion, cityCode)
	}
	prefix := cityCode[:2]
	if name, ok := provinces[prefix]; ok {
		return name
	}
	return fmt.Sprintf("%s(市代码前缀: %s)", UnknownRegion, prefix)
}

// Facets expands the targets into their cross product, city outermost.
// An empty dimension becomes a single unrestricted value.
func Facets(t Targets) []Facet {
	cities := t.Cities
	if len(cities) == 0 {
		cities = []Option{{Code: "", Name: AllCities}}
	}
	keywords := t.Keywords
	if len(keywords) == 0 {
		keywords = []string{""}
	}
	categories := t.Categories
	if len(categories) == 0 {
		categories = []Option{{Code: "", Name: AnyCategory}}
	}
	industries := t.Industries
	if len(industries) == 0 {
		industries = []Option{{Code: "", Name: AnyIndustry}}
	}

	out := make([]Facet, 0, len(cities)*len(keywords)*len(categories)*len(industries))
	for _, city := range cities {
		province := ProvinceName(city.Code, city.Name, t.Provinces)
		for _, kw := range keywords {
			for _, cat := range categories {
				for _, ind := range industries {
					out = append(out, Facet{
						CityCode:     city.Code,
						CityName:     city.Name,
						Province:     province,
						Keyword:      kw,
						CategoryCode: cat.Code,
						CategoryName: cat.Name,
						IndustryCode: ind.Code,
						IndustryName: ind.Name,
					})
				}
			}
		}
	}
	return out
}

// BuildURL returns the listing URL for a facet page. now supplies the
// cache-busting "_" parameter.
func BuildURL(base string, f Facet, offset, pageSize int, now time.Time) string {
	q := url.Values{}
	q.Set("areaCode", f.CityCode)
	q.Set("jobName", f.Keyword)
	q.Set("categoryCode", f.CategoryCode)
	q.Set("industrySectors", f.IndustryCode)
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("sourcesName", "")
	q.Set("sourcesType", "")
	for _, k := range []string{"jobType", "monthPay", "property", "memberLevel", "recruitType", "keyUnits", "degreeCode"} {
		q.Set(k, "")
	}
	q.Set("_", strconv.FormatInt(now.UnixMilli(), 10))

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// requestKey identifies a page request regardless of its cache buster.
func requestKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del("_")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// ListPage is a decoded listing response.
type ListPage struct {
	Rows []map[string]any
	// Total is the number of pages the API reports, or 0 when absent.
	Total int
}

type listEnvelope struct {
	Flag   bool            `json:"flag"`
	Errors json.RawMessage `json:"errors"`
	Data   *struct {
		List       []map[string]any `json:"list"`
		Pagenation *struct {
			Total any `json:"total"`
		} `json:"pagenation"`
	} `json:"data"`
}

// ParseListPage decodes a listing response body. A body whose flag is not
// true yields ErrAPIFailure carrying the API's errors field.
func ParseListPage(body []byte) (ListPage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env listEnvelope
	if err := dec.Decode(&env); err != nil {
		return ListPage{}, fmt.Errorf("decode listing: %w", err)
	}
	if !env.Flag {
		msg := strings.TrimSpace(string(env.Errors))
		if msg == "" {
			msg = "null"
		}
		return ListPage{}, fmt.Errorf("%w: errors=%s", ErrAPIFailure, msg)
	}

	var page ListPage
	if env.Data == nil {
		return page, nil
	}
	page.Rows = env.Data.List
	if env.Data.Pagenation != nil {
		if n, ok := toFloat(env.Data.Pagenation.Total); ok && n > 0 {
			page.Total = int(n)
		}
	}
	return page, nil
}

// NewJobItem maps one listing row onto a storage item.
func NewJobItem(row map[string]any, f Facet, sourceURL string) *storage.JobItem {
	high, _ := toFloat(row["highMonthPay"])
	low, _ := toFloat(row["lowMonthPay"])
	return &storage.JobItem{
		JobID:        toString(row["jobId"]),
		JobName:      toString(row["jobName"]),
		HighMonthPay: high,
		LowMonthPay:  low,
		UpdateDate:   toString(row["updateDate"]),
		PublishDate:  toString(row["publishDate"]),
		HeadCount:    toString(row["headCount"]),
		MemberLevel:  toString(row["memberLevel"]),
		RecruitType:  toString(row["recruitType"]),
		DegreeName:   toString(row["degreeName"]),
		Major:        toString(row["major"]),
		KeyUnits:     toString(row["keyUnits"]),
		UserType:     toString(row["userType"]),
		SortPriority: toString(row["sortPriority"]),

		CompanyID:       toString(row["recId"]),
		CompanyName:     toString(row["recName"]),
		CompanyLogo:     toString(row["recLogo"]),
		CompanyScale:    toString(row["recScale"]),
		CompanyTags:     toString(row["recTags"]),
		CompanyProperty: toString(row["recProperty"]),

		AreaName:      toString(row["areaCodeName"]),
		ProvinceName:  f.Province,
		SourcesName:   toString(row["sourcesName"]),
		SourcesNameCh: toString(row["sourcesNameCh"]),
		SourcesType:   toString(row["sourcesType"]),

		CategoryName:       f.CategoryName,
		IndustryName:       f.IndustryName,
		SearchAreaCode:     f.CityCode,
		SearchAreaName:     f.CityName,
		SearchKeyword:      f.Keyword,
		SearchCategoryCode: f.CategoryCode,
		SearchIndustryCode: f.IndustryCode,

		SourceURL: sourceURL,
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := toString(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
