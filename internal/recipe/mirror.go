package recipe

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

// MirrorConfig configures the optional remote recipe-catalog mirror. When
// IndexURL is set, FetchMirror crawls an HTML index page listing recipes
// (one row per `<tr>` with uuid/chart_ref/restricted/description cells) and
// each linked detail page, converting the detail page's description HTML
// into Markdown. This supplements, never replaces, the local RECIPES/
// directory (see DirCatalog.Merge).
type MirrorConfig struct {
	IndexURL  string
	UserAgent string
}

// FetchMirror crawls cfg.IndexURL and returns the recipes it discovered,
// keyed by uuid. A crawl or parse failure for one row is skipped rather
// than aborting the whole mirror fetch, mirroring C11's "best-effort
// supplemental source" role.
func FetchMirror(cfg MirrorConfig) (map[string]*model.Recipe, error) {
	if cfg.IndexURL == "" {
		return nil, nil
	}

	collector := colly.NewCollector()
	if cfg.UserAgent != "" {
		collector.UserAgent = cfg.UserAgent
	}
	if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1}); err != nil {
		return nil, fmt.Errorf("recipe mirror rate limit: %w", err)
	}

	var mu sync.Mutex
	rows := make([]indexRow, 0)

	collector.OnHTML("table.recipes tr", func(e *colly.HTMLElement) {
		row, ok := parseIndexRow(e)
		if !ok {
			return
		}
		mu.Lock()
		rows = append(rows, row)
		mu.Unlock()
	})

	if err := collector.Visit(cfg.IndexURL); err != nil {
		return nil, fmt.Errorf("visit recipe index %s: %w", cfg.IndexURL, err)
	}
	collector.Wait()

	out := make(map[string]*model.Recipe, len(rows))
	for _, row := range rows {
		description := row.descriptionHTML
		if row.detailURL != "" {
			if html, ok := fetchDetailDescription(collector, row.detailURL); ok {
				description = html
			}
		}
		md, err := htmlToMarkdown(description)
		if err != nil {
			md = "" // best effort: a bad description blurb never drops the recipe itself
		}
		out[row.uuid] = &model.Recipe{
			UUID:        row.uuid,
			Restricted:  row.restricted,
			ChartRef:    row.chartRef,
			Description: md,
		}
	}
	return out, nil
}

type indexRow struct {
	uuid            string
	chartRef        string
	restricted      bool
	detailURL       string
	descriptionHTML string
}

// parseIndexRow extracts one recipe row by running goquery selectors
// directly against colly's DOM selection for the row (e.DOM is already a
// *goquery.Selection), matching the table-cell layout `uuid | chart_ref |
// restricted | detail link`.
func parseIndexRow(e *colly.HTMLElement) (indexRow, bool) {
	var row *goquery.Selection = e.DOM

	uuid := strings.TrimSpace(row.Find("td.uuid").Text())
	if uuid == "" {
		return indexRow{}, false
	}
	chartRef := strings.TrimSpace(row.Find("td.chart_ref").Text())
	restricted, _ := strconv.ParseBool(strings.TrimSpace(row.Find("td.restricted").Text()))
	description := strings.TrimSpace(row.Find("td.description").Text())

	var detailURL string
	if href, ok := row.Find("td.detail a").Attr("href"); ok && href != "" {
		detailURL = e.Request.AbsoluteURL(href)
	}
	return indexRow{uuid: uuid, chartRef: chartRef, restricted: restricted, detailURL: detailURL, descriptionHTML: description}, true
}

// fetchDetailDescription visits a recipe's detail page and pulls the
// `.recipe-description` block's inner HTML via goquery.
func fetchDetailDescription(collector *colly.Collector, detailURL string) (string, bool) {
	var found string
	var ok bool

	detail := collector.Clone()
	detail.OnHTML(".recipe-description", func(e *colly.HTMLElement) {
		html, err := e.DOM.Html()
		if err != nil {
			return
		}
		found = html
		ok = true
	})
	if err := detail.Visit(detailURL); err != nil {
		return "", false
	}
	detail.Wait()
	return found, ok
}

func htmlToMarkdown(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	conv := converter.NewConverter(converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()))
	md, err := conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert recipe description to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
