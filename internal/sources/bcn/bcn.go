package bcn

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"congreso/internal/sources/fetch"
	"congreso/internal/util"
)

var (
	FamilyPatterns = []string{`familia\s+y\s+juventud`, `familia`, `juventud`}
	StudyPatterns  = []string{`estudios\s+y\s+vida\s+laboral`, `estudios`, `vida\s+laboral`}
)

// Bio holds the parts of a BCN parliamentary biography page that feed the
// extraction step.
type Bio struct {
	Status    int
	District  int
	Family    []string
	StudyWork []string
	FullText  string
	SourceURL string
}

type ListEntry struct {
	Name string
	URL  string
	Page int
}

// SectionParagraphs returns the paragraphs of the first content box whose
// heading matches one of patterns (checked against the normalized heading).
// Boxes without <p> fall back to the text lines of the div after the heading.
func SectionParagraphs(doc *goquery.Document, patterns []string) []string {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile("(?i)"+p))
	}

	var paras []string
	doc.Find("div.box_contenidos").EachWithBreak(func(_ int, box *goquery.Selection) bool {
		h4 := box.Find("h4").First()
		if h4.Length() == 0 {
			return true
		}
		title := util.Normalize(util.CollapseSpaces(h4.Text()))
		if !matchesAny(res, title) {
			return true
		}

		ps := box.Find("p")
		if ps.Length() > 0 {
			ps.Each(func(_ int, p *goquery.Selection) {
				if t := util.CollapseSpaces(p.Text()); t != "" {
					paras = append(paras, t)
				}
			})
		} else if content := h4.NextFiltered("div"); content.Length() > 0 {
			for _, line := range strings.Split(content.Text(), "\n") {
				if t := util.CollapseSpaces(line); t != "" {
					paras = append(paras, t)
				}
			}
		}
		return len(paras) == 0
	})
	return paras
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// DistrictFromTrajectory finds the district of the first trajectory entry
// whose period is one of validPeriods ("2018-2022").
func DistrictFromTrajectory(doc *goquery.Document, validPeriods []string) (int, bool) {
	valid := map[string]bool{}
	for _, p := range validPeriods {
		valid[p] = true
	}

	district := 0
	doc.Find("td.trayectoria_align").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		period, ok := util.ParsePeriod(util.CollapseSpaces(td.Text()))
		if !ok || !valid[period.String()] {
			return true
		}

		if span := td.Find(`span[property="bcnbio:representingPlaceNamed"]`); span.Length() > 0 {
			if n, ok := util.FirstNumber(span.First().Text()); ok {
				district = n
			}
		}
		if district == 0 {
			td.Find("div").EachWithBreak(func(_ int, div *goquery.Selection) bool {
				text := util.CollapseSpaces(div.Text())
				if !strings.Contains(text, "Distrito") {
					return true
				}
				if n, ok := util.FirstNumber(text); ok {
					district = n
					return false
				}
				return true
			})
		}
		return district == 0
	})
	return district, district != 0
}

// ParseBio extracts the biography sections and district from a page.
func ParseBio(html []byte, validPeriods []string) (Bio, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Bio{}, err
	}
	bio := Bio{
		Family:    SectionParagraphs(doc, FamilyPatterns),
		StudyWork: SectionParagraphs(doc, StudyPatterns),
	}
	bio.District, _ = DistrictFromTrajectory(doc, validPeriods)
	bio.FullText = strings.Join(append(append([]string{}, bio.Family...), bio.StudyWork...), " ")
	return bio, nil
}

// ParseListing reads one page of the parliamentarian index. Links are
// resolved against pageURL.
func ParseListing(html []byte, pageURL string) ([]ListEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var out []ListEntry
	doc.Find("#contenedorResultados li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a[href]").First()
		if a.Length() == 0 {
			return
		}
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		out = append(out, ListEntry{
			Name: util.CollapseSpaces(a.Text()),
			URL:  base.ResolveReference(ref).String(),
		})
	})
	return out, nil
}

type Getter interface {
	Get(ctx context.Context, rawURL string, params map[string]string) (fetch.Response, error)
}

type Scraper struct {
	getter Getter
	log    zerolog.Logger
}

func NewScraper(getter Getter, log zerolog.Logger) *Scraper {
	return &Scraper{getter: getter, log: log}
}

// Listing walks index pages from first to last and stops at the first empty
// page or network error.
func (s *Scraper) Listing(ctx context.Context, baseURL string, params map[string]string, first, last int) []ListEntry {
	var out []ListEntry
	for page := first; page <= last; page++ {
		q := map[string]string{}
		for k, v := range params {
			q[k] = v
		}
		q["pagina"] = strconv.Itoa(page)

		resp, err := s.getter.Get(ctx, baseURL, q)
		if err != nil {
			s.log.Error().Err(err).Int("page", page).Msg("bcn listing fetch failed")
			break
		}
		entries, err := ParseListing(resp.Body, resp.FinalURL)
		if err != nil {
			s.log.Error().Err(err).Int("page", page).Msg("bcn listing parse failed")
			break
		}
		if len(entries) == 0 {
			s.log.Info().Int("page", page).Msg("end of bcn listing")
			break
		}
		for i := range entries {
			entries[i].Page = page
		}
		out = append(out, entries...)
		s.log.Debug().Int("page", page).Int("items", len(entries)).Msg("bcn listing page")
	}
	return out
}

// Bio fetches and parses one biography page.
func (s *Scraper) Bio(ctx context.Context, pageURL string, validPeriods []string) (Bio, error) {
	resp, err := s.getter.Get(ctx, pageURL, nil)
	if err != nil {
		return Bio{Status: resp.Status, SourceURL: pageURL}, err
	}
	bio, err := ParseBio(resp.Body, validPeriods)
	if err != nil {
		return Bio{Status: resp.Status, SourceURL: pageURL}, err
	}
	bio.Status = resp.Status
	bio.SourceURL = pageURL
	return bio, nil
}
