package bcn

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal/sources/fetch"
)

const bioPage = `<html><body>
<div class="box_contenidos">
  <h4>Familia y Juventud</h4>
  <p>Nació en Melipilla, el 3 de mayo de 1970.</p>
  <p>Casado, padre de dos hijos.</p>
</div>
<div class="box_contenidos">
  <h4>Estudios y vida laboral</h4>
  <div>Estudió en el Instituto Nacional.
  Se tituló de abogado en la Universidad de Chile.</div>
</div>
<table>
  <tr><td class="trayectoria_align">Diputado 2014 - 2018 <div>Distrito N° 31</div></td></tr>
  <tr><td class="trayectoria_align">Diputado 2018 - marzo 2022
    <span property="bcnbio:representingPlaceNamed">Distrito 8</span></td></tr>
</table>
</body></html>`

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestSectionParagraphs(t *testing.T) {
	d := doc(t, bioPage)
	assert.Equal(t, []string{
		"Nació en Melipilla, el 3 de mayo de 1970.",
		"Casado, padre de dos hijos.",
	}, SectionParagraphs(d, FamilyPatterns))
	assert.Equal(t, []string{
		"Estudió en el Instituto Nacional.",
		"Se tituló de abogado en la Universidad de Chile.",
	}, SectionParagraphs(d, StudyPatterns))
	assert.Empty(t, SectionParagraphs(d, []string{"condecoraciones"}))
}

func TestDistrictFromTrajectory(t *testing.T) {
	d := doc(t, bioPage)

	n, ok := DistrictFromTrajectory(d, []string{"2018-2022"})
	require.True(t, ok)
	assert.Equal(t, 8, n)

	n, ok = DistrictFromTrajectory(d, []string{"2014-2018"})
	require.True(t, ok)
	assert.Equal(t, 31, n)

	_, ok = DistrictFromTrajectory(d, []string{"1990-1994"})
	assert.False(t, ok)
}

func TestParseBio(t *testing.T) {
	bio, err := ParseBio([]byte(bioPage), []string{"2018-2022"})
	require.NoError(t, err)
	assert.Equal(t, 8, bio.District)
	assert.True(t, strings.HasPrefix(bio.FullText, "Nació en Melipilla"))
	assert.Contains(t, bio.FullText, "Universidad de Chile")
}

const listingPage = `<html><body><ul id="contenedorResultados">
<li><a href="/historiapolitica/resenas_parlamentarias/wiki/Juan_P%C3%A9rez">Juan  Pérez Soto</a></li>
<li><span>sin enlace</span></li>
<li><a href="https://www.bcn.cl/wiki/Ana_Rojas">Ana Rojas</a></li>
</ul></body></html>`

func TestParseListing(t *testing.T) {
	entries, err := ParseListing([]byte(listingPage), "https://www.bcn.cl/historiapolitica/resenas_parlamentarias/index.html?pagina=1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Juan Pérez Soto", entries[0].Name)
	assert.Equal(t, "https://www.bcn.cl/historiapolitica/resenas_parlamentarias/wiki/Juan_P%C3%A9rez", entries[0].URL)
	assert.Equal(t, "https://www.bcn.cl/wiki/Ana_Rojas", entries[1].URL)
}

type pagedGetter struct {
	pages map[string]string
	fail  string
}

func (p *pagedGetter) Get(_ context.Context, rawURL string, params map[string]string) (fetch.Response, error) {
	page := params["pagina"]
	if page == p.fail {
		return fetch.Response{}, errors.New("timeout")
	}
	body, ok := p.pages[page]
	if !ok {
		body = `<html><ul id="contenedorResultados"></ul></html>`
	}
	return fetch.Response{Status: 200, Body: []byte(body), FinalURL: rawURL + "?pagina=" + page}, nil
}

func TestScraperListingStopsAtEmptyPage(t *testing.T) {
	g := &pagedGetter{pages: map[string]string{"1": listingPage, "2": listingPage}}
	s := NewScraper(g, zerolog.Nop())
	entries := s.Listing(context.Background(), "https://www.bcn.cl/historiapolitica/resenas_parlamentarias/", map[string]string{"tipo": "ex"}, 1, 10)
	require.Len(t, entries, 4)
	assert.Equal(t, 1, entries[0].Page)
	assert.Equal(t, 2, entries[3].Page)

	g.fail = "2"
	entries = s.Listing(context.Background(), "https://www.bcn.cl/historiapolitica/resenas_parlamentarias/", nil, 1, 10)
	assert.Len(t, entries, 2)
}
