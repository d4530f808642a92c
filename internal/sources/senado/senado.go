package senado

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"congreso/internal/dataset"
	"congreso/internal/sources/fetch"
	"congreso/internal/sources/xmlmap"
	"congreso/internal/util"
)

// ErrNoProject is returned when a response has no <proyecto> element.
var ErrNoProject = errors.New("no proyecto in response")

var BulletinColumns = []string{
	"boletin_id", "titulo", "fecha_ingreso", "iniciativa", "camara_origen",
	"etapa", "leynro", "link_mensaje_mocion", "autores_json", "materias_str",
	"materias_json", "boletin_id_consultado",
}

type Bulletin struct {
	ID         string
	Title      string
	FiledAt    string
	Initiative string
	Origin     string
	Stage      string
	LawNumber  string
	MotionURL  string
	Authors    []string
	Subjects   []string
	QueriedID  string
}

func (b Bulletin) Row() []string {
	authors, _ := json.Marshal(nonNil(b.Authors))
	subjects, _ := json.Marshal(nonNil(b.Subjects))
	return []string{
		b.ID, b.Title, b.FiledAt, b.Initiative, b.Origin, b.Stage, b.LawNumber,
		b.MotionURL, string(authors), strings.Join(b.Subjects, "; "),
		string(subjects), b.QueriedID,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ParseBulletin reads the tramitacion.php XML for one bulletin.
func ParseBulletin(body []byte) (Bulletin, error) {
	root, err := xmlmap.Decode(bytes.NewReader(body), xmlmap.Options{ForceList: []string{"autor", "materia"}})
	if err != nil {
		return Bulletin{}, fmt.Errorf("parse bulletin xml: %w", err)
	}
	project, ok := xmlmap.Path(root, "proyectos", "proyecto")
	if !ok || project == nil {
		return Bulletin{}, ErrNoProject
	}
	// A response with several projects keeps the first one.
	if list := xmlmap.List(project); len(list) > 0 {
		project = list[0]
	}

	field := func(name string) string {
		v, _ := xmlmap.Path(project, "descripcion", name)
		return xmlmap.Text(v)
	}
	b := Bulletin{
		ID:         field("boletin"),
		Title:      field("titulo"),
		FiledAt:    field("fecha_ingreso"),
		Initiative: field("iniciativa"),
		Origin:     field("camara_origen"),
		Stage:      field("etapa"),
		LawNumber:  field("leynro"),
		MotionURL:  field("link_mensaje_mocion"),
	}

	authors, _ := xmlmap.Path(project, "autores", "autor")
	for _, a := range xmlmap.List(authors) {
		v, _ := xmlmap.Path(a, "PARLAMENTARIO")
		if name := strings.TrimSpace(xmlmap.Text(v)); name != "" {
			b.Authors = append(b.Authors, name)
		}
	}
	subjects, _ := xmlmap.Path(project, "materias", "materia")
	for _, m := range xmlmap.List(subjects) {
		v, _ := xmlmap.Path(m, "DESCRIPCION")
		if d := strings.TrimSpace(xmlmap.Text(v)); d != "" {
			b.Subjects = append(b.Subjects, d)
		}
	}
	return b, nil
}

// ExtractBulletinIDs returns the distinct bulletin ids mentioned in the
// descriptions of bill divisions, in first-seen order. Rows whose type
// column is set and differs from billType are skipped.
func ExtractBulletinIDs(t *dataset.Table, typeColumn, billType, descColumn string) ([]string, error) {
	desc, err := t.Column(descColumn)
	if err != nil {
		return nil, err
	}
	var types []string
	if typeColumn != "" && t.HasColumn(typeColumn) {
		types, _ = t.Column(typeColumn)
	}
	seen := map[string]struct{}{}
	var out []string
	for i, d := range desc {
		if types != nil && types[i] != billType {
			continue
		}
		id, ok := util.ParseBulletinID(d)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// MotionText extracts the plain text of a bill's motion PDF.
func MotionText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return util.CollapseSpaces(b.String()), nil
}

type Getter interface {
	Get(ctx context.Context, rawURL string, params map[string]string) (fetch.Response, error)
}

type Client struct {
	getter  Getter
	baseURL string
}

func NewClient(getter Getter, baseURL string) *Client {
	return &Client{getter: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) Bulletin(ctx context.Context, id string) (Bulletin, error) {
	resp, err := c.getter.Get(ctx, c.baseURL+"/tramitacion.php", map[string]string{"boletin": id})
	if err != nil {
		return Bulletin{}, err
	}
	b, err := ParseBulletin(resp.Body)
	if err != nil {
		return Bulletin{}, fmt.Errorf("bulletin %s: %w", id, err)
	}
	b.QueriedID = id
	return b, nil
}

// Motion downloads the motion PDF linked from a bulletin and returns its text.
func (c *Client) Motion(ctx context.Context, b Bulletin) (string, error) {
	if strings.TrimSpace(b.MotionURL) == "" {
		return "", nil
	}
	resp, err := c.getter.Get(ctx, b.MotionURL, nil)
	if err != nil {
		return "", err
	}
	return MotionText(resp.Body)
}

// BulletinTable lays bulletins out as rows.
func BulletinTable(bulletins []Bulletin) *dataset.Table {
	t := dataset.New(BulletinColumns...)
	for _, b := range bulletins {
		t.Append(b.Row())
	}
	return t
}
