package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"congreso/internal/sources/fetch"
)

const (
	MinBioLength = 50
	MaxBioLength = 4000
)

var (
	ErrTextTooShort = errors.New("text too short for extraction")
	ErrNoJSON       = errors.New("response holds no json object")
)

const bioPrompt = `Eres un extractor de datos biográficos de parlamentarios chilenos.
Lee la biografía y responde SOLAMENTE con un objeto JSON, sin texto adicional.

Reglas:
1. Si un dato no aparece en el texto usa null.
2. "numero_total_hijos" es un entero; "dos hijas y un hijo" es 3.
3. "colegios" y "trabajo" son listas de strings; si no hay usa [].
4. "universidad" y "carrera" solo si el texto indica que terminó los estudios.
5. "maximo_nivel_educativo" es uno de: "Enseñanza Básica", "Enseñanza Media", "Educación Universitaria", "Magíster", "Doctor/a" o null.

Formato:
{
  "lugar_nacimiento": "Ciudad, Región o País",
  "fecha_nacimiento": "YYYY-MM-DD",
  "padre": "Nombre completo",
  "madre": "Nombre completo",
  "estado_civil": "Soltero/a | Casado/a | Viudo/a | Divorciado/a | null",
  "numero_total_hijos": 0,
  "colegios": ["Colegio 1"],
  "universidad": "Universidad",
  "carrera": "Carrera",
  "maximo_nivel_educativo": "Educación Universitaria",
  "trabajo": ["Cargo 1"]
}`

// SubjectAreas are the thematic areas a bill's subjects can be classified into.
var SubjectAreas = []string{
	"Educación",
	"Salud",
	"Trabajo y Previsión",
	"Economía y Hacienda",
	"Seguridad y Justicia",
	"Medio Ambiente y Energía",
	"Vivienda y Urbanismo",
	"Gobierno y Política",
	"Relaciones Exteriores",
	"Cultura y Deporte",
	"Transporte y Telecomunicaciones",
	"Derechos Humanos y Género",
	"no cumple",
}

func subjectsPrompt() string {
	var b strings.Builder
	b.WriteString("Eres un analista del Congreso Nacional de Chile. Clasifica la lista de materias legislativas en uno o más ámbitos temáticos.\n")
	b.WriteString("Responde SOLAMENTE con un objeto JSON. Un proyecto puede tener varios ámbitos. Usa \"no cumple\" solo si ningún otro aplica.\n")
	b.WriteString("Ámbitos válidos:\n")
	for _, area := range SubjectAreas {
		b.WriteString("- " + area + "\n")
	}
	b.WriteString(`Formato: {"materias_originales": "<texto recibido>", "ambitos_detectados": ["<ámbito>"]}`)
	return b.String()
}

// BioFields are the structured fields extracted from a biography.
type BioFields struct {
	Birthplace     string   `json:"lugar_nacimiento"`
	BirthDate      string   `json:"fecha_nacimiento"`
	Father         string   `json:"padre"`
	Mother         string   `json:"madre"`
	CivilStatus    string   `json:"estado_civil"`
	Children       *int     `json:"numero_total_hijos"`
	Schools        []string `json:"colegios"`
	University     string   `json:"universidad"`
	Career         string   `json:"carrera"`
	EducationLevel string   `json:"maximo_nivel_educativo"`
	Jobs           []string `json:"trabajo"`
}

var BioColumns = []string{
	"lugar_nacimiento", "fecha_nacimiento", "padre", "madre", "estado_civil",
	"numero_total_hijos", "colegios", "universidad", "carrera",
	"maximo_nivel_educativo", "trabajo",
}

// Row renders the fields in BioColumns order. Lists are stored as JSON.
func (f BioFields) Row() map[string]string {
	children := ""
	if f.Children != nil {
		children = strconv.Itoa(*f.Children)
	}
	return map[string]string{
		"lugar_nacimiento":       f.Birthplace,
		"fecha_nacimiento":       f.BirthDate,
		"padre":                  f.Father,
		"madre":                  f.Mother,
		"estado_civil":           f.CivilStatus,
		"numero_total_hijos":     children,
		"colegios":               jsonList(f.Schools),
		"universidad":            f.University,
		"carrera":                f.Career,
		"maximo_nivel_educativo": f.EducationLevel,
		"trabajo":                jsonList(f.Jobs),
	}
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	blob, _ := json.Marshal(items)
	return string(blob)
}

type SubjectAreasResult struct {
	Subjects string   `json:"materias_originales"`
	Areas    []string `json:"ambitos_detectados"`
}

// CleanJSON strips markdown fences and any prose before the first brace.
func CleanJSON(content string) (string, error) {
	s := strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(s, "```"); ok {
		s = strings.TrimSpace(rest)
	}
	i := strings.Index(s, "{")
	if i < 0 {
		return "", ErrNoJSON
	}
	return s[i:], nil
}

type Poster interface {
	Post(ctx context.Context, rawURL, contentType string, body []byte, headers map[string]string) (fetch.Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// Client talks to the Ollama /api/chat endpoint through the fetch client.
type Client struct {
	poster  Poster
	baseURL string
	model   string
	log     zerolog.Logger
}

func NewClient(poster Poster, host, model string, log zerolog.Logger) *Client {
	return &Client{
		poster:  poster,
		baseURL: strings.TrimRight(host, "/"),
		model:   model,
		log:     log,
	}
}

// Chat sends one system+user exchange at temperature 0 and returns the
// assistant content.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	blob, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: map[string]any{"temperature": 0.0},
	})
	if err != nil {
		return "", err
	}
	resp, err := c.poster.Post(ctx, c.baseURL+"/api/chat", "application/json", blob, nil)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("ollama chat: decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", out.Error)
	}
	return strings.TrimSpace(out.Message.Content), nil
}

func (c *Client) chatJSON(ctx context.Context, system, user string, dst any) error {
	content, err := c.Chat(ctx, system, user)
	if err != nil {
		return err
	}
	clean, err := CleanJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(clean), dst); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// ExtractBio asks the model for BioFields. Texts shorter than MinBioLength
// are not sent; longer ones are cut at MaxBioLength runes.
func (c *Client) ExtractBio(ctx context.Context, text string) (BioFields, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinBioLength {
		return BioFields{}, ErrTextTooShort
	}
	if r := []rune(text); len(r) > MaxBioLength {
		text = string(r[:MaxBioLength])
	}

	var fields BioFields
	if err := c.chatJSON(ctx, bioPrompt, text, &fields); err != nil {
		c.log.Warn().Err(err).Msg("bio extraction failed")
		return BioFields{}, err
	}
	return fields, nil
}

// ClassifySubjects maps a bill's subject list onto SubjectAreas. Areas the
// model invents are dropped; an empty result becomes "no cumple".
func (c *Client) ClassifySubjects(ctx context.Context, subjects []string) (SubjectAreasResult, error) {
	joined := strings.Join(subjects, "; ")
	if strings.TrimSpace(joined) == "" {
		return SubjectAreasResult{}, ErrTextTooShort
	}

	var res SubjectAreasResult
	if err := c.chatJSON(ctx, subjectsPrompt(), joined, &res); err != nil {
		return SubjectAreasResult{}, err
	}

	valid := make(map[string]bool, len(SubjectAreas))
	for _, a := range SubjectAreas {
		valid[a] = true
	}
	kept := res.Areas[:0]
	for _, a := range res.Areas {
		if valid[a] {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		kept = []string{"no cumple"}
	}
	res.Areas = kept
	res.Subjects = joined
	return res, nil
}
