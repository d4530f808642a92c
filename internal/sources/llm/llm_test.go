package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal/sources/fetch"
)

type fakePoster struct {
	url     string
	request chatRequest
	reply   string
	err     error
}

func (f *fakePoster) Post(_ context.Context, rawURL, _ string, body []byte, _ map[string]string) (fetch.Response, error) {
	f.url = rawURL
	if err := json.Unmarshal(body, &f.request); err != nil {
		return fetch.Response{}, err
	}
	if f.err != nil {
		return fetch.Response{}, f.err
	}
	blob, _ := json.Marshal(chatResponse{Message: Message{Role: "assistant", Content: f.reply}})
	return fetch.Response{Status: 200, Body: blob}, nil
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": 1}\n```":      `{"a": 1}`,
		"Aquí está el JSON: {\"a\": 1}": `{"a": 1}`,
		"  {\"a\": 1}  ":                `{"a": 1}`,
		"```\n{\"a\": [1, 2]}```":       `{"a": [1, 2]}`,
	}
	for in, want := range cases {
		got, err := CleanJSON(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := CleanJSON("no hay datos")
	assert.ErrorIs(t, err, ErrNoJSON)
}

const bioText = "Nació en Melipilla el 3 de mayo de 1970. Estudió en el Instituto Nacional y se tituló de abogado en la Universidad de Chile."

func TestExtractBio(t *testing.T) {
	p := &fakePoster{reply: "```json\n" + `{
		"lugar_nacimiento": "Melipilla",
		"fecha_nacimiento": "1970-05-03",
		"padre": null,
		"estado_civil": "Casado",
		"numero_total_hijos": 3,
		"colegios": ["Instituto Nacional"],
		"universidad": "Universidad de Chile",
		"carrera": "Derecho",
		"maximo_nivel_educativo": "Educación Universitaria",
		"trabajo": []
	}` + "\n```"}
	c := NewClient(p, "http://ollama:11434/", "llama3:instruct", zerolog.Nop())

	fields, err := c.ExtractBio(context.Background(), bioText)
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434/api/chat", p.url)
	assert.Equal(t, "llama3:instruct", p.request.Model)
	assert.False(t, p.request.Stream)
	assert.Equal(t, 0.0, p.request.Options["temperature"])
	require.Len(t, p.request.Messages, 2)
	assert.Equal(t, "system", p.request.Messages[0].Role)
	assert.Equal(t, bioText, p.request.Messages[1].Content)

	assert.Equal(t, "Melipilla", fields.Birthplace)
	require.NotNil(t, fields.Children)
	assert.Equal(t, 3, *fields.Children)

	row := fields.Row()
	assert.Equal(t, `["Instituto Nacional"]`, row["colegios"])
	assert.Equal(t, `[]`, row["trabajo"])
	assert.Equal(t, "3", row["numero_total_hijos"])
	assert.Equal(t, "", row["padre"])
	assert.Len(t, row, len(BioColumns))
}

func TestExtractBioShortAndLongText(t *testing.T) {
	p := &fakePoster{reply: `{}`}
	c := NewClient(p, "http://ollama:11434", "m", zerolog.Nop())

	_, err := c.ExtractBio(context.Background(), "Abogado.")
	assert.ErrorIs(t, err, ErrTextTooShort)
	assert.Empty(t, p.url, "short texts are not sent")

	long := strings.Repeat("á", MaxBioLength+100)
	_, err = c.ExtractBio(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, MaxBioLength, len([]rune(p.request.Messages[1].Content)))
}

func TestExtractBioErrors(t *testing.T) {
	c := NewClient(&fakePoster{err: errors.New("connection refused")}, "http://ollama", "m", zerolog.Nop())
	_, err := c.ExtractBio(context.Background(), bioText)
	assert.ErrorContains(t, err, "connection refused")

	c = NewClient(&fakePoster{reply: "no sé"}, "http://ollama", "m", zerolog.Nop())
	_, err = c.ExtractBio(context.Background(), bioText)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestClassifySubjects(t *testing.T) {
	p := &fakePoster{reply: `{"materias_originales": "x", "ambitos_detectados": ["Trabajo y Previsión", "Astrología", "Economía y Hacienda"]}`}
	c := NewClient(p, "http://ollama", "m", zerolog.Nop())

	res, err := c.ClassifySubjects(context.Background(), []string{"REAJUSTE DE REMUNERACIONES", "SECTOR PUBLICO"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Trabajo y Previsión", "Economía y Hacienda"}, res.Areas)
	assert.Equal(t, "REAJUSTE DE REMUNERACIONES; SECTOR PUBLICO", res.Subjects)
	assert.Contains(t, p.request.Messages[0].Content, "Derechos Humanos y Género")

	p.reply = `{"ambitos_detectados": ["Astrología"]}`
	res, err = c.ClassifySubjects(context.Background(), []string{"OTRA COSA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"no cumple"}, res.Areas)

	_, err = c.ClassifySubjects(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTextTooShort)
}
