package soap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal/sources/fetch"
	"congreso/internal/sources/xmlmap"
)

type fakePoster struct {
	lastURL  string
	lastBody string
	headers  map[string]string
	reply    string
	status   int
	err      error
}

func (f *fakePoster) Post(_ context.Context, rawURL, _ string, body []byte, headers map[string]string) (fetch.Response, error) {
	f.lastURL = rawURL
	f.lastBody = string(body)
	f.headers = headers
	status := f.status
	if status == 0 {
		status = 200
	}
	return fetch.Response{Status: status, Body: []byte(f.reply)}, f.err
}

type person struct {
	name string
	age  int
}

func (p person) EnumerateFields(yield func(string, any)) {
	yield("Nombre", p.name)
	yield("Edad", p.age)
}

func TestSerializeClosedVariants(t *testing.T) {
	v := Serialize(map[string]any{
		"b":      nil,
		"a":      []any{"x", 1, true},
		"obj":    person{name: "Ana", age: 40},
		"nested": map[string]any{"k": 1.5},
	})
	require.Equal(t, Mapping, v.Kind)
	assert.Equal(t, []string{"a", "b", "nested", "obj"}, fieldNames(v))

	a, _ := v.Get("a")
	assert.Equal(t, Sequence, a.Kind)
	assert.Equal(t, "1", a.Items[1].Text)
	assert.Equal(t, "true", a.Items[2].Text)

	b, _ := v.Get("b")
	assert.True(t, b.IsNull())

	obj, _ := v.Get("obj")
	assert.Equal(t, Object, obj.Kind)
	age, ok := v.Lookup("obj.Edad")
	require.True(t, ok)
	assert.Equal(t, "40", age.Text)

	k, ok := v.Lookup("nested.k")
	require.True(t, ok)
	assert.Equal(t, "1.5", k.Text)

	_, ok = v.Lookup("nested.missing")
	assert.False(t, ok)
}

func fieldNames(v Value) []string {
	out := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = f.Name
	}
	return out
}

func TestFlatten(t *testing.T) {
	rec := Flatten(Serialize(map[string]any{
		"Id":      "7",
		"Partido": map[string]any{"Nombre": "X", "Sigla": nil},
		"Tags":    []any{"a", "b"},
	}))
	assert.Equal(t, []string{"Id", "Partido.Nombre", "Partido.Sigla", "Tags"}, rec.Columns)
	assert.Equal(t, "X", rec.Get("Partido.Nombre"))
	assert.Equal(t, "", rec.Get("Partido.Sigla"))
	assert.Equal(t, `["a","b"]`, rec.Get("Tags"))
}

const diputadosResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<retornarDiputadosXPeriodoResponse xmlns="http://opendata.camara.cl/camaradiputados/v1">
<retornarDiputadosXPeriodoResult>
  <DiputadoPeriodo>
    <Diputado>
      <Id>1008</Id>
      <Nombre>Juan</Nombre>
      <ApellidoPaterno>Pérez</ApellidoPaterno>
      <Militancias>
        <Militancia><Partido><Nombre>Partido A</Nombre></Partido><FechaInicio>2018-03-11</FechaInicio></Militancia>
        <Militancia><Partido><Nombre>Partido B</Nombre></Partido><FechaInicio>2020-01-01</FechaInicio></Militancia>
      </Militancias>
    </Diputado>
    <Distrito><Numero>7</Numero></Distrito>
  </DiputadoPeriodo>
  <DiputadoPeriodo>
    <Diputado>
      <Id>1009</Id>
      <Nombre>Ana</Nombre>
      <Militancias/>
    </Diputado>
  </DiputadoPeriodo>
</retornarDiputadosXPeriodoResult>
</retornarDiputadosXPeriodoResponse>
</soap:Body>
</soap:Envelope>`

func TestCamaraDiputadosExplodesMilitancias(t *testing.T) {
	poster := &fakePoster{reply: diputadosResponse}
	c := NewCamara(poster, "https://opendata.camara.cl/camaradiputados/WServices/")

	tbl, err := c.Diputados(context.Background(), "9")
	require.NoError(t, err)

	assert.Equal(t, "https://opendata.camara.cl/camaradiputados/WServices/WSDiputado.asmx", poster.lastURL)
	assert.Contains(t, poster.lastBody, "<prmPeriodoId>9</prmPeriodoId>")
	assert.Equal(t, `"`+CamaraNamespace+`/retornarDiputadosXPeriodo"`, poster.headers["SOAPAction"])

	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "1008", tbl.Get(0, "Diputado.Id"))
	assert.Equal(t, "Partido A", tbl.Get(0, "Partido.Nombre"))
	assert.Equal(t, "Partido B", tbl.Get(1, "Partido.Nombre"))
	assert.Equal(t, "7", tbl.Get(1, "Distrito.Numero"))
	assert.Equal(t, "1009", tbl.Get(2, "Diputado.Id"))
	assert.Equal(t, "", tbl.Get(2, "Partido.Nombre"))
	assert.False(t, tbl.HasColumn("Diputado.Militancias.Militancia"))
}

func TestExplodeRenamesCollidingColumns(t *testing.T) {
	v := Serialize([]any{map[string]any{
		"Id":    "1",
		"Votos": map[string]any{"Voto": []any{map[string]any{"Id": "a", "Opcion": "Afirmativo"}}},
	}})
	rows := Explode(v, "Votos.Voto")
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Get("Id"))
	assert.Equal(t, "a", rows[0].Get("Votos.Voto.Id"))
	assert.Equal(t, "Afirmativo", rows[0].Get("Opcion"))
}

func TestCallReturnsFault(t *testing.T) {
	poster := &fakePoster{status: 500, err: errors.New("status=500"), reply: `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><soap:Fault><faultcode>soap:Server</faultcode><faultstring>Periodo no existe</faultstring></soap:Fault></soap:Body></soap:Envelope>`}
	c := NewClient(poster, "https://example.test/ws", CamaraNamespace)

	_, err := c.Call(context.Background(), "retornarDiputadosXPeriodo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFault)
	assert.Contains(t, err.Error(), "Periodo no existe")
}

func TestBuildEnvelopeEscapes(t *testing.T) {
	body := string(BuildEnvelope("urn:x", "op", Param{Name: "q", Value: "a<b&c"}))
	assert.True(t, strings.HasPrefix(body, `<?xml`))
	assert.Contains(t, body, "<q>a&lt;b&amp;c</q>")

	root, err := xmlmap.DecodeString(body, xmlmap.Options{})
	require.NoError(t, err)
	q, _ := xmlmap.Path(root, "Envelope", "Body", "op", "q")
	assert.Equal(t, "a<b&c", q)
}

func TestParseResponseMissingResult(t *testing.T) {
	v, err := ParseResponse([]byte(`<Envelope><Body><otherResponse/></Body></Envelope>`), "op")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = ParseResponse([]byte(`<html/>`), "op")
	assert.Error(t, err)
}
