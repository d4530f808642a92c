package soap

import (
	"context"
	"strconv"
	"strings"

	"congreso/internal/dataset"
)

const CamaraNamespace = "http://opendata.camara.cl/camaradiputados/v1"

var camaraLists = []string{
	"PeriodoLegislativo", "Legislatura", "DiputadoPeriodo", "Militancia",
	"Votacion", "Voto",
}

// Camara wraps the Chamber of Deputies open-data services.
type Camara struct {
	diputados   *Client
	legislativo *Client
}

// NewCamara builds clients for WSDiputado.asmx and WSLegislativo.asmx
// under baseURL.
func NewCamara(poster Poster, baseURL string) *Camara {
	base := strings.TrimRight(baseURL, "/")
	return &Camara{
		diputados:   NewClient(poster, base+"/WSDiputado.asmx", CamaraNamespace, camaraLists...),
		legislativo: NewClient(poster, base+"/WSLegislativo.asmx", CamaraNamespace, camaraLists...),
	}
}

// Legislaturas lists legislative periods, one row per legislature.
func (c *Camara) Legislaturas(ctx context.Context) (*dataset.Table, error) {
	v, err := c.diputados.Call(ctx, "retornarPeriodosLegislativos")
	if err != nil {
		return nil, err
	}
	return ToTable(Explode(v, "Legislaturas.Legislatura")), nil
}

// Diputados lists the deputies of a period, one row per party membership.
func (c *Camara) Diputados(ctx context.Context, periodoID string) (*dataset.Table, error) {
	v, err := c.diputados.Call(ctx, "retornarDiputadosXPeriodo", Param{Name: "prmPeriodoId", Value: periodoID})
	if err != nil {
		return nil, err
	}
	return ToTable(Explode(v, "Diputado.Militancias.Militancia")), nil
}

func (c *Camara) Votaciones(ctx context.Context, year int) (*dataset.Table, error) {
	v, err := c.legislativo.Call(ctx, "retornarVotacionesXAnno", Param{Name: "prmAnno", Value: strconv.Itoa(year)})
	if err != nil {
		return nil, err
	}
	return ToTable(FlattenAll(v)), nil
}

// VotacionDetalle returns one row per individual vote of a division.
func (c *Camara) VotacionDetalle(ctx context.Context, votacionID string) (*dataset.Table, error) {
	v, err := c.legislativo.Call(ctx, "retornarVotacionDetalle", Param{Name: "prmVotacionId", Value: votacionID})
	if err != nil {
		return nil, err
	}
	return ToTable(Explode(v, "Votos.Voto")), nil
}
