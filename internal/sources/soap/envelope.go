package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"congreso/internal/sources/fetch"
	"congreso/internal/sources/xmlmap"
)

const envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// ErrFault is wrapped by errors built from a SOAP Fault element.
var ErrFault = errors.New("soap fault")

type Param struct {
	Name  string
	Value string
}

// Poster is the subset of the fetch client used to send envelopes.
type Poster interface {
	Post(ctx context.Context, rawURL, contentType string, body []byte, headers map[string]string) (fetch.Response, error)
}

// Client calls document/literal operations of an ASMX-style service.
type Client struct {
	poster    Poster
	endpoint  string
	namespace string
	forceList []string
}

func NewClient(poster Poster, endpoint, namespace string, forceList ...string) *Client {
	return &Client{poster: poster, endpoint: endpoint, namespace: namespace, forceList: forceList}
}

// Call invokes op and returns the serialized <op>Result element. A result
// holding a single repeated child is returned as that sequence.
func (c *Client) Call(ctx context.Context, op string, params ...Param) (Value, error) {
	body := BuildEnvelope(c.namespace, op, params...)
	action := strings.TrimRight(c.namespace, "/") + "/" + op
	resp, err := c.poster.Post(ctx, c.endpoint, "text/xml; charset=utf-8", body, map[string]string{"SOAPAction": `"` + action + `"`})
	if err != nil && len(resp.Body) == 0 {
		return Value{}, fmt.Errorf("%s: %w", op, err)
	}
	result, perr := ParseResponse(resp.Body, op, c.forceList...)
	if perr != nil {
		return Value{}, fmt.Errorf("%s: %w", op, perr)
	}
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func BuildEnvelope(namespace, op string, params ...Param) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap:Envelope xmlns:soap="` + envelopeNS + `"><soap:Body>`)
	b.WriteString(`<` + op + ` xmlns="`)
	_ = xml.EscapeText(&b, []byte(namespace))
	b.WriteString(`">`)
	for _, p := range params {
		b.WriteString("<" + p.Name + ">")
		_ = xml.EscapeText(&b, []byte(p.Value))
		b.WriteString("</" + p.Name + ">")
	}
	b.WriteString(`</` + op + `></soap:Body></soap:Envelope>`)
	return b.Bytes()
}

// ParseResponse extracts the result of op from a response envelope.
func ParseResponse(body []byte, op string, forceList ...string) (Value, error) {
	root, err := xmlmap.Decode(bytes.NewReader(body), xmlmap.Options{ForceList: forceList})
	if err != nil {
		return Value{}, fmt.Errorf("decode envelope: %w", err)
	}
	bodyNode, ok := xmlmap.Path(root, "Envelope", "Body")
	if !ok {
		return Value{}, errors.New("response has no soap body")
	}
	if fault, ok := xmlmap.Path(bodyNode, "Fault"); ok {
		msg, _ := xmlmap.Path(fault, "faultstring")
		return Value{}, fmt.Errorf("%w: %s", ErrFault, xmlmap.Text(msg))
	}
	result, ok := xmlmap.Path(bodyNode, op+"Response", op+"Result")
	if !ok {
		return Value{Kind: Null}, nil
	}
	return unwrap(Serialize(result)), nil
}

func unwrap(v Value) Value {
	if (v.Kind == Mapping || v.Kind == Object) && len(v.Fields) == 1 && v.Fields[0].Value.Kind == Sequence {
		return v.Fields[0].Value
	}
	return v
}
