package document

import (
	"context"
	"errors"
	"fmt"

	"edihub/internal/domain"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

type Writer interface {
	Render(ctx context.Context, format domain.DocumentFormat, header Header, messages []Message) ([]byte, error)
}

type Renderer interface {
	Render(header Header, messages []Message) ([]byte, error)
}

type RendererFunc func(header Header, messages []Message) ([]byte, error)

func (f RendererFunc) Render(header Header, messages []Message) ([]byte, error) {
	return f(header, messages)
}

// Registry dispatches to the renderer registered for a format.
type Registry struct {
	renderers map[domain.DocumentFormat]Renderer
}

// NewRegistry returns a registry with the Json, Xml and Ebix renderers.
func NewRegistry() *Registry {
	r := &Registry{renderers: map[domain.DocumentFormat]Renderer{}}
	r.Register(domain.FormatJSON, RendererFunc(renderJSON))
	r.Register(domain.FormatXML, RendererFunc(renderXML))
	r.Register(domain.FormatEbix, RendererFunc(renderEbix))
	return r
}

func (r *Registry) Register(format domain.DocumentFormat, renderer Renderer) {
	r.renderers[format] = renderer
}

func (r *Registry) Render(ctx context.Context, format domain.DocumentFormat, header Header, messages []Message) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	renderer, ok := r.renderers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("render %s: bundle %s has no messages", format, header.DocumentID)
	}
	if _, ok := documentTypeCodes[header.DocumentType]; !ok {
		return nil, fmt.Errorf("%w: unknown document type %q", domain.ErrValidation, header.DocumentType)
	}
	return renderer.Render(header, messages)
}

// rootName is the CIM market document element for a document type.
func rootName(d domain.DocumentType) string {
	return string(d) + "_MarketDocument"
}
