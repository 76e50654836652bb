package api

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"

	"fuelstation/internal/models"
)

//go:embed openapi/openapi.yaml
var openAPISpec []byte

// openAPIDocument is the OpenAPI document as served by one process: info.version names
// the running build and the ETag identifies those exact bytes.
type openAPIDocument struct {
	body []byte
	etag string
}

func newOpenAPIDocument(build string) openAPIDocument {
	body, err := stampVersion(openAPISpec, build)
	if err != nil {
		slog.Warn("Serving unstamped OpenAPI document", "error", err, "version", build)
		body = openAPISpec
	}
	sum := sha256.Sum256(body)
	return openAPIDocument{body: body, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}
}

// stampVersion rewrites info.version to build. Development builds keep the
// version written in the document.
func stampVersion(spec []byte, build string) ([]byte, error) {
	if build == "" || build == "unknown" {
		return spec, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("empty openapi document")
	}
	version := mappingValue(mappingValue(doc.Content[0], "info"), "version")
	if version == nil {
		return nil, errors.New("openapi document has no info.version")
	}
	version.Value = build
	version.Tag = "!!str"
	version.Style = yaml.DoubleQuotedStyle

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func (h *Handlers) openAPI() openAPIDocument {
	h.specOnce.Do(func() { h.spec = newOpenAPIDocument(h.version.Version) })
	return h.spec
}

// ServeOpenAPISpec serves the OpenAPI 3.0.3 document as YAML, stamped with
// the running build version.
func (h *Handlers) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	doc := h.openAPI()
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", doc.etag)
	if r.Header.Get("If-None-Match") == doc.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.body)
}

var swaggerUI = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Fuel Station API {{.Version}} - Documentation</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: {{.SpecURL}},
      dom_id: '#swagger-ui',
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: 'BaseLayout',
      deepLinking: true,
      displayRequestDuration: true
    });
  </script>
</body>
</html>`))

// ServeSwaggerUI serves an interactive Swagger UI that loads the OpenAPI spec.
func (h *Handlers) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := swaggerUI.Execute(&buf, struct {
		Version string
		SpecURL string
	}{
		Version: h.version.Version,
		SpecURL: "/api/v1/openapi.yaml",
	})
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "failed to render documentation")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
