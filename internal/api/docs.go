package api

import (
	"html/template"
	"log/slog"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
)

type docsOperation struct {
	ID      string
	Method  string
	Path    string
	Summary string
}

type docsLink struct {
	Path  string
	Label string
}

type docsPage struct {
	Title      string
	Operations []docsOperation
	Streams    []docsLink
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { margin: 0; display: flex; height: 100vh; background: #0d1117; color: #c9d1d9;
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; }
    nav { width: 300px; overflow-y: auto; border-right: 1px solid #30363d; padding: 12px 16px; font-size: 12px; }
    nav h1 { font-size: 14px; margin: 0 0 12px; }
    nav h2 { font-size: 11px; text-transform: uppercase; color: #8b949e; margin: 16px 0 6px; }
    nav a { color: #58a6ff; text-decoration: none; }
    nav li { list-style: none; margin: 0 0 8px; }
    nav ul { padding: 0; margin: 0; }
    .method { display: inline-block; width: 52px; font-weight: 600; color: #7ee787; }
    .summary { display: block; color: #8b949e; margin-left: 52px; }
    main { flex: 1; position: relative; }
  </style>
</head>
<body>
  <nav>
    <h1>{{.Title}}</h1>
    <h2>Operations</h2>
    <ul>
    {{- range .Operations}}
      <li><a href="#/operations/{{.ID}}"><span class="method">{{.Method}}</span>{{.Path}}</a><span class="summary">{{.Summary}}</span></li>
    {{- end}}
    </ul>
    {{- if .Streams}}
    <h2>Streams</h2>
    <ul>
    {{- range .Streams}}
      <li><a href="{{.Path}}">{{.Path}}</a><span class="summary" style="margin-left:0">{{.Label}}</span></li>
    {{- end}}
    </ul>
    {{- end}}
  </nav>
  <main>
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="responsive"
      hideInternal
      tryItCredentialsPolicy="same-origin"
      darkMode
    />
  </main>
</body>
</html>`))

// listOperations flattens the registered OpenAPI paths, ordered by path and
// then method.
func listOperations(oapi *huma.OpenAPI) []docsOperation {
	var ops []docsOperation
	for path, item := range oapi.Paths {
		for _, m := range []struct {
			method string
			op     *huma.Operation
		}{
			{http.MethodGet, item.Get},
			{http.MethodPost, item.Post},
			{http.MethodPut, item.Put},
			{http.MethodPatch, item.Patch},
			{http.MethodDelete, item.Delete},
		} {
			if m.op == nil {
				continue
			}
			ops = append(ops, docsOperation{ID: m.op.OperationID, Method: m.method, Path: path, Summary: m.op.Summary})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

func docsHandler(oapi *huma.OpenAPI, streams []docsLink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := docsPage{Title: oapi.Info.Title, Operations: listOperations(oapi), Streams: streams}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := docsTemplate.Execute(w, page); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	}
}
