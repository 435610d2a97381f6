package web

import (
	"bytes"
	"html/template"

	"github.com/calmgrid/tictactoe/internal/domain"
)

type templates struct {
	base  *template.Template
	game  *template.Template
	board *template.Template
	index *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"iter": func(n int) []int {
			a := make([]int, n)
			for i := range a {
				a[i] = i
			}
			return a
		},
		"cellSymbol": func(c domain.Mark) string {
			switch c {
			case domain.X:
				return "X"
			case domain.O:
				return "O"
			default:
				return ""
			}
		},
		"add": func(a, b int) int { return a + b },
		"mul": func(a, b int) int { return a * b },
	}
}

func loadTemplates() *templates {
	// Minimal inline templates; can be replaced by file loading later.
	base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic-Tac-Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(
		`<h1>Tic-Tac-Toe</h1><p>Play against the engine. You are X.</p><form action="/game" method="post"><button>New game</button></form>`))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<div hx-ext="sse" hx-sse="connect:/game/{{.ID}}/events">
  <div id="board" hx-sse="swap:board">{{.BoardHTML}}</div>
</div>`))
	// Standalone board template used for fragment rendering and broadcasts
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	return &templates{base: base, game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

// boardData feeds the board fragment.
type boardData struct {
	ID     string
	Cells  [9]domain.Mark
	Status string
	Depth  int
	Error  string
}

const boardTemplate = `
<div id="board">
  <div class="status">{{.Status}}</div>
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  {{range $r := iter 3}}
  <div class="row">
    {{range $c := iter 3}}
      <form hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post">
        <input type="hidden" name="cell" value="{{add (mul $r 3) $c}}">
        <button type="submit">{{cellSymbol (index $.Cells (add (mul $r 3) $c))}}</button>
      </form>
    {{end}}
  </div>
  {{end}}
  <div class="controls">
    <form hx-post="/game/{{$.ID}}/undo" hx-target="#board" hx-swap="outerHTML" method="post"><button>Undo</button></form>
    <form hx-post="/game/{{$.ID}}/restart" hx-target="#board" hx-swap="outerHTML" method="post"><button>Restart</button></form>
    <form hx-post="/game/{{$.ID}}/difficulty" hx-target="#board" hx-swap="outerHTML" method="post">
      <label>Difficulty
        <select name="depth">
          {{range $d := iter 9}}
          <option value="{{add $d 1}}"{{if eq (add $d 1) $.Depth}} selected{{end}}>{{add $d 1}}</option>
          {{end}}
        </select>
      </label>
      <button type="submit">Set</button>
    </form>
  </div>
</div>
`
