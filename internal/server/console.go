package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sofatutor/imagegen-proxy/internal/catalog"
	"go.uber.org/zap"
)

var consoleTemplate = template.Must(template.New("console").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>imagegen-proxy {{.Version}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #222; }
textarea, input, select { width: 100%; box-sizing: border-box; margin: .25rem 0 .75rem; padding: .4rem; }
button { padding: .5rem 1.5rem; }
pre { background: #f4f4f4; padding: .75rem; overflow: auto; max-height: 24rem; font-size: .8rem; }
#images img { max-width: 45%; margin: .25rem; }
.muted { color: #777; }
</style>
</head>
<body>
<h1>imagegen-proxy <span class="muted">{{.Version}}</span></h1>
<p>Storage: <code>{{.Storage}}</code> &middot; Auth: {{if .OpenAccess}}<strong>open access</strong>{{else}}bearer key required{{end}}</p>
<p class="muted">Endpoints: POST /v1/chat/completions, POST /v1/images/generations, GET /v1/models, GET /v1/styles, GET /v1/history, GET /v1/history/stats, GET /v1/history/export</p>

<label>API key <input id="key" type="password" placeholder="{{if .OpenAccess}}not required{{end}}"></label>
<label>Model <select id="model">{{range .Models}}<option value="{{.ID}}">{{.ID}}</option>{{end}}</select></label>
<label>Style <select id="style"><option value="">none</option>{{range .Styles}}<option value="{{.ID}}">{{.Name}}</option>{{end}}</select></label>
<label>Aspect ratio <select id="size"><option>1:1</option><option>16:9</option><option>9:16</option></select></label>
<label>Images <input id="n" type="number" min="1" max="{{.MaxOutputs}}" value="1"></label>
<label>Prompt <textarea id="prompt" rows="3"></textarea></label>
<button id="go">Generate</button>

<div id="images"></div>
<h3>Request log</h3>
<pre id="log"></pre>

<script>
document.getElementById('go').onclick = async () => {
  const log = document.getElementById('log');
  const images = document.getElementById('images');
  log.textContent = ''; images.innerHTML = '';
  const headers = {'Content-Type': 'application/json'};
  const key = document.getElementById('key').value;
  if (key) headers['Authorization'] = 'Bearer ' + key;
  const body = {
    model: document.getElementById('model').value,
    style: document.getElementById('style').value,
    size: document.getElementById('size').value,
    n: parseInt(document.getElementById('n').value, 10) || 1,
    stream: true, is_web_ui: true,
    messages: [{role: 'user', content: document.getElementById('prompt').value}]
  };
  const res = await fetch('/v1/chat/completions', {method: 'POST', headers, body: JSON.stringify(body)});
  if (!res.ok) { log.textContent = JSON.stringify(await res.json(), null, 2); return; }
  const text = await res.text();
  for (const line of text.split('\n')) {
    if (!line.startsWith('data: ') || line === 'data: [DONE]') continue;
    const evt = JSON.parse(line.slice(6));
    if (evt.debug) { log.textContent = JSON.stringify(evt.debug, null, 2); continue; }
    const content = evt.choices && evt.choices[0].delta.content;
    if (!content) continue;
    for (const m of content.matchAll(/!\[[^\]]*\]\(([^)]+)\)/g)) {
      const img = document.createElement('img'); img.src = m[1]; images.appendChild(img);
    }
  }
};
</script>
</body>
</html>
`))

type consoleData struct {
	Version    string
	Storage    string
	OpenAccess bool
	Models     []catalog.Model
	Styles     []catalog.Style
	MaxOutputs int
}

func (s *Server) handleConsole(c *gin.Context) {
	var buf bytes.Buffer
	err := consoleTemplate.Execute(&buf, consoleData{
		Version:    Version,
		Storage:    s.store.Backend(),
		OpenAccess: s.config.OpenAccess(),
		Models:     s.catalog.Models(),
		Styles:     s.catalog.Styles(),
		MaxOutputs: catalog.MaxOutputs,
	})
	if err != nil {
		s.logger.Error("Failed to render console", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to render console", "internal_error", 0)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
