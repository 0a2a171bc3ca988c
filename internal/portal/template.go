package portal

import (
	"html/template"
	"io"
)

var formTmpl = template.Must(template.New("form").Parse(formHTML))
var savedTmpl = template.Must(template.New("saved").Parse(savedHTML))

const styleHTML = `<style>
body { font-family: monospace; max-width: 420px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
label { display: block; margin: 1em 0 0.25em; }
input { width: 100%; padding: 6px; box-sizing: border-box; }
button { margin-top: 1.5em; padding: 8px 16px; }
.error { color: red; margin-top: 1em; }
.ok { color: green; }
</style>`

const formHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.APName}} setup</title>
` + styleHTML + `
</head>
<body>
<h1>{{.APName}}</h1>
<p>This device is not connected to a network. Enter the credentials of the
network it should join.</p>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="POST" action="/save">
<label for="ssid">Network name (SSID)</label>
<input id="ssid" name="ssid" required autofocus>
<label for="password">Password</label>
<input id="password" name="password" type="password">
<button type="submit">Connect</button>
</form>
</body>
</html>
`

const savedHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.APName}} setup</title>
` + styleHTML + `
</head>
<body>
<h1>{{.APName}}</h1>
<p class="ok">Credentials for <b>{{.SSID}}</b> received.</p>
<p>The device will now try to join the network. This access point disappears
once the connection succeeds; if it comes back, the credentials did not work.</p>
</body>
</html>
`

func renderForm(w io.Writer, apName, errMsg string) {
	formTmpl.Execute(w, struct {
		APName string
		Error  string
	}{apName, errMsg})
}

func renderSaved(w io.Writer, apName, ssid string) {
	savedTmpl.Execute(w, struct {
		APName string
		SSID   string
	}{apName, ssid})
}
