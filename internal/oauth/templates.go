package oauth

import (
	"bytes"
	"html/template"
)

// baseCSS is shared by every rendered callback page: accessible contrast,
// dark mode via prefers-color-scheme, reduced-motion opt-out, and a
// responsive single-column layout for narrow popup windows.
const baseCSS = `
  :root { color-scheme: light dark; }
  * { box-sizing: border-box; }
  body {
    margin: 0; min-height: 100vh; display: flex; align-items: center; justify-content: center;
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #f5f5f7; color: #1d1d1f;
  }
  .card {
    max-width: 420px; width: 90%; padding: 2.5rem 2rem; border-radius: 16px;
    background: #ffffff; box-shadow: 0 2px 24px rgba(0,0,0,0.08); text-align: center;
  }
  .icon { width: 56px; height: 56px; margin: 0 auto 1.25rem; }
  .icon-success { color: #1db954; }
  .icon-error { color: #e0383e; }
  h1 { font-size: 1.25rem; margin: 0 0 0.5rem; }
  p { font-size: 0.95rem; color: #6e6e73; margin: 0; line-height: 1.5; }
  @media (prefers-color-scheme: dark) {
    body { background: #000; color: #f5f5f7; }
    .card { background: #1c1c1e; box-shadow: 0 2px 24px rgba(0,0,0,0.4); }
    p { color: #98989d; }
  }
  @media (prefers-reduced-motion: reduce) {
    * { animation: none !important; transition: none !important; }
  }
  @media (max-width: 480px) {
    .card { padding: 2rem 1.5rem; }
  }
`

const successTemplateSrc = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Authentication Successful</title>
  <style>{{.CSS}}</style>
</head>
<body>
  <main class="card" role="main" aria-live="polite">
    <svg class="icon icon-success" aria-hidden="true" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2">
      <circle cx="12" cy="12" r="10"></circle>
      <path d="M8 12l3 3 5-6"></path>
    </svg>
    <h1>Authentication Successful</h1>
    <p>You can close this window and return to your terminal.</p>
  </main>
  <script>
    setTimeout(function() { window.close(); }, 2000);
  </script>
</body>
</html>`

const errorTemplateSrc = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Authentication Failed</title>
  <style>{{.CSS}}</style>
</head>
<body>
  <main class="card" role="main" aria-live="polite">
    <svg class="icon icon-error" aria-hidden="true" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2">
      <circle cx="12" cy="12" r="10"></circle>
      <path d="M15 9l-6 6M9 9l6 6"></path>
    </svg>
    <h1>Authentication Failed</h1>
    <p>{{.Message}}</p>
  </main>
</body>
</html>`

const successWebUITemplateSrc = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Authentication Successful</title>
  <style>{{.CSS}}</style>
</head>
<body>
  <main class="card" role="main" aria-live="polite">
    <svg class="icon icon-success" aria-hidden="true" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2">
      <circle cx="12" cy="12" r="10"></circle>
      <path d="M8 12l3 3 5-6"></path>
    </svg>
    <h1>Authentication Successful</h1>
    <p>You can close this window.</p>
  </main>
  <script>
    (function() {
      var message = { type: 'oauth-callback', status: 'success', provider: {{.Provider}}, state: {{.State}} };
      if (window.opener) { window.opener.postMessage(message, '*'); }
      if (window.parent && window.parent !== window) { window.parent.postMessage(message, '*'); }
      setTimeout(function() { window.close(); }, 1500);
    })();
  </script>
</body>
</html>`

const errorWebUITemplateSrc = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Authentication Failed</title>
  <style>{{.CSS}}</style>
</head>
<body>
  <main class="card" role="main" aria-live="polite">
    <svg class="icon icon-error" aria-hidden="true" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2">
      <circle cx="12" cy="12" r="10"></circle>
      <path d="M15 9l-6 6M9 9l6 6"></path>
    </svg>
    <h1>Authentication Failed</h1>
    <p>{{.Message}}</p>
  </main>
  <script>
    (function() {
      var message = { type: 'oauth-callback', status: 'error', provider: {{.Provider}}, state: {{.State}}, message: {{.Message}} };
      if (window.opener) { window.opener.postMessage(message, '*'); }
      if (window.parent && window.parent !== window) { window.parent.postMessage(message, '*'); }
    })();
  </script>
</body>
</html>`

var (
	successTmpl        = template.Must(template.New("success").Parse(successTemplateSrc))
	errorTmpl           = template.Must(template.New("error").Parse(errorTemplateSrc))
	successWebUITmpl    = template.Must(template.New("successWebUI").Parse(successWebUITemplateSrc))
	errorWebUITmpl       = template.Must(template.New("errorWebUI").Parse(errorWebUITemplateSrc))
)

// RenderSuccess renders the terminal-mode success callback page.
func RenderSuccess() (string, error) {
	var buf bytes.Buffer
	if err := successTmpl.Execute(&buf, map[string]string{"CSS": baseCSS}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderError renders the terminal-mode error callback page. message is
// escaped by html/template, never interpolated raw.
func RenderError(message string) (string, error) {
	var buf bytes.Buffer
	data := struct{ CSS, Message string }{CSS: baseCSS, Message: message}
	if err := errorTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderSuccessWebUI renders the WebUI-mode success page, which posts a
// result back to the opener/parent window before closing.
func RenderSuccessWebUI(provider, state string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		CSS, Provider, State string
	}{CSS: baseCSS, Provider: provider, State: state}
	if err := successWebUITmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderErrorWebUI renders the WebUI-mode error page.
func RenderErrorWebUI(provider, state, message string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		CSS, Provider, State, Message string
	}{CSS: baseCSS, Provider: provider, State: state, Message: message}
	if err := errorWebUITmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// HTMLSuccess is the panic-free public entry point for handlers that can't
// propagate a template error (the templates are static and Must-parsed, so
// Execute only fails on a write error to the buffer, which cannot happen).
func HTMLSuccess() string {
	out, _ := RenderSuccess()
	return out
}

func HTMLError(message string) string {
	out, _ := RenderError(message)
	return out
}

func HTMLSuccessWithPostMessage(provider, state string) string {
	out, _ := RenderSuccessWebUI(provider, state)
	return out
}

func HTMLErrorWithPostMessage(provider, state, message string) string {
	out, _ := RenderErrorWebUI(provider, state, message)
	return out
}
