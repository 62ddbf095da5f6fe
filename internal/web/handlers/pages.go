package handlers

import (
	"fmt"
	"net/http"
)

// Minimal inline pages shown to the user at the end of the browser leg of
// the link flow.

func renderSuccessPage(w http.ResponseWriter, email string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Mailbox Linked</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.success { color: #4ade80; }
		strong { color: #fbbf24; }
	</style>
</head>
<body>
	<h1 class="success">✅ Mailbox Linked!</h1>
	<p><strong>%s</strong> is now connected.</p>
	<p>You can close this window and return to the app.</p>
</body>
</html>`, email)
}

func renderErrorPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Linking Failed</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.error { color: #f87171; }
	</style>
</head>
<body>
	<h1 class="error">❌ Linking Failed</h1>
	<p>%s</p>
	<p>Please restart the linking flow from the app.</p>
</body>
</html>`, message)
}
