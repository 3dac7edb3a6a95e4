package server

import (
	"fmt"
	"html"
)

// Request payloads

type SendMessageRequest struct {
	OwnerKey  string `json:"owner_key"`
	From      string `json:"from,omitempty"`
	Kind      string `json:"kind,omitempty" enum:"text,voice,photo,video,document"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty" format:"date-time"`
}

type RejectArtifactRequest struct {
	Feedback string `json:"feedback"`
}

func previewHTML(subject, rendered string) string {
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>%s</title>
    <style>
      body { max-width: 42rem; margin: 2rem auto; padding: 0 1rem; font-family: Georgia, serif; line-height: 1.6; color: #222; }
      h1, h2 { font-family: Helvetica, Arial, sans-serif; }
    </style>
  </head>
  <body>
%s
  </body>
</html>`, html.EscapeString(subject), rendered)
}
