package telegram

import (
	"bytes"

	"github.com/leonid-shevtsov/telegold"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
)

var markdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// RenderHTML converts Markdown to the HTML subset Telegram accepts. On
// conversion failure the input is returned unchanged.
func RenderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(markdown), &buf); err != nil {
		log.Warn().Err(err).Msg("markdown conversion failed")
		return markdown
	}
	return buf.String()
}
