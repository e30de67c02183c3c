package qr

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Generator renders QR codes that send a customer to their ticket page.
type Generator struct {
	baseURL string
	size    int
}

func NewGenerator(baseURL string) *Generator {
	return &Generator{baseURL: strings.TrimRight(baseURL, "/"), size: DefaultSize}
}

func (g *Generator) TicketURL(queueID, ticketID string) string {
	return fmt.Sprintf("%s/queues/%s/tickets/%s", g.baseURL, url.PathEscape(queueID), url.PathEscape(ticketID))
}

// TicketPNG returns a PNG encoding of TicketURL.
func (g *Generator) TicketPNG(queueID, ticketID string) ([]byte, error) {
	png, err := qrcode.Encode(g.TicketURL(queueID, ticketID), qrcode.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("encode ticket qr: %w", err)
	}
	return png, nil
}
