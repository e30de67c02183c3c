package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketURL(t *testing.T) {
	g := NewGenerator("https://fila.example.com/")
	assert.Equal(t, "https://fila.example.com/queues/q1/tickets/t%2F1", g.TicketURL("q1", "t/1"))
}

func TestTicketPNG(t *testing.T) {
	g := NewGenerator("http://localhost:3000")
	data, err := g.TicketPNG("q1", "t1")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}
