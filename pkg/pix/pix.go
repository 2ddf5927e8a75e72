// Package pix builds static PIX BR Codes (EMV merchant-presented QR payloads) and their PNG images.
package pix

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const (
	gui             = "br.gov.bcb.pix"
	maxNameLen      = 25
	maxCityLen      = 15
	maxTxIDLen      = 25
	defaultTxID     = "***"
	currencyBRL     = "986"
	countryBR       = "BR"
	merchantNoMCC   = "0000"
	payloadFormatV1 = "01"
)

var ErrMissingKey = errors.New("pix key is empty")

// Merchant identifies who receives the transfer.
type Merchant struct {
	Key  string
	Name string
	City string
}

// Payment is one copy-and-paste charge.
type Payment struct {
	Amount transport.Cents
	// TxID is the reference shown on the payer's statement; empty means "***".
	TxID string
}

// TxIDForTicket is the reference used for a transport ticket: TAS1042.
func TxIDForTicket(ticket int64) string { return fmt.Sprintf("TAS%d", ticket) }

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// Payload renders the BR Code string ("PIX copia e cola").
func Payload(m Merchant, p Payment) (string, error) {
	if strings.TrimSpace(m.Key) == "" {
		return "", ErrMissingKey
	}
	if p.Amount < 0 {
		return "", fmt.Errorf("%w: %s", transport.ErrInvalidAmount, p.Amount)
	}
	name := clean(m.Name, maxNameLen, "TAS MANIA")
	city := clean(m.City, maxCityLen, "SAO PAULO")
	txid := sanitizeTxID(p.TxID)

	var b strings.Builder
	b.WriteString(field("00", payloadFormatV1))
	b.WriteString(field("26", field("00", gui)+field("01", strings.TrimSpace(m.Key))))
	b.WriteString(field("52", merchantNoMCC))
	b.WriteString(field("53", currencyBRL))
	if p.Amount > 0 {
		b.WriteString(field("54", fmt.Sprintf("%d.%02d", int64(p.Amount)/100, int64(p.Amount)%100)))
	}
	b.WriteString(field("58", countryBR))
	b.WriteString(field("59", name))
	b.WriteString(field("60", city))
	b.WriteString(field("62", field("05", txid)))
	b.WriteString("6304")
	crc := CRC16(b.String())
	b.WriteString(fmt.Sprintf("%04X", crc))
	return b.String(), nil
}

// CRC16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) over the payload bytes.
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Valid checks the trailing CRC of a payload.
func Valid(payload string) bool {
	if len(payload) < 8 || payload[len(payload)-8:len(payload)-4] != "6304" {
		return false
	}
	body := payload[:len(payload)-4]
	return fmt.Sprintf("%04X", CRC16(body)) == payload[len(payload)-4:]
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// clean removes accents, keeps printable ASCII, upper-cases and truncates.
func clean(s string, limit int, fallback string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	var b strings.Builder
	for _, r := range out {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	res := strings.TrimSpace(b.String())
	if res == "" {
		res = fallback
	}
	if len(res) > limit {
		res = strings.TrimSpace(res[:limit])
	}
	return res
}

func sanitizeTxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	id := b.String()
	if id == "" {
		return defaultTxID
	}
	if len(id) > maxTxIDLen {
		id = id[:maxTxIDLen]
	}
	return id
}

type bufferCloser struct{ *bytes.Buffer }

func (bufferCloser) Close() error { return nil }

// QRCodePNG renders payload as a PNG image.
func QRCodePNG(payload string) ([]byte, error) {
	qrc, err := qrcode.New(payload)
	if err != nil {
		return nil, fmt.Errorf("qrcode: %w", err)
	}
	buf := bufferCloser{new(bytes.Buffer)}
	w := standard.NewWithWriter(buf,
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)
	if err := qrc.Save(w); err != nil {
		return nil, fmt.Errorf("save qrcode: %w", err)
	}
	return buf.Bytes(), nil
}

// Image is what the ticket posts as the payment QR.
type Image struct {
	Name string
	Data []byte
	// Static reports that the image came from the configured file instead of being generated.
	Static bool
}

// QRImage prefers the static image at staticPath when it exists, falling back to a generated code.
func QRImage(staticPath, payload string) (*Image, error) {
	if staticPath != "" {
		if data, err := os.ReadFile(staticPath); err == nil && len(data) > 0 {
			return &Image{Name: "pix_qrcode.png", Data: data, Static: true}, nil
		}
	}
	data, err := QRCodePNG(payload)
	if err != nil {
		return nil, err
	}
	return &Image{Name: "pix_qrcode.png", Data: data}, nil
}
