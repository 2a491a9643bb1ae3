package dgii

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"unicode/utf8"
)

const (
	maxResponseBytes = 1 << 20 // 1 MB
	maxRawText       = 2000
)

// response cuerpo y estado de una llamada a la DGII.
type response struct {
	Status int
	Body   []byte
}

func (r response) ok() bool { return r.Status >= 200 && r.Status < 300 }

// raw texto de la autoridad para adjuntar a errores; nunca se descarta. Siempre
// es UTF-8 válido: se guarda en columnas TEXT.
func (r response) raw() string {
	text := strings.ToValidUTF8(strings.TrimSpace(string(r.Body)), "\uFFFD")
	if text == "" {
		text = http.StatusText(r.Status)
	}
	if len(text) > maxRawText {
		cut := maxRawText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func do(client *http.Client, req *http.Request) (response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{Status: resp.StatusCode}, fmt.Errorf("leer respuesta: %w", err)
	}
	return response{Status: resp.StatusCode, Body: body}, nil
}

// xmlMultipart arma el cuerpo multipart con el campo "xml" que exige la DGII.
func xmlMultipart(fileName string, content []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="xml"; filename="%s"`, fileName))
	h.Set("Content-Type", "text/xml")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// isTimeout distingue vencimientos de plazo de otros fallos de red.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
