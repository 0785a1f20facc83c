package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
)

// Transcribe calls POST /voice/transcribe with a single multipart audio part
// and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	env, err := c.call(ctx, "transcribe", request{
		method:      http.MethodPost,
		path:        "/voice/transcribe",
		body:        &body,
		contentType: writer.FormDataContentType(),
		auth:        true,
	}, false)
	if err != nil {
		return "", err
	}

	var text string
	if err := json.Unmarshal(env.Data, &text); err != nil {
		return "", &Error{HTTPStatus: http.StatusOK, Code: env.Code, Msg: "transcription response carried no text"}
	}
	return strings.TrimSpace(text), nil
}
