package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

const defaultRunCommandPort = 8443

// httpsClient accepts self-signed certificates; runtimes terminate
// their HTTPS port with a cert they mint themselves.
var httpsClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// runCommandHandler is the transparent HTTP bridge behind run_command:
// it forwards method/api/headers/data/params/files to a runtime's
// ip:port and relays the response verbatim.
func runCommandHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		deviceID, _ := payload["device_id"].(string)
		method, _ := payload["method"].(string)
		api, _ := payload["api"].(string)

		client, ok, _ := deps.Runtime.Clients.Get(deviceID)
		if !ok {
			return map[string]interface{}{
				"status": "error",
				"error":  "Device not found: " + deviceID,
			}, nil
		}

		port := defaultRunCommandPort
		if p, ok := payload["port"]; ok {
			if f, ok := p.(float64); ok {
				port = int(f)
			}
		}

		headers, _ := payload["headers"].(map[string]interface{})
		params, _ := payload["params"].(map[string]interface{})
		data := payload["data"]
		files, _ := payload["files"].(map[string]interface{})

		httpResp := executeRunCommand(ctx, method, client.IP, port, api, headers, params, data, files)

		status := "error"
		if ok, _ := httpResp["ok"].(bool); ok {
			status = "success"
		}

		return map[string]interface{}{
			"status":        status,
			"http_response": httpResp,
		}, nil
	}
}

func executeRunCommand(
	ctx context.Context,
	method, ip string,
	port int,
	api string,
	headers map[string]interface{},
	params map[string]interface{},
	data interface{},
	files map[string]interface{},
) map[string]interface{} {
	protocol := "http"
	client := httpClient
	if port == 8443 {
		protocol = "https"
		client = httpsClient
	}

	target := fmt.Sprintf("%s://%s:%d/%s", protocol, ip, port, strings.TrimLeft(api, "/"))

	u, err := url.Parse(target)
	if err != nil {
		return runCommandError(400, "invalid target: "+err.Error())
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	var contentType string

	switch {
	case len(files) > 0:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		for field, raw := range files {
			info, _ := raw.(map[string]interface{})
			b64, _ := info["content_base64"].(string)
			if b64 == "" {
				continue
			}
			content, decodeErr := base64.StdEncoding.DecodeString(b64)
			if decodeErr != nil {
				return runCommandError(400, "invalid base64 content for field "+field+": "+decodeErr.Error())
			}
			filename, _ := info["filename"].(string)
			if filename == "" {
				filename = field
			}
			part, partErr := writer.CreateFormFile(field, filename)
			if partErr != nil {
				return runCommandError(500, partErr.Error())
			}
			if _, err := part.Write(content); err != nil {
				return runCommandError(500, err.Error())
			}
		}
		if m, ok := data.(map[string]interface{}); ok {
			for k, v := range m {
				writer.WriteField(k, fmt.Sprintf("%v", v))
			}
		}
		writer.Close()
		body = buf
		contentType = writer.FormDataContentType()

	default:
		requestContentType := "application/json"
		if headers != nil {
			if ct, ok := headers["Content-Type"].(string); ok && ct != "" {
				requestContentType = ct
			}
		}
		if requestContentType == "application/json" {
			encoded, err := json.Marshal(data)
			if err != nil {
				return runCommandError(400, "could not encode data: "+err.Error())
			}
			body = bytes.NewReader(encoded)
			contentType = "application/json"
		} else {
			form := url.Values{}
			if m, ok := data.(map[string]interface{}); ok {
				for k, v := range m {
					form.Set(k, fmt.Sprintf("%v", v))
				}
			}
			body = strings.NewReader(form.Encode())
			contentType = requestContentType
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return runCommandError(400, "unsupported method "+method+": "+err.Error())
	}
	for k, v := range headers {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	minilog.Info("dispatch: run_command %s %s", method, u.String())

	resp, err := client.Do(req)
	if err != nil {
		minilog.Warn("dispatch: run_command request failed: %v", err)
		return runCommandError(500, err.Error())
	}
	defer resp.Body.Close()

	return processResponse(resp)
}

func processResponse(resp *http.Response) map[string]interface{} {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return runCommandError(500, err.Error())
	}

	respHeaders := map[string]interface{}{}
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	result := map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"ok":          resp.StatusCode >= 200 && resp.StatusCode < 300,
	}

	var parsed interface{}
	if err := json.Unmarshal(bodyBytes, &parsed); err == nil {
		result["body"] = parsed
		result["content_type"] = "application/json"
	} else {
		result["body"] = string(bodyBytes)
		result["content_type"] = "text/plain"
	}
	return result
}

func runCommandError(statusCode int, message string) map[string]interface{} {
	return map[string]interface{}{
		"status_code":  statusCode,
		"headers":      map[string]interface{}{},
		"body":         map[string]interface{}{"error": message},
		"ok":           false,
		"content_type": "application/json",
	}
}
