package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
)

var (
	InvalidJSON = `{"invalid": json}`
)

// create JSON request body
func createJSONRequest(data interface{}) *bytes.Buffer {
	if s, ok := data.(string); ok {
		return bytes.NewBufferString(s)
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return bytes.NewBuffer([]byte(""))
	}
	return bytes.NewBuffer(jsonData)
}

// create HTTP request with JSON body for a client
func createJSONHTTPRequest(method, url, clientID string, data interface{}) *http.Request {
	var body *bytes.Buffer
	if data == nil {
		body = bytes.NewBuffer(nil)
	} else {
		body = createJSONRequest(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	return req
}

func decode(body *bytes.Buffer, out interface{}) error {
	return json.Unmarshal(body.Bytes(), out)
}
