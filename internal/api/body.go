package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// formIntegers lists form fields that are sent as text but typed as integers
// in the JSON document.
var formIntegers = map[string]bool{
	"proxy.port": true,
}

// readJob returns the request body as a JSON document. Form bodies are
// converted, with bracketed keys such as proxy[host] becoming nested objects.
func readJob(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form body: %w", err)
		}
		doc, err := formToJSON(r.PostForm)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}

func formToJSON(form url.Values) ([]byte, error) {
	doc := map[string]any{}
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		path, err := splitFormKey(key)
		if err != nil {
			return nil, err
		}
		if err := setPath(doc, path, formValue(path, values[len(values)-1])); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode form body: %w", err)
	}
	return raw, nil
}

// splitFormKey turns "proxy[host]" into ["proxy", "host"].
func splitFormKey(key string) ([]string, error) {
	head, rest, nested := strings.Cut(key, "[")
	if head == "" {
		return nil, fmt.Errorf("invalid form key %q", key)
	}
	path := []string{head}
	for nested {
		var part string
		part, rest, nested = strings.Cut(rest, "]")
		if !nested || part == "" {
			return nil, fmt.Errorf("invalid form key %q", key)
		}
		path = append(path, part)
		if rest == "" {
			break
		}
		if rest[0] != '[' {
			return nil, fmt.Errorf("invalid form key %q", key)
		}
		rest = rest[1:]
	}
	return path, nil
}

func setPath(doc map[string]any, path []string, value any) error {
	node := doc
	for _, part := range path[:len(path)-1] {
		child, ok := node[part]
		if !ok {
			next := map[string]any{}
			node[part] = next
			node = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("form field %q is both a value and an object", part)
		}
		node = next
	}
	leaf := path[len(path)-1]
	if _, ok := node[leaf].(map[string]any); ok {
		return fmt.Errorf("form field %q is both a value and an object", leaf)
	}
	node[leaf] = value
	return nil
}

func formValue(path []string, value string) any {
	if formIntegers[strings.Join(path, ".")] {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return value
}
