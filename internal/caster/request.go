package caster

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"strings"
)

// requestLine is the parsed first line of an incoming connection, which
// may be a legacy "SOURCE <password> <mount>" line, a modern
// "SOURCE /<mount> HTTP/<ver>" line (auth carried in the Authorization
// header instead), a legacy "GET <path> HTTP/<ver>" line with no
// Ntrip-Version header, or a modern HTTP/1.1 GET with the
// Ntrip-Version header set.
type requestLine struct {
	method    string // "SOURCE" or "GET"
	target    string // mount name or "/" for the sourcetable
	password  string // legacy SOURCE password, if method == "SOURCE" and httpMajor == 0
	httpMajor int
	httpMinor int
}

// readRequestLine reads and parses the first line of a connection.
func readRequestLine(r *bufio.Reader) (requestLine, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return requestLine{}, err
	}
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return requestLine{}, fmt.Errorf("malformed request line: %q", line)
	}

	switch fields[0] {
	case "SOURCE":
		// Modern NTRIP 2.0: "SOURCE /<mount> HTTP/<ver>", authenticated
		// via the Authorization header like a GET subscribe request.
		if len(fields) >= 3 && strings.HasPrefix(fields[len(fields)-1], "HTTP/") {
			major, minor, err := parseHTTPVersion(fields[len(fields)-1])
			if err != nil {
				return requestLine{}, err
			}
			return requestLine{method: "SOURCE", target: fields[1], httpMajor: major, httpMinor: minor}, nil
		}

		// Legacy NTRIP 1.0: "SOURCE <password> <mount>"
		if len(fields) < 3 {
			return requestLine{}, fmt.Errorf("malformed SOURCE line: %q", line)
		}
		return requestLine{method: "SOURCE", password: fields[1], target: fields[2]}, nil

	case "GET":
		major, minor, err := parseHTTPVersion(fields[len(fields)-1])
		if err != nil {
			return requestLine{}, err
		}
		return requestLine{method: fields[0], target: fields[1], httpMajor: major, httpMinor: minor}, nil

	default:
		return requestLine{}, fmt.Errorf("unsupported request method: %q", fields[0])
	}
}

func parseHTTPVersion(token string) (major, minor int, err error) {
	if !strings.HasPrefix(token, "HTTP/") {
		return 0, 0, fmt.Errorf("not an HTTP version token: %q", token)
	}
	var m, n int
	if _, err := fmt.Sscanf(token, "HTTP/%d.%d", &m, &n); err != nil {
		return 0, 0, fmt.Errorf("malformed HTTP version token: %q", token)
	}
	return m, n, nil
}

// readHeaders reads RFC 7230-style header lines until a blank line.
func readHeaders(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return headers, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return headers, nil
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
}

// basicAuth decodes a "Basic <base64>" Authorization header value.
func basicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	return username, password, ok
}
